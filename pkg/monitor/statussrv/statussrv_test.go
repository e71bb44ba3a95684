// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package statussrv

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ironveil/pactier/pkg/journal"
	"github.com/ironveil/pactier/pkg/monitor"
	"github.com/ironveil/pactier/pkg/policy"
)

type fixedSource struct{ st monitor.Status }

func (f fixedSource) Status() monitor.Status { return f.st }

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	src := fixedSource{st: monitor.Status{
		Tier:       journal.Tier3,
		LastReason: policy.ReasonNone,
		Ticks:      7,
	}}
	srv, err := Listen("127.0.0.1:0", src)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	go srv.Serve()
	return srv, srv.lis.Addr().String()
}

func TestPlainTextProtocol(t *testing.T) {
	_, addr := startServer(t)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if !strings.Contains(line, "tier=tier3") || !strings.Contains(line, "ticks=7") {
		t.Fatalf("unexpected status line: %q", line)
	}
}

func TestHTTPStatusEndpoint(t *testing.T) {
	_, addr := startServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/status", addr))
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// Flags marshals to its string form, so decode only the numeric fields.
	var st struct {
		Tier  journal.Tier
		Ticks uint64
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Tier != journal.Tier3 || st.Ticks != 7 {
		t.Fatalf("unexpected status payload: %+v", st)
	}
}
