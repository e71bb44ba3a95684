// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package statussrv exposes a running monitor's Status over a single
// local listener, multiplexed with cmux into a plain-text line protocol
// and an HTTP /status endpoint. Both are read-only: querying either
// never touches the journal, so they're safe to poll while the monitor
// holds sole journal-write ownership.
package statussrv

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"

	"github.com/ironveil/pactier/pkg/log"
	"github.com/ironveil/pactier/pkg/monitor"
)

// StatusSource is satisfied by *monitor.Monitor; a separate interface
// keeps this package from depending on anything but monitor.Status.
type StatusSource interface {
	Status() monitor.Status
}

// Server multiplexes one listener into a plain-text status line protocol
// and an HTTP server: a single listener split by cmux into
// protocol-specific sub-listeners.
type Server struct {
	source StatusSource

	lis, plis, hlis net.Listener
	httpSrv         *http.Server
	muxer           cmux.CMux
}

// Listen opens the TCP address addr (e.g. "127.0.0.1:7777") and prepares
// the cmux sub-listeners, but does not yet
// serve; call Serve to block until Close or a fatal listener error.
func Listen(addr string, source StatusSource) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	m := cmux.New(lis)
	hlis := m.Match(cmux.HTTP1Fast())
	plis := m.Match(cmux.Any())

	s := &Server{source: source, lis: lis, plis: plis, hlis: hlis}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleHTTP)
	s.httpSrv = &http.Server{Handler: mux}

	s.muxer = m
	return s, nil
}

// Serve runs the plain-text listener, the HTTP server, and the cmux
// dispatcher concurrently via errgroup, returning when any one of them
// returns.
func (s *Server) Serve() error {
	g := new(errgroup.Group)
	g.Go(func() error { return s.servePlain() })
	g.Go(func() error { return s.httpSrv.Serve(s.hlis) })
	g.Go(func() error { return s.muxer.Serve() })
	return g.Wait()
}

func (s *Server) servePlain() error {
	for {
		conn, err := s.plis.Accept()
		if err != nil {
			return err
		}
		go s.handlePlain(conn)
	}
}

func (s *Server) handlePlain(conn net.Conn) {
	defer conn.Close()
	st := s.source.Status()
	w := bufio.NewWriter(conn)
	fmt.Fprintf(w, "tier=%v flags=%v reason=%s verifier_unreachable=%d sustained_low_health=%d ticks=%d\n",
		st.Tier, st.Flags, st.LastReason, st.VerifierUnreachableConsec, st.SustainedLowHealthConsec, st.Ticks)
	if err := w.Flush(); err != nil {
		log.Logf("statussrv: plain write failed: %v", err)
	}
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	st := s.source.Status()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.Logf("statussrv: http encode failed: %v", err)
	}
}

// Close tears down the HTTP server and every sub-listener.
func (s *Server) Close() error {
	s.httpSrv.Close()
	s.hlis.Close()
	s.plis.Close()
	return s.lis.Close()
}
