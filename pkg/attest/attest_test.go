// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package attest

import (
	"context"
	"testing"
)

func TestExecAttestPass(t *testing.T) {
	e := Exec{Path: "true"}
	ok, err := e.Attest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected pass")
	}
}

func TestExecAttestFail(t *testing.T) {
	e := Exec{Path: "false"}
	ok, err := e.Attest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected fail")
	}
}

func TestExecAttestMissingBinary(t *testing.T) {
	e := Exec{Path: "/no/such/attestation/binary"}
	ok, _ := e.Attest(context.Background())
	if ok {
		t.Fatalf("expected fail for missing binary")
	}
}
