// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package flags

import "testing"

func TestSetClearTestIdempotent(t *testing.T) {
	var f Flag
	f = Set(f, Brownout)
	f2 := Set(f, Brownout)
	if f != f2 {
		t.Fatalf("set not idempotent: %v != %v", f, f2)
	}
	if !Test(f, Brownout) {
		t.Fatalf("expected Brownout set")
	}
	f = Clear(f, Brownout)
	if Test(f, Brownout) {
		t.Fatalf("expected Brownout cleared")
	}
	f2 = Clear(f, Brownout)
	if f != f2 {
		t.Fatalf("clear not idempotent")
	}
}

func TestSetClearTestRoundTrip(t *testing.T) {
	f := Set(None, Emergency)
	f = Set(f, Quarantine)
	if !Test(f, Emergency) || !Test(f, Quarantine) {
		t.Fatalf("expected both bits set, got %v", f)
	}
	if Test(f, Brownout) {
		t.Fatalf("unexpected Brownout bit")
	}
}

// The numeric values are part of the on-disk journal layout and must not
// drift: emergency=1, quarantine=2, brownout=4, dirty=8, network_gated=16.
func TestWireValues(t *testing.T) {
	want := map[Flag]uint32{
		Emergency:    1,
		Quarantine:   2,
		Brownout:     4,
		Dirty:        8,
		NetworkGated: 16,
	}
	for f, v := range want {
		if uint32(f) != v {
			t.Errorf("%s = %d, want %d", f, uint32(f), v)
		}
	}
}

func TestByName(t *testing.T) {
	cases := map[string]Flag{
		"emergency":     Emergency,
		"quarantine":    Quarantine,
		"brownout":      Brownout,
		"dirty":         Dirty,
		"network_gated": NetworkGated,
	}
	for name, want := range cases {
		got, ok := ByName(name)
		if !ok || got != want {
			t.Errorf("ByName(%q) = %v, %v; want %v, true", name, got, ok, want)
		}
	}
	if _, ok := ByName("nonexistent"); ok {
		t.Errorf("ByName(nonexistent) should fail")
	}
}
