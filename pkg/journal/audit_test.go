// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package journal

import (
	"path/filepath"
	"testing"
)

func TestAuditAppendAndSince(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	a, err := OpenAuditTrail(dir)
	if err != nil {
		t.Fatalf("OpenAuditTrail: %v", err)
	}
	defer a.Close()

	entries := []Entry{
		{BootCount: 1, Kind: "promote", FromTier: Tier1, ToTier: Tier2, ReasonCode: ""},
		{BootCount: 3, Kind: "stay", FromTier: Tier2, ToTier: Tier2, ReasonCode: "health-below-threshold"},
		{BootCount: 2, Kind: "demote", FromTier: Tier3, ToTier: Tier2, ReasonCode: "attestation-failed"},
	}
	for _, e := range entries {
		if err := a.Append(e); err != nil {
			t.Fatalf("Append(%+v): %v", e, err)
		}
	}

	got, err := a.Since(0)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i, e := range got {
		if int(e.BootCount) != i+1 {
			t.Fatalf("entries not sorted ascending: %+v", got)
		}
	}

	got2, err := a.Since(2)
	if err != nil {
		t.Fatalf("Since(2): %v", err)
	}
	if len(got2) != 2 {
		t.Fatalf("Since(2) got %d entries, want 2", len(got2))
	}
}

func TestAuditOverwriteSameBootCount(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	a, err := OpenAuditTrail(dir)
	if err != nil {
		t.Fatalf("OpenAuditTrail: %v", err)
	}
	defer a.Close()

	if err := a.Append(Entry{BootCount: 5, Kind: "stay", ReasonCode: "brownout-cooldown"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Append(Entry{BootCount: 5, Kind: "promote", ToTier: Tier2}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := a.Since(0)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1 (overwrite)", len(got))
	}
	if got[0].Kind != "promote" {
		t.Fatalf("expected overwritten entry, got %+v", got[0])
	}
}
