// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package retry

import (
	"testing"

	"github.com/ironveil/pactier/pkg/journal"
	"github.com/ironveil/pactier/pkg/journal/flags"
)

func TestDecrementSaturatesAtZero(t *testing.T) {
	r := journal.Default()
	r.TriesT2 = 1
	v, err := Decrement(&r, journal.Tier2)
	if err != nil || v != 0 {
		t.Fatalf("Decrement = %d, %v; want 0, nil", v, err)
	}
	v, err = Decrement(&r, journal.Tier2)
	if err != nil || v != 0 {
		t.Fatalf("Decrement at zero = %d, %v; want 0, nil (saturating)", v, err)
	}
}

func TestDecrementBadTier(t *testing.T) {
	r := journal.Default()
	if _, err := Decrement(&r, journal.Tier1); err == nil {
		t.Fatalf("expected BadTier for tier 1")
	}
	if _, err := Decrement(&r, journal.Tier(9)); err == nil {
		t.Fatalf("expected BadTier for tier 9")
	}
}

func TestReset(t *testing.T) {
	r := journal.Default()
	r.TriesT2 = 0
	r.TriesT3 = 1
	Reset(&r)
	if r.TriesT2 != journal.MaxTries || r.TriesT3 != journal.MaxTries {
		t.Fatalf("Reset did not restore max tries: %+v", r)
	}
}

func TestExhaustedTier2QuarantineOverridesNumeric(t *testing.T) {
	r := journal.Default()
	r.TriesT2 = 3
	r.Flags = flags.Set(r.Flags, flags.Quarantine)
	ex, err := Exhausted(r, journal.Tier2)
	if err != nil {
		t.Fatalf("Exhausted: %v", err)
	}
	if !ex {
		t.Fatalf("expected quarantine to force tier-2 exhaustion regardless of tries_t2")
	}
}

func TestExhaustedTier3IgnoresQuarantine(t *testing.T) {
	r := journal.Default()
	r.TriesT3 = 3
	r.Flags = flags.Set(r.Flags, flags.Quarantine)
	ex, err := Exhausted(r, journal.Tier3)
	if err != nil {
		t.Fatalf("Exhausted: %v", err)
	}
	if ex {
		t.Fatalf("tier-3 exhaustion should only look at tries_t3")
	}
}

func TestExhaustedBadTier(t *testing.T) {
	r := journal.Default()
	if _, err := Exhausted(r, journal.Tier1); err == nil {
		t.Fatalf("expected BadTier for tier 1")
	}
}
