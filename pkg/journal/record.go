// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package journal implements the atomic, crash-safe double-page boot
// journal: the durable record of which tier is committed, how many
// promotion attempts remain, and the status-flag bitset, recovered
// deterministically from any combination of torn writes and bit flips.
package journal

import (
	"fmt"

	"github.com/ironveil/pactier/pkg/journal/flags"
)

// Magic is the trailer constant that must terminate every valid page.
const Magic uint32 = 0xA771A771

// Version is the only layout version this package understands.
const Version uint32 = 1

// MaxTries is the ceiling for tries_t2/tries_t3; out-of-range values clamp
// to 0 rather than being treated as valid.
const MaxTries uint8 = 3

// Tier identifies a boot tier.
type Tier uint8

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// Valid reports whether t is one of the three defined tiers.
func (t Tier) Valid() bool { return t == Tier1 || t == Tier2 || t == Tier3 }

// BootRecord is the journal's payload, one copy of which lives on each of
// the journal's two pages.
type BootRecord struct {
	Version      uint32
	Tier         Tier
	TriesT2      uint8
	TriesT3      uint8
	RollbackIdx  uint8
	Flags        flags.Flag
	BootCount    uint64
	Timestamp    uint64
	Crc32        uint32
	Trailer      uint32
}

// Default returns the record written when the journal is first created:
// tier 1, full retry budgets, no flags, boot_count 0, sealed with its
// crc32 so the returned value round-trips through the codec unchanged.
func Default() BootRecord {
	r := BootRecord{
		Version:     Version,
		Tier:        Tier1,
		TriesT2:     MaxTries,
		TriesT3:     MaxTries,
		RollbackIdx: 0,
		Flags:       flags.None,
		BootCount:   0,
		Timestamp:   0,
		Trailer:     Magic,
	}
	r.Crc32 = Checksum(r)
	return r
}

// Valid reports whether r satisfies every page-validity invariant except
// the crc32 check, which the codec verifies separately against the raw
// bytes it decoded r from. Out-of-range retry counters do not invalidate
// a page; they clamp to 0 on read (see Clamp).
func (r BootRecord) Valid() bool {
	if r.Trailer != Magic {
		return false
	}
	if r.Version != Version {
		return false
	}
	if !r.Tier.Valid() {
		return false
	}
	return true
}

// Clamp forces out-of-range retry counters to 0, per the "soft" clause of
// the tries_t2/tries_t3 invariant.
func (r *BootRecord) Clamp() {
	if r.TriesT2 > MaxTries {
		r.TriesT2 = 0
	}
	if r.TriesT3 > MaxTries {
		r.TriesT3 = 0
	}
}

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}
