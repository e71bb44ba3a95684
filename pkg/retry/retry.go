// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package retry implements the saturating retry-budget accounting over a
// journal.BootRecord's tries_t2/tries_t3 counters.
package retry

import (
	"fmt"

	"github.com/ironveil/pactier/pkg/journal"
	"github.com/ironveil/pactier/pkg/journal/flags"
)

// BadTier is returned by Decrement when asked to account for a tier other
// than 2 or 3 - Tier 1 has no retry budget to exhaust.
type BadTier struct {
	Tier journal.Tier
}

func (e BadTier) Error() string {
	return fmt.Sprintf("retry: tier %v has no retry budget", e.Tier)
}

// Decrement saturates at 0 and mutates r in place, returning the new
// value. Fails with BadTier for any tier other than 2 or 3.
func Decrement(r *journal.BootRecord, tier journal.Tier) (uint8, error) {
	switch tier {
	case journal.Tier2:
		if r.TriesT2 > 0 {
			r.TriesT2--
		}
		return r.TriesT2, nil
	case journal.Tier3:
		if r.TriesT3 > 0 {
			r.TriesT3--
		}
		return r.TriesT3, nil
	default:
		return 0, BadTier{Tier: tier}
	}
}

// Reset restores both retry budgets to journal.MaxTries.
func Reset(r *journal.BootRecord) {
	r.TriesT2 = journal.MaxTries
	r.TriesT3 = journal.MaxTries
}

// Exhausted reports whether the retry budget for tier is spent. Tier 2 is
// exhausted when tries_t2 == 0 or QUARANTINE is set, regardless of the
// numeric value; Tier 3 looks only at tries_t3.
func Exhausted(r journal.BootRecord, tier journal.Tier) (bool, error) {
	switch tier {
	case journal.Tier2:
		return r.TriesT2 == 0 || flags.Test(r.Flags, flags.Quarantine), nil
	case journal.Tier3:
		return r.TriesT3 == 0, nil
	default:
		return false, BadTier{Tier: tier}
	}
}
