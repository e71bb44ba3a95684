// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package flags is a typed bitset over the BootRecord's status flags,
// following the same shape as github.com/ironveil/pactier/pkg/log/flags.
package flags

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Flag is a bit in the BootRecord's flags field.
type Flag uint32

const (
	None Flag = 0

	// EMERGENCY: the controller must remain in Tier 1 and not auto-clear;
	// only explicit administrative action clears it.
	Emergency Flag = 1 << (iota - 1) //iota increments with first ConstSpec in the const declaration, so subtract 1
	// QUARANTINE: retry budgets are considered exhausted regardless of
	// numeric value; promotion forbidden.
	Quarantine
	// BROWNOUT: promotion temporarily forbidden until a cooldown expires.
	Brownout
	// DIRTY: last shutdown was not clean; informational, cleared by the
	// first successful T1->T2 promotion.
	Dirty
	// NETWORK_GATED: Tier-3 requires a verified stable network; when set,
	// treat any single probe failure as a degradation trigger.
	NetworkGated
)

var all = []Flag{Emergency, Quarantine, Brownout, Dirty, NetworkGated}

// Set returns f with bit set.
func Set(current, bit Flag) Flag { return current | bit }

// Clear returns f with bit cleared.
func Clear(current, bit Flag) Flag { return current &^ bit }

// Test reports whether bit is set in current.
func Test(current, bit Flag) bool { return current&bit != 0 }

func (f Flag) MarshalJSON() ([]byte, error) { return json.Marshal(f.String()) }

func (f Flag) String() string {
	switch f {
	case None:
		return ""
	case Emergency:
		return "emergency"
	case Quarantine:
		return "quarantine"
	case Brownout:
		return "brownout"
	case Dirty:
		return "dirty"
	case NetworkGated:
		return "network_gated"
	}
	for _, bit := range all {
		if f&bit > 0 {
			return strings.Join([]string{bit.String(), (f &^ bit).String()}, "|")
		}
	}
	return fmt.Sprintf("0x%x", uint32(f))
}

// ByName maps the CLI flag names to their bit.
func ByName(name string) (Flag, bool) {
	switch name {
	case "emergency":
		return Emergency, true
	case "quarantine":
		return Quarantine, true
	case "brownout":
		return Brownout, true
	case "dirty":
		return Dirty, true
	case "network_gated":
		return NetworkGated, true
	}
	return None, false
}
