// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package reboot

import (
	"testing"

	"github.com/ironveil/pactier/pkg/housekeeping"
)

func TestSimulatedRestartRunsHousekeepingAndRecords(t *testing.T) {
	var ran bool
	housekeeping.Preboots.Clear()
	housekeeping.Preboots.Add("mark", func(success bool) { ran = success })
	defer housekeeping.Preboots.Clear()

	s := &Simulated{}
	s.Restart(true)

	if !ran {
		t.Fatalf("expected housekeeping task to run with success=true")
	}
	if s.Restarts != 1 || !s.LastOK {
		t.Fatalf("unexpected Simulated state: %+v", s)
	}
}

func TestSimulatedPowerOff(t *testing.T) {
	housekeeping.Preboots.Clear()
	defer housekeeping.Preboots.Clear()

	s := &Simulated{}
	s.PowerOff()
	if s.PowerOffs != 1 {
		t.Fatalf("expected one recorded poweroff, got %d", s.PowerOffs)
	}
}

func TestSimulatedMultipleRestartsAccumulate(t *testing.T) {
	housekeeping.Preboots.Clear()
	defer housekeeping.Preboots.Clear()

	s := &Simulated{}
	s.Restart(true)
	s.Restart(false)
	if s.Restarts != 2 {
		t.Fatalf("expected 2 restarts, got %d", s.Restarts)
	}
	if s.LastOK {
		t.Fatalf("expected LastOK to reflect the most recent call (false)")
	}
}
