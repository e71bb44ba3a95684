// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package reboot turns a committed tier change into the forced reboot
// that applies it: every tier transition is bound to a tier-specific root
// filesystem, so "commit, then reboot" is how the controller cancels the
// current boot in favor of the next one. Tests substitute an in-process
// Requester so this handoff can be exercised without actually rebooting.
package reboot

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ironveil/pactier/pkg/housekeeping"
	"github.com/ironveil/pactier/pkg/log"
)

// Requester abstracts "apply the decision and stop this process" so the
// boot controller and runtime monitor never call unix.Reboot directly.
type Requester interface {
	// Restart runs housekeeping and reboots (or, for a simulated
	// Requester, returns control to the driving harness) after a
	// successful tier commit.
	Restart(success bool)
	// PowerOff runs housekeeping and powers the device off.
	PowerOff()
}

// Unix is the production Requester: it runs housekeeping.Preboots, then
// calls unix.Reboot. Safe to invoke from a deferred call site - a panic
// in the caller is recovered so the reboot (and its housekeeping) still
// completes rather than wedging the device.
type Unix struct{}

var _ Requester = Unix{}

// Restart is meant to be called from a defer statement (directly, so
// recover below actually catches a panic unwinding through the caller):
// defer requester.Restart(success). That way a panic mid-tick still
// leaves the device in a bootable, housekept state instead of wedging.
func (Unix) Restart(success bool) {
	if x := recover(); x != nil {
		success = false
		log.Logf("panic() caught before reboot(success=%t): %v", success, x)
		log.Logf("stack trace:\n%s", debug.Stack())
	}
	housekeeping.Preboots.Perform(success)
	sync(unix.LINUX_REBOOT_CMD_RESTART)
}

func (Unix) PowerOff() {
	if x := recover(); x != nil {
		log.Logf("panic() caught before poweroff: %v", x)
		log.Logf("stack trace:\n%s", debug.Stack())
	}
	housekeeping.Preboots.Perform(true)
	sync(unix.LINUX_REBOOT_CMD_POWER_OFF)
}

func sync(cmd int) {
	if os.Getpid() != 1 {
		fmt.Fprintf(os.Stderr, "pid 1 would reboot (cmd=%d) here\n", cmd)
		return
	}
	time.Sleep(2 * time.Second)
	if err := unix.Reboot(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "reboot failed: %s\n", err)
	}
}

// Simulated is the test-harness Requester: it runs housekeeping, then
// records that a restart/poweroff was requested instead of calling into
// the kernel, so an in-process test loop can re-enter the boot controller
// to observe the next boot.
type Simulated struct {
	Restarts  int
	PowerOffs int
	LastOK    bool
}

var _ Requester = (*Simulated)(nil)

func (s *Simulated) Restart(success bool) {
	housekeeping.Preboots.Perform(success)
	s.Restarts++
	s.LastOK = success
}

func (s *Simulated) PowerOff() {
	housekeeping.Preboots.Perform(true)
	s.PowerOffs++
}
