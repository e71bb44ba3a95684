// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"os"
	"strings"

	"github.com/ironveil/pactier/pkg/log/flags"
)

// FatalFunc is called after a fatal event has been logged. This could power
// off, reboot, or exit the process.
type FatalFunc func()
type PreFunc func(f string, va ...interface{})

// FailAction describes what to do when log.Fatalf() is called. Note that
// this does not need to log the event itself - that's done automatically.
type FailAction struct {
	// MsgPfx is prepended to the message.
	MsgPfx string
	// Pre runs before Finalize() - i.e. the log is still writable.
	Pre PreFunc
	// Terminator is the action to take to exit - reboot, shutdown, process
	// exit, etc. Logs are no longer writable when this is called.
	Terminator FatalFunc
}

var fatalAction = DefaultFatal

// SetFatalAction sets the action to take when a fatal event has been
// logged; see FailAction. The boot controller and runtime monitor commands
// install an action that exits the process with status 2; nothing
// inside a runtime-monitor tick may reach Fatalf at all.
func SetFatalAction(act FailAction) { fatalAction = act }

// DefaultFatal calls os.Exit(1).
var DefaultFatal = FailAction{Terminator: DefaultFatalAction}

func DefaultFatalAction() {
	if strings.HasSuffix(os.Args[0], "test") {
		panic("generic fatal called from test")
	}
	os.Exit(1)
}

// Fatalf is like Msgf or Logf, but does not return - the process is
// terminated (or, per SetFatalAction, some other terminal action runs).
func Fatalf(f string, va ...interface{}) {
	if logStack.Next() == nil && logStack.Ident() == MemLogIdent {
		AddConsoleLog(0)
		Log("Fatalf: logging unconfigured")
	}
	FlaggedLogf(flags.Fatal, fatalAction.MsgPfx+f, va...)
	if fatalAction.Pre != nil {
		fatalAction.Pre(fatalAction.MsgPfx+f, va...)
	}
	Finalize()
	fatalAction.Terminator()
}
