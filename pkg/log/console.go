// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"fmt"
	"os"

	"github.com/ironveil/pactier/pkg/log/flags"
)

type consoleLog struct {
	flags flags.Flag
	next  StackableLogger
}

// AddConsoleLog adds a consoleLog to the stack. flagMask selects which
// events will be logged to the console; typically flags.NA (everything) or
// flags.EndUser (only operator-facing messages).
func AddConsoleLog(flagMask flags.Flag) {
	_ = AddLogger(&consoleLog{flags: flagMask}, true)
}

var _ StackableLogger = (*consoleLog)(nil)

func (l *consoleLog) AddEntry(e LogEntry) {
	if l.flags == 0 || e.Flags&l.flags > 0 {
		fmt.Fprintln(os.Stderr, e.String())
	}
	if l.next != nil {
		l.next.AddEntry(e)
	}
}

func (l *consoleLog) ForwardTo(sl StackableLogger) {
	if l.next == nil || sl == nil {
		l.next = sl
	} else {
		panic("next already set")
	}
}

const ConsoleLogIdent = "consoleLog"

func (*consoleLog) Ident() string           { return ConsoleLogIdent }
func (l *consoleLog) Next() StackableLogger { return l.next }

func (l *consoleLog) Finalize() {
	if l.next != nil {
		l.next.Finalize()
	}
}
