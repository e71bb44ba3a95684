// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package log is a flexible logging mechanism allowing multiple log sinks,
// outputting to one or more of: memory, the console, a file.
//
// By default, events are retained in memory so they can be replayed into new
// log sinks if/when they are added later on.
package log

import (
	"fmt"
	"os"

	"github.com/ironveil/pactier/pkg/log/flags"
)

var logPrefix string

// SetPrefix sets the log prefix, used in file names and other places. Must
// be set before calling AddFileLog().
func SetPrefix(pfx string) {
	logPrefix = pfx
}

// GetPrefix gets the log prefix.
func GetPrefix() string { return logPrefix }

// Msgf is for use with messages suitable for display to an operator. Short,
// non-technical. Use must be relatively infrequent.
func Msgf(f string, va ...interface{}) { FlaggedLogf(flags.EndUser, f, va...) }

// See Msgf
func Msgln(va ...interface{}) { Msgf(fmt.Sprintln(va...)) }

// See Msgf
func Msg(message string) { Msgf(message) }

// Logf is for use with more technical, or more trivial, messages. Never
// surfaced via Msgf's end-user channel.
func Logf(f string, va ...interface{}) { FlaggedLogf(flags.NA, f, va...) }

// See Logf
func Logln(va ...interface{}) { Logf(fmt.Sprintln(va...)) }

// See Logf
func Log(message string) { Logf(message) }

// DumpStderr writes the content of a MemLog in the stack to stderr, if one
// is present. No-op otherwise.
func DumpStderr() {
	l := FindInStack(MemLogIdent)
	if l != nil {
		ml := l.(*memLog)
		for _, e := range ml.Entries() {
			fmt.Fprintln(os.Stderr, e.String())
		}
	}
}
