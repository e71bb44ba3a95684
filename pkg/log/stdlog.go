// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"log"

	"github.com/ironveil/pactier/pkg/log/flags"
)

// AdaptStdlog redirects output from the stdlib "log" package into this
// logger. vishvananda/netlink and golang.org/x/sync/errgroup's error paths
// sometimes write through the stdlib logger; this keeps that output in the
// same stack instead of leaking to stderr unformatted.
//
// If resetSLFlags is true, the stdlib logger's flags are cleared so time
// info isn't duplicated in the entry. Use nil for logger to adapt the
// predefined "standard" stdlib logger.
func AdaptStdlog(logger *log.Logger, level flags.Flag, resetSLFlags bool) {
	sa := &stdAdapter{
		level:        level,
		resetSLFlags: resetSLFlags,
		logger:       logger,
	}
	if resetSLFlags {
		sa.resetSlFlags()
	}
	if logger == nil {
		log.SetOutput(sa)
	} else {
		logger.SetOutput(sa)
	}
}

type stdAdapter struct {
	resetSLFlags bool
	level        flags.Flag
	logger       *log.Logger
}

func (sa *stdAdapter) Write(b []byte) (int, error) {
	if sa.resetSLFlags {
		sa.resetSLFlags = false
		go sa.resetSlFlags()
	}
	FlaggedLogf(sa.level, string(b))
	return len(b), nil
}

// resetSlFlags clears time-related flags on the stdlib logger. Its internal
// state is guarded by a mutex; exercise caution calling this synchronously.
func (sa *stdAdapter) resetSlFlags() {
	if sa.logger == nil {
		log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime | log.Lmicroseconds))
	} else {
		sa.logger.SetFlags(sa.logger.Flags() &^ (log.Ldate | log.Ltime | log.Lmicroseconds))
	}
}
