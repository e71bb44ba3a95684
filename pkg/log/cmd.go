// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"os/exec"
)

type CommandFunc func(cmd *exec.Cmd) (res string, success bool)

// Cmd wraps exec.Command(...).CombinedOutput(). Used to invoke the external
// attestation binary. Because Cmd is a variable, tests can replace it to
// intercept or track calls made through this indirection.
var Cmd CommandFunc = DefaultCmd

// DefaultCmd runs a command, capturing output and logging on failure. On
// failure, returns "", false.
func DefaultCmd(cmd *exec.Cmd) (res string, success bool) {
	Logf("running %v...", cmd.Args)
	out, err := cmd.CombinedOutput()
	if err == nil {
		success = true
		res = string(out)
		return
	}
	Logf("running %v: error %s\noutput:\n%s\n", cmd.Args, err, string(out))
	return
}
