// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package attest adapts the externalized attestation procedure -
// the nonce, TPM quote, and COSE/CBOR token layout are out of scope for
// this repo - into a bootctl.Attestor by shelling out to a separately
// built attestation binary via log.Cmd rather than linking its logic in
// directly.
package attest

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/google/shlex"

	"github.com/ironveil/pactier/pkg/log"
)

// Exec is an Attestor that runs path with args under ctx, treating a zero
// exit status as pass and any non-zero status or launch failure as fail.
// A launch failure is logged by log.Cmd and reported as a plain fail with
// a nil error; only a done ctx is returned as an error.
type Exec struct {
	Path string
	Args []string
}

// ParseCmd splits a single command-line string (as accepted by the
// -attest-cmd flag) into an Exec via shlex - quoting is honored, so a
// path or argument containing
// spaces does not need its own flag.
func ParseCmd(line string) (Exec, error) {
	fields, err := shlex.Split(line)
	if err != nil {
		return Exec{}, fmt.Errorf("attest: parsing command %q: %w", line, err)
	}
	if len(fields) == 0 {
		return Exec{}, fmt.Errorf("attest: empty command")
	}
	return Exec{Path: fields[0], Args: fields[1:]}, nil
}

// Attest runs the configured attestation binary. A non-zero exit or a
// launch failure returns false with a nil error; if ctx is cancelled or
// its deadline expires, it returns false together with ctx.Err().
func (e Exec) Attest(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	_, ok := log.Cmd(cmd)
	if !ok {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}
