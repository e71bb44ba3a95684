// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package fileutil contains small filesystem helpers; the boot
// controller's default Mount hook uses WaitFor.
package fileutil

import (
	"io/ioutil"
	"os"
	fp "path/filepath"
	"time"

	"github.com/ironveil/pactier/pkg/log"
)

// RenameUnique renames old in the same dir, using newPfx plus a random
// suffix generated via os.CreateTemp. Used to preserve a corrupt file for
// forensics instead of silently overwriting or deleting it.
func RenameUnique(old, newPfx string) (success bool) {
	f, err := ioutil.TempFile(fp.Dir(old), newPfx)
	if err != nil {
		log.Logf("error %s creating temp name for %s", err, old)
		return false
	}
	newname := f.Name()
	f.Close()
	err = os.Remove(newname)
	if err != nil {
		log.Logf("error %s deleting temp file %s", err, newname)
	}
	err = os.Rename(old, newname)
	if err != nil {
		log.Logf("error %s renaming %s to %s", err, old, newname)
	}
	return err == nil
}

// WaitForChan polls for path to appear, returning no later than when stop is
// closed. Used by probes that need a bounded poll rather than an indefinite
// block; no guard is allowed to block indefinitely.
func WaitForChan(path string, stop <-chan struct{}) (found bool) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(100 * time.Millisecond):
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			return true
		}
	}
}

// WaitFor is WaitForChan with a timeout instead of an explicit stop channel.
func WaitFor(path string, timeout time.Duration) (found bool) {
	stop := make(chan struct{})
	go func() {
		time.Sleep(timeout)
		close(stop)
	}()
	return WaitForChan(path, stop)
}
