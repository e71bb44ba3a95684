// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package journal

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/ironveil/pactier/pkg/log"
)

// Io wraps an underlying filesystem error encountered while opening,
// reading, writing, or syncing the journal file.
type Io struct {
	Op  string
	Err error
}

func (e Io) Error() string { return fmt.Sprintf("journal: %s: %v", e.Op, e.Err) }
func (e Io) Unwrap() error { return e.Err }

// Corruption is logged, never returned - a read that finds both pages
// invalid recovers in place by writing a default record.
type Corruption struct {
	Path string
}

func (e Corruption) Error() string {
	return fmt.Sprintf("journal: both pages corrupt, reset to defaults: %s", e.Path)
}

// logCorruptPages records the raw bytes of both failed pages (base64)
// before they're overwritten with defaults, so an operator pulling logs
// later has something to attempt forensics on instead of nothing - this
// mirrors fileutil.RenameUnique's "preserve rather than silently discard"
// behavior, applied to an in-place file rather than a standalone one.
func logCorruptPages(path string, rawA, rawB []byte) {
	log.Logf("%v", Corruption{Path: path})
	log.Logf("journal: corrupt page A (base64): %s", base64.StdEncoding.EncodeToString(rawA))
	log.Logf("journal: corrupt page B (base64): %s", base64.StdEncoding.EncodeToString(rawB))
}

// fileSize is the on-disk size of a fully-initialized journal: two
// back-to-back pages, Page A at offset 0 and Page B at offset PageSize.
const fileSize = 2 * PageSize

// Handle is an open journal file. The caller (boot controller, monitor,
// or CLI) is responsible for ensuring only one Handle is ever open for a
// given path at a time.
type Handle struct {
	path string
	f    *os.File
}

// OpenOrInit opens the journal at path, creating it with two copies of
// the default record if it is missing or shorter than two pages.
func OpenOrInit(path string) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, Io{Op: "open", Err: err}
	}
	h := &Handle{path: path, f: f}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Io{Op: "stat", Err: err}
	}
	if fi.Size() < fileSize {
		def := Default()
		if err := h.writePage(0, def); err != nil {
			f.Close()
			return nil, err
		}
		if err := h.writePage(PageSize, def); err != nil {
			f.Close()
			return nil, err
		}
	}
	return h, nil
}

// Close releases the handle's OS resources.
func (h *Handle) Close() error {
	if err := h.f.Close(); err != nil {
		return Io{Op: "close", Err: err}
	}
	return nil
}

func (h *Handle) readPage(off int64) ([]byte, bool) {
	b := make([]byte, PageSize)
	n, err := h.f.ReadAt(b, off)
	if err != nil || n != PageSize {
		return b, false
	}
	r, err := Decode(b)
	if err != nil {
		return b, false
	}
	return b, Validate(r, b)
}

func (h *Handle) writePage(off int64, r BootRecord) error {
	r.Crc32 = Checksum(r)
	b := Encode(r)
	if _, err := h.f.WriteAt(b, off); err != nil {
		return Io{Op: "write", Err: err}
	}
	if err := h.f.Sync(); err != nil {
		return Io{Op: "sync", Err: err}
	}
	return nil
}

// Read executes the four-case recovery algorithm and returns
// the chosen record. It never returns an invalid record: when both pages
// are corrupt it logs the corruption, writes a default record to both
// pages, and returns that default.
func (h *Handle) Read() (BootRecord, error) {
	rawA, okA := h.readPage(0)
	rawB, okB := h.readPage(PageSize)

	var recA, recB BootRecord
	if okA {
		recA, _ = Decode(rawA)
	}
	if okB {
		recB, _ = Decode(rawB)
	}

	switch {
	case okA && okB:
		// Both pages are valid; the newer one wins (ties go to Page A) and
		// the other page is healed to match if the two differ.
		if recB.BootCount > recA.BootCount {
			if err := h.writePage(0, recB); err != nil {
				return BootRecord{}, err
			}
			recB.Clamp()
			return recB, nil
		}
		if recB != recA {
			if err := h.writePage(PageSize, recA); err != nil {
				return BootRecord{}, err
			}
		}
		recA.Clamp()
		return recA, nil
	case okA && !okB:
		if err := h.writePage(PageSize, recA); err != nil {
			return BootRecord{}, err
		}
		recA.Clamp()
		return recA, nil
	case !okA && okB:
		if err := h.writePage(0, recB); err != nil {
			return BootRecord{}, err
		}
		recB.Clamp()
		return recB, nil
	default:
		logCorruptPages(h.path, rawA, rawB)
		def := Default()
		if err := h.writePage(0, def); err != nil {
			return BootRecord{}, err
		}
		if err := h.writePage(PageSize, def); err != nil {
			return BootRecord{}, err
		}
		return def, nil
	}
}

// Write refreshes timestamp and crc32, then writes Page A, flushes,
// writes Page B, and flushes again - the A-then-B ordering with a
// durability barrier that recovery depends on. r is not mutated; the caller's
// copy is left as given.
func (h *Handle) Write(r BootRecord) error {
	r.Timestamp = uint64(time.Now().Unix())
	r.Clamp()
	if err := h.writePage(0, r); err != nil {
		return err
	}
	if err := h.writePage(PageSize, r); err != nil {
		return err
	}
	return nil
}
