// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ironveil/pactier/pkg/journal"
)

func TestDispatchInitThenSetTier(t *testing.T) {
	dir := t.TempDir()
	jpath := filepath.Join(dir, "boot.journal")

	if code := dispatch("init", nil, jpath, "", ""); code != 0 {
		t.Fatalf("init: code=%d", code)
	}
	if code := dispatch("set-tier", []string{"2"}, jpath, "", ""); code != 0 {
		t.Fatalf("set-tier: code=%d", code)
	}

	h, err := journal.OpenOrInit(jpath)
	if err != nil {
		t.Fatalf("OpenOrInit: %v", err)
	}
	defer h.Close()
	r, err := h.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Tier != journal.Tier2 {
		t.Fatalf("tier=%v, want 2", r.Tier)
	}
}

func TestDispatchSetTierRejectsBadArgs(t *testing.T) {
	dir := t.TempDir()
	jpath := filepath.Join(dir, "boot.journal")

	if code := dispatch("set-tier", []string{"7"}, jpath, "", ""); code != 1 {
		t.Fatalf("expected exit code 1 for invalid tier, got %d", code)
	}
	if code := dispatch("set-tier", nil, jpath, "", ""); code != 1 {
		t.Fatalf("expected exit code 1 for missing argument, got %d", code)
	}
}

func TestDispatchFlagsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	jpath := filepath.Join(dir, "boot.journal")

	if code := dispatch("set-flag", []string{"brownout"}, jpath, "", ""); code != 0 {
		t.Fatalf("set-flag: code=%d", code)
	}
	if code := dispatch("clear-flag", []string{"brownout"}, jpath, "", ""); code != 0 {
		t.Fatalf("clear-flag: code=%d", code)
	}
	if code := dispatch("set-flag", []string{"bogus"}, jpath, "", ""); code != 1 {
		t.Fatalf("expected exit code 1 for unknown flag, got %d", code)
	}
}

func TestDispatchDecTriesAndReset(t *testing.T) {
	dir := t.TempDir()
	jpath := filepath.Join(dir, "boot.journal")
	dispatch("init", nil, jpath, "", "")

	for i := 0; i < 5; i++ {
		dispatch("dec-tries", []string{"2"}, jpath, "", "")
	}
	h, _ := journal.OpenOrInit(jpath)
	r, _ := h.Read()
	h.Close()
	if r.TriesT2 != 0 {
		t.Fatalf("tries_t2=%d, want 0 after saturating decrement", r.TriesT2)
	}

	if code := dispatch("reset-tries", nil, jpath, "", ""); code != 0 {
		t.Fatalf("reset-tries: code=%d", code)
	}
	h, _ = journal.OpenOrInit(jpath)
	r, _ = h.Read()
	h.Close()
	if r.TriesT2 != journal.MaxTries || r.TriesT3 != journal.MaxTries {
		t.Fatalf("tries not reset: %+v", r)
	}
}

func TestDispatchIncBoot(t *testing.T) {
	dir := t.TempDir()
	jpath := filepath.Join(dir, "boot.journal")
	dispatch("init", nil, jpath, "", "")
	dispatch("inc-boot", nil, jpath, "", "")
	dispatch("inc-boot", nil, jpath, "", "")

	h, _ := journal.OpenOrInit(jpath)
	r, _ := h.Read()
	h.Close()
	if r.BootCount != 2 {
		t.Fatalf("boot_count=%d, want 2", r.BootCount)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	dir := t.TempDir()
	jpath := filepath.Join(dir, "boot.journal")
	if code := dispatch("frobnicate", nil, jpath, "", ""); code != 1 {
		t.Fatalf("expected exit code 1 for unknown command, got %d", code)
	}
}

func TestDispatchHealthCheckRun(t *testing.T) {
	dir := t.TempDir()
	hpath := filepath.Join(dir, "health.json")
	if err := os.WriteFile(hpath, []byte(`{"overall_score": 6, "overall_status": "healthy"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if code := dispatch("health-check-run", nil, "", hpath, ""); code != 0 {
		t.Fatalf("health-check-run: code=%d, want 0 for healthy report", code)
	}
}
