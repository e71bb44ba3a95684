// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ironveil/pactier/pkg/bootctl"
	"github.com/ironveil/pactier/pkg/journal"
	"github.com/ironveil/pactier/pkg/journal/flags"
	"github.com/ironveil/pactier/pkg/policy"
	"github.com/ironveil/pactier/pkg/reboot"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func healthyConfig(t *testing.T, dir string, score int) bootctl.Config {
	t.Helper()
	healthPath := filepath.Join(dir, "health.json")
	writeFile(t, healthPath, scoreBody(score))

	tier2 := filepath.Join(dir, "tier2.img")
	tier3 := filepath.Join(dir, "tier3.img")
	writeFile(t, tier2, "x")
	writeFile(t, tier3, "x")

	return bootctl.Config{
		JournalPath:   filepath.Join(dir, "boot.journal"),
		HealthPath:    healthPath,
		Tier2RootPath: tier2,
		Tier3RootPath: tier3,
		Thresholds:    policy.DefaultThresholds(),
		Attest:        bootctl.AttestorFunc(func(context.Context) (bool, error) { return true, nil }),
		VerifierReachable: func(context.Context) bool { return true },
		NetworkStable:     func(context.Context) bool { return true },
	}
}

func scoreBody(score int) string {
	return `{"overall_score": ` + strconv.Itoa(score) + `, "overall_status": "healthy", "checks": {"memory": true, "storage": true}}`
}

// newTestMonitor pins the system stats to healthy fixed readings so the
// disk/memory degradation guards stay quiet unless a test wants them.
func newTestMonitor(cfg bootctl.Config, req reboot.Requester) *Monitor {
	m := New(cfg, req)
	m.SetSysCollector(func() policy.SysStats {
		return policy.SysStats{VarFreeBytes: 1 << 30, MemFreePercent: 50}
	})
	return m
}

func seedTier(t *testing.T, cfg bootctl.Config, tier journal.Tier) {
	t.Helper()
	h, err := journal.OpenOrInit(cfg.JournalPath)
	if err != nil {
		t.Fatalf("OpenOrInit: %v", err)
	}
	r, _ := h.Read()
	r.Tier = tier
	if err := h.Write(r); err != nil {
		t.Fatalf("Write: %v", err)
	}
	h.Close()
}

func TestTickPromotesWhenGuardsPass(t *testing.T) {
	dir := t.TempDir()
	cfg := healthyConfig(t, dir, 10)
	seedTier(t, cfg, journal.Tier2)

	req := &reboot.Simulated{}
	m := newTestMonitor(cfg, req)
	m.tick(context.Background())

	h, _ := journal.OpenOrInit(cfg.JournalPath)
	defer h.Close()
	r, _ := h.Read()
	if r.Tier != journal.Tier3 {
		t.Fatalf("expected promotion to tier 3, got %v", r.Tier)
	}
	if req.Restarts != 1 {
		t.Fatalf("expected one reboot request, got %d", req.Restarts)
	}
}

func TestTickDegradesOnLowHealthAfterGrace(t *testing.T) {
	dir := t.TempDir()
	cfg := healthyConfig(t, dir, 2) // below DefaultRuntimeT3Score
	seedTier(t, cfg, journal.Tier3)

	req := &reboot.Simulated{}
	m := newTestMonitor(cfg, req)
	m.t3GraceSince = time.Now().Add(-2 * DefaultT3Grace)

	m.tick(context.Background())

	h, _ := journal.OpenOrInit(cfg.JournalPath)
	defer h.Close()
	r, _ := h.Read()
	if r.Tier != journal.Tier2 {
		t.Fatalf("expected demotion to tier 2, got %v", r.Tier)
	}
	if req.Restarts != 1 {
		t.Fatalf("expected one reboot request, got %d", req.Restarts)
	}
}

func TestTickDoesNotDegradeDuringGrace(t *testing.T) {
	dir := t.TempDir()
	cfg := healthyConfig(t, dir, 2)
	seedTier(t, cfg, journal.Tier3)

	req := &reboot.Simulated{}
	m := newTestMonitor(cfg, req)
	m.t3GraceSince = time.Now()

	m.tick(context.Background())

	h, _ := journal.OpenOrInit(cfg.JournalPath)
	defer h.Close()
	r, _ := h.Read()
	if r.Tier != journal.Tier3 {
		t.Fatalf("expected no demotion during grace, got %v", r.Tier)
	}
	if req.Restarts != 0 {
		t.Fatalf("expected no reboot during grace, got %d", req.Restarts)
	}
}

// TestVerifierUnreachableTwiceTriggersSanityThenDemote walks the sticky
// counter: first failed probe only counts, second crosses the threshold
// and runs the attestation sanity re-check, and only when that also
// fails does the monitor commit Tier 2 and request a reboot.
func TestVerifierUnreachableTwiceTriggersSanityThenDemote(t *testing.T) {
	dir := t.TempDir()
	cfg := healthyConfig(t, dir, 10)
	cfg.VerifierReachable = func(context.Context) bool { return false }
	cfg.Attest = bootctl.AttestorFunc(func(context.Context) (bool, error) { return false, nil })
	seedTier(t, cfg, journal.Tier3)

	req := &reboot.Simulated{}
	m := newTestMonitor(cfg, req)
	m.t3GraceSince = time.Now().Add(-2 * DefaultT3Grace)

	m.tick(context.Background())
	if req.Restarts != 0 {
		t.Fatalf("first failed probe must only count, got %d restarts", req.Restarts)
	}
	if got := m.Status().VerifierUnreachableConsec; got != 1 {
		t.Fatalf("expected counter 1 after first failure, got %d", got)
	}

	m.tick(context.Background())
	if req.Restarts != 1 {
		t.Fatalf("expected demotion reboot after sanity failure, got %d restarts", req.Restarts)
	}

	h, _ := journal.OpenOrInit(cfg.JournalPath)
	defer h.Close()
	r, _ := h.Read()
	if r.Tier != journal.Tier2 {
		t.Fatalf("expected committed tier 2, got %v", r.Tier)
	}
	if m.counters.VerifierUnreachableConsec != 0 {
		t.Fatalf("expected sticky counters reset after demotion, got %d", m.counters.VerifierUnreachableConsec)
	}
}

func TestTickSleepsThroughEmergency(t *testing.T) {
	dir := t.TempDir()
	cfg := healthyConfig(t, dir, 10)

	h, err := journal.OpenOrInit(cfg.JournalPath)
	if err != nil {
		t.Fatalf("OpenOrInit: %v", err)
	}
	r, _ := h.Read()
	r.Flags = flags.Set(r.Flags, flags.Emergency)
	if err := h.Write(r); err != nil {
		t.Fatalf("Write: %v", err)
	}
	h.Close()

	req := &reboot.Simulated{}
	m := newTestMonitor(cfg, req)
	sleep := m.tick(context.Background())
	if sleep != DefaultEmergencyCooldown {
		t.Fatalf("expected emergency cooldown sleep, got %v", sleep)
	}
	if req.Restarts != 0 {
		t.Fatalf("expected no reboot while in EMERGENCY, got %d", req.Restarts)
	}
}
