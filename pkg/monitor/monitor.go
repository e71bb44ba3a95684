// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package monitor implements the runtime monitor (C10): a long-running
// loop, started after a terminal boot state of T2 or T3, that
// periodically re-evaluates promotion and degradation and forces a
// reboot on any committed tier change.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ironveil/pactier/pkg/bootctl"
	"github.com/ironveil/pactier/pkg/health"
	"github.com/ironveil/pactier/pkg/journal"
	"github.com/ironveil/pactier/pkg/journal/flags"
	"github.com/ironveil/pactier/pkg/log"
	"github.com/ironveil/pactier/pkg/policy"
	"github.com/ironveil/pactier/pkg/probe"
	"github.com/ironveil/pactier/pkg/reboot"
	"github.com/ironveil/pactier/pkg/retry"
)

// DefaultTickPeriod is the fixed interval between ticks.
const DefaultTickPeriod = 10 * time.Second

// DefaultEmergencyCooldown is how long the monitor sleeps per tick while
// EMERGENCY is set, instead of evaluating guards.
const DefaultEmergencyCooldown = 5 * time.Minute

// DefaultT3Grace is how long after first observing Tier 3 the monitor
// waits before running any degradation check.
const DefaultT3Grace = 10 * time.Second

// DefaultRuntimeT3Score is the stricter health floor the monitor applies
// to Tier 3 once started, in place of the boot controller's value.
const DefaultRuntimeT3Score uint32 = 9

// Status is a read-only snapshot the status server (and tests) can poll
// without touching the journal.
type Status struct {
	Tier                      journal.Tier
	Flags                     flags.Flag
	LastReason                policy.ReasonCode
	VerifierUnreachableConsec int
	SustainedLowHealthConsec  int
	Ticks                     uint64
}

// Monitor is one running instance of the tick loop.
type Monitor struct {
	ID     uuid.UUID
	Config bootctl.Config

	tickPeriod time.Duration
	requester  reboot.Requester
	sys        func() policy.SysStats

	t3GraceSince time.Time
	counters     policy.Counters

	mu     sync.Mutex
	status Status
}

// New builds a Monitor bound to cfg (shared with the boot controller:
// journal path, health path, tier-root paths, probes) and req, the
// reboot.Requester used to apply committed tier changes.
func New(cfg bootctl.Config, req reboot.Requester) *Monitor {
	cfg.FillDefaults()
	return &Monitor{
		ID:         uuid.New(),
		Config:     cfg,
		tickPeriod: DefaultTickPeriod,
		requester:  req,
		sys: func() policy.SysStats {
			return policy.SysStats{
				VarFreeBytes:   probe.VarFreeBytes(probe.DefaultVarPath),
				MemFreePercent: probe.MemFreePercent(),
				ImaViolations:  probe.ImaViolations(),
			}
		},
	}
}

// Status returns a snapshot of the monitor's current state, safe to call
// concurrently with Run - the status server polls this while the tick
// loop owns everything else.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) setStatus(mod func(*Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod(&m.status)
}

// SetTickPeriod overrides DefaultTickPeriod. Must be called before Run.
func (m *Monitor) SetTickPeriod(d time.Duration) { m.tickPeriod = d }

// SetSysCollector replaces the statfs/sysinfo-backed system-stat
// collector; test harnesses inject fixed readings. Must be called before
// Run.
func (m *Monitor) SetSysCollector(f func() policy.SysStats) { m.sys = f }

// Run loops ticks until ctx is cancelled, completing the in-flight tick
// before exiting - a termination signal never interrupts a tick midway.
func (m *Monitor) Run(ctx context.Context) error {
	log.SetAttr("monitor_id", m.ID.String())
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		sleep := m.tick(context.WithoutCancel(ctx))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// tick runs one full evaluation pass and returns how long to sleep
// before the next one.
func (m *Monitor) tick(ctx context.Context) time.Duration {
	m.setStatus(func(s *Status) { s.Ticks++ })

	h, err := journal.OpenOrInit(m.Config.JournalPath)
	if err != nil {
		log.Logf("monitor: journal open failed: %v", err)
		return m.tickPeriod
	}
	defer h.Close()

	r, err := h.Read()
	if err != nil {
		log.Logf("monitor: journal read failed: %v", err)
		return m.tickPeriod
	}
	m.setStatus(func(s *Status) {
		s.Tier = r.Tier
		s.Flags = r.Flags
	})

	if flags.Test(r.Flags, flags.Emergency) {
		return DefaultEmergencyCooldown
	}

	if r.Tier == journal.Tier3 && m.t3GraceSince.IsZero() {
		m.t3GraceSince = time.Now()
	}
	if r.Tier != journal.Tier3 {
		m.t3GraceSince = time.Time{}
	}

	hr, pr := m.collect(ctx, r)

	graceElapsed := r.Tier == journal.Tier3 && policy.T3GraceElapsed(m.t3GraceSince, time.Now(), DefaultT3Grace)
	if !pr.verifierReachable {
		m.counters.VerifierUnreachableConsec++
	} else {
		m.counters.VerifierUnreachableConsec = 0
	}
	if hr.Score() < m.thresholds().T2Score {
		m.counters.SustainedLowHealthConsec++
	} else {
		m.counters.SustainedLowHealthConsec = 0
	}
	m.counters.AttestationSanityFailed = pr.attestationSanityFailed
	m.setStatus(func(s *Status) {
		s.VerifierUnreachableConsec = m.counters.VerifierUnreachableConsec
		s.SustainedLowHealthConsec = m.counters.SustainedLowHealthConsec
	})

	sys := m.sys()
	probes := policy.Probes{
		TierRoot2Present:  probe.TierRootPresent(m.Config.Tier2RootPath),
		TierRoot3Present:  probe.TierRootPresent(m.Config.Tier3RootPath),
		VerifierReachable: pr.verifierReachable,
		NetworkStable:     pr.networkStable,
	}

	reason, degrade, _ := policy.MustDegrade(r.Tier, r, hr, probes, sys, m.counters, m.thresholds(), graceElapsed)
	if degrade {
		m.setStatus(func(s *Status) { s.LastReason = reason })
		m.demote(h, r, reason)
		// The committed demotion consumed the sticky counters; the next
		// boot starts the count over.
		m.counters = policy.Counters{}
		m.requester.Restart(true)
		return m.tickPeriod
	}

	if r.Tier == journal.Tier1 || r.Tier == journal.Tier2 {
		to := r.Tier + 1
		err := policy.MayPromote(r.Tier, to, r, hr, probes, m.thresholds())
		if err == nil {
			m.setStatus(func(s *Status) { s.LastReason = policy.ReasonNone })
			m.promote(ctx, h, r, to)
			m.requester.Restart(true)
		} else {
			reason := err.(policy.Denied).Reason
			m.setStatus(func(s *Status) { s.LastReason = reason })
		}
	}

	return m.tickPeriod
}

func (m *Monitor) thresholds() policy.Thresholds {
	return m.Config.Thresholds.WithRuntimeT3Score(DefaultRuntimeT3Score)
}

type collected struct {
	verifierReachable       bool
	networkStable           bool
	attestationSanityFailed bool
}

// collect runs the verifier probe, network-stability probe, and (if the
// verifier-unreachable counter just crossed its threshold) the
// attestation sanity re-check concurrently, each bounded, via errgroup -
// no guard may block a tick indefinitely.
func (m *Monitor) collect(ctx context.Context, r journal.BootRecord) (health.Report, collected) {
	hr := m.Config.LoadHealth()

	var out collected
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.verifierReachable = m.Config.VerifierReachable(gctx)
		return nil
	})
	g.Go(func() error {
		out.networkStable = m.Config.NetworkStable(gctx)
		return nil
	})
	if m.counters.VerifierUnreachableConsec+1 >= m.thresholds().VerifierUnreachableMax {
		g.Go(func() error {
			ok, _ := m.Config.Attest.Attest(gctx)
			out.attestationSanityFailed = !ok
			return nil
		})
	}
	_ = g.Wait()
	return hr, out
}

func (m *Monitor) demote(h *journal.Handle, r journal.BootRecord, reason policy.ReasonCode) {
	from := r.Tier
	if r.Tier > journal.Tier1 {
		r.Tier--
	}
	log.Logf("monitor: degrading %v -> %v: %s", from, r.Tier, reason)
	if err := h.Write(r); err != nil {
		log.Logf("monitor: demote write failed: %v", err)
	}
	m.appendAudit(r, "demote", from, reason)
}

func (m *Monitor) promote(ctx context.Context, h *journal.Handle, r journal.BootRecord, to journal.Tier) {
	from := r.Tier
	if to == journal.Tier3 {
		ok, attErr := m.Config.Attest.Attest(ctx)
		if attErr != nil {
			log.Logf("monitor: attestation error: %v", attErr)
		}
		if !ok {
			retry.Decrement(&r, journal.Tier3)
			log.Logf("monitor: attestation failed at T2->T3, tries_t3=%d", r.TriesT3)
			if err := h.Write(r); err != nil {
				log.Logf("monitor: write failed: %v", err)
			}
			m.appendAudit(r, "stay", from, policy.ReasonAttestationFailed)
			return
		}
	}
	r.Tier = to
	log.Logf("monitor: promoting %v -> %v", from, to)
	if err := h.Write(r); err != nil {
		log.Logf("monitor: promote write failed: %v", err)
	}
	m.appendAudit(r, "promote", from, policy.ReasonNone)
}

func (m *Monitor) appendAudit(r journal.BootRecord, kind string, from journal.Tier, reason policy.ReasonCode) {
	if m.Config.Audit == nil {
		return
	}
	e := journal.Entry{
		BootCount:  r.BootCount,
		Timestamp:  time.Now().Unix(),
		Kind:       kind,
		FromTier:   from,
		ToTier:     r.Tier,
		ReasonCode: string(reason),
	}
	if err := m.Config.Audit.Append(e); err != nil {
		log.Logf("monitor: audit append failed: %v", err)
	}
}
