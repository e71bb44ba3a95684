// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package bootctl drives a single pass of the boot ladder: open the
// journal, decide whether to promote toward Tier 3 or fall back, commit
// the decision, and return the result to the caller (cmd/pactier-boot
// hands it to pkg/reboot when a reboot is needed).
package bootctl

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ironveil/pactier/pkg/fileutil"
	"github.com/ironveil/pactier/pkg/health"
	"github.com/ironveil/pactier/pkg/journal"
	"github.com/ironveil/pactier/pkg/journal/flags"
	"github.com/ironveil/pactier/pkg/log"
	"github.com/ironveil/pactier/pkg/policy"
	"github.com/ironveil/pactier/pkg/probe"
	"github.com/ironveil/pactier/pkg/retry"
)

// DefaultMountWait bounds how long the default Mount hook waits for a
// tier-root path to appear before giving up - storage on some devices
// is attached asynchronously during early boot.
const DefaultMountWait = 2 * time.Second

// State names the boot ladder's FSM states.
type State string

const (
	StateInit      State = "INIT"
	StateT1        State = "T1"
	StateT1ToT2    State = "T1->T2"
	StateT2        State = "T2"
	StateT2ToT3    State = "T2->T3"
	StateT3        State = "T3"
	StateEmergency State = "EMERGENCY"
)

// Attestor is the externalized attestation procedure: a single
// operation returning pass/fail/error. The core treats error identically
// to fail but logs it distinctly.
type Attestor interface {
	Attest(ctx context.Context) (bool, error)
}

// AttestorFunc adapts a plain function to Attestor.
type AttestorFunc func(ctx context.Context) (bool, error)

func (f AttestorFunc) Attest(ctx context.Context) (bool, error) { return f(ctx) }

// Config bundles every knob a boot pass needs. Zero-value Mount and
// Attest are replaced with a filesystem-presence check and an
// always-fail attestor respectively, so a Config built without external
// wiring degrades safely rather than panicking.
type Config struct {
	JournalPath           string
	HealthPath            string
	Tier2RootPath         string
	Tier3RootPath         string
	VerifierURL           string
	NetworkIface          string
	NetworkStabilityWindow time.Duration
	EmergencyOnExhaustion bool
	Thresholds            policy.Thresholds
	Attest                Attestor
	Mount                 func(tier journal.Tier, rootPath string) error
	VerifierReachable     func(ctx context.Context) bool
	NetworkStable         func(ctx context.Context) bool
	// HealthMaxAge, when nonzero, rejects health reports older than this
	// as if they were absent.
	HealthMaxAge time.Duration
	// Audit, if non-nil, receives one Entry per Run call recording what
	// was decided and why.
	Audit *journal.AuditTrail
}

// FillDefaults replaces any nil hook with its default implementation.
// NewSession calls it; the runtime monitor, which shares this Config
// type, must do the same before its first tick.
func (c *Config) FillDefaults() {
	if c.NetworkStabilityWindow == 0 {
		c.NetworkStabilityWindow = 60 * time.Second
	}
	if c.Attest == nil {
		c.Attest = AttestorFunc(func(context.Context) (bool, error) { return false, nil })
	}
	if c.Mount == nil {
		c.Mount = func(_ journal.Tier, rootPath string) error {
			if fileutil.WaitFor(rootPath, DefaultMountWait) {
				return nil
			}
			return errTierRootMissing
		}
	}
	if c.VerifierReachable == nil {
		url := c.VerifierURL
		c.VerifierReachable = func(ctx context.Context) bool {
			return probe.VerifierReachable(ctx, url, probe.DefaultReachabilityTimeout)
		}
	}
	if c.NetworkStable == nil {
		iface, url, window := c.NetworkIface, c.VerifierURL, c.NetworkStabilityWindow
		c.NetworkStable = func(ctx context.Context) bool {
			return probe.NetworkStableFor(ctx, iface, url, window)
		}
	}
}

// LoadHealth reads the health report, demoting a stale one to absent
// when HealthMaxAge is set - a collector that stopped reporting must not
// keep passing guards on its last good snapshot.
func (c *Config) LoadHealth() health.Report {
	hr := health.Load(c.HealthPath)
	if c.HealthMaxAge > 0 && !hr.IsFresh(c.HealthMaxAge) {
		log.Logf("health report at %s older than %v, treating as absent", c.HealthPath, c.HealthMaxAge)
		return health.Report{}
	}
	return hr
}

type tierRootMissingErr struct{}

func (tierRootMissingErr) Error() string { return "bootctl: tier root not present" }

var errTierRootMissing = tierRootMissingErr{}

// Result is the outcome of one Run: the final committed record, the
// terminal FSM state reached, and the journal.Entry describing why.
type Result struct {
	Record journal.BootRecord
	State  State
	Entry  journal.Entry
}

// Session is one boot controller pass. Each Session gets a fresh UUID so
// operators can correlate log output with the pass that produced it
// (attached via log.SetAttr; it is not stored in the journal).
type Session struct {
	ID     uuid.UUID
	Config Config
}

// NewSession builds a Session with defaults filled in for any
// unconfigured Attest/Mount hooks.
func NewSession(cfg Config) *Session {
	cfg.FillDefaults()
	return &Session{ID: uuid.New(), Config: cfg}
}

// Run executes one pass of the ladder against the journal at
// s.Config.JournalPath and returns the final committed state.
func (s *Session) Run(ctx context.Context) (Result, error) {
	log.SetAttr("session_id", s.ID.String())
	h, err := journal.OpenOrInit(s.Config.JournalPath)
	if err != nil {
		return Result{}, err
	}
	defer h.Close()

	r, err := h.Read()
	if err != nil {
		// Storage is failing under us; the safest admissible tier is 1,
		// and there is nothing durable to record that in.
		log.Logf("bootctl: journal read failed, staying in Tier 1: %v", err)
		r = journal.Default()
		r.Flags = flags.Set(r.Flags, flags.Dirty)
		return Result{Record: r, State: StateT1}, nil
	}
	committed := r

	r.BootCount++
	if r.BootCount == 0 {
		// u64 wraparound: stay pinned at max and flag it rather than
		// silently restarting the count from zero.
		r.BootCount--
		r.Flags = flags.Set(r.Flags, flags.Dirty)
	}
	if err := h.Write(r); err != nil {
		log.Logf("bootctl: boot_count write failed: %v", err)
		r.Flags = flags.Set(r.Flags, flags.Dirty)
	}

	hr := s.Config.LoadHealth()
	state := StateInit
	entry := journal.Entry{BootCount: r.BootCount, FromTier: r.Tier}

	if flags.Test(r.Flags, flags.Emergency) {
		state, r = s.toEmergency(r, policy.ReasonQuarantined)
		entry.ReasonCode = string(policy.ReasonQuarantined)
	} else if exhausted, _ := retry.Exhausted(r, journal.Tier2); exhausted && s.Config.EmergencyOnExhaustion {
		state, r = s.toEmergency(r, policy.ReasonRetriesExhausted)
		entry.ReasonCode = string(policy.ReasonRetriesExhausted)
	} else {
		var reason policy.ReasonCode
		state, r, reason = s.tryT1ToT2(r, hr)
		entry.ReasonCode = string(reason)

		if state == StateT2 {
			state, r, reason = s.tryT2ToT3(ctx, r, hr)
			if reason != "" {
				entry.ReasonCode = string(reason)
			}
		}
	}

	if state == StateEmergency {
		entry.Kind = "emergency"
	} else {
		entry.Kind = kindFor(entry.FromTier, r.Tier)
	}
	entry.ToTier = r.Tier
	entry.Timestamp = time.Now().Unix()

	if err := h.Write(r); err != nil {
		// The decision could not be committed, so the device must come up
		// in the tier the journal still holds.
		log.Logf("bootctl: commit failed, staying in %v: %v", committed.Tier, err)
		committed.Flags = flags.Set(committed.Flags, flags.Dirty)
		return Result{Record: committed, State: stateFor(committed.Tier), Entry: entry}, nil
	}

	if s.Config.Audit != nil {
		if err := s.Config.Audit.Append(entry); err != nil {
			log.Logf("bootctl: audit append failed: %v", err)
		}
	}

	return Result{Record: r, State: state, Entry: entry}, nil
}

func stateFor(t journal.Tier) State {
	switch t {
	case journal.Tier2:
		return StateT2
	case journal.Tier3:
		return StateT3
	}
	return StateT1
}

func kindFor(from, to journal.Tier) string {
	switch {
	case to > from:
		return "promote"
	case to < from:
		return "demote"
	default:
		return "stay"
	}
}

func (s *Session) toEmergency(r journal.BootRecord, reason policy.ReasonCode) (State, journal.BootRecord) {
	r.Flags = flags.Set(r.Flags, flags.Emergency)
	r.Flags = flags.Set(r.Flags, flags.Quarantine)
	r.Tier = journal.Tier1
	log.Logf("bootctl: entering EMERGENCY, reason=%s", reason)
	return StateEmergency, r
}

func (s *Session) tierProbes() policy.Probes {
	return policy.Probes{
		TierRoot2Present: probe.TierRootPresent(s.Config.Tier2RootPath),
		TierRoot3Present: probe.TierRootPresent(s.Config.Tier3RootPath),
	}
}

func (s *Session) tryT1ToT2(r journal.BootRecord, hr health.Report) (State, journal.BootRecord, policy.ReasonCode) {
	// RollbackIdx tracks boots elapsed since BROWNOUT was set; this boot
	// counts as one more elapsed boot, so it advances before the guard
	// that consults it runs.
	advanceBrownout(&r)

	p := s.tierProbes()
	err := policy.MayPromote(journal.Tier1, journal.Tier2, r, hr, p, s.Config.Thresholds)
	if err != nil {
		reason := err.(policy.Denied).Reason
		log.Logf("bootctl: T1->T2 denied: %s", reason)
		r.Flags = flags.Set(r.Flags, flags.Dirty)
		return StateT1, r, reason
	}

	if mountErr := s.Config.Mount(journal.Tier2, s.Config.Tier2RootPath); mountErr != nil {
		log.Logf("bootctl: T1->T2 mount failed: %v", mountErr)
		r.Flags = flags.Set(r.Flags, flags.Dirty)
		return StateT1, r, policy.ReasonTierRootMissing
	}

	r.Tier = journal.Tier2
	r.Flags = flags.Clear(r.Flags, flags.Dirty)
	r.Flags = flags.Clear(r.Flags, flags.Brownout)
	r.RollbackIdx = 0
	return StateT2, r, policy.ReasonNone
}

func (s *Session) tryT2ToT3(ctx context.Context, r journal.BootRecord, hr health.Report) (State, journal.BootRecord, policy.ReasonCode) {
	p := s.tierProbes()
	p.VerifierReachable = s.Config.VerifierReachable(ctx)
	p.NetworkStable = s.Config.NetworkStable(ctx)

	err := policy.MayPromote(journal.Tier2, journal.Tier3, r, hr, p, s.Config.Thresholds)
	if err != nil {
		reason := err.(policy.Denied).Reason
		log.Logf("bootctl: T2->T3 denied: %s", reason)
		return StateT2, r, reason
	}

	ok, attErr := s.Config.Attest.Attest(ctx)
	if attErr != nil {
		log.Logf("bootctl: attestation error: %v", attErr)
	}
	if !ok {
		retry.Decrement(&r, journal.Tier3)
		log.Logf("bootctl: attestation failed, tries_t3=%d", r.TriesT3)
		return StateT2, r, policy.ReasonAttestationFailed
	}

	if mountErr := s.Config.Mount(journal.Tier3, s.Config.Tier3RootPath); mountErr != nil {
		log.Logf("bootctl: T2->T3 mount failed: %v", mountErr)
		retry.Decrement(&r, journal.Tier3)
		return StateT2, r, policy.ReasonTierRootMissing
	}

	r.Tier = journal.Tier3
	return StateT3, r, policy.ReasonNone
}

// advanceBrownout increments RollbackIdx (the boots-elapsed-since-
// BROWNOUT counter) each boot the flag stays set; tryT1ToT2 clears
// both on the first successful promotion after the cooldown.
func advanceBrownout(r *journal.BootRecord) {
	if !flags.Test(r.Flags, flags.Brownout) {
		return
	}
	r.RollbackIdx++
}

// HealthCheckRun is the decision-return entry for shell callers: it reads
// the latest health report and maps its score to an exit-code-shaped
// decision without touching the journal.
func HealthCheckRun(healthPath string) (code int, err error) {
	hr := health.Load(healthPath)
	score := hr.Score()
	switch {
	case score >= 5:
		return 0, nil
	case score >= 3:
		return 1, nil
	default:
		return 2, nil
	}
}
