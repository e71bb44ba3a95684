// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package policy is the pure guard evaluator at the center of the boot
// ladder: may_promote and must_degrade, plus the ReasonCodes that make
// every decision observable. Guards never perform I/O themselves; they
// look only at a BootRecord, a health.Report, and precomputed probe/system
// results handed to them by the caller.
package policy

import (
	"time"

	"github.com/ironveil/pactier/pkg/health"
	"github.com/ironveil/pactier/pkg/journal"
	"github.com/ironveil/pactier/pkg/journal/flags"
	"github.com/ironveil/pactier/pkg/retry"
)

// ReasonCode enumerates every deterministic reason a guard can cite.
type ReasonCode string

const (
	ReasonNone                ReasonCode = ""
	ReasonHealthBelowThresh   ReasonCode = "health-below-threshold"
	ReasonRetriesExhausted    ReasonCode = "retries-exhausted"
	ReasonVerifierUnreachable ReasonCode = "verifier-unreachable"
	ReasonAttestationFailed   ReasonCode = "attestation-failed"
	ReasonNetworkUnstable     ReasonCode = "network-unstable"
	ReasonTierRootMissing     ReasonCode = "tier-root-missing"
	ReasonQuarantined         ReasonCode = "quarantined"
	ReasonBrownoutCooldown    ReasonCode = "brownout-cooldown"
	ReasonImaViolation        ReasonCode = "ima-violation"
	ReasonDiskCritical        ReasonCode = "disk-critical"
	ReasonMemoryCritical      ReasonCode = "memory-critical"
)

// Thresholds bundles every tunable the guards consult. Callers running
// the runtime monitor raise T3Score after start-up; everyone else
// uses the defaults.
type Thresholds struct {
	T2Score                   uint32
	T3Score                   uint32
	BrownoutCooldownBoots     uint64
	VerifierUnreachableMax    int
	SustainedLowHealthMax     int
	VarFreeT3MinBytes         uint64
	VarFreeT2MinBytes         uint64
	MemFreeT3MinPercent       float64
	MemFreeT2MinPercent       float64
}

// DefaultThresholds returns the boot controller's values (T3Score=6).
// The runtime monitor calls WithRuntimeT3Score to raise it post-startup.
func DefaultThresholds() Thresholds {
	return Thresholds{
		T2Score:                3,
		T3Score:                6,
		BrownoutCooldownBoots:  2,
		VerifierUnreachableMax: 2,
		SustainedLowHealthMax:  2,
		VarFreeT3MinBytes:      10 * 1 << 20,
		VarFreeT2MinBytes:      5 * 1 << 20,
		MemFreeT3MinPercent:    5,
		MemFreeT2MinPercent:    3,
	}
}

// WithRuntimeT3Score returns a copy of t with T3Score raised to the
// runtime monitor's stricter post-startup value.
func (t Thresholds) WithRuntimeT3Score(score uint32) Thresholds {
	t.T3Score = score
	return t
}

// Probes bundles the precomputed results of the external probes (C7) a
// guard evaluation needs; the evaluator never calls probe.* itself.
type Probes struct {
	TierRoot2Present   bool
	TierRoot3Present   bool
	VerifierReachable  bool
	NetworkStable      bool
}

// SysStats bundles filesystem/memory readings a degradation guard needs.
type SysStats struct {
	VarFreeBytes    uint64
	MemFreePercent  float64
	ImaViolations   int
}

// Counters carries the runtime monitor's sticky, consecutive-failure
// counters; the policy evaluator is otherwise stateless.
type Counters struct {
	VerifierUnreachableConsec int
	SustainedLowHealthConsec  int
	AttestationSanityFailed   bool
}

// Denied is returned by MayPromote when a promotion guard fails.
type Denied struct {
	Reason ReasonCode
}

func (e Denied) Error() string { return string(e.Reason) }

// MayPromote evaluates the ordered guard list for the given transition
// and returns nil only if every guard holds. P5 requires this: returning
// nil with any guard violated is a bug.
func MayPromote(from, to journal.Tier, r journal.BootRecord, h health.Report, p Probes, th Thresholds) error {
	switch {
	case from == journal.Tier1 && to == journal.Tier2:
		return mayPromoteT1T2(r, h, p, th)
	case from == journal.Tier2 && to == journal.Tier3:
		return mayPromoteT2T3(r, h, p, th)
	default:
		return Denied{Reason: ReasonTierRootMissing}
	}
}

func mayPromoteT1T2(r journal.BootRecord, h health.Report, p Probes, th Thresholds) error {
	exhausted, _ := retry.Exhausted(r, journal.Tier2)
	if exhausted {
		if flags.Test(r.Flags, flags.Quarantine) {
			return Denied{Reason: ReasonQuarantined}
		}
		return Denied{Reason: ReasonRetriesExhausted}
	}
	if flags.Test(r.Flags, flags.Brownout) {
		if !brownoutElapsed(r, th) {
			return Denied{Reason: ReasonBrownoutCooldown}
		}
	}
	if !p.TierRoot2Present {
		return Denied{Reason: ReasonTierRootMissing}
	}
	if h.Score() < th.T2Score {
		return Denied{Reason: ReasonHealthBelowThresh}
	}
	if !h.Check("memory") || !h.Check("storage") {
		return Denied{Reason: ReasonHealthBelowThresh}
	}
	return nil
}

func mayPromoteT2T3(r journal.BootRecord, h health.Report, p Probes, th Thresholds) error {
	exhausted, _ := retry.Exhausted(r, journal.Tier3)
	if exhausted {
		return Denied{Reason: ReasonRetriesExhausted}
	}
	if !p.TierRoot3Present {
		return Denied{Reason: ReasonTierRootMissing}
	}
	if h.Score() < th.T3Score {
		return Denied{Reason: ReasonHealthBelowThresh}
	}
	if !p.VerifierReachable {
		return Denied{Reason: ReasonVerifierUnreachable}
	}
	if !p.NetworkStable {
		return Denied{Reason: ReasonNetworkUnstable}
	}
	return nil
}

// brownoutElapsed reports whether the cooldown has elapsed. RollbackIdx
// doubles as the boots-elapsed-since-BROWNOUT counter here: the boot
// controller increments it each boot while BROWNOUT is set and zeroes it
// when the flag is cleared (see DESIGN.md).
func brownoutElapsed(r journal.BootRecord, th Thresholds) bool {
	return uint64(r.RollbackIdx) > th.BrownoutCooldownBoots
}

// MustDegrade evaluates the ordered degradation-guard list for the given
// tier. It returns ReasonNone, false when no guard fires. When multiple
// guards fire, the first in list order is the primary reason; the rest
// are returned as secondary codes (degradation always wins over
// promotion in the same pass - callers check MustDegrade before
// MayPromote).
func MustDegrade(at journal.Tier, r journal.BootRecord, h health.Report, p Probes, sys SysStats, c Counters, th Thresholds, t3GraceElapsed bool) (ReasonCode, bool, []ReasonCode) {
	switch at {
	case journal.Tier3:
		return mustDegradeT3(r, h, p, sys, c, th, t3GraceElapsed)
	case journal.Tier2:
		return mustDegradeT2(h, sys, c, th)
	default:
		return ReasonNone, false, nil
	}
}

func mustDegradeT3(r journal.BootRecord, h health.Report, p Probes, sys SysStats, c Counters, th Thresholds, graceElapsed bool) (ReasonCode, bool, []ReasonCode) {
	var hits []ReasonCode

	if graceElapsed && h.Score() < th.T3Score {
		hits = append(hits, ReasonHealthBelowThresh)
	}
	if c.VerifierUnreachableConsec >= th.VerifierUnreachableMax && c.AttestationSanityFailed {
		hits = append(hits, ReasonVerifierUnreachable)
	}
	// NETWORK_GATED makes a single probe failure a degradation trigger,
	// bypassing the sticky counter.
	if flags.Test(r.Flags, flags.NetworkGated) && (!p.VerifierReachable || !p.NetworkStable) {
		hits = append(hits, ReasonNetworkUnstable)
	}
	if sys.ImaViolations > 0 {
		hits = append(hits, ReasonImaViolation)
	}
	if sys.VarFreeBytes < th.VarFreeT3MinBytes {
		hits = append(hits, ReasonDiskCritical)
	}
	if sys.MemFreePercent < th.MemFreeT3MinPercent {
		hits = append(hits, ReasonMemoryCritical)
	}
	if flags.Test(r.Flags, flags.Brownout) {
		hits = append(hits, ReasonBrownoutCooldown)
	}
	if len(hits) == 0 {
		return ReasonNone, false, nil
	}
	return hits[0], true, hits[1:]
}

func mustDegradeT2(h health.Report, sys SysStats, c Counters, th Thresholds) (ReasonCode, bool, []ReasonCode) {
	var hits []ReasonCode

	if c.SustainedLowHealthConsec >= th.SustainedLowHealthMax && h.Score() < th.T2Score {
		hits = append(hits, ReasonHealthBelowThresh)
	}
	if sys.VarFreeBytes < th.VarFreeT2MinBytes {
		hits = append(hits, ReasonDiskCritical)
	}
	if sys.MemFreePercent < th.MemFreeT2MinPercent {
		hits = append(hits, ReasonMemoryCritical)
	}
	if len(hits) == 0 {
		return ReasonNone, false, nil
	}
	return hits[0], true, hits[1:]
}

// T3GraceElapsed reports whether the Tier-3 grace duration has elapsed
// since since, given now. Clock skew (now before since) resets the timer
// rather than degrading.
func T3GraceElapsed(since, now time.Time, grace time.Duration) bool {
	if now.Before(since) {
		return false
	}
	return now.Sub(since) >= grace
}
