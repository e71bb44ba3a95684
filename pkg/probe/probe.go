// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package probe implements the small, time-bounded external checks the
// policy evaluator consults: verifier reachability, network stability,
// and tier-root presence. Every probe has an explicit timeout; none may
// block a tick indefinitely.
package probe

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/ironveil/pactier/pkg/log"
)

// DefaultReachabilityTimeout bounds a single verifier_reachable probe.
const DefaultReachabilityTimeout = 2 * time.Second

// DefaultStabilityInterval is the polling interval used by
// NetworkStableFor.
const DefaultStabilityInterval = time.Second

// VerifierReachable performs one bounded HTTP probe of url, returning true
// only if the request completes with a 2xx status within timeout.
func VerifierReachable(ctx context.Context, url string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Logf("probe: bad verifier url %q: %v", url, err)
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Logf("probe: verifier %s unreachable: %v", url, err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// LinkUp reports whether iface has an UP operational state according to
// netlink - a prerequisite NetworkStableFor folds into "network stable"
// alongside the HTTP reachability probe.
func LinkUp(iface string) bool {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		log.Logf("probe: netlink lookup of %s failed: %v", iface, err)
		return false
	}
	attrs := link.Attrs()
	return attrs != nil && attrs.OperState == netlink.OperUp
}

// NetworkStableFor probes both link state and verifier reachability every
// DefaultStabilityInterval across window, returning true only if every
// single probe in the window succeeds. Used for the T2->T3 promotion
// guard (nominally a 60s window).
func NetworkStableFor(ctx context.Context, iface, verifierURL string, window time.Duration) bool {
	deadline := time.Now().Add(window)
	ticker := time.NewTicker(DefaultStabilityInterval)
	defer ticker.Stop()

	for {
		if !LinkUp(iface) {
			return false
		}
		if !VerifierReachable(ctx, verifierURL, DefaultReachabilityTimeout) {
			return false
		}
		if !time.Now().Before(deadline) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// TierRootPresent checks for the existence of the tier-specific root
// image at path. A missing or inaccessible path is "not present", never
// an error - the policy evaluator treats this as a plain guard failure.
func TierRootPresent(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
