// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package journal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/prologic/bitcask"
)

// A trivial append-only store for the policy evaluator's decision history.
// Not the journal itself - the two-page BootRecord stays a raw fixed-layout
// file; this is a separate, best-effort trail an operator can read
// after the fact to see why a device sat in a given tier. One entry per
// decision, keyed by boot_count so entries sort and dedupe naturally.
type Entry struct {
	BootCount   uint64   `json:"boot_count"`
	Timestamp   int64    `json:"timestamp"`
	Kind        string   `json:"kind"` // promote | stay | demote | emergency
	FromTier    Tier     `json:"from_tier"`
	ToTier      Tier     `json:"to_tier"`
	ReasonCode  string   `json:"reason_code"`
	Secondary   []string `json:"secondary,omitempty"`
}

// AuditTrail is a bitcask-backed append log of decision Entries.
type AuditTrail struct {
	bc *bitcask.Bitcask
	mu sync.Mutex
}

// OpenAuditTrail opens (creating if needed) the bitcask database at path.
func OpenAuditTrail(path string) (*AuditTrail, error) {
	bc, err := bitcask.Open(path)
	if err != nil {
		return nil, Io{Op: "audit-open", Err: err}
	}
	return &AuditTrail{bc: bc}, nil
}

// Append records e under a key derived from its boot_count, so repeated
// decisions within the same boot overwrite rather than accumulate
// duplicates for the same generation.
func (a *AuditTrail) Append(e Entry) error {
	v, err := json.Marshal(e)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bc.Put(auditKey(e.BootCount), v); err != nil {
		return Io{Op: "audit-put", Err: err}
	}
	return nil
}

// Since returns every recorded Entry with BootCount >= from, in ascending
// boot_count order.
func (a *AuditTrail) Since(from uint64) ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []Entry
	for k := range a.bc.Keys() {
		bc, ok := parseAuditKey(string(k))
		if !ok || bc < from {
			continue
		}
		v, err := a.bc.Get(k)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

// Close releases the underlying bitcask handle.
func (a *AuditTrail) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bc.Close(); err != nil {
		return Io{Op: "audit-close", Err: err}
	}
	return nil
}

const auditKeyPrefix = "decision_"

func auditKey(bootCount uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", auditKeyPrefix, bootCount))
}

func parseAuditKey(k string) (uint64, bool) {
	if len(k) <= len(auditKeyPrefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(k[len(auditKeyPrefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func sortEntries(e []Entry) {
	for i := 1; i < len(e); i++ {
		for j := i; j > 0 && e[j].BootCount < e[j-1].BootCount; j-- {
			e[j], e[j-1] = e[j-1], e[j]
		}
	}
}
