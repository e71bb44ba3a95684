// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package health

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func writeReport(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "health.json")
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestLoadValidReport(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().Unix()
	p := writeReport(t, dir, `{
		"overall_score": 6,
		"overall_status": "healthy",
		"checks": {"memory": true, "storage": true},
		"timestamp": `+strconv.FormatInt(now, 10)+`
	}`)
	r := Load(p)
	if r.Score() != 6 {
		t.Fatalf("Score() = %d, want 6", r.Score())
	}
	if !r.Check("memory") || !r.Check("storage") {
		t.Fatalf("expected memory/storage checks true")
	}
	if r.Check("nonexistent") {
		t.Fatalf("expected absent check to be false")
	}
	if !r.IsFresh(time.Minute) {
		t.Fatalf("expected report to be fresh")
	}
}

func TestLoadMissingReport(t *testing.T) {
	r := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if r.Score() != 0 {
		t.Fatalf("Score() = %d, want 0 for missing report", r.Score())
	}
	if r.Check("memory") {
		t.Fatalf("expected all checks false for missing report")
	}
	if r.IsFresh(time.Hour) {
		t.Fatalf("missing report must never be fresh")
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	p := writeReport(t, dir, `{not json`)
	r := Load(p)
	if r.Score() != 0 || r.IsFresh(time.Hour) {
		t.Fatalf("malformed JSON must fail all guards")
	}
}

func TestLoadSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	// overall_status outside the enum, overall_score missing.
	p := writeReport(t, dir, `{"overall_status": "fine"}`)
	r := Load(p)
	if r.Score() != 0 || r.IsFresh(time.Hour) {
		t.Fatalf("schema-invalid report must fail all guards")
	}
}

func TestIsFreshStaleReport(t *testing.T) {
	dir := t.TempDir()
	stale := time.Now().Add(-time.Hour).Unix()
	p := writeReport(t, dir, `{"overall_score": 6, "overall_status": "healthy", "timestamp": `+strconv.FormatInt(stale, 10)+`}`)
	r := Load(p)
	if r.IsFresh(time.Minute) {
		t.Fatalf("expected stale report to fail IsFresh")
	}
}

