// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package health adapts the on-disk health report - a small JSON document
// produced by an external health collector - into the oracle the policy
// evaluator consults. An absent or malformed report is never treated as
// "healthy": every query degrades to its failure value.
package health

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ironveil/pactier/pkg/log"
)

// schemaDoc is the JSON Schema the report must satisfy before any field is
// trusted. Unknown fields are tolerated (additionalProperties left open)
// so a newer collector can add fields without breaking older readers.
const schemaDoc = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["overall_score", "overall_status"],
	"properties": {
		"overall_score": {"type": "integer", "minimum": 0},
		"overall_status": {"type": "string", "enum": ["healthy", "degraded", "marginal", "critical"]},
		"checks": {
			"type": "object",
			"additionalProperties": {"type": "boolean"}
		},
		"timestamp": {"type": "integer", "minimum": 0}
	}
}`

var compiledSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("health-report.json", strings.NewReader(schemaDoc)); err != nil {
		panic(err)
	}
	s, err := c.Compile("health-report.json")
	if err != nil {
		panic(err)
	}
	return s
}()

// Report is the parsed, schema-validated health snapshot.
type Report struct {
	OverallScore  uint32          `json:"overall_score"`
	OverallStatus string          `json:"overall_status"`
	Checks        map[string]bool `json:"checks"`
	Timestamp     int64           `json:"timestamp"`
	ok            bool
}

// absent is the zero-value report returned whenever the file is missing,
// unreadable, not valid JSON, or fails schema validation: score 0, every
// check false, never fresh.
func absent() Report { return Report{} }

// Load reads and validates the health report at path. It never returns an
// error to the caller; a missing or malformed report simply yields a
// Report that fails every guard.
func Load(path string) Report {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Logf("health: report %s unreadable: %v", path, err)
		return absent()
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Logf("health: report %s not valid JSON: %v", path, err)
		return absent()
	}
	if err := compiledSchema.Validate(doc); err != nil {
		log.Logf("health: report %s failed schema validation: %v", path, err)
		return absent()
	}

	var r Report
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&r); err != nil {
		log.Logf("health: report %s failed to decode: %v", path, err)
		return absent()
	}
	r.ok = true
	return r
}

// Score returns overall_score, or 0 if the report is absent/malformed.
func (r Report) Score() uint32 {
	if !r.ok {
		return 0
	}
	return r.OverallScore
}

// Check reports the named boolean check, or false if the report is
// absent/malformed or the check was not present.
func (r Report) Check(name string) bool {
	if !r.ok || r.Checks == nil {
		return false
	}
	return r.Checks[name]
}

// IsFresh reports whether the report's timestamp is within maxAge of now.
// An absent/malformed report is never fresh.
func (r Report) IsFresh(maxAge time.Duration) bool {
	if !r.ok {
		return false
	}
	age := time.Since(time.Unix(r.Timestamp, 0))
	return age >= 0 && age <= maxAge
}
