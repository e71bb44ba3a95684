// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package policy

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ironveil/pactier/pkg/health"
)

func nowStr() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// loadReport writes body to a temp file and loads it through health.Load
// so tests exercise the same schema-validated path production code does.
func loadReport(body string) health.Report {
	dir, err := os.MkdirTemp("", "policy-health-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)
	p := filepath.Join(dir, "health.json")
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		panic(err)
	}
	return health.Load(p)
}
