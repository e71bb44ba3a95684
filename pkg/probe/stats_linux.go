// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package probe

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ironveil/pactier/pkg/log"
)

// DefaultVarPath is the filesystem whose free space the degradation
// guards watch.
const DefaultVarPath = "/var"

// imaViolationsPath is where securityfs exposes the IMA violations
// counter; absent when IMA is not enabled.
const imaViolationsPath = "/sys/kernel/security/ima/violations"

// VarFreeBytes returns the free bytes available to unprivileged writers
// on the filesystem containing path. A statfs failure reads as 0 free -
// a filesystem that cannot be statted is treated as full, not healthy.
func VarFreeBytes(path string) uint64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		log.Logf("probe: statfs %s failed: %v", path, err)
		return 0
	}
	return st.Bavail * uint64(st.Bsize)
}

// MemFreePercent returns free RAM as a percentage of total. A sysinfo
// failure reads as 0%, same rationale as VarFreeBytes.
func MemFreePercent() float64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		log.Logf("probe: sysinfo failed: %v", err)
		return 0
	}
	if si.Totalram == 0 {
		return 0
	}
	return float64(si.Freeram) / float64(si.Totalram) * 100
}

// ImaViolations returns the kernel's IMA violations counter. Devices
// without IMA (no securityfs entry) read as 0 violations.
func ImaViolations() int {
	b, err := os.ReadFile(imaViolationsPath)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
