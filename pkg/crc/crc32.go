// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package crc computes the CRC-32 used to guard the journal's two pages
// against torn writes and bit flips.
package crc

import "hash/crc32"

// ieeeTable is the reflected IEEE 802.3 polynomial (0xEDB88320), the same
// one used by zip, gzip, and most "CRC-32" implementations in the wild.
var ieeeTable = crc32.MakeTable(crc32.IEEE)

// Sum32 computes the CRC-32 (IEEE, reflected, initial 0xFFFFFFFF, final
// XOR 0xFFFFFFFF) of b. Pure, total: every byte slice - including nil or
// empty - produces a well-defined result.
func Sum32(b []byte) uint32 {
	return crc32.Checksum(b, ieeeTable)
}
