// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/ironveil/pactier/pkg/crc"
	"github.com/ironveil/pactier/pkg/journal/flags"
)

// PageSize is the fixed, little-endian, packed size of one serialized
// BootRecord: version(4) + tier(1) + tries_t2(1) + tries_t3(1) +
// rollback_idx(1) + flags(4) + boot_count(8) + timestamp(8) + crc32(4) +
// trailer(4).
const PageSize = 4 + 1 + 1 + 1 + 1 + 4 + 8 + 8 + 4 + 4

// BadLayout is returned by Decode when the input buffer is not exactly
// PageSize bytes long.
type BadLayout struct {
	Got int
}

func (e BadLayout) Error() string {
	return fmt.Sprintf("journal: bad page layout: got %d bytes, want %d", e.Got, PageSize)
}

// Encode serializes r into a new PageSize-byte buffer, field order exactly
// as in the data model, little-endian, with no padding.
func Encode(r BootRecord) []byte {
	b := make([]byte, PageSize)
	off := 0
	binary.LittleEndian.PutUint32(b[off:], r.Version)
	off += 4
	b[off] = byte(r.Tier)
	off++
	b[off] = r.TriesT2
	off++
	b[off] = r.TriesT3
	off++
	b[off] = r.RollbackIdx
	off++
	binary.LittleEndian.PutUint32(b[off:], uint32(r.Flags))
	off += 4
	binary.LittleEndian.PutUint64(b[off:], r.BootCount)
	off += 8
	binary.LittleEndian.PutUint64(b[off:], r.Timestamp)
	off += 8
	binary.LittleEndian.PutUint32(b[off:], r.Crc32)
	off += 4
	binary.LittleEndian.PutUint32(b[off:], r.Trailer)
	off += 4
	return b
}

// Decode deserializes a PageSize-byte buffer into a BootRecord. It does
// not validate the record's invariants or crc32; callers use Validate for
// that. Returns BadLayout if len(b) != PageSize.
func Decode(b []byte) (BootRecord, error) {
	if len(b) != PageSize {
		return BootRecord{}, BadLayout{Got: len(b)}
	}
	var r BootRecord
	off := 0
	r.Version = binary.LittleEndian.Uint32(b[off:])
	off += 4
	r.Tier = Tier(b[off])
	off++
	r.TriesT2 = b[off]
	off++
	r.TriesT3 = b[off]
	off++
	r.RollbackIdx = b[off]
	off++
	r.Flags = flags.Flag(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	r.BootCount = binary.LittleEndian.Uint64(b[off:])
	off += 8
	r.Timestamp = binary.LittleEndian.Uint64(b[off:])
	off += 8
	r.Crc32 = binary.LittleEndian.Uint32(b[off:])
	off += 4
	r.Trailer = binary.LittleEndian.Uint32(b[off:])
	off += 4
	return r, nil
}

// crcBody returns the byte prefix of a record's encoding over which
// crc32 is computed: everything up to, but not including, the crc32 and
// trailer fields.
func crcBody(b []byte) []byte {
	return b[:PageSize-8]
}

// Checksum computes the crc32 that a valid encoding of r must carry.
func Checksum(r BootRecord) uint32 {
	b := Encode(r)
	return crc.Sum32(crcBody(b))
}

// Validate reports whether r satisfies every page-validity invariant, including
// the crc32 check against raw, which must be r's own PageSize-byte
// encoding (or an equivalent byte run produced the same way).
func Validate(r BootRecord, raw []byte) bool {
	if !r.Valid() {
		return false
	}
	if len(raw) != PageSize {
		return false
	}
	return r.Crc32 == crc.Sum32(crcBody(raw))
}
