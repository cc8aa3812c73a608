/* SPDX-License-Identifier: LGPL-2.1-or-later */

// Package hashing implements the two content-addressing hash functions the
// journal format selects between via the header's KEYED_HASH incompatible
// flag: keyed SipHash-2-4 and unkeyed Jenkins lookup3, combined into a
// 64-bit result per journald's own convention.
package hashing

import "github.com/dchest/siphash"

// SipHash computes the keyed SipHash-2-4 of data using the file's 128-bit
// file_id (two little-endian uint64 words) as the key, matching
// journal_base_t::hash_data's keyed branch in the C++ reference.
func SipHash(fileID [2]uint64, data []byte) uint64 {
	var key [16]byte
	putLE64(key[0:8], fileID[0])
	putLE64(key[8:16], fileID[1])
	h := siphash.New(key[:])
	h.Write(data)
	return h.Sum64()
}

func putLE64(b []byte, v uint64) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}

// Hash dispatches on keyedHash, matching journal_base_t::hash_data's choice
// between the two algorithms.
func Hash(keyedHash bool, fileID [2]uint64, data []byte) uint64 {
	if keyedHash {
		return SipHash(fileID, data)
	}
	return Lookup3(data)
}
