/* SPDX-License-Identifier: LGPL-2.1-or-later */

/*
 * This file is based on journal-def.h in systemd.
 * The constants and structs were obtained from there and converted to
 * go.
 *
 * The code to operate on the data structures is original.
 *
 * Copyright for the original file:
 *
 * 2008-2015 Kay Sievers <kay@vrfy.org>
 * 2010-2015 Lennart Poettering
 * 2012-2015 Zbigniew Jędrzejewski-Szmek <zbyszek@in.waw.pl>
 * 2013-2015 Tom Gundersen <teg@jklm.no>
 * 2013-2015 Daniel Mack
 * 2010-2015 Harald Hoyer
 * 2013-2015 David Herrmann
 * 2013, 2014 Thomas H.P. Andersen
 * 2013, 2014 Daniel Buch
 * 2014 Susant Sahani
 * 2009-2015 Intel Corporation
 * 2000, 2005 Red Hat, Inc.
 * 2009 Alan Jenkins <alan-jenkins@tuffmail.co.uk>
 * 2010 ProFUSION embedded systems
 * 2010 Maarten Lankhorst
 * 1995-2004 Miquel van Smoorenburg
 * 1999 Tom Tromey
 * 2011 Michal Schmidt
 * 2012 B. Poettering
 * 2012 Holger Hans Peter Freyther
 * 2012 Dan Walsh
 * 2012 Roberto Sassu
 * 2013 David Strauss
 * 2013 Marius Vollmer
 * 2013 Jan Janssen
 * 2013 Simon Peeters
 *
 * Copyright for the go version:
 *
 * 2024 Appgate Inc.
 */
package journal

// Object header and kind layout, ported from journal-def.h's packed C structs.
const (
	HeaderSize           = 208 // struct.calcsize('<8s 2I B 7x 16s 16s 16s 16s 15Q')
	ObjectHeaderSize     = 16  // struct.calcsize('<2B 6x Q')
	EntryArrayObjectSize = 24  // ObjectHeaderSize + struct.calcsize('<Q')
	EntryObjectSize      = 64  // ObjectHeaderSize + struct.calcsize('<3Q 16s Q')
	DataObjectSize       = 64  // ObjectHeaderSize + struct.calcsize('<6Q')
	FieldObjectSize      = 40  // ObjectHeaderSize + struct.calcsize('<3Q')
	HashItemSize         = 16  // struct.calcsize('<2Q')
	TagObjectSize        = 64  // ObjectHeaderSize + struct.calcsize('<2Q 32s')
	TagLength            = 32

	EntryItemSize = 16 // {object_offset:u64, hash:u64}

	DataHashTableBuckets  = 2047
	FieldHashTableBuckets = 333

	// FileSizeIncrease is the arena growth granule, 8 MiB, ported from global.hpp's
	// FILE_SIZE_INCREASE.
	FileSizeIncrease = 8 * 1024 * 1024

	HeaderSignature = "LPKSHHRH"
)

// Object kinds, tagged by the type byte of every object header.
const (
	ObjectUnused = iota
	ObjectData
	ObjectField
	ObjectEntry
	ObjectDataHashTable
	ObjectFieldHashTable
	ObjectEntryArray
	ObjectTag
	objectTypeMax
)

// Object-level compression flags (stored in the per-object flags byte).
const (
	ObjectCompressedXZ   = 1 << 0
	ObjectCompressedLZ4  = 1 << 1
	ObjectCompressedZSTD = 1 << 2
	ObjectCompressionMask = ObjectCompressedXZ | ObjectCompressedLZ4 | ObjectCompressedZSTD
)

// Header incompatible-flag bits.
const (
	HeaderIncompatibleCompressedXZ   = 1 << 0
	HeaderIncompatibleCompressedLZ4  = 1 << 1
	HeaderIncompatibleKeyedHash      = 1 << 2
	HeaderIncompatibleCompressedZSTD = 1 << 3
)

// Header compatible-flag bits.
const (
	HeaderCompatibleSealed = 1 << 0
)

// Header state byte.
const (
	StateOffline = iota
	StateOnline
	StateArchived
)

// align8 rounds n up to the next multiple of 8, mirroring the ALIGN64 macro
// in journal-def.h.
func align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

// valid8 reports whether n is already 8-byte aligned (the VALID64 predicate).
func valid8(n uint64) bool {
	return n&7 == 0
}

// validRealtime mirrors object.hpp's VALID_REALTIME: realtime timestamps are
// microseconds since the epoch and must fit in 55 bits and be non-zero.
func validRealtime(u uint64) bool {
	return u > 0 && u < (1<<55)
}

// validMonotonic mirrors object.hpp's VALID_MONOTONIC.
func validMonotonic(u uint64) bool {
	return u < (1 << 55)
}

// validEpoch mirrors object.hpp's VALID_EPOCH.
func validEpoch(u uint64) bool {
	return u < (1 << 55)
}
