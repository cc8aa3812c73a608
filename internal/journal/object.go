/* SPDX-License-Identifier: LGPL-2.1-or-later */
package journal

import "strings"

// objectHeader is the common 16-byte prefix of every arena object.
type objectHeader struct {
	Type  uint8
	Flags uint8
	Size  uint64
}

func decodeObjectHeader(data []byte, offset uint64) (objectHeader, error) {
	if offset+ObjectHeaderSize > uint64(len(data)) {
		return objectHeader{}, newParseError(ErrTruncatedHeader, "object header at %d exceeds arena", offset)
	}
	b := data[offset:]
	return objectHeader{
		Type:  b[0],
		Flags: b[1],
		Size:  le64(b[8:16]),
	}, nil
}

// compressionFlag reports the single compression bit set in flags, or 0 if
// none. Per invariant 11, at most one compression flag may be set.
func compressionFlag(flags uint8) uint8 {
	return flags & ObjectCompressionMask
}

// Object is the tagged-variant sum type covering the four decoded value
// object kinds (Data, Field, Entry, Tag). Hash tables and entry arrays are
// derived state, not value objects, per §4.1.
//
// This is modeled as an interface with an unexported marker method rather
// than the reference's base-class-plus-downcast hierarchy, so only types in
// this package can implement it. The compiler does not check that a type
// switch over Object covers every kind.
type Object interface {
	objectKind() uint8
}

// DataObject mirrors data_object_t: a deduplicated payload blob, reachable
// by hash chain and by the entries that reference it.
type DataObject struct {
	Flags   uint8
	Hash    uint64
	NEntry  uint64 // n_entries, renamed to avoid stutter with the struct field holding referencing entries elsewhere
	Payload []byte

	// On-disk chain-link fields, needed by the verifier's hash-table and
	// entry-array traversals and by the rebuilder's dedup lookups. Not
	// part of §4.3's abstract in-memory model, but required to re-derive
	// the linked state that model deliberately leaves implicit.
	NextHashOffset   uint64
	NextFieldOffset  uint64
	EntryOffset      uint64
	EntryArrayOffset uint64
}

func (DataObject) objectKind() uint8 { return ObjectData }

// fieldPrefix returns the KEY portion of a "KEY=VALUE" payload, or "" if the
// payload holds no '=' at all.
func (d DataObject) fieldPrefix() string {
	k, _, ok := splitFieldValue(d.Payload)
	if !ok {
		return ""
	}
	return k
}

// FieldObject mirrors field_object_t: a deduplicated field name, e.g.
// "MESSAGE", reachable by hash chain and by every Data whose key matches.
type FieldObject struct {
	Flags   uint8
	Hash    uint64
	Payload []byte

	NextHashOffset uint64
	HeadDataOffset uint64
}

func (FieldObject) objectKind() uint8 { return ObjectField }

func (f FieldObject) equalFold(name string) bool {
	return strings.EqualFold(string(f.Payload), name)
}

// EntryItem is one {object_offset, hash} pair inside an Entry's items array,
// referencing a Data object.
type EntryItem struct {
	ObjectOffset uint64
	Hash         uint64
}

// EntryObject mirrors entry_object_t. DataIndexes references the owning
// ParsedJournal's Data slice by index rather than by offset or pointer, per
// §9's guidance on modeling cyclic on-disk references in memory.
type EntryObject struct {
	Flags       uint8
	Seqnum      uint64
	Realtime    uint64
	Monotonic   uint64
	BootID      [2]uint64
	XorHash     uint64
	DataIndexes []int
}

func (EntryObject) objectKind() uint8 { return ObjectEntry }

// HasItemHash reports whether any of the entry's referenced items carries
// hash h. The reference computes this by walking raw item hashes; here the
// caller passes the resolved hash slice since items are indices, not hashes,
// once decoded (see ParsedJournal.itemHashes).
func (e EntryObject) HasItemHash(h uint64, itemHashes []uint64) bool {
	for _, ih := range itemHashes {
		if ih == h {
			return true
		}
	}
	return false
}

// Less orders entries by seqnum, mirroring entry_obj_t::operator<.
func (e EntryObject) Less(other EntryObject) bool {
	return e.Seqnum < other.Seqnum
}

// TagObject mirrors tag_object_t. Only ever populated on sealed files, which
// this implementation refuses to rebuild (§9 point 4).
type TagObject struct {
	Seqnum uint64
	Epoch  uint64
	Tag    [TagLength]byte
}

func (TagObject) objectKind() uint8 { return ObjectTag }
