/* SPDX-License-Identifier: LGPL-2.1-or-later */

/*
 * Rebuilder, grounded on the arena-allocation and bucket-chain-splicing
 * logic of input_journal_t::rebuild() in the C++ reference. The reference
 * grows its arena by mmap'ing FileSizeIncrease-sized (8 MiB) granules and
 * overlaying structs directly on top with unsafe.Pointer; this port grows a
 * plain []byte with append and addresses every field through header.go's
 * little-endian helpers (§9). Once every object is written, the byte image
 * is zero-padded up to a multiple of FileSizeIncrease, so the returned file
 * has the same 8 MiB-granular size.
 */
package journal

import (
	"sort"

	"github.com/appgate/journalzap/internal/journal/hashing"
)

// Rebuild constructs a fresh, densely packed arena containing exactly the
// entries, Data and Field objects present in f, and returns its encoded
// bytes. It never seals the output (§9 point 4): a filtered journal whose
// Header carries the SEALED compatible flag is refused outright, since this
// implementation cannot re-derive a valid tag chain for rewritten content.
func Rebuild(f *FilteredJournal, sinks ...Sink) (out []byte, err error) {
	sink := resolveSink(sinks)
	sink.Debugf("rebuilding journal: %d entries, %d data, %d fields", len(f.Entries), len(f.Data), len(f.Fields))
	defer func() {
		if err != nil {
			sink.Errorf("rebuild failed: %v", err)
		}
	}()

	if f.Header.sealed() {
		return nil, newRebuildError(ErrUnimplementedSealing, "refusing to rebuild a sealed journal")
	}

	entries := make([]EntryObject, len(f.Entries))
	copy(entries, f.Entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seqnum < entries[j].Seqnum })
	// Renumber densely from 1: the on-disk seqnum space is this file's own,
	// and a rebuild that dropped entries must not leave gaps (§8 round-trip).
	for i := range entries {
		entries[i].Seqnum = uint64(i + 1)
	}

	b := newArenaBuilder(f.Header)

	if err := b.writeHashTables(); err != nil {
		return nil, err
	}

	fieldOffsets := make([]uint64, len(f.Fields))
	fieldTailByName := make(map[string]uint64)
	for i, field := range f.Fields {
		off, err := b.appendField(field)
		if err != nil {
			return nil, err
		}
		fieldOffsets[i] = off
	}

	dataOffsets := make([]uint64, len(f.Data))
	dataHashes := make([]uint64, len(f.Data))
	dataNEntry := make([]uint64, len(f.Data))
	dataSingleEntry := make([]uint64, len(f.Data))
	dataArrayState := make([]entryArrayState, len(f.Data))
	for i, d := range f.Data {
		off, hash, err := b.appendData(d, f.Fields, fieldOffsets, fieldTailByName)
		if err != nil {
			return nil, err
		}
		dataOffsets[i] = off
		dataHashes[i] = hash
	}

	var globalArray entryArrayState
	var firstEntry, lastEntry *EntryObject

	for _, e := range entries {
		items := make([]EntryItem, len(e.DataIndexes))
		for k, di := range e.DataIndexes {
			items[k] = EntryItem{ObjectOffset: dataOffsets[di], Hash: dataHashes[di]}
		}
		entryOffset, err := b.appendEntry(e, items)
		if err != nil {
			return nil, err
		}

		if err := b.appendToArrayChain(&globalArray, entryOffset); err != nil {
			return nil, err
		}

		for _, di := range e.DataIndexes {
			dataNEntry[di]++
			if dataNEntry[di] == 1 {
				dataSingleEntry[di] = entryOffset
				continue
			}
			if dataNEntry[di] == 2 {
				if err := b.appendToArrayChain(&dataArrayState[di], dataSingleEntry[di]); err != nil {
					return nil, err
				}
			}
			if err := b.appendToArrayChain(&dataArrayState[di], entryOffset); err != nil {
				return nil, err
			}
		}

		if firstEntry == nil {
			ec := e
			firstEntry = &ec
		}
		lc := e
		lastEntry = &lc
	}

	for i := range f.Data {
		if dataNEntry[i] == 1 {
			b.patchDataEntryRefs(dataOffsets[i], dataSingleEntry[i], 0, 1)
		} else {
			b.patchDataEntryRefs(dataOffsets[i], 0, dataArrayState[i].headOffset, dataNEntry[i])
		}
	}

	if rem := uint64(len(b.buf)) % FileSizeIncrease; rem != 0 {
		b.buf = append(b.buf, make([]byte, FileSizeIncrease-rem)...)
	}

	h := f.Header
	h.State = StateOffline
	h.CompatibleFlags &^= HeaderCompatibleSealed
	// No object in the output is compressed.
	h.IncompatibleFlags &^= HeaderIncompatibleCompressedXZ | HeaderIncompatibleCompressedLZ4 | HeaderIncompatibleCompressedZSTD
	h.HeaderSize = fullHeaderSize
	h.ArenaSize = uint64(len(b.buf)) - fullHeaderSize
	h.DataHashTableOffset = b.dataHashTableOffset
	h.DataHashTableSize = DataHashTableBuckets * HashItemSize
	h.FieldHashTableOffset = b.fieldHashTableOffset
	h.FieldHashTableSize = FieldHashTableBuckets * HashItemSize
	h.TailObjectOffset = b.lastObjectOffset
	h.NObjects = b.objectCount
	h.NEntries = uint64(len(entries))
	h.NData = uint64(len(f.Data))
	h.NFields = uint64(len(f.Fields))
	h.NTags = 0
	h.NEntryArrays = b.entryArrayCount
	h.EntryArrayOffset = globalArray.headOffset
	h.DataHashChainDepth = b.maxChainDepth(b.dataHashTableOffset, DataHashTableBuckets, func(off uint64) uint64 {
		return le64(b.buf[off+24 : off+32])
	})
	h.FieldHashChainDepth = b.maxChainDepth(b.fieldHashTableOffset, FieldHashTableBuckets, func(off uint64) uint64 {
		return le64(b.buf[off+24 : off+32])
	})
	if firstEntry != nil {
		h.HeadEntrySeqnum = firstEntry.Seqnum
		h.HeadEntryRealtime = firstEntry.Realtime
		h.TailEntrySeqnum = lastEntry.Seqnum
		h.TailEntryRealtime = lastEntry.Realtime
		h.TailEntryMonotonic = lastEntry.Monotonic
	} else {
		h.HeadEntrySeqnum, h.TailEntrySeqnum = 0, 0
		h.HeadEntryRealtime, h.TailEntryRealtime, h.TailEntryMonotonic = 0, 0, 0
	}

	encodeHeader(b.buf, h)
	sink.Infof("rebuilt journal: %d bytes, %d objects", len(b.buf), h.NObjects)
	return b.buf, nil
}

// entryArrayState tracks a single EntryArray chain's write cursor so new
// entry offsets can be appended in amortized-doubling blocks instead of one
// object per item.
type entryArrayState struct {
	headOffset uint64
	tailOffset uint64
	tailCap    uint64
	tailUsed   uint64
}

const entryArrayInitialCapacity = 4

// arenaBuilder accumulates the rebuilt journal's byte image.
type arenaBuilder struct {
	buf                  []byte
	lastObjectOffset     uint64
	objectCount          uint64
	entryArrayCount      uint64
	dataHashTableOffset  uint64
	fieldHashTableOffset uint64
	keyedHash            bool
	fileID               [2]uint64
}

func newArenaBuilder(h Header) *arenaBuilder {
	b := &arenaBuilder{
		buf:       make([]byte, fullHeaderSize),
		keyedHash: h.keyedHash(),
		fileID:    h.FileID,
	}
	return b
}

// alloc appends a zeroed, 8-byte-aligned object of the given total size and
// returns its offset, recording it as the new tail object.
func (b *arenaBuilder) alloc(kind uint8, flags uint8, size uint64) uint64 {
	offset := uint64(len(b.buf))
	aligned := align8(size)
	b.buf = append(b.buf, make([]byte, aligned)...)
	b.buf[offset] = kind
	b.buf[offset+1] = flags
	putLE64(b.buf[offset+8:offset+16], size)
	b.lastObjectOffset = offset
	b.objectCount++
	return offset
}

func (b *arenaBuilder) writeHashTables() error {
	dataSize := uint64(DataHashTableBuckets) * HashItemSize
	fieldSize := uint64(FieldHashTableBuckets) * HashItemSize
	b.dataHashTableOffset = b.alloc(ObjectDataHashTable, 0, ObjectHeaderSize+dataSize) + ObjectHeaderSize
	b.fieldHashTableOffset = b.alloc(ObjectFieldHashTable, 0, ObjectHeaderSize+fieldSize) + ObjectHeaderSize
	return nil
}

func (b *arenaBuilder) appendField(f FieldObject) (uint64, error) {
	size := uint64(FieldObjectSize) + uint64(len(f.Payload))
	offset := b.alloc(ObjectField, 0, size)
	hash := hashing.Hash(b.keyedHash, b.fileID, f.Payload)
	putLE64(b.buf[offset+16:offset+24], hash)
	copy(b.buf[offset+FieldObjectSize:], f.Payload)
	b.linkHashBucket(b.fieldHashTableOffset, FieldHashTableBuckets, hash, offset, 24)
	return offset, nil
}

func (b *arenaBuilder) appendData(d DataObject, fields []FieldObject, fieldOffsets []uint64, fieldTailByName map[string]uint64) (offset, hash uint64, err error) {
	size := uint64(DataObjectSize) + uint64(len(d.Payload))
	offset = b.alloc(ObjectData, 0, size)
	hash = hashing.Hash(b.keyedHash, b.fileID, d.Payload)
	putLE64(b.buf[offset+16:offset+24], hash)
	copy(b.buf[offset+DataObjectSize:], d.Payload)
	b.linkHashBucket(b.dataHashTableOffset, DataHashTableBuckets, hash, offset, 24)

	if prefix := d.fieldPrefix(); prefix != "" {
		for i, field := range fields {
			if !field.equalFold(prefix) {
				continue
			}
			fieldOffset := fieldOffsets[i]
			if tail, ok := fieldTailByName[prefix]; ok {
				putLE64(b.buf[tail+32:tail+40], offset) // previous Data's next_field_offset
			} else {
				putLE64(b.buf[fieldOffset+32:fieldOffset+40], offset) // field's head_data_offset
			}
			fieldTailByName[prefix] = offset
			break
		}
	}
	return offset, hash, nil
}

func (b *arenaBuilder) appendEntry(e EntryObject, items []EntryItem) (uint64, error) {
	size := uint64(EntryObjectSize) + uint64(len(items))*EntryItemSize
	offset := b.alloc(ObjectEntry, 0, size)
	putLE64(b.buf[offset+16:offset+24], e.Seqnum)
	putLE64(b.buf[offset+24:offset+32], e.Realtime)
	putLE64(b.buf[offset+32:offset+40], e.Monotonic)
	putLE64(b.buf[offset+40:offset+48], e.BootID[0])
	putLE64(b.buf[offset+48:offset+56], e.BootID[1])
	var xor uint64
	for i, item := range items {
		base := offset + EntryObjectSize + uint64(i)*EntryItemSize
		putLE64(b.buf[base:base+8], item.ObjectOffset)
		putLE64(b.buf[base+8:base+16], item.Hash)
		xor ^= item.Hash
	}
	putLE64(b.buf[offset+56:offset+64], xor)
	return offset, nil
}

// appendToArrayChain writes entryOffset into the chain's current tail block,
// allocating a fresh (capacity-doubled) block when the current one is full.
func (b *arenaBuilder) appendToArrayChain(es *entryArrayState, entryOffset uint64) error {
	if es.headOffset == 0 {
		off := b.allocEntryArray(entryArrayInitialCapacity)
		es.headOffset, es.tailOffset = off, off
		es.tailCap, es.tailUsed = entryArrayInitialCapacity, 0
	} else if es.tailUsed >= es.tailCap {
		newCap := es.tailCap * 2
		off := b.allocEntryArray(newCap)
		putLE64(b.buf[es.tailOffset+16:es.tailOffset+24], off) // next_entry_array_offset
		es.tailOffset = off
		es.tailCap, es.tailUsed = newCap, 0
	}
	base := es.tailOffset + EntryArrayObjectSize + es.tailUsed*8
	putLE64(b.buf[base:base+8], entryOffset)
	es.tailUsed++
	return nil
}

func (b *arenaBuilder) allocEntryArray(capacity uint64) uint64 {
	size := uint64(EntryArrayObjectSize) + capacity*8
	off := b.alloc(ObjectEntryArray, 0, size)
	b.entryArrayCount++
	return off
}

// linkHashBucket splices the object at offset into bucket hash%buckets,
// where the bucket table lives at tableOffset and nextHashFieldOffset is the
// byte offset (relative to the object's start) of its next_hash_offset
// field.
func (b *arenaBuilder) linkHashBucket(tableOffset uint64, buckets uint64, hash, offset, nextHashFieldOffset uint64) {
	bucket := hash % buckets
	bucketBase := tableOffset + bucket*HashItemSize
	head := le64(b.buf[bucketBase : bucketBase+8])
	if head == 0 {
		putLE64(b.buf[bucketBase:bucketBase+8], offset)
	} else {
		tail := le64(b.buf[bucketBase+8 : bucketBase+16])
		putLE64(b.buf[tail+nextHashFieldOffset:tail+nextHashFieldOffset+8], offset)
	}
	putLE64(b.buf[bucketBase+8:bucketBase+16], offset)
}

// patchDataEntryRefs fills in a Data object's entry_offset (single-entry fast
// path), entry_array_offset and n_entries fields once every entry
// referencing it has been appended.
func (b *arenaBuilder) patchDataEntryRefs(dataOffset, entryOffset, entryArrayOffset, nEntries uint64) {
	putLE64(b.buf[dataOffset+40:dataOffset+48], entryOffset)
	putLE64(b.buf[dataOffset+48:dataOffset+56], entryArrayOffset)
	putLE64(b.buf[dataOffset+56:dataOffset+64], nEntries)
}

// maxChainDepth returns the longest bucket chain across a hash table, used
// to populate the header's diagnostic chain-depth counters.
func (b *arenaBuilder) maxChainDepth(tableOffset uint64, buckets uint64, next func(uint64) uint64) uint64 {
	var max uint64
	for bucket := uint64(0); bucket < buckets; bucket++ {
		bucketBase := tableOffset + bucket*HashItemSize
		depth := uint64(0)
		for cur := le64(b.buf[bucketBase : bucketBase+8]); cur != 0; cur = next(cur) {
			depth++
		}
		if depth > max {
			max = depth
		}
	}
	return max
}
