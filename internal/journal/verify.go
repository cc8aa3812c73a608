/* SPDX-License-Identifier: LGPL-2.1-or-later */

/*
 * Three-pass verifier, ported from input_journal_t::verify_file(),
 * verify_entry_array() and verify_hash_array() in the C++ reference. Unlike
 * that code, the Data-object content hash actually gets recomputed and
 * compared (§9 point 1), and the per-Data EntryArray chain's item count is
 * checked against Data.n_entries (§9 point 3).
 */
package journal

import (
	"github.com/appgate/journalzap/internal/journal/hashing"
)

// Verify runs the three structural passes against an already-decoded
// ParsedJournal, logging each check's outcome to sink (defaulting to a
// no-op).
func Verify(j *ParsedJournal, sinks ...Sink) error {
	sink := resolveSink(sinks)
	checks := []struct {
		name string
		fn   func(*ParsedJournal) error
	}{
		{"counts", verifyCounts},
		{"sealing", verifySealing},
		{"entry monotonicity", verifyEntryMonotonicity},
		{"tag sequence", verifyTagSequence},
		{"data checksums", verifyDataChecksums},
		{"entry arrays", verifyEntryArrays},
		{"hash tables", verifyHashTables},
	}
	for _, c := range checks {
		if err := c.fn(j); err != nil {
			sink.Errorf("verify: %s check failed: %v", c.name, err)
			return err
		}
		sink.Debugf("verify: %s check passed", c.name)
	}
	sink.Infof("verify: all %d checks passed (%d entries, %d data, %d fields)", len(checks), len(j.Entries), len(j.Data), len(j.Fields))
	return nil
}

func headerHas(h Header, throughOffset uint64) bool { return h.HeaderSize >= throughOffset }

func verifyCounts(j *ParsedJournal) error {
	h := j.Header
	if uint64(len(j.Entries)) != h.NEntries {
		return newVerifyError(ErrCountMismatch, "decoded %d entries, header says n_entries=%d", len(j.Entries), h.NEntries)
	}
	if headerHas(h, 216) && uint64(len(j.Data)) != h.NData {
		return newVerifyError(ErrCountMismatch, "decoded %d data objects, header says n_data=%d", len(j.Data), h.NData)
	}
	if headerHas(h, 224) && uint64(len(j.Fields)) != h.NFields {
		return newVerifyError(ErrCountMismatch, "decoded %d field objects, header says n_fields=%d", len(j.Fields), h.NFields)
	}
	if headerHas(h, 232) && uint64(len(j.Tags)) != h.NTags {
		return newVerifyError(ErrCountMismatch, "decoded %d tag objects, header says n_tags=%d", len(j.Tags), h.NTags)
	}
	if j.objectCount != h.NObjects {
		return newVerifyError(ErrCountMismatch, "visited %d objects, header says n_objects=%d", j.objectCount, h.NObjects)
	}
	return nil
}

func verifySealing(j *ParsedJournal) error {
	sealed := j.Header.sealed()
	if !sealed && len(j.Tags) > 0 {
		return newVerifyError(ErrSealedFlagInconsistency, "file carries %d tag objects without the SEALED compatible flag", len(j.Tags))
	}
	return nil
}

func verifyTagSequence(j *ParsedJournal) error {
	var lastEpoch uint64
	for i, t := range j.Tags {
		if !validEpoch(t.Epoch) {
			return newVerifyError(ErrShapeViolation, "tag %d epoch %d out of range", i, t.Epoch)
		}
		if t.Seqnum != uint64(i+1) {
			return newVerifyError(ErrShapeViolation, "tag %d has seqnum %d, expected dense sequence starting at 1", i, t.Seqnum)
		}
		if i > 0 && t.Epoch < lastEpoch {
			return newVerifyError(ErrShapeViolation, "tag %d epoch %d is less than previous epoch %d", i, t.Epoch, lastEpoch)
		}
		lastEpoch = t.Epoch
	}
	return nil
}

func verifyEntryMonotonicity(j *ParsedJournal) error {
	h := j.Header
	var lastSeqnum uint64
	var lastRealtime uint64
	var lastMonotonic uint64
	var lastBootID [2]uint64
	haveBootID := false

	for i, e := range j.Entries {
		if !validRealtime(e.Realtime) {
			return newVerifyError(ErrShapeViolation, "entry %d realtime %d out of range", i, e.Realtime)
		}
		if !validMonotonic(e.Monotonic) {
			return newVerifyError(ErrShapeViolation, "entry %d monotonic %d out of range", i, e.Monotonic)
		}
		if len(e.DataIndexes) == 0 {
			return newVerifyError(ErrShapeViolation, "entry %d has no items", i)
		}
		if i > 0 && e.Seqnum <= lastSeqnum {
			return newVerifyError(ErrUnsortedArray, "entry %d seqnum %d does not strictly increase over %d", i, e.Seqnum, lastSeqnum)
		}
		if haveBootID && e.BootID == lastBootID && e.Monotonic < lastMonotonic {
			return newVerifyError(ErrShapeViolation, "entry %d monotonic %d decreases within boot_id", i, e.Monotonic)
		}
		lastSeqnum = e.Seqnum
		lastRealtime = e.Realtime
		lastMonotonic = e.Monotonic
		lastBootID = e.BootID
		haveBootID = true
	}

	if len(j.Entries) > 0 {
		first := j.Entries[0]
		last := j.Entries[len(j.Entries)-1]
		if first.Seqnum != h.HeadEntrySeqnum {
			return newVerifyError(ErrCountMismatch, "first entry seqnum %d != header head_entry_seqnum %d", first.Seqnum, h.HeadEntrySeqnum)
		}
		if last.Seqnum != h.TailEntrySeqnum {
			return newVerifyError(ErrCountMismatch, "last entry seqnum %d != header tail_entry_seqnum %d", last.Seqnum, h.TailEntrySeqnum)
		}
		if first.Realtime != h.HeadEntryRealtime {
			return newVerifyError(ErrCountMismatch, "first entry realtime %d != header head_entry_realtime %d", first.Realtime, h.HeadEntryRealtime)
		}
		if lastRealtime != h.TailEntryRealtime {
			return newVerifyError(ErrCountMismatch, "last entry realtime %d != header tail_entry_realtime %d", lastRealtime, h.TailEntryRealtime)
		}
		if lastMonotonic != h.TailEntryMonotonic {
			return newVerifyError(ErrCountMismatch, "last entry monotonic %d != header tail_entry_monotonic %d", lastMonotonic, h.TailEntryMonotonic)
		}
	}
	return nil
}

// verifyDataChecksums recomputes every Data object's content hash and
// compares it to the on-disk value. The C++ reference leaves this check
// disabled (§9 point 1); this implementation enforces it. A Data object with
// an empty payload is rejected as a ShapeViolation.
func verifyDataChecksums(j *ParsedJournal) error {
	keyed := j.Header.keyedHash()
	for i, d := range j.Data {
		if len(d.Payload) == 0 {
			return newVerifyError(ErrShapeViolation, "data object %d has an empty payload", i)
		}
		want := hashing.Hash(keyed, j.Header.FileID, d.Payload)
		if want != d.Hash {
			return newVerifyError(ErrChecksumMismatch, "data object %d hash %#x does not match recomputed hash %#x", i, d.Hash, want)
		}
	}
	return nil
}

// readEntryArrayChain walks an EntryArray chain starting at root, returning
// every referenced Entry offset in chain order.
func readEntryArrayChain(raw []byte, root uint64) ([]uint64, error) {
	var offsets []uint64
	visited := make(map[uint64]bool)
	for cur := root; cur != 0; {
		if visited[cur] {
			return nil, newVerifyError(ErrChainCycle, "entry array chain revisits offset %d", cur)
		}
		visited[cur] = true

		if cur+EntryArrayObjectSize > uint64(len(raw)) {
			return nil, newVerifyError(ErrOffsetMisalignment, "entry array at %d truncated", cur)
		}
		oh, err := decodeObjectHeader(raw, cur)
		if err != nil {
			return nil, err
		}
		if oh.Type != ObjectEntryArray {
			return nil, newVerifyError(ErrShapeViolation, "offset %d is not an entry array object", cur)
		}
		if oh.Size < EntryArrayObjectSize {
			return nil, newVerifyError(ErrShapeViolation, "entry array at %d smaller than its fixed fields", cur)
		}
		itemsBytes := oh.Size - EntryArrayObjectSize
		if itemsBytes%8 != 0 {
			return nil, newVerifyError(ErrShapeViolation, "entry array at %d items region not a multiple of 8 bytes", cur)
		}
		count := itemsBytes / 8
		base := cur + EntryArrayObjectSize
		var lastOffset uint64
		for i := uint64(0); i < count; i++ {
			v := le64(raw[base+i*8:])
			if v == 0 {
				continue // trailing unused slots in the final (possibly partial) array
			}
			if len(offsets) > 0 && v <= lastOffset {
				return nil, newVerifyError(ErrUnsortedArray, "entry array at %d has non-increasing entry offsets", cur)
			}
			offsets = append(offsets, v)
			lastOffset = v
		}
		next := le64(raw[cur+16 : cur+24])
		if next != 0 && next <= cur {
			return nil, newVerifyError(ErrChainCycle, "entry array at %d links backwards to %d", cur, next)
		}
		cur = next
	}
	return offsets, nil
}

// verifyEntryArrays checks invariant 9 (the global chain) and invariant 13
// (the per-Data chains, §9 point 3).
func verifyEntryArrays(j *ParsedJournal) error {
	offsets, err := readEntryArrayChain(j.raw, j.Header.EntryArrayOffset)
	if err != nil {
		return err
	}
	if uint64(len(offsets)) != j.Header.NEntries {
		return newVerifyError(ErrCountMismatch, "global entry array chain has %d entries, header says n_entries=%d", len(offsets), j.Header.NEntries)
	}
	entryIndexByOffset := make(map[uint64]int, len(j.entryOffset))
	for idx, off := range j.entryOffset {
		entryIndexByOffset[off] = idx
	}
	var lastSeqnum uint64
	for i, off := range offsets {
		idx, ok := entryIndexByOffset[off]
		if !ok {
			return newVerifyError(ErrBucketMismatch, "global entry array references unknown entry offset %d", off)
		}
		seqnum := j.Entries[idx].Seqnum
		if i > 0 && seqnum <= lastSeqnum {
			return newVerifyError(ErrUnsortedArray, "global entry array is not in seqnum order at position %d", i)
		}
		lastSeqnum = seqnum
	}

	for i, d := range j.Data {
		var items []uint64
		if d.NEntry == 1 && d.EntryOffset != 0 {
			items = []uint64{d.EntryOffset}
		} else if d.EntryArrayOffset != 0 {
			items, err = readEntryArrayChain(j.raw, d.EntryArrayOffset)
			if err != nil {
				return err
			}
		}
		if uint64(len(items)) != d.NEntry {
			return newVerifyError(ErrCountMismatch, "data object %d per-data entry array has %d items, want n_entries=%d", i, len(items), d.NEntry)
		}
	}
	return nil
}

// verifyHashTables walks every bucket chain of both hash tables, enforcing
// invariants 7 and 8.
func verifyHashTables(j *ParsedJournal) error {
	if err := verifyHashTable(j.raw, j.Header.DataHashTableOffset, j.Header.DataHashTableSize, DataHashTableBuckets, j.Data, j.dataOffset, func(d DataObject) (uint64, uint64) {
		return d.Hash, d.NextHashOffset
	}); err != nil {
		return err
	}
	return verifyHashTable(j.raw, j.Header.FieldHashTableOffset, j.Header.FieldHashTableSize, FieldHashTableBuckets, j.Fields, j.fieldOffset, func(f FieldObject) (uint64, uint64) {
		return f.Hash, f.NextHashOffset
	})
}

func verifyHashTable[T any](raw []byte, tableOffset, tableSize, bucketCount uint64, objects []T, offsets []uint64, linkOf func(T) (hash, next uint64)) error {
	if tableOffset == 0 {
		if len(objects) > 0 {
			return newVerifyError(ErrShapeViolation, "hash table missing but %d objects reference it", len(objects))
		}
		return nil
	}
	if tableSize != bucketCount*HashItemSize {
		return newVerifyError(ErrShapeViolation, "hash table at %d has size %d, want %d buckets of %d bytes", tableOffset, tableSize, bucketCount, HashItemSize)
	}

	offsetIndex := make(map[uint64]int, len(offsets))
	for i, off := range offsets {
		offsetIndex[off] = i
	}
	seen := make(map[uint64]bool, len(objects))

	for bucket := uint64(0); bucket < bucketCount; bucket++ {
		bucketBase := tableOffset + bucket*HashItemSize
		head := le64(raw[bucketBase : bucketBase+8])
		tail := le64(raw[bucketBase+8 : bucketBase+16])
		if head == 0 {
			if tail != 0 {
				return newVerifyError(ErrBucketMismatch, "bucket %d has nil head but non-nil tail", bucket)
			}
			continue
		}

		var last uint64
		for cur := head; cur != 0; {
			idx, ok := offsetIndex[cur]
			if !ok {
				return newVerifyError(ErrBucketMismatch, "bucket %d chain references unknown object at %d", bucket, cur)
			}
			if seen[cur] {
				return newVerifyError(ErrChainCycle, "bucket %d chain revisits offset %d", bucket, cur)
			}
			seen[cur] = true

			hash, next := linkOf(objects[idx])
			if hash%bucketCount != bucket {
				return newVerifyError(ErrBucketMismatch, "object at %d hashes to bucket %d, found in bucket %d", cur, hash%bucketCount, bucket)
			}
			if next != 0 && next <= cur {
				return newVerifyError(ErrChainCycle, "bucket %d chain link %d -> %d does not increase", bucket, cur, next)
			}
			last = cur
			cur = next
		}
		if last != tail {
			return newVerifyError(ErrBucketMismatch, "bucket %d last chain element %d != tail_hash_offset %d", bucket, last, tail)
		}
	}
	return nil
}
