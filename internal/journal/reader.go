/* SPDX-License-Identifier: LGPL-2.1-or-later */

/*
 * Reader, ported from SdjournalReader in the reference Go port
 * (Open/_loadEntryArrayObject/_next_entry_offset/_loadDataOffsetsFromEntry/
 * _loadData) and from input_journal_t::parse() in the C++ original. The
 * method breakdown is the same three-step walk (header, object enumeration
 * from header_size to tail_object_offset, per-entry data offsets); every
 * field access goes through header.go's
 * bounds-checked little-endian helpers instead of unsafe.Pointer, per §9.
 */
package journal

// Parse decodes data into a ParsedJournal and verifies it before returning,
// matching §4.1: "After parsing, it invokes the verifier." sink receives
// diagnostic events along the way; it defaults to a no-op if omitted.
func Parse(data []byte, sinks ...Sink) (j *ParsedJournal, err error) {
	sink := resolveSink(sinks)
	sink.Debugf("parsing journal (%d bytes)", len(data))
	defer func() {
		if err != nil {
			sink.Errorf("parse failed: %v", err)
		}
	}()

	if len(data) < 8 || string(data[0:8]) != HeaderSignature {
		return nil, newParseError(ErrBadMagic, "first 8 bytes are not %q", HeaderSignature)
	}
	if uint64(len(data)) < HeaderSize {
		return nil, newParseError(ErrTruncatedHeader, "file is %d bytes, shorter than the %d-byte minimum header", len(data), HeaderSize)
	}

	h := decodeHeader(data)
	if h.HeaderSize < HeaderSize || h.HeaderSize > uint64(len(data)) {
		return nil, newParseError(ErrTruncatedHeader, "header_size %d out of range for a %d-byte file", h.HeaderSize, len(data))
	}
	if err := checkHeaderOffsets(h, data); err != nil {
		return nil, err
	}

	j = &ParsedJournal{Header: h, raw: data}

	type pendingEntry struct {
		index int
		items []EntryItem
	}
	var pending []pendingEntry

	offset := h.HeaderSize
	objectCount := uint64(0)
	for h.TailObjectOffset != 0 {
		oh, err := decodeObjectHeader(data, offset)
		if err != nil {
			return nil, err
		}
		if oh.Size < ObjectHeaderSize {
			return nil, newParseError(ErrBadOffset, "object at %d has size %d smaller than the object header", offset, oh.Size)
		}
		if offset+oh.Size > uint64(len(data)) {
			return nil, newParseError(ErrBadOffset, "object at %d (size %d) exceeds the file", offset, oh.Size)
		}
		if compressionFlag(oh.Flags) != 0 {
			return nil, newParseError(ErrUnsupportedCompression, "object at %d carries a compression flag", offset)
		}

		switch oh.Type {
		case ObjectData:
			d, err := decodeDataObject(data, offset, oh)
			if err != nil {
				return nil, err
			}
			j.Data = append(j.Data, d)
			j.dataOffset = append(j.dataOffset, offset)
		case ObjectField:
			f, err := decodeFieldObject(data, offset, oh)
			if err != nil {
				return nil, err
			}
			j.Fields = append(j.Fields, f)
			j.fieldOffset = append(j.fieldOffset, offset)
		case ObjectEntry:
			e, items, err := decodeEntryObject(data, offset, oh)
			if err != nil {
				return nil, err
			}
			idx := len(j.Entries)
			j.Entries = append(j.Entries, e)
			j.entryOffset = append(j.entryOffset, offset)
			pending = append(pending, pendingEntry{index: idx, items: items})
		case ObjectTag:
			t, err := decodeTagObject(data, offset, oh)
			if err != nil {
				return nil, err
			}
			j.Tags = append(j.Tags, t)
		case ObjectDataHashTable, ObjectFieldHashTable, ObjectEntryArray:
			// Derived state; not materialized as value objects (§4.1).
		default:
			return nil, newParseError(ErrBadOffset, "unknown object type %d at offset %d", oh.Type, offset)
		}

		objectCount++
		tail := offset
		offset = align8(offset + oh.Size)
		if tail == h.TailObjectOffset {
			break
		}
		if offset <= tail || offset >= uint64(len(data)) {
			return nil, newParseError(ErrBadOffset, "object chain from %d never reaches tail_object_offset %d", h.HeaderSize, h.TailObjectOffset)
		}
	}
	j.objectCount = objectCount

	dataIndexByOffset := make(map[uint64]int, len(j.dataOffset))
	for idx, off := range j.dataOffset {
		dataIndexByOffset[off] = idx
	}

	j.itemHashes = make([][]uint64, len(j.Entries))
	for _, p := range pending {
		indexes := make([]int, 0, len(p.items))
		hashes := make([]uint64, 0, len(p.items))
		for _, item := range p.items {
			di, ok := dataIndexByOffset[item.ObjectOffset]
			if !ok {
				return nil, newParseError(ErrBadOffset, "entry item references unknown object at offset %d", item.ObjectOffset)
			}
			indexes = append(indexes, di)
			hashes = append(hashes, item.Hash)
			if prefix := j.Data[di].fieldPrefix(); prefix != "" {
				for fi, f := range j.Fields {
					if f.equalFold(prefix) {
						hashes = append(hashes, j.Fields[fi].Hash)
						break
					}
				}
			}
		}
		j.Entries[p.index].DataIndexes = indexes
		j.itemHashes[p.index] = hashes
	}

	if err := Verify(j, sink); err != nil {
		return nil, err
	}
	sink.Infof("parsed journal: %d objects, %d entries, %d data, %d fields", j.objectCount, len(j.Entries), len(j.Data), len(j.Fields))
	return j, nil
}

// checkHeaderOffsets enforces invariants 2 and 3 against the header's
// offset/size fields.
func checkHeaderOffsets(h Header, data []byte) error {
	fileSize := uint64(len(data))
	check := func(name string, offset, size uint64) error {
		if offset == 0 {
			return nil
		}
		if !valid8(offset) {
			return newParseError(ErrBadOffset, "%s offset %d is not 8-byte aligned", name, offset)
		}
		if offset+size > fileSize {
			return newParseError(ErrBadOffset, "%s offset %d + size %d exceeds file size %d", name, offset, size, fileSize)
		}
		return nil
	}
	if err := check("data_hash_table", h.DataHashTableOffset, h.DataHashTableSize); err != nil {
		return err
	}
	if err := check("field_hash_table", h.FieldHashTableOffset, h.FieldHashTableSize); err != nil {
		return err
	}
	if err := check("entry_array", h.EntryArrayOffset, 0); err != nil {
		return err
	}
	if err := check("tail_object", h.TailObjectOffset, 0); err != nil {
		return err
	}
	// Each hash table offset must point just past the object header of a
	// hash table object of the matching kind.
	tables := []struct {
		name   string
		offset uint64
		kind   uint8
	}{
		{"data_hash_table", h.DataHashTableOffset, ObjectDataHashTable},
		{"field_hash_table", h.FieldHashTableOffset, ObjectFieldHashTable},
	}
	for _, t := range tables {
		if t.offset != 0 && (t.offset < h.HeaderSize+ObjectHeaderSize || data[t.offset-ObjectHeaderSize] != t.kind) {
			return newParseError(ErrBadOffset, "%s offset %d does not point at the items of a hash table object", t.name, t.offset)
		}
	}
	return nil
}

func decodeDataObject(data []byte, offset uint64, oh objectHeader) (DataObject, error) {
	if offset+DataObjectSize > uint64(len(data)) {
		return DataObject{}, newParseError(ErrBadOffset, "data object at %d truncated", offset)
	}
	b := data[offset:]
	if oh.Size < DataObjectSize {
		return DataObject{}, newParseError(ErrBadOffset, "data object at %d smaller than its fixed fields", offset)
	}
	payload := data[offset+DataObjectSize : offset+oh.Size]
	return DataObject{
		Flags:            oh.Flags,
		Hash:             le64(b[16:24]),
		NextHashOffset:   le64(b[24:32]),
		NextFieldOffset:  le64(b[32:40]),
		EntryOffset:      le64(b[40:48]),
		EntryArrayOffset: le64(b[48:56]),
		NEntry:           le64(b[56:64]),
		Payload:          payload,
	}, nil
}

func decodeFieldObject(data []byte, offset uint64, oh objectHeader) (FieldObject, error) {
	if offset+FieldObjectSize > uint64(len(data)) || oh.Size < FieldObjectSize {
		return FieldObject{}, newParseError(ErrBadOffset, "field object at %d truncated", offset)
	}
	b := data[offset:]
	payload := data[offset+FieldObjectSize : offset+oh.Size]
	return FieldObject{
		Flags:          oh.Flags,
		Hash:           le64(b[16:24]),
		NextHashOffset: le64(b[24:32]),
		HeadDataOffset: le64(b[32:40]),
		Payload:        payload,
	}, nil
}

func decodeEntryObject(data []byte, offset uint64, oh objectHeader) (EntryObject, []EntryItem, error) {
	if offset+EntryObjectSize > uint64(len(data)) || oh.Size < EntryObjectSize {
		return EntryObject{}, nil, newParseError(ErrBadOffset, "entry object at %d truncated", offset)
	}
	b := data[offset:]
	e := EntryObject{
		Flags:     oh.Flags,
		Seqnum:    le64(b[16:24]),
		Realtime:  le64(b[24:32]),
		Monotonic: le64(b[32:40]),
		BootID:    [2]uint64{le64(b[40:48]), le64(b[48:56])},
		XorHash:   le64(b[56:64]),
	}
	rest := oh.Size - EntryObjectSize
	if rest%EntryItemSize != 0 {
		return EntryObject{}, nil, newParseError(ErrBadOffset, "entry object at %d has item array not a multiple of %d bytes", offset, EntryItemSize)
	}
	count := rest / EntryItemSize
	items := make([]EntryItem, count)
	base := offset + EntryObjectSize
	for i := uint64(0); i < count; i++ {
		ib := data[base+i*EntryItemSize:]
		items[i] = EntryItem{
			ObjectOffset: le64(ib[0:8]),
			Hash:         le64(ib[8:16]),
		}
	}
	return e, items, nil
}

func decodeTagObject(data []byte, offset uint64, oh objectHeader) (TagObject, error) {
	if offset+TagObjectSize > uint64(len(data)) || oh.Size < TagObjectSize {
		return TagObject{}, newParseError(ErrBadOffset, "tag object at %d truncated", offset)
	}
	b := data[offset:]
	var t TagObject
	t.Seqnum = le64(b[16:24])
	t.Epoch = le64(b[24:32])
	copy(t.Tag[:], b[32:32+TagLength])
	return t, nil
}
