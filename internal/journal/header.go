/* SPDX-License-Identifier: LGPL-2.1-or-later */

/*
 * Header layout ported from journal-def.h's header_contents_t. Unlike the
 * reference Go port, which overlays a Header struct directly onto the
 * mmap'd buffer via unsafe.Pointer, every field here is read and written
 * through encoding/binary so that the header survives living inside a
 * growable rebuild arena, where the backing array is replaced wholesale on
 * every growth.
 */
package journal

import "encoding/binary"

// Header is the decoded fixed-size header every journal file begins with.
type Header struct {
	Signature             [8]byte
	CompatibleFlags       uint32
	IncompatibleFlags     uint32
	State                 uint8
	FileID                [2]uint64
	MachineID             [2]uint64
	BootID                [2]uint64
	SeqnumID              [2]uint64
	HeaderSize            uint64
	ArenaSize             uint64
	DataHashTableOffset   uint64
	DataHashTableSize     uint64
	FieldHashTableOffset  uint64
	FieldHashTableSize    uint64
	TailObjectOffset      uint64
	NObjects              uint64
	NEntries              uint64
	TailEntrySeqnum       uint64
	HeadEntrySeqnum       uint64
	EntryArrayOffset      uint64
	HeadEntryRealtime     uint64
	TailEntryRealtime     uint64
	TailEntryMonotonic    uint64
	NData                 uint64
	NFields               uint64
	NTags                 uint64
	NEntryArrays          uint64
	DataHashChainDepth    uint64
	FieldHashChainDepth   uint64
}

func le64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
func le32(b []byte) uint64 { return uint64(binary.LittleEndian.Uint32(b)) }

func putLE64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func putLE32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// decodeHeader reads a Header out of the first HeaderSize bytes of data.
// Callers must ensure len(data) >= HeaderSize.
func decodeHeader(data []byte) Header {
	var h Header
	copy(h.Signature[:], data[0:8])
	h.CompatibleFlags = uint32(le32(data[8:12]))
	h.IncompatibleFlags = uint32(le32(data[12:16]))
	h.State = data[16]
	// data[17:24] is reserved padding.
	h.FileID[0] = le64(data[24:32])
	h.FileID[1] = le64(data[32:40])
	h.MachineID[0] = le64(data[40:48])
	h.MachineID[1] = le64(data[48:56])
	h.BootID[0] = le64(data[56:64])
	h.BootID[1] = le64(data[64:72])
	h.SeqnumID[0] = le64(data[72:80])
	h.SeqnumID[1] = le64(data[80:88])
	h.HeaderSize = le64(data[88:96])
	h.ArenaSize = le64(data[96:104])
	h.DataHashTableOffset = le64(data[104:112])
	h.DataHashTableSize = le64(data[112:120])
	h.FieldHashTableOffset = le64(data[120:128])
	h.FieldHashTableSize = le64(data[128:136])
	h.TailObjectOffset = le64(data[136:144])
	h.NObjects = le64(data[144:152])
	h.NEntries = le64(data[152:160])
	h.TailEntrySeqnum = le64(data[160:168])
	h.HeadEntrySeqnum = le64(data[168:176])
	h.EntryArrayOffset = le64(data[176:184])
	h.HeadEntryRealtime = le64(data[184:192])
	h.TailEntryRealtime = le64(data[192:200])
	h.TailEntryMonotonic = le64(data[200:208])
	// The remaining counters (n_data, n_fields, n_tags, n_entry_arrays, the
	// two hash chain depths) live past the base HeaderSize on files that
	// carry them; JOURNAL_HEADER_CONTAINS governs whether they're present.
	if h.HeaderSize >= 216 && len(data) >= 216 {
		h.NData = le64(data[208:216])
	}
	if h.HeaderSize >= 224 && len(data) >= 224 {
		h.NFields = le64(data[216:224])
	}
	if h.HeaderSize >= 232 && len(data) >= 232 {
		h.NTags = le64(data[224:232])
	}
	if h.HeaderSize >= 240 && len(data) >= 240 {
		h.NEntryArrays = le64(data[232:240])
	}
	if h.HeaderSize >= 248 && len(data) >= 248 {
		h.DataHashChainDepth = le64(data[240:248])
	}
	if h.HeaderSize >= 256 && len(data) >= 256 {
		h.FieldHashChainDepth = le64(data[248:256])
	}
	return h
}

// encodeHeader writes h into the first h.HeaderSize bytes of data. Callers
// must ensure len(data) >= h.HeaderSize.
func encodeHeader(data []byte, h Header) {
	copy(data[0:8], h.Signature[:])
	putLE32(data[8:12], h.CompatibleFlags)
	putLE32(data[12:16], h.IncompatibleFlags)
	data[16] = h.State
	for i := 17; i < 24; i++ {
		data[i] = 0
	}
	putLE64(data[24:32], h.FileID[0])
	putLE64(data[32:40], h.FileID[1])
	putLE64(data[40:48], h.MachineID[0])
	putLE64(data[48:56], h.MachineID[1])
	putLE64(data[56:64], h.BootID[0])
	putLE64(data[64:72], h.BootID[1])
	putLE64(data[72:80], h.SeqnumID[0])
	putLE64(data[80:88], h.SeqnumID[1])
	putLE64(data[88:96], h.HeaderSize)
	putLE64(data[96:104], h.ArenaSize)
	putLE64(data[104:112], h.DataHashTableOffset)
	putLE64(data[112:120], h.DataHashTableSize)
	putLE64(data[120:128], h.FieldHashTableOffset)
	putLE64(data[128:136], h.FieldHashTableSize)
	putLE64(data[136:144], h.TailObjectOffset)
	putLE64(data[144:152], h.NObjects)
	putLE64(data[152:160], h.NEntries)
	putLE64(data[160:168], h.TailEntrySeqnum)
	putLE64(data[168:176], h.HeadEntrySeqnum)
	putLE64(data[176:184], h.EntryArrayOffset)
	putLE64(data[184:192], h.HeadEntryRealtime)
	putLE64(data[192:200], h.TailEntryRealtime)
	putLE64(data[200:208], h.TailEntryMonotonic)
	if h.HeaderSize >= 216 && len(data) >= 216 {
		putLE64(data[208:216], h.NData)
	}
	if h.HeaderSize >= 224 && len(data) >= 224 {
		putLE64(data[216:224], h.NFields)
	}
	if h.HeaderSize >= 232 && len(data) >= 232 {
		putLE64(data[224:232], h.NTags)
	}
	if h.HeaderSize >= 240 && len(data) >= 240 {
		putLE64(data[232:240], h.NEntryArrays)
	}
	if h.HeaderSize >= 248 && len(data) >= 248 {
		putLE64(data[240:248], h.DataHashChainDepth)
	}
	if h.HeaderSize >= 256 && len(data) >= 256 {
		putLE64(data[248:256], h.FieldHashChainDepth)
	}
}

func (h Header) sealed() bool {
	return h.CompatibleFlags&HeaderCompatibleSealed != 0
}

func (h Header) keyedHash() bool {
	return h.IncompatibleFlags&HeaderIncompatibleKeyedHash != 0
}

// fullHeaderSize is the header size this implementation always writes on
// rebuild: every field through FieldHashChainDepth.
const fullHeaderSize = 256
