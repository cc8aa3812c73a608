/* SPDX-License-Identifier: LGPL-2.1-or-later */
package journal

// Sink is the abstract diagnostic interface the core logs through (§1: "the
// core emits diagnostic events to an abstract sink"). cmd/journalzap
// implements it over logrus; tests use a recording sink.
type Sink interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	WithFields(fields map[string]any) Sink
}

// noopSink discards everything; used when a caller doesn't supply one.
type noopSink struct{}

func (noopSink) Debugf(string, ...any)          {}
func (noopSink) Infof(string, ...any)           {}
func (noopSink) Warnf(string, ...any)           {}
func (noopSink) Errorf(string, ...any)          {}
func (noopSink) WithFields(map[string]any) Sink { return noopSink{} }

// resolveSink returns the first non-nil sink supplied, or noopSink{} if none
// was given; every exported entry point takes its Sink this way so existing
// zero-argument call sites keep compiling.
func resolveSink(sinks []Sink) Sink {
	for _, s := range sinks {
		if s != nil {
			return s
		}
	}
	return noopSink{}
}

// ParsedJournal is the immutable decoded form of a journal file, produced by
// Parse and consumed by Verify and Filter. Data, Fields, Entries and Tags
// are decoded value objects; the hash tables and entry arrays are not
// materialized here (§4.1) — they are derived state the verifier recomputes
// on demand from raw.
type ParsedJournal struct {
	Header Header

	Data    []DataObject
	Fields  []FieldObject
	Entries []EntryObject
	Tags    []TagObject

	// dataOffset/fieldOffset/entryOffset record each decoded value
	// object's on-disk offset, parallel to Data/Fields/Entries, so the
	// verifier can re-derive hash-table and entry-array membership
	// without re-parsing.
	dataOffset  []uint64
	fieldOffset []uint64
	entryOffset []uint64

	// itemHashes[i] holds, for Entries[i], the hash recorded against
	// every Data item it references plus the hash of each such Data's
	// owning Field, per the Filter driver's HasItemHash contract.
	itemHashes [][]uint64

	raw []byte // the full arena byte image this journal was parsed from

	objectCount uint64 // objects visited walking header_size..tail_object_offset
}

// FileSize is the size of the backing byte buffer this journal was parsed
// from.
func (j *ParsedJournal) FileSize() uint64 { return uint64(len(j.raw)) }

// Policy selects how the filter driver treats an entry that matches one of
// the requested field names or values.
type Policy int

const (
	PrintAll Policy = iota
	PrintMatches
	ConfirmEach
	DropAll
)

// ConfirmResult is returned by a FilterSpec.ConfirmCallback under ConfirmEach.
type ConfirmResult int

const (
	Keep ConfirmResult = iota
	Drop
)

// FilterSpec describes a filtering request: which fields/values identify
// entries to remove, and what policy governs ambiguous/interactive cases.
type FilterSpec struct {
	FieldNames      []string
	FieldValues     []string
	Policy          Policy
	ConfirmCallback func(EntryObject) ConfirmResult
}

// FilteredJournal is the output of Filter: the subset of entries retained
// after applying a FilterSpec, plus enough of the original header to drive
// Rebuild.
type FilteredJournal struct {
	Header   Header
	Entries  []EntryObject
	Data     []DataObject
	Fields   []FieldObject
}
