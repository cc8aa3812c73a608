package journal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func syntheticHeader() Header {
	return Header{
		Signature: [8]byte{'L', 'P', 'K', 'S', 'H', 'H', 'R', 'H'},
		FileID:    [2]uint64{0x1111, 0x2222},
		MachineID: [2]uint64{0x3333, 0x4444},
		BootID:    [2]uint64{0x5555, 0x6666},
		SeqnumID:  [2]uint64{0x7777, 0x8888},
	}
}

func mustRebuild(t *testing.T, f *FilteredJournal) []byte {
	t.Helper()
	out, err := Rebuild(f)
	require.NoError(t, err)
	return out
}

// TestRebuildEmptyJournal covers §8 scenario 1: header + empty arena.
func TestRebuildEmptyJournal(t *testing.T) {
	f := &FilteredJournal{Header: syntheticHeader()}
	out := mustRebuild(t, f)

	j, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, uint64(0), j.Header.NEntries)
	require.Equal(t, j.Header.FieldHashTableOffset-ObjectHeaderSize, j.Header.TailObjectOffset)
	require.Len(t, j.Entries, 0)
}

func threeEntryFixture() *FilteredJournal {
	h := syntheticHeader()
	return &FilteredJournal{
		Header: h,
		Fields: []FieldObject{{Payload: []byte("MESSAGE")}},
		Data: []DataObject{
			{Payload: []byte("MESSAGE=hello-A")},
			{Payload: []byte("MESSAGE=hello-B")},
			{Payload: []byte("MESSAGE=hello-C")},
		},
		Entries: []EntryObject{
			{Seqnum: 1, Realtime: 1000, Monotonic: 100, BootID: h.BootID, DataIndexes: []int{0}},
			{Seqnum: 2, Realtime: 2000, Monotonic: 200, BootID: h.BootID, DataIndexes: []int{1}},
			{Seqnum: 3, Realtime: 3000, Monotonic: 300, BootID: h.BootID, DataIndexes: []int{2}},
		},
	}
}

// TestRebuildThreeEntries covers §8 scenario 2.
func TestRebuildThreeEntries(t *testing.T) {
	fixture := threeEntryFixture()
	out := mustRebuild(t, fixture)

	parsed, err := Parse(out)
	require.NoError(t, err)
	require.Len(t, parsed.Entries, 3)
	require.Len(t, parsed.Data, 3)
	require.Len(t, parsed.Fields, 1)

	filtered, err := Filter(parsed, FilterSpec{FieldValues: []string{"hello-B"}, Policy: DropAll})
	require.NoError(t, err)
	require.Len(t, filtered.Entries, 2)
	require.Len(t, filtered.Data, 2)
	require.Len(t, filtered.Fields, 1)

	out2 := mustRebuild(t, filtered)
	reparsed, err := Parse(out2)
	require.NoError(t, err)
	require.Len(t, reparsed.Entries, 2)
	require.Equal(t, uint64(1), reparsed.Entries[0].Seqnum)
	require.Equal(t, uint64(2), reparsed.Entries[1].Seqnum)
}

// TestRebuildDeletionCorrectness covers the §8 deletion-correctness property:
// every surviving entry's Data payload must not contain the dropped value.
func TestRebuildDeletionCorrectness(t *testing.T) {
	fixture := threeEntryFixture()
	out := mustRebuild(t, fixture)
	parsed, err := Parse(out)
	require.NoError(t, err)

	filtered, err := Filter(parsed, FilterSpec{FieldValues: []string{"hello-B"}, Policy: DropAll})
	require.NoError(t, err)
	out2 := mustRebuild(t, filtered)
	reparsed, err := Parse(out2)
	require.NoError(t, err)

	for _, e := range reparsed.Entries {
		for _, di := range e.DataIndexes {
			require.NotContains(t, string(reparsed.Data[di].Payload), "hello-B")
		}
	}
}

// TestRebuildIdempotence covers the §8 idempotence property: rebuilding an
// already-rebuilt-and-filtered journal with an empty spec is a fixed point.
func TestRebuildIdempotence(t *testing.T) {
	fixture := threeEntryFixture()
	out := mustRebuild(t, fixture)
	parsed, err := Parse(out)
	require.NoError(t, err)

	filtered, err := Filter(parsed, FilterSpec{FieldValues: []string{"hello-B"}, Policy: DropAll})
	require.NoError(t, err)
	once := mustRebuild(t, filtered)

	reparsed, err := Parse(once)
	require.NoError(t, err)
	refiltered, err := Filter(reparsed, FilterSpec{})
	require.NoError(t, err)
	twice := mustRebuild(t, refiltered)

	require.Equal(t, once, twice)
}

// TestRebuildAlignment covers the §8 alignment property.
func TestRebuildAlignment(t *testing.T) {
	out := mustRebuild(t, threeEntryFixture())
	j, err := Parse(out)
	require.NoError(t, err)
	require.True(t, valid8(j.Header.DataHashTableOffset))
	require.True(t, valid8(j.Header.FieldHashTableOffset))
	require.True(t, valid8(j.Header.EntryArrayOffset))
	require.True(t, valid8(j.Header.TailObjectOffset))
	for _, off := range j.entryOffset {
		require.True(t, valid8(off))
	}
}

// TestRebuildHashChainTotality covers the §8 hash-chain-totality property:
// every Data object must be reachable by walking its own bucket chain.
func TestRebuildHashChainTotality(t *testing.T) {
	out := mustRebuild(t, threeEntryFixture())
	j, err := Parse(out)
	require.NoError(t, err)

	for i, d := range j.Data {
		bucket := d.Hash % DataHashTableBuckets
		bucketBase := j.Header.DataHashTableOffset + bucket*HashItemSize
		found := false
		for cur := le64(j.raw[bucketBase : bucketBase+8]); cur != 0; cur = le64(j.raw[cur+24 : cur+32]) {
			if cur == j.dataOffset[i] {
				found = true
				break
			}
		}
		require.True(t, found, "data object %d not reachable via its bucket chain", i)
	}
}

// TestRebuildRefusesSealed covers §8 scenario 7.
func TestRebuildRefusesSealed(t *testing.T) {
	h := syntheticHeader()
	h.CompatibleFlags |= HeaderCompatibleSealed
	f := &FilteredJournal{Header: h}
	_, err := Rebuild(f)
	require.Error(t, err)
	var rerr *RebuildError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrUnimplementedSealing, rerr.Reason)
}

// TestRebuildRecordsToSink covers SPEC_FULL.md §2.1's recording-sink
// requirement for the rebuild path.
func TestRebuildRecordsToSink(t *testing.T) {
	fixture := threeEntryFixture()
	sink := newRecordingSink()
	out, err := Rebuild(fixture, sink)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	require.NotEmpty(t, *sink.lines)
	last := (*sink.lines)[len(*sink.lines)-1]
	require.Contains(t, last, "info: rebuilt journal")
}

// TestRebuildKeyedHashRoundTrip covers §8 scenario 3.
func TestRebuildKeyedHashRoundTrip(t *testing.T) {
	h := syntheticHeader()
	h.IncompatibleFlags |= HeaderIncompatibleKeyedHash
	f := &FilteredJournal{
		Header:  h,
		Fields:  []FieldObject{{Payload: []byte("MESSAGE")}},
		Data:    []DataObject{{Payload: []byte("MESSAGE=hello-A")}},
		Entries: []EntryObject{{Seqnum: 1, Realtime: 1, BootID: h.BootID, DataIndexes: []int{0}}},
	}
	out := mustRebuild(t, f)
	j, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, h.FileID, j.Header.FileID)
	require.True(t, j.Header.keyedHash())

	out2 := mustRebuild(t, &FilteredJournal{Header: j.Header, Fields: j.Fields, Data: j.Data, Entries: j.Entries})
	j2, err := Parse(out2)
	require.NoError(t, err)
	require.Equal(t, j.Fields[0].Hash, j2.Fields[0].Hash)
	require.Equal(t, j.Data[0].Hash, j2.Data[0].Hash)
}
