package journal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitFieldValue(t *testing.T) {
	t.Run("simple", func(t *testing.T) {
		k, v, ok := splitFieldValue([]byte("MESSAGE=hello world"))
		require.True(t, ok)
		require.Equal(t, "MESSAGE", k)
		require.Equal(t, "hello world", v)
	})
	t.Run("value contains equals", func(t *testing.T) {
		k, v, ok := splitFieldValue([]byte("QUERY=a=b=c"))
		require.True(t, ok)
		require.Equal(t, "QUERY", k)
		require.Equal(t, "a=b=c", v)
	})
	t.Run("leading non-printable byte before key", func(t *testing.T) {
		payload := append([]byte{0x01}, []byte("CODE=7")...)
		k, v, ok := splitFieldValue(payload)
		require.True(t, ok)
		require.Equal(t, "CODE", k)
		require.Equal(t, "7", v)
	})
	t.Run("no separator", func(t *testing.T) {
		_, _, ok := splitFieldValue([]byte("NOEQUALSIGN"))
		require.False(t, ok)
	})
	t.Run("empty key", func(t *testing.T) {
		_, _, ok := splitFieldValue([]byte("=value"))
		require.False(t, ok)
	})
}

func TestFilterDropAllByFieldValue(t *testing.T) {
	out := mustRebuild(t, threeEntryFixture())
	j, err := Parse(out)
	require.NoError(t, err)

	filtered, err := Filter(j, FilterSpec{FieldValues: []string{"hello-A"}, Policy: DropAll})
	require.NoError(t, err)
	require.Len(t, filtered.Entries, 2)
	for _, e := range filtered.Entries {
		for _, di := range e.DataIndexes {
			require.NotContains(t, string(filtered.Data[di].Payload), "hello-A")
		}
	}
}

func TestFilterPrintMatchesKeepsOnlyMatches(t *testing.T) {
	out := mustRebuild(t, threeEntryFixture())
	j, err := Parse(out)
	require.NoError(t, err)

	filtered, err := Filter(j, FilterSpec{FieldValues: []string{"hello-A"}, Policy: PrintMatches})
	require.NoError(t, err)
	require.Len(t, filtered.Entries, 1)
}

func TestFilterPrintAllKeepsEverything(t *testing.T) {
	out := mustRebuild(t, threeEntryFixture())
	j, err := Parse(out)
	require.NoError(t, err)

	filtered, err := Filter(j, FilterSpec{FieldValues: []string{"hello-A"}, Policy: PrintAll})
	require.NoError(t, err)
	require.Len(t, filtered.Entries, 3)
}

func TestFilterConfirmEachAsksOnlyForMatches(t *testing.T) {
	out := mustRebuild(t, threeEntryFixture())
	j, err := Parse(out)
	require.NoError(t, err)

	var asked []uint64
	filtered, err := Filter(j, FilterSpec{
		FieldValues: []string{"hello-B"},
		Policy:      ConfirmEach,
		ConfirmCallback: func(e EntryObject) ConfirmResult {
			asked = append(asked, e.Seqnum)
			return Drop
		},
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, asked)
	require.Len(t, filtered.Entries, 2)
}

func TestFilterByFieldName(t *testing.T) {
	out := mustRebuild(t, threeEntryFixture())
	j, err := Parse(out)
	require.NoError(t, err)

	filtered, err := Filter(j, FilterSpec{FieldNames: []string{"MESSAGE"}, Policy: DropAll})
	require.NoError(t, err)
	require.Len(t, filtered.Entries, 0)
}

func TestLookupFieldAndValue(t *testing.T) {
	out := mustRebuild(t, threeEntryFixture())
	j, err := Parse(out)
	require.NoError(t, err)

	require.NoError(t, LookupField(j, "MESSAGE"))
	require.Error(t, LookupField(j, "NOSUCHFIELD"))

	require.NoError(t, LookupFieldValue(j, "hello-A"))
	require.Error(t, LookupFieldValue(j, "nonexistent"))
}
