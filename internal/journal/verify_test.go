package journal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingSink is a Sink that appends every formatted message to a slice,
// for asserting what the core logs without depending on logrus.
type recordingSink struct {
	lines *[]string
}

func newRecordingSink() *recordingSink { return &recordingSink{lines: &[]string{}} }

func (s *recordingSink) record(level, format string, args ...any) {
	*s.lines = append(*s.lines, level+": "+fmt.Sprintf(format, args...))
}

func (s *recordingSink) Debugf(format string, args ...any) { s.record("debug", format, args...) }
func (s *recordingSink) Infof(format string, args ...any)  { s.record("info", format, args...) }
func (s *recordingSink) Warnf(format string, args ...any)  { s.record("warn", format, args...) }
func (s *recordingSink) Errorf(format string, args ...any) { s.record("error", format, args...) }
func (s *recordingSink) WithFields(map[string]any) Sink    { return s }

func validFixtureBytes(t *testing.T) []byte {
	t.Helper()
	out, err := Rebuild(threeEntryFixture())
	require.NoError(t, err)
	_, err = Parse(out)
	require.NoError(t, err)
	return out
}

// TestVerifyDetectsCountMismatch covers §8 scenario 5.
func TestVerifyDetectsCountMismatch(t *testing.T) {
	data := validFixtureBytes(t)
	buf := make([]byte, len(data))
	copy(buf, data)
	putLE64(buf[152:160], le64(buf[152:160])+1) // corrupt n_entries

	_, err := Parse(buf)
	require.Error(t, err)
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrCountMismatch, verr.Reason)
}

// TestVerifyDetectsChainCycle covers §8 scenario 6.
func TestVerifyDetectsChainCycle(t *testing.T) {
	data := validFixtureBytes(t)
	buf := make([]byte, len(data))
	copy(buf, data)

	j, err := Parse(buf)
	require.NoError(t, err)
	dataOffset := j.dataOffset[0]
	putLE64(buf[dataOffset+24:dataOffset+32], dataOffset) // self-loop next_hash_offset

	_, err = Parse(buf)
	require.Error(t, err)
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrChainCycle, verr.Reason)
}

// TestVerifyDetectsChecksumMismatch covers §8 scenario 8.
func TestVerifyDetectsChecksumMismatch(t *testing.T) {
	data := validFixtureBytes(t)
	buf := make([]byte, len(data))
	copy(buf, data)

	j, err := Parse(buf)
	require.NoError(t, err)
	dataOffset := j.dataOffset[0]
	putLE64(buf[dataOffset+16:dataOffset+24], j.Data[0].Hash+1) // corrupt stored hash

	_, err = Parse(buf)
	require.Error(t, err)
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrChecksumMismatch, verr.Reason)
}

func TestVerifyAcceptsValidRebuild(t *testing.T) {
	data := validFixtureBytes(t)
	j, err := Parse(data)
	require.NoError(t, err)
	require.NoError(t, Verify(j))
}

func TestVerifyRecordsEachCheckToSink(t *testing.T) {
	data := validFixtureBytes(t)
	j, err := Parse(data)
	require.NoError(t, err)

	sink := newRecordingSink()
	require.NoError(t, Verify(j, sink))

	require.NotEmpty(t, *sink.lines)
	require.Contains(t, (*sink.lines)[len(*sink.lines)-1], "info: verify: all")
}

func TestParseRecordsFailureToSink(t *testing.T) {
	data := validFixtureBytes(t)
	buf := make([]byte, len(data))
	copy(buf, data)
	putLE64(buf[152:160], le64(buf[152:160])+1) // corrupt n_entries

	sink := newRecordingSink()
	_, err := Parse(buf, sink)
	require.Error(t, err)

	found := false
	for _, line := range *sink.lines {
		if line == "error: parse failed: "+err.Error() {
			found = true
		}
	}
	require.True(t, found, "expected recording sink to capture the parse failure, got %v", *sink.lines)
}

func TestVerifySealingConsistency(t *testing.T) {
	h := syntheticHeader()
	j := &ParsedJournal{Header: h, raw: nil}
	require.NoError(t, verifySealing(j))

	j.Tags = []TagObject{{Seqnum: 1, Epoch: 1}}
	require.Error(t, verifySealing(j))
}
