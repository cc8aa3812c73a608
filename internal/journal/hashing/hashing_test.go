package hashing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup3KnownVectors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		require.Equal(t, uint64(0xdeadbeefdeadbeef), Lookup3(nil))
	})
	t.Run("deterministic", func(t *testing.T) {
		a := Lookup3([]byte("MESSAGE=hello-A"))
		b := Lookup3([]byte("MESSAGE=hello-A"))
		require.Equal(t, a, b)
	})
	t.Run("sensitive to a one-byte change", func(t *testing.T) {
		a := Lookup3([]byte("MESSAGE=hello-A"))
		b := Lookup3([]byte("MESSAGE=hello-B"))
		require.NotEqual(t, a, b)
	})
	t.Run("length boundary at twelve bytes", func(t *testing.T) {
		short := Lookup3([]byte("123456789012"))
		long := Lookup3([]byte("1234567890123"))
		require.NotEqual(t, short, long)
	})
}

func TestSipHashDeterministicPerKey(t *testing.T) {
	fileID := [2]uint64{0x0102030405060708, 0x1112131415161718}
	a := SipHash(fileID, []byte("MESSAGE"))
	b := SipHash(fileID, []byte("MESSAGE"))
	require.Equal(t, a, b)

	otherID := [2]uint64{0, 0}
	c := SipHash(otherID, []byte("MESSAGE"))
	require.NotEqual(t, a, c)
}

func TestHashDispatch(t *testing.T) {
	fileID := [2]uint64{1, 2}
	require.Equal(t, SipHash(fileID, []byte("x")), Hash(true, fileID, []byte("x")))
	require.Equal(t, Lookup3([]byte("x")), Hash(false, fileID, []byte("x")))
}
