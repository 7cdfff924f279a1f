package dupkey

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct{ key, val []byte }{
		{[]byte("k"), []byte("v")},
		{[]byte(""), []byte("")},
		{[]byte{0x00, 0xff, 0x00}, []byte{0xff, 0x00, 0x01}},
		{[]byte("key with spaces"), bytes.Repeat([]byte{0x00}, 64)},
	}

	for _, c := range cases {
		composite, err := Append(nil, c.key, c.val)
		require.NoError(t, err)

		key, val, err := Split(composite)
		require.NoError(t, err)
		require.Equal(t, c.key, key)
		require.Equal(t, c.val, val)
	}
}

func TestPrefixCoversAllDuplicates(t *testing.T) {
	prefix, err := Prefix(nil, []byte("k"))
	require.NoError(t, err)

	for _, val := range [][]byte{{}, []byte("a"), {0x00}, {0xff}} {
		composite, err := Append(nil, []byte("k"), val)
		require.NoError(t, err)
		require.True(t, bytes.HasPrefix(composite, prefix))
	}

	other, err := Append(nil, []byte("l"), []byte("a"))
	require.NoError(t, err)
	require.False(t, bytes.HasPrefix(other, prefix))
}

func TestOrderingByKeyThenValue(t *testing.T) {
	pairs := [][2][]byte{
		{[]byte("a"), []byte("x")},
		{[]byte("a"), []byte("y")},
		{[]byte("a\x00b"), []byte("")},
		{[]byte("b"), []byte("a")},
	}

	var prev []byte
	for _, p := range pairs {
		composite, err := Append(nil, p[0], p[1])
		require.NoError(t, err)
		if prev != nil {
			require.Equal(t, -1, bytes.Compare(prev, composite))
		}
		prev = composite
	}
}
