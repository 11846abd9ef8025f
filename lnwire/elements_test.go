package lnwire

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

// TestVarBytesRoundTrip checks the length-prefixed variable byte codec used
// for TLV extra data and other variable-length fields.
func TestVarBytesRoundTrip(t *testing.T) {
	t.Parallel()

	cases := [][]byte{
		nil,
		{},
		[]byte("hello hosted channel"),
		bytes.Repeat([]byte{0xaa}, 1000),
	}

	for _, c := range cases {
		var buf bytes.Buffer
		require.NoError(t, writeVarBytes(&buf, c))

		out, err := readVarBytes(&buf)
		require.NoError(t, err)
		require.Equal(t, len(c), len(out))
		require.Equal(t, c, out[:len(c)])
	}
}

// TestPubKeyRoundTrip checks the fixed 33-byte compressed public key codec.
func TestPubKeyRoundTrip(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writePubKey(&buf, priv.PubKey()))

	out, err := readPubKey(&buf)
	require.NoError(t, err)
	require.True(t, priv.PubKey().IsEqual(out))
}

// TestWriteElementUnknownType asserts writeElement refuses to silently drop
// a type it doesn't know how to encode.
func TestWriteElementUnknownType(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := writeElement(&buf, struct{}{})
	require.Error(t, err)
}
