package lnwire

import (
	"testing"

	"github.com/lightningnetwork/lnd/tlv"
	"github.com/stretchr/testify/require"
)

// TestExtractRoutingSecret checks that a well-formed TLV record round-trips,
// and that anything else -- absent data, an unrelated record, or garbage --
// is treated as "no routing secret" rather than returned as an error.
func TestExtractRoutingSecret(t *testing.T) {
	t.Parallel()

	secret := []byte("0123456789abcdef0123456789abcdef")

	record := tlv.MakePrimitiveRecord(routingSecretType, &secret)
	stream, err := tlv.NewStream(record)
	require.NoError(t, err)

	var buf []byte
	bw := &byteSliceWriter{buf: &buf}
	require.NoError(t, stream.Encode(bw))

	extracted, ok := ExtraOpaqueData(buf).ExtractRoutingSecret()
	require.True(t, ok)
	require.Equal(t, secret, extracted)
}

// TestExtractRoutingSecretAbsent verifies an empty or unrelated TLV stream
// never fails the extraction; it must report simply that no secret was
// found.
func TestExtractRoutingSecretAbsent(t *testing.T) {
	t.Parallel()

	extracted, ok := ExtraOpaqueData(nil).ExtractRoutingSecret()
	require.False(t, ok)
	require.Nil(t, extracted)

	unrelated := uint64(42)
	record := tlv.MakePrimitiveRecord(tlv.Type(99), &unrelated)
	stream, err := tlv.NewStream(record)
	require.NoError(t, err)

	var buf []byte
	bw := &byteSliceWriter{buf: &buf}
	require.NoError(t, stream.Encode(bw))

	extracted, ok = ExtraOpaqueData(buf).ExtractRoutingSecret()
	require.False(t, ok)
	require.Nil(t, extracted)

	garbage, ok := ExtraOpaqueData([]byte{0xff, 0xff, 0xff}).ExtractRoutingSecret()
	require.False(t, ok)
	require.Nil(t, garbage)
}

// TestUpdateAddHTLCSigHashExcludesChanID verifies that two adds differing
// only in ChanID produce identical SigHashBytes, matching the invariant that
// channel id is contextual and not part of the signed state.
func TestUpdateAddHTLCSigHashExcludesChanID(t *testing.T) {
	t.Parallel()

	base := UpdateAddHTLC{
		ID:          1,
		Amount:      1000,
		PaymentHash: [32]byte{0x01},
		Expiry:      500000,
		ExtraData:   ExtraOpaqueData{},
	}

	a := base
	a.ChanID = ChannelID{0xaa}

	b := base
	b.ChanID = ChannelID{0xbb}

	require.Equal(t, a.SigHashBytes(), b.SigHashBytes())
}
