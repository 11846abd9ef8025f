package lnwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMessageRoundTrip verifies that every hosted-channel message type
// survives a WriteMessage/ReadMessage round trip unchanged.
func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	maxUint64 := func() *uint64 {
		v := uint64(4294967295)
		return &v
	}

	msgs := []Message{
		&InvokeHostedChannel{
			ChainHash:          [32]byte{0x01},
			RefundScriptPubKey: []byte{0x76, 0xa9, 0x14},
			Secret:             []byte("shared-secret"),
		},
		&InitHostedChannel{
			MaxHtlcValueInFlight: 100000000,
			HtlcMinimum:          1000,
			MaxAcceptedHtlcs:     30,
			ChannelCapacity:      1000000000,
			InitialClientBalance: 500000000,
			Features:             []uint16{0, 1, 2},
		},
		&LastCrossSignedState{
			IsHost:             false,
			RefundScriptPubKey: []byte{0x00, 0x14},
			InitHostedChannel: InitHostedChannel{
				MaxHtlcValueInFlight: 100000000,
				HtlcMinimum:          1000,
				MaxAcceptedHtlcs:     30,
				ChannelCapacity:      1000000000,
				InitialClientBalance: 500000000,
				Features:             []uint16{0},
			},
			BlockDay:      19000,
			LocalBalance:  400000000,
			RemoteBalance: 600000000,
			LocalUpdates:  3,
			RemoteUpdates: 2,
			IncomingHtlcs: []*UpdateAddHTLC{
				{
					ChanID:      ChannelID{0x02},
					ID:          1,
					Amount:      10000,
					PaymentHash: [32]byte{0xaa},
					Expiry:      700000,
					ExtraData:   ExtraOpaqueData{},
				},
			},
			OutgoingHtlcs:    []*UpdateAddHTLC{},
			LocalSigOfRemote: Sig64{0x11},
			RemoteSigOfLocal: Sig64{0x22},
		},
		&StateUpdate{
			BlockDay:             19000,
			LocalUpdates:         3,
			RemoteUpdates:        2,
			LocalSigOfRemoteLCSS: Sig64{0x33},
		},
		&StateOverride{
			BlockDay:              19001,
			LocalBalance:          600000000,
			LocalUpdates:          4,
			RemoteUpdates:         3,
			LocalSigOfRemoteLCSS:  Sig64{0x44},
		},
		&ResizeChannel{
			NewCapacity: 2000000000,
			ClientSig:   Sig64{0x55},
		},
		&Fail{
			ChanID: ChannelID{0x03},
			Data:   []byte("0001"),
		},
		&Warning{
			ChanID: ChannelID{0x04},
			Data:   []byte("resync in progress"),
		},
		&AskBrandingInfo{
			ChanID: ChannelID{0x05},
		},
		&HostedChannelBranding{
			ChanID:      ChannelID{0x06},
			Rgb:         [3]byte{0xff, 0x00, 0x00},
			PngIcon:     []byte{0x89, 0x50, 0x4e, 0x47},
			ContactInfo: []byte("admin@example.com"),
		},
		&QueryPublicHostedChannels{
			ChainHash: [32]byte{0x07},
		},
		&ReplyPublicHostedChannelsEnd{
			ChainHash: [32]byte{0x08},
		},
		&QueryPreimages{
			PaymentHashes: [][32]byte{{0x09}, {0x0a}},
		},
		&ReplyPreimages{
			Preimages: [][32]byte{{0x0b}},
		},
		&AnnouncementSignature{
			ChanID:         ChannelID{0x0c},
			ShortChannelID: 123456,
			NodeSignature:  Sig64{0x66},
		},
		&ChannelUpdate{
			Signature:                 Sig64{0x77},
			ChainHash:                 [32]byte{0x0d},
			ShortChannelID:             654321,
			Timestamp:                 1700000000,
			ChannelFlags:              1,
			CltvExpiryDelta:           144,
			HtlcMinimumMsat:           1000,
			FeeBaseMsat:               1000,
			FeeProportionalMillionths: 100,
			HtlcMaximumMsat:           maxUint64(),
		},
		&ChannelUpdate{
			Signature:                 Sig64{0x88},
			ChainHash:                 [32]byte{0x0e},
			ShortChannelID:             654322,
			Timestamp:                 1700000001,
			CltvExpiryDelta:           144,
			HtlcMinimumMsat:           1000,
			FeeBaseMsat:               1000,
			FeeProportionalMillionths: 100,
			HtlcMaximumMsat:           nil,
		},
		&UpdateAddHTLC{
			ChanID:      ChannelID{0x0f},
			ID:          7,
			Amount:      50000,
			PaymentHash: [32]byte{0x10},
			Expiry:      710000,
			ExtraData:   ExtraOpaqueData{},
		},
		&UpdateFulfillHTLC{
			ChanID:          ChannelID{0x11},
			ID:              7,
			PaymentPreimage: [32]byte{0x12},
		},
		&UpdateFailHTLC{
			ChanID: ChannelID{0x13},
			ID:     7,
			Reason: []byte{0x00, 0x01, 0x02},
		},
		&UpdateFailMalformedHTLC{
			ChanID:       ChannelID{0x14},
			ID:           7,
			ShaOnionBlob: [32]byte{0x15},
			FailureCode:  0x2002,
		},
	}

	for _, msg := range msgs {
		msg := msg

		var buf bytes.Buffer
		_, err := WriteMessage(&buf, msg, 0)
		require.NoError(t, err)

		out, err := ReadMessage(&buf, 0)
		require.NoError(t, err)

		require.Equal(t, msg, out)
	}
}

// TestReadMessageUnknownType asserts that an unrecognized message type is
// surfaced as an UnknownMessage error rather than silently ignored.
func TestReadMessageUnknownType(t *testing.T) {
	t.Parallel()

	_, err := makeEmptyMessage(MessageType(0))
	require.Error(t, err)
}

// TestWriteMessageEnforcesMaxPayloadLength ensures a message that fits its
// own declared MaxPayloadLength is written, while one whose encoded form
// exceeds the payload limit is rejected before being written to the wire.
func TestWriteMessageEnforcesMaxPayloadLength(t *testing.T) {
	t.Parallel()

	msg := &ResizeChannel{
		NewCapacity: 1000,
		ClientSig:   Sig64{0x01},
	}
	require.EqualValues(t, 72, msg.MaxPayloadLength(0))

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, msg, 0)
	require.NoError(t, err)

	oversized := &Fail{Data: make([]byte, MaxMessagePayload)}
	_, err = WriteMessage(&buf, oversized, 0)
	require.Error(t, err)
}
