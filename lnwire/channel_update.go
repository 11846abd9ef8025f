package lnwire

import "io"

// ChannelUpdate is the gossip message describing a hosted channel's routing
// policy, stored verbatim in HostedCommits.updateOpt (spec.md §3). It is
// validated against the host's node id by package discovery before being
// accepted (SPEC_FULL.md §5.1).
type ChannelUpdate struct {
	// Signature is the host's signature over DataToSign().
	Signature Sig64

	// ChainHash identifies the blockchain this channel update concerns.
	ChainHash [32]byte

	// ShortChannelID is the 64-bit truncated hosted-channel short id
	// (spec.md §6).
	ShortChannelID uint64

	// Timestamp is a Unix timestamp; newer updates supersede older ones.
	Timestamp uint32

	// MessageFlags and ChannelFlags encode direction and the presence of
	// the optional HtlcMaximumMsat field.
	MessageFlags uint8
	ChannelFlags uint8

	// CltvExpiryDelta, HtlcMinimumMsat, FeeBaseMsat, and
	// FeeProportionalMillionths are the routing policy's parameters.
	CltvExpiryDelta           uint16
	HtlcMinimumMsat           uint64
	FeeBaseMsat               uint32
	FeeProportionalMillionths uint32

	// HtlcMaximumMsat is optional; when nil, MessageFlags must not set
	// the "has max htlc" bit. It MUST be preserved through a
	// serialize/deserialize round trip (spec.md §9).
	HtlcMaximumMsat *uint64
}

const channelUpdateHasMaxHtlcFlag = 1 << 0

var _ Message = (*ChannelUpdate)(nil)

// DataToSign returns the portion of the message that the host signs, and
// that package discovery re-verifies before accepting the update.
func (c *ChannelUpdate) DataToSign() ([]byte, error) {
	var buf []byte
	bw := &byteSliceWriter{buf: &buf}

	if err := writeElements(bw,
		c.ChainHash[:],
		c.ShortChannelID,
		c.Timestamp,
		c.MessageFlags,
		c.ChannelFlags,
		c.CltvExpiryDelta,
		c.HtlcMinimumMsat,
		c.FeeBaseMsat,
		c.FeeProportionalMillionths,
	); err != nil {
		return nil, err
	}

	if c.HtlcMaximumMsat != nil {
		if err := writeElement(bw, *c.HtlcMaximumMsat); err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// Decode deserializes a serialized ChannelUpdate message.
func (c *ChannelUpdate) Decode(r io.Reader, pver uint32) error {
	if err := readElements(r,
		&c.Signature,
		c.ChainHash[:],
		&c.ShortChannelID,
		&c.Timestamp,
		&c.MessageFlags,
		&c.ChannelFlags,
		&c.CltvExpiryDelta,
		&c.HtlcMinimumMsat,
		&c.FeeBaseMsat,
		&c.FeeProportionalMillionths,
	); err != nil {
		return err
	}

	if c.MessageFlags&channelUpdateHasMaxHtlcFlag != 0 {
		var maxHtlc uint64
		if err := readElement(r, &maxHtlc); err != nil {
			return err
		}
		c.HtlcMaximumMsat = &maxHtlc
	} else {
		c.HtlcMaximumMsat = nil
	}

	return nil
}

// Encode serializes the target ChannelUpdate into w.
func (c *ChannelUpdate) Encode(w io.Writer, pver uint32) error {
	if c.HtlcMaximumMsat != nil {
		c.MessageFlags |= channelUpdateHasMaxHtlcFlag
	} else {
		c.MessageFlags &^= channelUpdateHasMaxHtlcFlag
	}

	if err := writeElements(w,
		c.Signature,
		c.ChainHash[:],
		c.ShortChannelID,
		c.Timestamp,
		c.MessageFlags,
		c.ChannelFlags,
		c.CltvExpiryDelta,
		c.HtlcMinimumMsat,
		c.FeeBaseMsat,
		c.FeeProportionalMillionths,
	); err != nil {
		return err
	}

	if c.HtlcMaximumMsat != nil {
		return writeElement(w, *c.HtlcMaximumMsat)
	}
	return nil
}

// MsgType returns the integer uniquely identifying this message type.
func (c *ChannelUpdate) MsgType() MessageType {
	return MsgChannelUpdate
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *ChannelUpdate) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}
