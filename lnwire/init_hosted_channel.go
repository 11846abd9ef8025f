package lnwire

import (
	"io"
)

// InitHostedChannel carries the immutable parameters of a hosted channel as
// proposed by the host in response to an InvokeHostedChannel (spec.md §3,
// §4.5). These values are folded unchanged into every LCSS signed for the
// lifetime of the channel.
type InitHostedChannel struct {
	// MaxHtlcValueInFlight is the maximum aggregate value, in
	// millisatoshi, that may be in-flight across all HTLCs at once.
	MaxHtlcValueInFlight uint64

	// HtlcMinimum is the minimum value, in millisatoshi, of any single
	// HTLC.
	HtlcMinimum uint64

	// MaxAcceptedHtlcs bounds |incomingHtlcs| + |outgoingHtlcs|.
	MaxAcceptedHtlcs uint16

	// ChannelCapacity is the total notional capacity of the channel, in
	// millisatoshi. Invariant I1 requires local + remote + in-flight to
	// always equal this value.
	ChannelCapacity uint64

	// InitialClientBalance is the client's balance at channel creation.
	InitialClientBalance uint64

	// Features lists the hosted-channel protocol feature bits both sides
	// have agreed to use.
	Features []uint16
}

var _ Message = (*InitHostedChannel)(nil)

// Decode deserializes a serialized InitHostedChannel message.
func (c *InitHostedChannel) Decode(r io.Reader, pver uint32) error {
	if err := readElements(r,
		&c.MaxHtlcValueInFlight,
		&c.HtlcMinimum,
		&c.MaxAcceptedHtlcs,
		&c.ChannelCapacity,
		&c.InitialClientBalance,
	); err != nil {
		return err
	}

	var numFeatures uint16
	if err := readElement(r, &numFeatures); err != nil {
		return err
	}

	features := make([]uint16, numFeatures)
	for i := range features {
		if err := readElement(r, &features[i]); err != nil {
			return err
		}
	}
	c.Features = features
	return nil
}

// Encode serializes the target InitHostedChannel into w.
func (c *InitHostedChannel) Encode(w io.Writer, pver uint32) error {
	if err := writeElements(w,
		c.MaxHtlcValueInFlight,
		c.HtlcMinimum,
		c.MaxAcceptedHtlcs,
		c.ChannelCapacity,
		c.InitialClientBalance,
	); err != nil {
		return err
	}

	if len(c.Features) > 1<<16-1 {
		return io.ErrShortBuffer
	}
	if err := writeElement(w, uint16(len(c.Features))); err != nil {
		return err
	}
	for _, f := range c.Features {
		if err := writeElement(w, f); err != nil {
			return err
		}
	}
	return nil
}

// MsgType returns the integer uniquely identifying this message type.
func (c *InitHostedChannel) MsgType() MessageType {
	return MsgInitHostedChannel
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *InitHostedChannel) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}
