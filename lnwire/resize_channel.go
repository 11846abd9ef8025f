package lnwire

import "io"

// ResizeChannel is sent by the client to propose a capacity increase
// (spec.md §4.7). The host folds it into the next signed LCSS by swapping
// InitHostedChannel.ChannelCapacity and crediting itself the delta.
type ResizeChannel struct {
	// NewCapacity is the proposed total channel capacity, in
	// millisatoshi.
	NewCapacity uint64

	// ClientSig is the client's signature over
	// sha256(u64_LE(NewCapacity)), authorizing the resize.
	ClientSig Sig64
}

var _ Message = (*ResizeChannel)(nil)

// Decode deserializes a serialized ResizeChannel message.
func (c *ResizeChannel) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &c.NewCapacity, &c.ClientSig)
}

// Encode serializes the target ResizeChannel into w.
func (c *ResizeChannel) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, c.NewCapacity, c.ClientSig)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *ResizeChannel) MsgType() MessageType {
	return MsgResizeChannel
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *ResizeChannel) MaxPayloadLength(uint32) uint32 {
	// 8 + 64
	return 72
}
