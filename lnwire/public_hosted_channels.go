package lnwire

import "io"

// QueryPublicHostedChannels asks a host for the set of hosted channels it
// has opted to publicly announce (SPEC_FULL.md §5.1's supplemented gossip
// feature). It carries no filter: the host streams back one ChannelUpdate
// per public channel followed by a ReplyPublicHostedChannelsEnd.
type QueryPublicHostedChannels struct {
	// ChainHash identifies the blockchain the query concerns.
	ChainHash [32]byte
}

var _ Message = (*QueryPublicHostedChannels)(nil)

// Decode deserializes a serialized QueryPublicHostedChannels message.
func (c *QueryPublicHostedChannels) Decode(r io.Reader, pver uint32) error {
	return readElement(r, c.ChainHash[:])
}

// Encode serializes the target QueryPublicHostedChannels into w.
func (c *QueryPublicHostedChannels) Encode(w io.Writer, pver uint32) error {
	return writeElement(w, c.ChainHash[:])
}

// MsgType returns the integer uniquely identifying this message type.
func (c *QueryPublicHostedChannels) MsgType() MessageType {
	return MsgQueryPublicHostedChannels
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *QueryPublicHostedChannels) MaxPayloadLength(uint32) uint32 {
	return 32
}

// ReplyPublicHostedChannelsEnd terminates the stream of ChannelUpdate
// messages sent in response to a QueryPublicHostedChannels.
type ReplyPublicHostedChannelsEnd struct {
	ChainHash [32]byte

	// Complete is true if the responder sent its whole known set; false
	// if it truncated the stream (e.g. rate limiting).
	Complete bool
}

var _ Message = (*ReplyPublicHostedChannelsEnd)(nil)

// Decode deserializes a serialized ReplyPublicHostedChannelsEnd message.
func (c *ReplyPublicHostedChannelsEnd) Decode(r io.Reader, pver uint32) error {
	var complete uint8
	if err := readElements(r, c.ChainHash[:], &complete); err != nil {
		return err
	}
	c.Complete = complete != 0
	return nil
}

// Encode serializes the target ReplyPublicHostedChannelsEnd into w.
func (c *ReplyPublicHostedChannelsEnd) Encode(w io.Writer, pver uint32) error {
	var complete uint8
	if c.Complete {
		complete = 1
	}
	return writeElements(w, c.ChainHash[:], complete)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *ReplyPublicHostedChannelsEnd) MsgType() MessageType {
	return MsgReplyPublicHostedChannelsEnd
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *ReplyPublicHostedChannelsEnd) MaxPayloadLength(uint32) uint32 {
	return 33
}
