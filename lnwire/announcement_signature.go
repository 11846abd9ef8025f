package lnwire

import "io"

// AnnouncementSignature carries the client's signature over a host-proposed
// ChannelUpdate's short channel id assignment, jointly authorizing the
// channel's public announcement (SPEC_FULL.md §5.1). Unlike normal BOLT7
// channel announcements, a hosted channel has no funding transaction to
// prove ownership of, so this is a simple co-signature over the id rather
// than a four-signature announcement.
type AnnouncementSignature struct {
	ChanID ChannelID

	// ShortChannelID is the short channel id being jointly announced.
	ShortChannelID uint64

	// NodeSignature is the sender's signature over
	// sha256(u64_LE(ShortChannelID)).
	NodeSignature Sig64
}

var _ Message = (*AnnouncementSignature)(nil)

// Decode deserializes a serialized AnnouncementSignature message.
func (c *AnnouncementSignature) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &c.ChanID, &c.ShortChannelID, &c.NodeSignature)
}

// Encode serializes the target AnnouncementSignature into w.
func (c *AnnouncementSignature) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, c.ChanID, c.ShortChannelID, c.NodeSignature)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *AnnouncementSignature) MsgType() MessageType {
	return MsgAnnouncementSignature
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *AnnouncementSignature) MaxPayloadLength(uint32) uint32 {
	// 32 + 8 + 64
	return 104
}
