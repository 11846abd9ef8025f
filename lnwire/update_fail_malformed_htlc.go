package lnwire

import "io"

// UpdateFailMalformedHTLC is sent by either side to cancel a previously
// proposed HTLC whose onion routing packet itself could not be parsed
// (rather than failing at the application layer, as UpdateFailHTLC does).
type UpdateFailMalformedHTLC struct {
	// ChanID references the hosted channel holding the HTLC to be
	// cancelled.
	ChanID ChannelID

	// ID references the HTLC id that is to be cancelled.
	ID uint64

	// ShaOnionBlob is the SHA-256 hash of the onion blob that could not
	// be parsed.
	ShaOnionBlob [32]byte

	// FailureCode is a BOLT4 failure code describing why the onion blob
	// was malformed.
	FailureCode uint16
}

// NewUpdateFailMalformedHTLC returns a new empty UpdateFailMalformedHTLC.
func NewUpdateFailMalformedHTLC(chanID ChannelID, id uint64,
	onionHash [32]byte, code uint16) *UpdateFailMalformedHTLC {

	return &UpdateFailMalformedHTLC{
		ChanID:       chanID,
		ID:           id,
		ShaOnionBlob: onionHash,
		FailureCode:  code,
	}
}

var _ Message = (*UpdateFailMalformedHTLC)(nil)

// Decode deserializes a serialized UpdateFailMalformedHTLC message.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailMalformedHTLC) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&c.ChanID,
		&c.ID,
		c.ShaOnionBlob[:],
		&c.FailureCode,
	)
}

// Encode serializes the target UpdateFailMalformedHTLC into the passed
// io.Writer.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailMalformedHTLC) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		c.ChanID,
		c.ID,
		c.ShaOnionBlob[:],
		c.FailureCode,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailMalformedHTLC) MsgType() MessageType {
	return MsgUpdateFailMalformedHTLC
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailMalformedHTLC) MaxPayloadLength(uint32) uint32 {
	// 32 + 8 + 32 + 2
	return 74
}
