package lnwire

import "io"

// UpdateFailHTLC is sent by either side to cancel a previously proposed
// HTLC that it was unable to accept or forward. It is rejected by the
// protocol (but not this codec) while the channel is in its error state
// (spec.md §4.3 — fail/fail-malformed require error = None).
type UpdateFailHTLC struct {
	// ChanID references the hosted channel holding the HTLC to be
	// cancelled.
	ChanID ChannelID

	// ID references the HTLC id that is to be cancelled.
	ID uint64

	// Reason is an opaque, onion-encrypted blob describing why the HTLC
	// was rejected. Constructing or decrypting it is an external codec
	// concern; the core only transports it.
	Reason []byte
}

// NewUpdateFailHTLC returns a new empty UpdateFailHTLC.
func NewUpdateFailHTLC(chanID ChannelID, id uint64, reason []byte) *UpdateFailHTLC {
	return &UpdateFailHTLC{
		ChanID: chanID,
		ID:     id,
		Reason: reason,
	}
}

var _ Message = (*UpdateFailHTLC)(nil)

// Decode deserializes a serialized UpdateFailHTLC message.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailHTLC) Decode(r io.Reader, pver uint32) error {
	if err := readElements(r, &c.ChanID, &c.ID); err != nil {
		return err
	}

	reason, err := readVarBytes(r)
	if err != nil {
		return err
	}
	c.Reason = reason
	return nil
}

// Encode serializes the target UpdateFailHTLC into the passed io.Writer.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailHTLC) Encode(w io.Writer, pver uint32) error {
	if err := writeElements(w, c.ChanID, c.ID); err != nil {
		return err
	}
	return writeVarBytes(w, c.Reason)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailHTLC) MsgType() MessageType {
	return MsgUpdateFailHTLC
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailHTLC) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}
