package lnwire

import (
	"fmt"
	"io"
)

// QueryPreimages asks the receiving peer whether it knows the payment
// preimage for any of the listed payment hashes. It is used by the expiry
// and preimage-rescue flow (spec.md §4.4) to recover a payment outcome from
// a downstream peer before an HTLC's on-chain-equivalent timeout elapses.
type QueryPreimages struct {
	PaymentHashes [][32]byte
}

var _ Message = (*QueryPreimages)(nil)

// Decode deserializes a serialized QueryPreimages message.
func (c *QueryPreimages) Decode(r io.Reader, pver uint32) error {
	var count uint16
	if err := readElement(r, &count); err != nil {
		return err
	}

	hashes := make([][32]byte, count)
	for i := range hashes {
		if err := readElement(r, hashes[i][:]); err != nil {
			return err
		}
	}
	c.PaymentHashes = hashes
	return nil
}

// Encode serializes the target QueryPreimages into w.
func (c *QueryPreimages) Encode(w io.Writer, pver uint32) error {
	if len(c.PaymentHashes) > 65535 {
		return fmt.Errorf("too many payment hashes: %d", len(c.PaymentHashes))
	}
	if err := writeElement(w, uint16(len(c.PaymentHashes))); err != nil {
		return err
	}
	for _, hash := range c.PaymentHashes {
		if err := writeElement(w, hash[:]); err != nil {
			return err
		}
	}
	return nil
}

// MsgType returns the integer uniquely identifying this message type.
func (c *QueryPreimages) MsgType() MessageType {
	return MsgQueryPreimages
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *QueryPreimages) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}

// ReplyPreimages answers a QueryPreimages with whatever preimages the
// replying peer was able to produce. Entries are unordered; the querying
// side matches preimages back to hashes by hashing each one.
type ReplyPreimages struct {
	Preimages [][32]byte
}

var _ Message = (*ReplyPreimages)(nil)

// Decode deserializes a serialized ReplyPreimages message.
func (c *ReplyPreimages) Decode(r io.Reader, pver uint32) error {
	var count uint16
	if err := readElement(r, &count); err != nil {
		return err
	}

	preimages := make([][32]byte, count)
	for i := range preimages {
		if err := readElement(r, preimages[i][:]); err != nil {
			return err
		}
	}
	c.Preimages = preimages
	return nil
}

// Encode serializes the target ReplyPreimages into w.
func (c *ReplyPreimages) Encode(w io.Writer, pver uint32) error {
	if len(c.Preimages) > 65535 {
		return fmt.Errorf("too many preimages: %d", len(c.Preimages))
	}
	if err := writeElement(w, uint16(len(c.Preimages))); err != nil {
		return err
	}
	for _, preimage := range c.Preimages {
		if err := writeElement(w, preimage[:]); err != nil {
			return err
		}
	}
	return nil
}

// MsgType returns the integer uniquely identifying this message type.
func (c *ReplyPreimages) MsgType() MessageType {
	return MsgReplyPreimages
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *ReplyPreimages) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}
