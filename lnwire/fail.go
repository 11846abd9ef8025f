package lnwire

import "io"

// Fail is sent by either side to report a fatal, per-channel protocol
// violation (spec.md §7). Receiving one sets remoteError and suspends the
// channel for everything but fulfill and override acceptance.
type Fail struct {
	// ChanID identifies the channel this failure applies to.
	ChanID ChannelID

	// Data carries a protocol error code as ASCII text, or free-form
	// diagnostic text.
	Data []byte
}

var _ Message = (*Fail)(nil)

// Decode deserializes a serialized Fail message.
func (c *Fail) Decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &c.ChanID); err != nil {
		return err
	}
	data, err := readVarBytes(r)
	if err != nil {
		return err
	}
	c.Data = data
	return nil
}

// Encode serializes the target Fail into w.
func (c *Fail) Encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, c.ChanID); err != nil {
		return err
	}
	return writeVarBytes(w, c.Data)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *Fail) MsgType() MessageType {
	return MsgError
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *Fail) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}

// Warning is sent by either side to report a non-fatal condition that
// doesn't suspend the channel (e.g. a transient resync hiccup).
type Warning struct {
	ChanID ChannelID
	Data   []byte
}

var _ Message = (*Warning)(nil)

// Decode deserializes a serialized Warning message.
func (c *Warning) Decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &c.ChanID); err != nil {
		return err
	}
	data, err := readVarBytes(r)
	if err != nil {
		return err
	}
	c.Data = data
	return nil
}

// Encode serializes the target Warning into w.
func (c *Warning) Encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, c.ChanID); err != nil {
		return err
	}
	return writeVarBytes(w, c.Data)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *Warning) MsgType() MessageType {
	return MsgWarning
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *Warning) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}
