package lnwire

import "io"

// AskBrandingInfo is sent once a hosted channel reaches the Open state, to
// request the host's display branding (spec.md §4.5, §6). This is purely
// cosmetic metadata for wallet UI and has no bearing on the state machine.
type AskBrandingInfo struct {
	ChanID ChannelID
}

var _ Message = (*AskBrandingInfo)(nil)

// Decode deserializes a serialized AskBrandingInfo message.
func (c *AskBrandingInfo) Decode(r io.Reader, pver uint32) error {
	return readElement(r, &c.ChanID)
}

// Encode serializes the target AskBrandingInfo into w.
func (c *AskBrandingInfo) Encode(w io.Writer, pver uint32) error {
	return writeElement(w, c.ChanID)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *AskBrandingInfo) MsgType() MessageType {
	return MsgAskBrandingInfo
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *AskBrandingInfo) MaxPayloadLength(uint32) uint32 {
	return 32
}

// HostedChannelBranding answers an AskBrandingInfo with display metadata
// the host would like its hosted-channel clients to show.
type HostedChannelBranding struct {
	ChanID ChannelID

	// Rgb is a packed 24-bit RGB color, high byte first.
	Rgb [3]byte

	// PngIcon is an optional PNG-encoded icon. A zero-length slice means
	// no icon was supplied.
	PngIcon []byte

	// ContactInfo is free-form contact information (URL, email, etc.)
	ContactInfo []byte
}

var _ Message = (*HostedChannelBranding)(nil)

// Decode deserializes a serialized HostedChannelBranding message.
func (c *HostedChannelBranding) Decode(r io.Reader, pver uint32) error {
	if err := readElements(r, &c.ChanID, c.Rgb[:]); err != nil {
		return err
	}

	icon, err := readVarBytes(r)
	if err != nil {
		return err
	}
	c.PngIcon = icon

	contact, err := readVarBytes(r)
	if err != nil {
		return err
	}
	c.ContactInfo = contact
	return nil
}

// Encode serializes the target HostedChannelBranding into w.
func (c *HostedChannelBranding) Encode(w io.Writer, pver uint32) error {
	if err := writeElements(w, c.ChanID, c.Rgb[:]); err != nil {
		return err
	}
	if err := writeVarBytes(w, c.PngIcon); err != nil {
		return err
	}
	return writeVarBytes(w, c.ContactInfo)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *HostedChannelBranding) MsgType() MessageType {
	return MsgHostedChannelBranding
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *HostedChannelBranding) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}
