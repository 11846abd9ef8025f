package lnwire

import (
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

// OnionPacketSize is the fixed length of a serialized onion routing packet.
// Hosted channels reuse the same onion construction as on-chain Lightning
// channels; constructing/decrypting it is an external codec concern (spec.md
// §1) — we only need to move the bytes around intact.
const OnionPacketSize = 1366

// ExtraOpaqueData is the set of bytes that are left un-parsed in a TLV
// stream attached to a message. This allows TLV data that we don't yet
// understand (or don't care about for the purposes of the state machine) to
// pass through unharmed.
type ExtraOpaqueData []byte

// routingSecretType is the TLV type under which the onion routing secret
// used by fullTag (spec.md §9, Open Question 3) may be attached. Decrypting
// it requires the node's private key and is an external codec concern; the
// hosted-channel core only needs to know whether a TLV stream carries one.
const routingSecretType tlv.Type = 1

// ExtractRoutingSecret attempts to pull a routing-secret record out of the
// extra TLV data; no key is used, and the record's bytes are returned as
// stored. Any failure to parse —
// unknown encoding, absent record, or a record meant for someone else — is
// treated as "this HTLC is locally originated", matching the guidance in
// spec.md §9: the core must never fail an add because an attached tag is
// unreadable.
func (e ExtraOpaqueData) ExtractRoutingSecret() ([]byte, bool) {
	if len(e) == 0 {
		return nil, false
	}

	var secret []byte
	secretRecord := tlv.MakePrimitiveRecord(routingSecretType, &secret)

	stream, err := tlv.NewStream(secretRecord)
	if err != nil {
		return nil, false
	}

	parsedTypes, err := stream.DecodeWithParsedTypes(
		bytesReader(e),
	)
	if err != nil {
		return nil, false
	}
	if _, ok := parsedTypes[routingSecretType]; !ok {
		return nil, false
	}

	return secret, true
}

func bytesReader(b []byte) io.Reader {
	return &byteSliceReader{b: b}
}

// byteSliceReader is a tiny io.Reader over a byte slice, avoiding a direct
// bytes.Reader import cycle concern for this small helper.
type byteSliceReader struct {
	b   []byte
	pos int
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

// UpdateAddHTLC is sent by either side to propose a new HTLC to be added to
// both sides' update logs. It is the hosted-channel equivalent of the BOLT2
// message of the same name; the wire-level serialization of this message
// (minus ChannelID) is also what must be fed into hostedSigHash byte-for-byte
// (spec.md §3).
type UpdateAddHTLC struct {
	// ChanID references an active hosted channel.
	ChanID ChannelID

	// ID is the sender's index for this HTLC within their local update
	// log. This value is opaque to the receiver.
	ID uint64

	// Amount is the amount, in millisatoshi, of the HTLC being proposed.
	Amount uint64

	// PaymentHash is the payment hash for this HTLC. The preimage that
	// unlocks the HTLC must hash to this value using SHA-256.
	PaymentHash [32]byte

	// Expiry is the absolute block height after which this HTLC should be
	// considered invalid.
	Expiry uint32

	// OnionBlob is the raw, fixed-size onion routing packet used to
	// obfuscate the HTLC's destination from the host.
	OnionBlob [OnionPacketSize]byte

	// ExtraData carries any TLV records attached to this add that the
	// hosted-channel core itself does not interpret.
	ExtraData ExtraOpaqueData
}

// NewUpdateAddHTLC returns a new empty UpdateAddHTLC.
func NewUpdateAddHTLC() *UpdateAddHTLC {
	return &UpdateAddHTLC{}
}

var _ Message = (*UpdateAddHTLC)(nil)

// serializeHtlc writes the fields of the add that participate in
// hostedSigHash — every field except ChanID, since the channel id is
// contextual rather than part of the signed state (spec.md §3).
func (c *UpdateAddHTLC) serializeHtlc(w io.Writer) error {
	if err := writeElements(w,
		c.ID,
		c.Amount,
		c.PaymentHash[:],
		c.Expiry,
	); err != nil {
		return err
	}
	if _, err := w.Write(c.OnionBlob[:]); err != nil {
		return err
	}
	return writeVarBytes(w, c.ExtraData)
}

func (c *UpdateAddHTLC) deserializeHtlc(r io.Reader) error {
	if err := readElements(r,
		&c.ID,
		&c.Amount,
		c.PaymentHash[:],
		&c.Expiry,
	); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, c.OnionBlob[:]); err != nil {
		return err
	}
	extra, err := readVarBytes(r)
	if err != nil {
		return err
	}
	c.ExtraData = extra
	return nil
}

// SigHashBytes returns the byte-for-byte serialization of this add that is
// folded into hostedSigHash (spec.md §3), matching the wire codec exactly.
func (c *UpdateAddHTLC) SigHashBytes() []byte {
	var buf []byte
	bw := &byteSliceWriter{buf: &buf}
	_ = c.serializeHtlc(bw)
	return buf
}

type byteSliceWriter struct {
	buf *[]byte
}

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

// Decode deserializes a serialized UpdateAddHTLC message.
//
// This is part of the lnwire.Message interface.
func (c *UpdateAddHTLC) Decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &c.ChanID); err != nil {
		return err
	}
	return c.deserializeHtlc(r)
}

// Encode serializes the target UpdateAddHTLC into the passed io.Writer.
//
// This is part of the lnwire.Message interface.
func (c *UpdateAddHTLC) Encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, c.ChanID); err != nil {
		return err
	}
	return c.serializeHtlc(w)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *UpdateAddHTLC) MsgType() MessageType {
	return MsgUpdateAddHTLC
}

// MaxPayloadLength returns the maximum allowed payload size for this message.
//
// This is part of the lnwire.Message interface.
func (c *UpdateAddHTLC) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}
