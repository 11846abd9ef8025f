package lnwire

import "io"

// StateUpdate is the compact message exchanged during the LCSS signing
// handshake (spec.md §4.2): rather than resending the full
// LastCrossSignedState, each side only needs to send the counters that
// changed plus its signature over the other side's resulting view.
type StateUpdate struct {
	// BlockDay is the day counter the new LCSS was signed against.
	BlockDay uint32

	// LocalUpdates and RemoteUpdates mirror the counters of the LCSS
	// being proposed.
	LocalUpdates  uint32
	RemoteUpdates uint32

	// LocalSigOfRemoteLCSS is the sender's signature over the reversed
	// (remote's) view of the proposed LCSS.
	LocalSigOfRemoteLCSS Sig64
}

var _ Message = (*StateUpdate)(nil)

// Decode deserializes a serialized StateUpdate message.
func (c *StateUpdate) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&c.BlockDay,
		&c.LocalUpdates,
		&c.RemoteUpdates,
		&c.LocalSigOfRemoteLCSS,
	)
}

// Encode serializes the target StateUpdate into w.
func (c *StateUpdate) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		c.BlockDay,
		c.LocalUpdates,
		c.RemoteUpdates,
		c.LocalSigOfRemoteLCSS,
	)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *StateUpdate) MsgType() MessageType {
	return MsgStateUpdate
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *StateUpdate) MaxPayloadLength(uint32) uint32 {
	// 4 + 4 + 4 + 64
	return 76
}
