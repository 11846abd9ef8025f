package lnwire

import "io"

// StateOverride is sent by the host to force a fresh, agreed-upon state
// after the channel has entered its error state (spec.md §4.7). It
// intentionally drops all in-flight HTLCs: accepting it is a manual,
// user-initiated recovery action, never an automatic one.
type StateOverride struct {
	// BlockDay is the day counter the override was constructed against.
	BlockDay uint32

	// LocalBalance is, confusingly from the client's perspective, the
	// *host's* balance in the proposed state (spec.md §4.7: the client's
	// new balance is derived as capacity - LocalBalance).
	LocalBalance uint64

	// LocalUpdates and RemoteUpdates are the host's view of the update
	// counters the overridden state should carry.
	LocalUpdates  uint32
	RemoteUpdates uint32

	// LocalSigOfRemoteLCSS is the host's signature over the client's
	// reversed view of the resulting LCSS.
	LocalSigOfRemoteLCSS Sig64
}

var _ Message = (*StateOverride)(nil)

// Decode deserializes a serialized StateOverride message.
func (c *StateOverride) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&c.BlockDay,
		&c.LocalBalance,
		&c.LocalUpdates,
		&c.RemoteUpdates,
		&c.LocalSigOfRemoteLCSS,
	)
}

// Encode serializes the target StateOverride into w.
func (c *StateOverride) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		c.BlockDay,
		c.LocalBalance,
		c.LocalUpdates,
		c.RemoteUpdates,
		c.LocalSigOfRemoteLCSS,
	)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *StateOverride) MsgType() MessageType {
	return MsgStateOverride
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *StateOverride) MaxPayloadLength(uint32) uint32 {
	// 4 + 8 + 4 + 4 + 64
	return 84
}
