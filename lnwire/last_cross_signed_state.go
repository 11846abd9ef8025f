package lnwire

import "io"

// LastCrossSignedState is the canonical, bilaterally-signed snapshot of a
// hosted channel's balances, update counters, and in-flight HTLCs (spec.md
// §3). It is both the wire message exchanged during channel open/restore
// and the persisted value whose two transformed views ("as-is" and
// "reversed") each side signs.
//
// All LCSS values are immutable in the sense that the hosted-channel core
// never mutates one in place: every transition in package lnwallet produces
// a brand new LastCrossSignedState rather than editing an existing one.
type LastCrossSignedState struct {
	// IsHost records which role produced this view of the state. The
	// hosted-channel client always sets this to false.
	IsHost bool

	// RefundScriptPubKey is the client's on-chain refund script.
	RefundScriptPubKey []byte

	// InitHostedChannel carries the channel's immutable parameters, as
	// agreed at open time.
	InitHostedChannel

	// BlockDay is the day counter at which this state was last signed.
	BlockDay uint32

	// LocalBalance and RemoteBalance are in millisatoshi. Invariant I1:
	// LocalBalance + RemoteBalance + Σ in-flight HTLCs == ChannelCapacity.
	LocalBalance  uint64
	RemoteBalance uint64

	// LocalUpdates and RemoteUpdates are the monotonically increasing
	// counts of updates originated by each side that are folded into
	// this LCSS.
	LocalUpdates  uint32
	RemoteUpdates uint32

	// IncomingHtlcs and OutgoingHtlcs are this side's view of the
	// in-flight HTLC set. Invariant I2:
	// len(IncomingHtlcs) + len(OutgoingHtlcs) <= MaxAcceptedHtlcs.
	IncomingHtlcs []*UpdateAddHTLC
	OutgoingHtlcs []*UpdateAddHTLC

	// LocalSigOfRemote is our signature over the reversed view of this
	// LCSS (i.e. over what the remote party should compute locally).
	LocalSigOfRemote Sig64

	// RemoteSigOfLocal is the peer's signature over this (as-is) LCSS.
	RemoteSigOfLocal Sig64
}

var _ Message = (*LastCrossSignedState)(nil)

func writeHtlcList(w io.Writer, htlcs []*UpdateAddHTLC) error {
	if len(htlcs) > 1<<16-1 {
		return io.ErrShortBuffer
	}
	if err := writeElement(w, uint16(len(htlcs))); err != nil {
		return err
	}
	for _, htlc := range htlcs {
		if err := htlc.serializeHtlc(w); err != nil {
			return err
		}
	}
	return nil
}

func readHtlcList(r io.Reader) ([]*UpdateAddHTLC, error) {
	var n uint16
	if err := readElement(r, &n); err != nil {
		return nil, err
	}

	htlcs := make([]*UpdateAddHTLC, n)
	for i := range htlcs {
		htlc := &UpdateAddHTLC{}
		if err := htlc.deserializeHtlc(r); err != nil {
			return nil, err
		}
		htlcs[i] = htlc
	}
	return htlcs, nil
}

// Decode deserializes a serialized LastCrossSignedState message.
func (c *LastCrossSignedState) Decode(r io.Reader, pver uint32) error {
	var isHost uint8
	if err := readElement(r, &isHost); err != nil {
		return err
	}
	c.IsHost = isHost != 0

	refund, err := readVarBytes(r)
	if err != nil {
		return err
	}
	c.RefundScriptPubKey = refund

	if err := c.InitHostedChannel.Decode(r, pver); err != nil {
		return err
	}

	if err := readElements(r,
		&c.BlockDay,
		&c.LocalBalance,
		&c.RemoteBalance,
		&c.LocalUpdates,
		&c.RemoteUpdates,
	); err != nil {
		return err
	}

	in, err := readHtlcList(r)
	if err != nil {
		return err
	}
	c.IncomingHtlcs = in

	out, err := readHtlcList(r)
	if err != nil {
		return err
	}
	c.OutgoingHtlcs = out

	return readElements(r, &c.LocalSigOfRemote, &c.RemoteSigOfLocal)
}

// Encode serializes the target LastCrossSignedState into w.
func (c *LastCrossSignedState) Encode(w io.Writer, pver uint32) error {
	var isHost uint8
	if c.IsHost {
		isHost = 1
	}
	if err := writeElement(w, isHost); err != nil {
		return err
	}

	if err := writeVarBytes(w, c.RefundScriptPubKey); err != nil {
		return err
	}

	if err := c.InitHostedChannel.Encode(w, pver); err != nil {
		return err
	}

	if err := writeElements(w,
		c.BlockDay,
		c.LocalBalance,
		c.RemoteBalance,
		c.LocalUpdates,
		c.RemoteUpdates,
	); err != nil {
		return err
	}

	if err := writeHtlcList(w, c.IncomingHtlcs); err != nil {
		return err
	}
	if err := writeHtlcList(w, c.OutgoingHtlcs); err != nil {
		return err
	}

	return writeElements(w, c.LocalSigOfRemote, c.RemoteSigOfLocal)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *LastCrossSignedState) MsgType() MessageType {
	return MsgLastCrossSignedState
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *LastCrossSignedState) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}
