package lnwire

import "io"

// InvokeHostedChannel is the first message a client sends to a host, either
// to request a brand new hosted channel or to announce itself after a
// reconnection (spec.md §4.5, WaitForInit → WaitForAccept and
// Sleeping → attemptInitResync).
type InvokeHostedChannel struct {
	// ChainHash identifies the blockchain this hosted channel's notional
	// balances are denominated against.
	ChainHash [32]byte

	// RefundScriptPubKey is the client's on-chain refund script. It is
	// committed to every LCSS but never used on-chain by this core
	// (spec.md §3).
	RefundScriptPubKey []byte

	// Secret is an optional shared secret used to authenticate the
	// invocation out-of-band (e.g. for private hosted channels).
	Secret []byte
}

var _ Message = (*InvokeHostedChannel)(nil)

// Decode deserializes a serialized InvokeHostedChannel message.
func (c *InvokeHostedChannel) Decode(r io.Reader, pver uint32) error {
	if _, err := io.ReadFull(r, c.ChainHash[:]); err != nil {
		return err
	}

	refund, err := readVarBytes(r)
	if err != nil {
		return err
	}
	c.RefundScriptPubKey = refund

	secret, err := readVarBytes(r)
	if err != nil {
		return err
	}
	c.Secret = secret
	return nil
}

// Encode serializes the target InvokeHostedChannel into w.
func (c *InvokeHostedChannel) Encode(w io.Writer, pver uint32) error {
	if _, err := w.Write(c.ChainHash[:]); err != nil {
		return err
	}
	if err := writeVarBytes(w, c.RefundScriptPubKey); err != nil {
		return err
	}
	return writeVarBytes(w, c.Secret)
}

// MsgType returns the integer uniquely identifying this message type.
func (c *InvokeHostedChannel) MsgType() MessageType {
	return MsgInvokeHostedChannel
}

// MaxPayloadLength returns the maximum allowed payload size.
func (c *InvokeHostedChannel) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}
