package htlcswitch

import (
	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// Event is whatever a hostedChannelLink's queue can carry: an inbound wire
// message, a locally originated command, or a timer/callback tick. The
// link's doProcess dispatch switches on the concrete type, realizing the
// single-threaded event handler called for in the concurrency model: every
// mutation of a channel's HostedCommits happens on the goroutine draining
// that channel's queue, never from the goroutine that produced the event.
type Event interface {
	isEvent()
}

// WireEvent wraps a message received from the remote peer.
type WireEvent struct {
	Msg lnwire.Message
}

func (WireEvent) isEvent() {}

// SocketEvent reports a transport-level connect/disconnect, driving the
// WaitForInit/Sleeping transitions of spec.md §4.5.
type SocketEvent struct {
	Online bool
}

func (SocketEvent) isEvent() {}

// BlockTickEvent carries the current block height, used for htlc expiry
// safety-margin checks and expiry processing; an Open channel with pending
// updates also attempts CMD_SIGN on each tick. CMD_SIGN's blockDay comes
// from the link's currentBlockDay, not from this height.
type BlockTickEvent struct {
	Height uint32
}

func (BlockTickEvent) isEvent() {}

// PreimageFoundEvent carries a recovered preimage for an incoming htlc that
// the link must still fulfill; it is handled on the link's own queue like
// any other event. contractcourt does not post it: expiry processing runs
// inside the link itself on each BlockTickEvent.
type PreimageFoundEvent struct {
	HtlcID   uint64
	Preimage [32]byte
}

func (PreimageFoundEvent) isEvent() {}

// AddCmd is the local intent to originate a new outgoing htlc.
type AddCmd struct {
	Cmd    lnwallet.AddHtlcCmd
	Result chan<- AddResult
}

func (AddCmd) isEvent() {}

// AddResult reports the outcome of an AddCmd back to its caller.
type AddResult struct {
	ID  uint64
	Err error
}

// FulfillCmd is the local intent to fulfill a known incoming htlc.
type FulfillCmd struct {
	HtlcID   uint64
	Preimage [32]byte
	Done     chan<- error
}

func (FulfillCmd) isEvent() {}

// FailCmd is the local intent to fail a known incoming htlc.
type FailCmd struct {
	HtlcID uint64
	Reason []byte
	Done   chan<- error
}

func (FailCmd) isEvent() {}

// SignCmd requests the link immediately attempt CMD_SIGN rather than wait
// for its usual debounce tick.
type SignCmd struct{}

func (SignCmd) isEvent() {}

// ResizeCmd is the local intent to propose a capacity increase.
type ResizeCmd struct {
	Delta uint64
	Done  chan<- error
}

func (ResizeCmd) isEvent() {}

// OverrideAcceptCmd accepts a pending host override proposal.
type OverrideAcceptCmd struct {
	Done chan<- error
}

func (OverrideAcceptCmd) isEvent() {}
