package lnwallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// ChannelState is the hosted channel's finite state set (spec.md §4.5).
type ChannelState uint8

const (
	// StateInitial is the channel's state before any persistence has
	// been loaded.
	StateInitial ChannelState = iota

	// StateWaitForInit awaits CMD_SOCKET_ONLINE to invoke the host.
	StateWaitForInit

	// StateWaitForAccept awaits the host's InitHostedChannel (new
	// channel) or LastCrossSignedState (restore) reply.
	StateWaitForAccept

	// StateWaitRemoteHostedStateUpdate awaits the host's StateUpdate
	// acknowledging our freshly signed zero-state LCSS.
	StateWaitRemoteHostedStateUpdate

	// StateOpen is the channel's steady, connected state. A channel
	// carrying a local or remote error is still StateOpen -- spec.md
	// §4.8 calls this "open but errored" -- suspension is tracked via
	// LocalError/RemoteError, not a distinct state.
	StateOpen

	// StateSleeping means the peer transport is disconnected.
	StateSleeping
)

// String implements fmt.Stringer for log output.
func (s ChannelState) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateWaitForInit:
		return "WaitForInit"
	case StateWaitForAccept:
		return "WaitForAccept"
	case StateWaitRemoteHostedStateUpdate:
		return "WaitRemoteHostedStateUpdate"
	case StateOpen:
		return "Open"
	case StateSleeping:
		return "Sleeping"
	default:
		return "Unknown"
	}
}

// RemoteInfo identifies the channel's counterparty and the local key used
// to derive the channel id (spec.md §6: channelId = sha256(
// nodeSpecificPubKey || nodeId)).
type RemoteInfo struct {
	// NodeID is the host's node identity public key.
	NodeID *btcec.PublicKey

	// NodeSpecificPubKey is a key derived locally and specific to this
	// counterparty, folded into the channel id derivation.
	NodeSpecificPubKey *btcec.PublicKey
}

// UpdateMessage is a pending, not-yet-signed change to a channel: an add,
// fulfill, fail, or fail-malformed that has not yet been folded into a
// signed LCSS. This realizes the "tagged sum with exhaustive matching at
// the driver boundary" design note in place of sealed-hierarchy pattern
// matching.
type UpdateMessage interface {
	// HtlcID returns the id of the HTLC this update concerns.
	HtlcID() uint64

	isUpdateMessage()
}

// AddHtlcUpdate is a pending UpdateAddHTLC.
type AddHtlcUpdate struct {
	Add *lnwire.UpdateAddHTLC
}

func (u *AddHtlcUpdate) HtlcID() uint64 { return u.Add.ID }
func (u *AddHtlcUpdate) isUpdateMessage() {}

// FulfillHtlcUpdate is a pending UpdateFulfillHTLC.
type FulfillHtlcUpdate struct {
	ID       uint64
	Fulfill  *lnwire.UpdateFulfillHTLC
}

func (u *FulfillHtlcUpdate) HtlcID() uint64 { return u.ID }
func (u *FulfillHtlcUpdate) isUpdateMessage() {}

// FailHtlcUpdate is a pending UpdateFailHTLC.
type FailHtlcUpdate struct {
	ID   uint64
	Fail *lnwire.UpdateFailHTLC
}

func (u *FailHtlcUpdate) HtlcID() uint64 { return u.ID }
func (u *FailHtlcUpdate) isUpdateMessage() {}

// FailMalformedHtlcUpdate is a pending UpdateFailMalformedHTLC.
type FailMalformedHtlcUpdate struct {
	ID            uint64
	FailMalformed *lnwire.UpdateFailMalformedHTLC
}

func (u *FailMalformedHtlcUpdate) HtlcID() uint64 { return u.ID }
func (u *FailMalformedHtlcUpdate) isUpdateMessage() {}

// HostedCommits is the stored per-channel record (spec.md §3). Every
// mutator below is pure: it takes a *HostedCommits and returns a new one,
// never mutating the receiver's slices or maps in place.
type HostedCommits struct {
	RemoteInfo RemoteInfo

	LastCrossSignedState lnwire.LastCrossSignedState

	NextLocalUpdates  []UpdateMessage
	NextRemoteUpdates []UpdateMessage

	UpdateOpt *lnwire.ChannelUpdate

	// PostErrorOutgoingResolvedIds suppresses double-handling of
	// outgoing HTLCs resolved after the channel entered its error
	// state.
	PostErrorOutgoingResolvedIds map[uint64]struct{}

	LocalError  *lnwire.Fail
	RemoteError *lnwire.Fail

	ResizeProposal   *lnwire.ResizeChannel
	OverrideProposal *lnwire.StateOverride

	State ChannelState
}

// clone returns a shallow copy of hc suitable as the basis for a mutator's
// return value; slice/map fields that a mutator changes are always
// reassigned wholesale rather than mutated in place.
func (hc *HostedCommits) clone() *HostedCommits {
	next := *hc
	return &next
}

// InError reports whether the channel carries a local or remote error,
// meaning it is suspended for everything but fulfill and override
// acceptance (spec.md §4.5, §4.8).
func (hc *HostedCommits) InError() bool {
	return hc.LocalError != nil || hc.RemoteError != nil
}

// WithPostErrorOutgoingResolvedIds returns a copy of hc carrying ids as its
// PostErrorOutgoingResolvedIds set. It exists so callers outside this
// package -- namely contractcourt, folding the outcome of an expiry-rescue
// PreimageCheck back into a channel -- can update this field without
// reaching into HostedCommits's otherwise-internal clone mechanics.
func (hc *HostedCommits) WithPostErrorOutgoingResolvedIds(ids map[uint64]struct{}) *HostedCommits {
	next := hc.clone()
	next.PostErrorOutgoingResolvedIds = ids
	return next
}

// WithUpdateOpt returns a copy of hc carrying cu as its UpdateOpt. Called by
// package discovery once it has validated cu's signature against the
// channel's host, so the gossip layer never reaches into HostedCommits's
// unexported clone mechanics either.
func (hc *HostedCommits) WithUpdateOpt(cu *lnwire.ChannelUpdate) *HostedCommits {
	next := hc.clone()
	next.UpdateOpt = cu
	return next
}

// LocalSpec returns the HtlcSpec implied by the last signed LCSS, with no
// pending updates folded in.
func (hc *HostedCommits) LocalSpec() HtlcSpec {
	return LocalSpec(&hc.LastCrossSignedState)
}

// NextLocalSpec returns the HtlcSpec projected forward with
// NextLocalUpdates and NextRemoteUpdates folded in.
func (hc *HostedCommits) NextLocalSpec() (HtlcSpec, error) {
	return ProjectSpec(hc.LocalSpec(), hc.NextLocalUpdates, hc.NextRemoteUpdates)
}

// AddHtlcCmd is the local intent to add a new outgoing HTLC.
type AddHtlcCmd struct {
	Amount      uint64
	PaymentHash [32]byte
	Expiry      uint32
	OnionBlob   [lnwire.OnionPacketSize]byte
	ExtraData   lnwire.ExtraOpaqueData
}

// htlcSafetyDelta is the minimum number of blocks an HTLC's expiry must
// exceed the current block height by, matching the teacher's general
// practice of requiring a safety margin beyond bare expiry.
const htlcSafetyDelta = 3

// SendAdd validates and applies a locally originated HTLC add (spec.md
// §4.3). On success it returns the new HostedCommits with the add appended
// to NextLocalUpdates, and the wire message to send; the caller is
// responsible for following up with CMD_SIGN.
func SendAdd(hc *HostedCommits, cmd AddHtlcCmd, id uint64, blockHeight uint32) (
	*HostedCommits, *lnwire.UpdateAddHTLC, error) {

	if hc.InError() {
		return nil, nil, ErrChannelNotAbleToSend
	}

	if cmd.Amount < hc.LastCrossSignedState.HtlcMinimum {
		return nil, nil, ErrHtlcBelowMinimum
	}
	if cmd.Expiry <= blockHeight+htlcSafetyDelta {
		return nil, nil, ErrHtlcDustExpiry
	}

	add := &lnwire.UpdateAddHTLC{
		ChanID:      ChannelIDFor(hc.RemoteInfo.NodeSpecificPubKey, hc.RemoteInfo.NodeID),
		ID:          id,
		Amount:      cmd.Amount,
		PaymentHash: cmd.PaymentHash,
		Expiry:      cmd.Expiry,
		OnionBlob:   cmd.OnionBlob,
		ExtraData:   cmd.ExtraData,
	}

	pending := append(append([]UpdateMessage{}, hc.NextLocalUpdates...), &AddHtlcUpdate{Add: add})

	spec, err := hc.projectedSpecWith(pending, hc.NextRemoteUpdates)
	if err != nil {
		return nil, nil, ErrChannelNotAbleToSend
	}
	if err := checkSpecBounds(hc, spec); err != nil {
		return nil, nil, err
	}

	next := hc.clone()
	next.NextLocalUpdates = pending
	return next, add, nil
}

// ReceiveAdd validates and applies a remotely originated HTLC add (spec.md
// §4.3). Any violation is protocol-fatal: the caller converts the returned
// TransitionError into a local suspend with a protocol error.
func ReceiveAdd(hc *HostedCommits, add *lnwire.UpdateAddHTLC) (*HostedCommits, error) {
	pending := append(append([]UpdateMessage{}, hc.NextRemoteUpdates...), &AddHtlcUpdate{Add: add})

	spec, err := hc.projectedSpecWith(hc.NextLocalUpdates, pending)
	if err != nil {
		return nil, NewTransitionError(add.ChanID, "receiveAdd: %v", err)
	}
	if err := checkSpecBounds(hc, spec); err != nil {
		return nil, NewTransitionError(add.ChanID, "receiveAdd: %v", err)
	}

	next := hc.clone()
	next.NextRemoteUpdates = pending
	return next, nil
}

// projectedSpecWith projects hc's local spec forward using the given
// pending update lists, rather than hc's own.
func (hc *HostedCommits) projectedSpecWith(localUpdates, remoteUpdates []UpdateMessage) (HtlcSpec, error) {
	return ProjectSpec(hc.LocalSpec(), localUpdates, remoteUpdates)
}

// checkSpecBounds enforces invariants I2/P3: the in-flight count and
// aggregate value bounds from InitHostedChannel.
func checkSpecBounds(hc *HostedCommits, spec HtlcSpec) error {
	init := hc.LastCrossSignedState.InitHostedChannel

	count := len(spec.IncomingHtlcs) + len(spec.OutgoingHtlcs)
	if uint16(count) > init.MaxAcceptedHtlcs {
		return ErrMaxAcceptedHtlcsExceeded
	}

	var total uint64
	for _, h := range spec.IncomingHtlcs {
		total += h.Amount
	}
	for _, h := range spec.OutgoingHtlcs {
		total += h.Amount
	}
	if total > init.MaxHtlcValueInFlight {
		return ErrMaxHtlcValueInFlightExceeded
	}

	return nil
}

// CmdFulfillHtlc applies a locally originated fulfill of an incoming HTLC
// (spec.md §4.3). Fulfill is permitted even while the channel carries an
// error, since the preimage is value and must always be sendable.
func CmdFulfillHtlc(hc *HostedCommits, id uint64, preimage [32]byte) (
	*HostedCommits, *lnwire.UpdateFulfillHTLC, error) {

	spec, err := hc.NextLocalSpec()
	if err != nil {
		return nil, nil, err
	}
	if _, ok := findHtlcByID(spec.IncomingHtlcs, id); !ok {
		return nil, nil, ErrHtlcIdNotFound
	}

	msg := &lnwire.UpdateFulfillHTLC{
		ChanID:          ChannelIDFor(hc.RemoteInfo.NodeSpecificPubKey, hc.RemoteInfo.NodeID),
		ID:              id,
		PaymentPreimage: preimage,
	}

	next := hc.clone()
	next.NextLocalUpdates = append(append([]UpdateMessage{}, hc.NextLocalUpdates...),
		&FulfillHtlcUpdate{ID: id, Fulfill: msg})
	return next, msg, nil
}

// CmdFailHtlc applies a locally originated fail of an incoming HTLC.
// Fail/fail-malformed require the channel to carry no error (spec.md
// §4.3).
func CmdFailHtlc(hc *HostedCommits, id uint64, reason []byte) (
	*HostedCommits, *lnwire.UpdateFailHTLC, error) {

	if hc.InError() {
		return nil, nil, ErrChannelInError
	}

	spec, err := hc.NextLocalSpec()
	if err != nil {
		return nil, nil, err
	}
	if _, ok := findHtlcByID(spec.IncomingHtlcs, id); !ok {
		return nil, nil, ErrHtlcIdNotFound
	}

	msg := &lnwire.UpdateFailHTLC{
		ChanID: ChannelIDFor(hc.RemoteInfo.NodeSpecificPubKey, hc.RemoteInfo.NodeID),
		ID:     id,
		Reason: reason,
	}

	next := hc.clone()
	next.NextLocalUpdates = append(append([]UpdateMessage{}, hc.NextLocalUpdates...),
		&FailHtlcUpdate{ID: id, Fail: msg})
	return next, msg, nil
}

// CmdFailMalformedHtlc applies a locally originated fail-malformed of an
// incoming HTLC. See CmdFailHtlc.
func CmdFailMalformedHtlc(hc *HostedCommits, id uint64, onionHash [32]byte, code uint16) (
	*HostedCommits, *lnwire.UpdateFailMalformedHTLC, error) {

	if hc.InError() {
		return nil, nil, ErrChannelInError
	}

	spec, err := hc.NextLocalSpec()
	if err != nil {
		return nil, nil, err
	}
	if _, ok := findHtlcByID(spec.IncomingHtlcs, id); !ok {
		return nil, nil, ErrHtlcIdNotFound
	}

	msg := &lnwire.UpdateFailMalformedHTLC{
		ChanID:       ChannelIDFor(hc.RemoteInfo.NodeSpecificPubKey, hc.RemoteInfo.NodeID),
		ID:           id,
		ShaOnionBlob: onionHash,
		FailureCode:  code,
	}

	next := hc.clone()
	next.NextLocalUpdates = append(append([]UpdateMessage{}, hc.NextLocalUpdates...),
		&FailMalformedHtlcUpdate{ID: id, FailMalformed: msg})
	return next, msg, nil
}

// ErrDisconnectAndSleep signals a transient condition that should
// disconnect the peer and transition the channel to Sleeping rather than
// suspend it with a protocol error (spec.md §7, kind 3).
var ErrDisconnectAndSleep = NewTransitionError([32]byte{}, "transient: disconnect and resync")

// ReceiveFulfill applies a remotely received UpdateFulfillHTLC. Accepted in
// both Open and Sleeping; if the channel is in error state and this id is
// not already recorded, it is added to PostErrorOutgoingResolvedIds
// (spec.md §4.3).
func ReceiveFulfill(hc *HostedCommits, msg *lnwire.UpdateFulfillHTLC) (*HostedCommits, error) {
	next := hc.clone()

	if hc.InError() {
		if _, done := hc.PostErrorOutgoingResolvedIds[msg.ID]; !done {
			ids := cloneIDSet(hc.PostErrorOutgoingResolvedIds)
			ids[msg.ID] = struct{}{}
			next.PostErrorOutgoingResolvedIds = ids
		}
		return next, nil
	}

	next.NextRemoteUpdates = append(append([]UpdateMessage{}, hc.NextRemoteUpdates...),
		&FulfillHtlcUpdate{ID: msg.ID, Fulfill: msg})
	return next, nil
}

// ReceiveFail applies a remotely received UpdateFailHTLC. The referenced id
// must be in the last-signed localSpec.outgoingHtlcs; if it is only in the
// projected nextLocalSpec, the peer is racing our not-yet-signed add and we
// must disconnect and resync rather than suspend (spec.md §4.3).
func ReceiveFail(hc *HostedCommits, msg *lnwire.UpdateFailHTLC) (*HostedCommits, error) {
	return receiveFailLike(hc, msg.ChanID, msg.ID, &FailHtlcUpdate{ID: msg.ID, Fail: msg})
}

// ReceiveFailMalformed applies a remotely received UpdateFailMalformedHTLC.
// See ReceiveFail.
func ReceiveFailMalformed(hc *HostedCommits, msg *lnwire.UpdateFailMalformedHTLC) (*HostedCommits, error) {
	return receiveFailLike(hc, msg.ChanID, msg.ID,
		&FailMalformedHtlcUpdate{ID: msg.ID, FailMalformed: msg})
}

func receiveFailLike(hc *HostedCommits, chanID lnwire.ChannelID, id uint64, upd UpdateMessage) (
	*HostedCommits, error) {

	if _, ok := hc.PostErrorOutgoingResolvedIds[id]; ok {
		return nil, NewTransitionError(chanID, "fail references already-resolved htlc %d", id)
	}

	localSpec := hc.LocalSpec()
	if _, ok := findHtlcByID(localSpec.OutgoingHtlcs, id); ok {
		next := hc.clone()
		next.NextRemoteUpdates = append(append([]UpdateMessage{}, hc.NextRemoteUpdates...), upd)
		return next, nil
	}

	nextSpec, err := hc.NextLocalSpec()
	if err == nil {
		if _, ok := findHtlcByID(nextSpec.OutgoingHtlcs, id); ok {
			return nil, ErrDisconnectAndSleep
		}
	}

	return nil, NewTransitionError(chanID, "fail references unknown htlc %d", id)
}

func cloneIDSet(m map[uint64]struct{}) map[uint64]struct{} {
	out := make(map[uint64]struct{}, len(m)+1)
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// LocalSuspend sets hc.LocalError if not already set and returns the Fail
// message that must be persisted-then-sent to the peer (spec.md §4.8). A
// no-op (returns hc unchanged, nil message) if an error is already present.
func LocalSuspend(hc *HostedCommits, chanID lnwire.ChannelID, code string) (*HostedCommits, *lnwire.Fail) {
	if hc.LocalError != nil {
		return hc, nil
	}

	fail := &lnwire.Fail{
		ChanID: chanID,
		Data:   []byte(code),
	}

	next := hc.clone()
	next.LocalError = fail
	return next, fail
}

// ReceiveRemoteError sets hc.RemoteError. In WaitForAccept/Open it also
// transitions the state to Open (stays open-but-errored) so that overrides
// can still be received (spec.md §4.8).
func ReceiveRemoteError(hc *HostedCommits, fail *lnwire.Fail) *HostedCommits {
	next := hc.clone()
	next.RemoteError = fail

	if hc.State == StateWaitForAccept || hc.State == StateOpen {
		next.State = StateOpen
	}
	return next
}
