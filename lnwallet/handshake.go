package lnwallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// absDiffU32 returns |a-b| without risking unsigned wraparound.
func absDiffU32(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Bounds a host's InitHostedChannel offer must satisfy before a client will
// open against it (spec.md §4.5).
const (
	minOpenMaxHtlcValueInFlightMsat = 100_000_000
	maxOpenHtlcMinimumMsat          = 546_000
	minOpenMaxAcceptedHtlcs         = 1
)

// AcceptInitHostedChannel implements spec.md §4.5's WaitForAccept +
// InitHostedChannel transition. It validates the host's offered bounds,
// builds the zero-state LCSS with the client's opening balance, and signs
// it, returning the StateUpdate to place on the wire.
func AcceptInitHostedChannel(hc *HostedCommits, signer ChannelSigner,
	init *lnwire.InitHostedChannel, blockDay uint32) (*HostedCommits, *lnwire.StateUpdate, error) {

	switch {
	case init.InitialClientBalance > init.ChannelCapacity:
		return nil, nil, ErrInitialBalanceExceedsCapacity
	case init.MaxHtlcValueInFlight < minOpenMaxHtlcValueInFlightMsat:
		return nil, nil, ErrMaxHtlcValueInFlightTooLow
	case init.HtlcMinimum > maxOpenHtlcMinimumMsat:
		return nil, nil, ErrHtlcMinimumTooHigh
	case init.MaxAcceptedHtlcs < minOpenMaxAcceptedHtlcs:
		return nil, nil, ErrMaxAcceptedHtlcsTooLow
	}

	next := hc.clone()
	next.LastCrossSignedState.InitHostedChannel = *init
	next.LastCrossSignedState.BlockDay = blockDay
	next.LastCrossSignedState.LocalBalance = init.InitialClientBalance
	next.LastCrossSignedState.RemoteBalance = init.ChannelCapacity - init.InitialClientBalance
	next.LastCrossSignedState.LocalUpdates = 0
	next.LastCrossSignedState.RemoteUpdates = 0
	next.LastCrossSignedState.IncomingHtlcs = nil
	next.LastCrossSignedState.OutgoingHtlcs = nil

	signed, err := WithLocalSigOfRemote(signer, &next.LastCrossSignedState)
	if err != nil {
		return nil, nil, err
	}
	next.LastCrossSignedState = *signed
	next.State = StateWaitRemoteHostedStateUpdate

	su := &lnwire.StateUpdate{
		BlockDay:             signed.BlockDay,
		LocalUpdates:         signed.LocalUpdates,
		RemoteUpdates:        signed.RemoteUpdates,
		LocalSigOfRemoteLCSS: signed.LocalSigOfRemote,
	}
	return next, su, nil
}

// AttemptInitialStateUpdate implements spec.md §4.5's
// WaitRemoteHostedStateUpdate + StateUpdate transition: the host's reply to
// the zero-state LCSS we signed in AcceptInitHostedChannel. Both update
// counters must still be zero and the host's signature must verify over
// our own view of that state.
func AttemptInitialStateUpdate(hc *HostedCommits, hostPub *btcec.PublicKey,
	currentBlockDay uint32, remoteSU *lnwire.StateUpdate) (*HostedCommits, error) {

	if absDiffU32(remoteSU.BlockDay, currentBlockDay) > 1 {
		return nil, ErrOutOfSyncBlockDay
	}
	if remoteSU.LocalUpdates != 0 || remoteSU.RemoteUpdates != 0 {
		return nil, ErrInitialCountersNotZero
	}

	candidate := hc.LastCrossSignedState
	candidate.RemoteSigOfLocal = remoteSU.LocalSigOfRemoteLCSS

	if !VerifyRemoteSig(hostPub, &candidate) {
		return nil, ErrWrongRemoteSig
	}

	next := hc.clone()
	next.LastCrossSignedState = candidate
	next.State = StateOpen
	return next, nil
}

// AttemptSign builds and signs the next LCSS from hc's pending updates and
// returns both the full signed state (kept locally, never sent in full)
// and the compact StateUpdate that is actually placed on the wire (spec.md
// §4.2, step 1). A pending resize proposal, if any, is folded in first.
func AttemptSign(hc *HostedCommits, signer ChannelSigner, blockDay uint32) (
	*lnwire.LastCrossSignedState, *lnwire.StateUpdate, error) {

	unsigned, err := NextLocalUnsignedLCSS(hc, blockDay)
	if err != nil {
		return nil, nil, err
	}
	unsigned = foldResize(hc, unsigned)

	signed, err := WithLocalSigOfRemote(signer, unsigned)
	if err != nil {
		return nil, nil, err
	}

	su := &lnwire.StateUpdate{
		BlockDay:             signed.BlockDay,
		LocalUpdates:         signed.LocalUpdates,
		RemoteUpdates:        signed.RemoteUpdates,
		LocalSigOfRemoteLCSS: signed.LocalSigOfRemote,
	}
	return signed, su, nil
}

// SignResult is the outcome of a successful AttemptStateUpdate promotion.
type SignResult struct {
	HC *HostedCommits

	// RemoteRejectedIDs lists the ids of outgoing HTLCs the host failed
	// or fail-malformed'd as part of the promoted update set; the
	// driver emits a remote-reject event for each (spec.md §4.2).
	RemoteRejectedIDs []uint64
}

// AttemptStateUpdate processes the host's StateUpdate reply to our signed
// proposal (spec.md §4.2, step 2), applying the tie-break rules:
//
//   - blockDay more than one day out of sync: returns ErrOutOfSyncBlockDay:
//     the caller must disconnect and go Sleeping, not suspend.
//   - host acknowledges fewer of our updates than expected: returns
//     ErrRetrySign; the caller persists hc unchanged and resends CMD_SIGN.
//   - signature does not verify, and no resizeProposal rescues it: returns
//     ErrWrongRemoteSig; the caller must localSuspend with
//     ErrCodeWrongRemoteSig.
//
// On success, hc is atomically promoted: lastCrossSignedState advances,
// both pending-update queues are cleared, and any host fail/fail-malformed
// folded into the promotion is surfaced via RemoteRejectedIDs.
func AttemptStateUpdate(hc *HostedCommits, signer ChannelSigner, hostPub *btcec.PublicKey,
	currentBlockDay uint32, remoteSU *lnwire.StateUpdate) (*SignResult, error) {

	if absDiffU32(remoteSU.BlockDay, currentBlockDay) > 1 {
		return nil, ErrOutOfSyncBlockDay
	}

	unsigned, err := NextLocalUnsignedLCSS(hc, remoteSU.BlockDay)
	if err != nil {
		return nil, err
	}
	unsigned = foldResize(hc, unsigned)

	if remoteSU.RemoteUpdates < unsigned.LocalUpdates {
		return nil, ErrRetrySign
	}

	candidate := *unsigned
	candidate.RemoteSigOfLocal = remoteSU.LocalSigOfRemoteLCSS

	resigned, err := WithLocalSigOfRemote(signer, &candidate)
	if err != nil {
		return nil, err
	}

	verified := VerifyRemoteSig(hostPub, resigned)
	if !verified && hc.ResizeProposal != nil {
		resizedCandidate := candidate
		applyResizeSwap(hc.ResizeProposal, &resizedCandidate)

		retrySigned, retryErr := WithLocalSigOfRemote(signer, &resizedCandidate)
		if retryErr == nil && VerifyRemoteSig(hostPub, retrySigned) {
			resigned = retrySigned
			verified = true
		}
	}
	if !verified {
		return nil, ErrWrongRemoteSig
	}

	var rejected []uint64
	for _, upd := range hc.NextRemoteUpdates {
		switch upd.(type) {
		case *FailHtlcUpdate, *FailMalformedHtlcUpdate:
			rejected = append(rejected, upd.HtlcID())
		}
	}

	next := hc.clone()
	next.LastCrossSignedState = *resigned
	next.NextLocalUpdates = nil
	next.NextRemoteUpdates = nil
	next.ResizeProposal = nil

	return &SignResult{HC: next, RemoteRejectedIDs: rejected}, nil
}
