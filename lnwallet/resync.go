package lnwallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// ResyncOutcome classifies the result of attemptInitResync (spec.md §4.6).
type ResyncOutcome uint8

const (
	// ResyncEven means both sides already agree: localUpdates/remoteUpdates
	// match across the reversed views.
	ResyncEven ResyncOutcome = iota

	// ResyncAhead means we have originated updates the host has not yet
	// acknowledged.
	ResyncAhead

	// ResyncBehind means the host has acknowledged updates we can
	// reconstruct from our pending queues.
	ResyncBehind

	// ResyncTooFarBehind means the reconstructed state does not match the
	// host's claim; the host's state is adopted as authoritative.
	ResyncTooFarBehind
)

// ResyncResult is the outcome of a successful attemptInitResync call.
type ResyncResult struct {
	HC      *HostedCommits
	Outcome ResyncOutcome

	// OutMessages are sent, in order, once HC is persisted.
	OutMessages []lnwire.Message

	// RejectedIDs lists outgoing HTLCs lost when adopting the host's
	// state as authoritative (ResyncTooFarBehind only).
	RejectedIDs []uint64
}

// updateWireMessage unwraps an UpdateMessage to the lnwire.Message that was
// originally sent for it, so it can be re-sent during resync.
func updateWireMessage(u UpdateMessage) lnwire.Message {
	switch m := u.(type) {
	case *AddHtlcUpdate:
		return m.Add
	case *FulfillHtlcUpdate:
		return m.Fulfill
	case *FailHtlcUpdate:
		return m.Fail
	case *FailMalformedHtlcUpdate:
		return m.FailMalformed
	default:
		return nil
	}
}

// toStateUpdate builds the compact StateUpdate wire form of a fully signed
// LCSS, the form actually placed on the wire (spec.md §4.1).
func toStateUpdate(l *lnwire.LastCrossSignedState) *lnwire.StateUpdate {
	return &lnwire.StateUpdate{
		BlockDay:             l.BlockDay,
		LocalUpdates:         l.LocalUpdates,
		RemoteUpdates:        l.RemoteUpdates,
		LocalSigOfRemoteLCSS: l.LocalSigOfRemote,
	}
}

// AttemptInitResync reconciles our HostedCommits against the host's reply
// to InvokeHostedChannel on reconnect (spec.md §4.6). localPub is our own
// channel public key, used to re-verify our own earlier signature on the
// host's claimed state.
func AttemptInitResync(hc *HostedCommits, signer ChannelSigner, localPub, hostPub *btcec.PublicKey,
	chanID lnwire.ChannelID, received *lnwire.LastCrossSignedState) (*ResyncResult, error) {

	l := hc.LastCrossSignedState
	if hc.ResizeProposal != nil && hc.ResizeProposal.NewCapacity == received.ChannelCapacity {
		applyResizeSwap(hc.ResizeProposal, &l)
	}

	// received.RemoteSigOfLocal was produced by us (we are "remote" to
	// the host's own LCSS); received.LocalSigOfRemote was produced by
	// the host over our reversed view.
	ourSigOK := verifyHash(localPub, hostedSigHash(received), received.RemoteSigOfLocal)
	hostSigOK := verifyHash(hostPub, hostedSigHash(ReverseLCSS(received)), received.LocalSigOfRemote)
	if !ourSigOK || !hostSigOK {
		return nil, NewTransitionError(chanID, "resync: invalid signature on remote state")
	}

	switch {
	case l.RemoteUpdates == received.LocalUpdates && l.LocalUpdates == received.RemoteUpdates:
		return resyncEvenOrAhead(hc, ResyncEven, received)

	case l.RemoteUpdates > received.LocalUpdates || l.LocalUpdates > received.RemoteUpdates:
		return resyncEvenOrAhead(hc, ResyncAhead, received)

	default:
		return resyncBehind(hc, signer, chanID, received)
	}
}

// resyncEvenOrAhead handles spec.md §4.6 step 4: we resend our current
// state, any pending resize proposal, and our still-unacknowledged local
// updates; the peer must resend anything it had pending for us.
func resyncEvenOrAhead(hc *HostedCommits, outcome ResyncOutcome, received *lnwire.LastCrossSignedState) (
	*ResyncResult, error) {

	l := hc.LastCrossSignedState

	var out []lnwire.Message
	out = append(out, toStateUpdate(&l))
	if hc.ResizeProposal != nil {
		out = append(out, hc.ResizeProposal)
	}
	for _, upd := range hc.NextLocalUpdates {
		if msg := updateWireMessage(upd); msg != nil {
			out = append(out, msg)
		}
	}

	next := hc.clone()
	next.NextRemoteUpdates = nil
	next.State = StateOpen

	return &ResyncResult{HC: next, Outcome: outcome, OutMessages: out}, nil
}

// resyncBehind handles spec.md §4.6 step 5: the host has acknowledged
// updates on both sides that we can reconstruct from our pending queues.
func resyncBehind(hc *HostedCommits, signer ChannelSigner, chanID lnwire.ChannelID,
	received *lnwire.LastCrossSignedState) (*ResyncResult, error) {

	l := hc.LastCrossSignedState

	localAcked := received.RemoteUpdates - l.LocalUpdates
	remoteAcked := received.LocalUpdates - l.RemoteUpdates

	accounted, leftover := splitUpdates(hc.NextLocalUpdates, localAcked)
	truncatedRemote, _ := splitUpdates(hc.NextRemoteUpdates, remoteAcked)

	reconstructed := hc.clone()
	reconstructed.NextLocalUpdates = accounted
	reconstructed.NextRemoteUpdates = truncatedRemote

	synced, err := NextLocalUnsignedLCSS(reconstructed, received.BlockDay)
	if err != nil {
		return nil, err
	}
	synced.RemoteSigOfLocal = received.RemoteSigOfLocal
	synced.LocalSigOfRemote = received.LocalSigOfRemote

	if !reverseEqual(synced, received) {
		return resyncTooFarBehind(hc, received)
	}

	next := hc.clone()
	next.LastCrossSignedState = *synced
	next.NextLocalUpdates = leftover
	next.NextRemoteUpdates = nil
	next.State = StateOpen

	var out []lnwire.Message
	out = append(out, toStateUpdate(synced))
	if hc.ResizeProposal != nil {
		out = append(out, hc.ResizeProposal)
	}
	for _, upd := range leftover {
		if msg := updateWireMessage(upd); msg != nil {
			out = append(out, msg)
		}
	}

	return &ResyncResult{HC: next, Outcome: ResyncBehind, OutMessages: out}, nil
}

// resyncTooFarBehind adopts the host's claimed state as authoritative when
// our reconstruction does not match it exactly (spec.md §4.6 step 5, final
// sentence). Any outgoing HTLCs we were carrying that do not survive in the
// adopted state are reported as rejected.
func resyncTooFarBehind(hc *HostedCommits, received *lnwire.LastCrossSignedState) (*ResyncResult, error) {
	adopted := ReverseLCSS(received)

	lost := lostOutgoingIDs(hc.LocalSpec().OutgoingHtlcs, LocalSpec(adopted).OutgoingHtlcs)

	next := hc.clone()
	next.LastCrossSignedState = *adopted
	next.NextLocalUpdates = nil
	next.NextRemoteUpdates = nil
	next.State = StateOpen

	return &ResyncResult{
		HC:          next,
		Outcome:     ResyncTooFarBehind,
		OutMessages: []lnwire.Message{adopted},
		RejectedIDs: lost,
	}, nil
}

// splitUpdates splits updates into the first n (accounted for) and the
// remainder (leftover). n is clamped to [0, len(updates)].
func splitUpdates(updates []UpdateMessage, n uint32) (accounted, leftover []UpdateMessage) {
	count := int(n)
	if count < 0 {
		count = 0
	}
	if count > len(updates) {
		count = len(updates)
	}

	accounted = append([]UpdateMessage{}, updates[:count]...)
	leftover = append([]UpdateMessage{}, updates[count:]...)
	return accounted, leftover
}

// reverseEqual reports whether a's reversed view matches b in every field
// that matters for wire equality: balances, counters, htlc sets, block day,
// and the two signature slots.
func reverseEqual(a, b *lnwire.LastCrossSignedState) bool {
	rev := ReverseLCSS(a)

	if rev.BlockDay != b.BlockDay ||
		rev.LocalBalance != b.LocalBalance ||
		rev.RemoteBalance != b.RemoteBalance ||
		rev.LocalUpdates != b.LocalUpdates ||
		rev.RemoteUpdates != b.RemoteUpdates ||
		rev.LocalSigOfRemote != b.LocalSigOfRemote ||
		rev.RemoteSigOfLocal != b.RemoteSigOfLocal {
		return false
	}

	return htlcIDsEqual(rev.IncomingHtlcs, b.IncomingHtlcs) &&
		htlcIDsEqual(rev.OutgoingHtlcs, b.OutgoingHtlcs)
}

func htlcIDsEqual(a, b []*lnwire.UpdateAddHTLC) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Amount != b[i].Amount {
			return false
		}
	}
	return true
}

// lostOutgoingIDs returns the ids present in before but absent from after.
func lostOutgoingIDs(before, after []*lnwire.UpdateAddHTLC) []uint64 {
	present := make(map[uint64]struct{}, len(after))
	for _, h := range after {
		present[h.ID] = struct{}{}
	}

	var lost []uint64
	for _, h := range before {
		if _, ok := present[h.ID]; !ok {
			lost = append(lost, h.ID)
		}
	}
	return lost
}
