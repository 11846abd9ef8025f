package contractcourt

import (
	"context"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// PreimageChecker is the external, on-chain preimage lookup collaborator
// (spec.md §1, §4.4): given a set of payment hashes, it returns whatever
// preimages it can find for them, consulting whatever PHC-sync peers or
// chain indexes the daemon is configured with. Hosted channels have no
// on-chain enforcement of their own; this is the one place the state
// machine still reaches outside itself, and only to rescue value that
// would otherwise be lost to a race between an expiring HTLC and its
// peer's unrelated preimage reveal.
type PreimageChecker interface {
	Check(ctx context.Context, hashes [][32]byte) (map[[32]byte][32]byte, error)
}

// ExpiryClassification is the pure result of evaluating one block tick
// against a channel's current state (spec.md §4.4, steps 1-2), before any
// asynchronous PreimageCheck round trip.
type ExpiryClassification struct {
	// SentExpiredByHash groups this channel's outgoing HTLCs whose
	// cltvExpiry the new tip has passed, by payment hash -- a
	// PreimageCheck is performed per-hash, so two outgoing HTLCs can
	// share one rescue query.
	SentExpiredByHash map[[32]byte][]uint64

	// MustSuspendImmediately is set when an incoming HTLC we already
	// revealed the preimage for (a fulfill pending in NextLocalUpdates)
	// has itself expired before the host signed off on the removal --
	// we may have given up value without being paid for it.
	MustSuspendImmediately bool
}

// ClassifyExpiry implements spec.md §4.4 steps 1-2: it never mutates hc
// and never talks to a PreimageChecker; ProcessBlockTick does both, using
// this as its synchronous first half.
func ClassifyExpiry(hc *lnwallet.HostedCommits, tip uint32) ExpiryClassification {
	var result ExpiryClassification
	result.SentExpiredByHash = make(map[[32]byte][]uint64)

	for _, add := range hc.LastCrossSignedState.OutgoingHtlcs {
		if tip > add.Expiry {
			result.SentExpiredByHash[add.PaymentHash] = append(
				result.SentExpiredByHash[add.PaymentHash], add.ID,
			)
		}
	}

	fulfilledIncoming := make(map[uint64]struct{})
	for _, upd := range hc.NextLocalUpdates {
		if f, ok := upd.(*lnwallet.FulfillHtlcUpdate); ok {
			fulfilledIncoming[f.ID] = struct{}{}
		}
	}

	for _, add := range hc.LastCrossSignedState.IncomingHtlcs {
		if _, revealed := fulfilledIncoming[add.ID]; !revealed {
			continue
		}
		if tip > add.Expiry {
			result.MustSuspendImmediately = true
			break
		}
	}

	return result
}

// BlockTickOutcome is the full result of ProcessBlockTick, folding in the
// asynchronous PreimageCheck round trip of spec.md §4.4 step 3.
type BlockTickOutcome struct {
	HC *lnwallet.HostedCommits

	// RemoteFulfills lists the synthetic UpdateFulfillHTLC messages to
	// fold into hc via lnwallet.ReceiveFulfill, one per expired
	// outgoing add whose payment hash PreimageCheck resolved.
	RemoteFulfills []*lnwire.UpdateFulfillHTLC

	// RejectedLocallyIDs lists expired outgoing add ids that
	// PreimageCheck could not rescue.
	RejectedLocallyIDs []uint64

	// SuspendFail is non-nil whenever the tick forced the channel into
	// its error state; the driver must send it to the peer.
	SuspendFail *lnwire.Fail
}

// ProcessBlockTick runs the full spec.md §4.4 algorithm for one new tip: it
// classifies expiry (steps 1-2), and if any outgoing HTLC has timed out,
// calls the configured PreimageChecker (step 3) before folding the result
// back into hc and suspending the channel. It is the caller's
// responsibility to persist the returned HC and to relay RemoteFulfills.
func ProcessBlockTick(ctx context.Context, hc *lnwallet.HostedCommits, chanID lnwire.ChannelID,
	tip uint32, checker PreimageChecker) (*BlockTickOutcome, error) {

	class := ClassifyExpiry(hc, tip)

	if class.MustSuspendImmediately {
		next, fail := lnwallet.LocalSuspend(hc, chanID, lnwallet.ErrCodeManualSuspend)
		return &BlockTickOutcome{HC: next, SuspendFail: fail}, nil
	}

	if len(class.SentExpiredByHash) == 0 {
		return &BlockTickOutcome{HC: hc}, nil
	}

	hashes := make([][32]byte, 0, len(class.SentExpiredByHash))
	for hash := range class.SentExpiredByHash {
		hashes = append(hashes, hash)
	}

	found, err := checker.Check(ctx, hashes)
	if err != nil {
		log.Errorf("preimage check for channel %x failed: %v", chanID, err)
		found = nil
	}

	outcome := &BlockTickOutcome{HC: hc}

	for hash, ids := range class.SentExpiredByHash {
		preimage, rescued := found[hash]
		for _, id := range ids {
			if rescued {
				outcome.RemoteFulfills = append(outcome.RemoteFulfills,
					&lnwire.UpdateFulfillHTLC{
						ChanID:          chanID,
						ID:              id,
						PaymentPreimage: preimage,
					})
			} else {
				outcome.RejectedLocallyIDs = append(outcome.RejectedLocallyIDs, id)
			}
		}
	}

	current := hc
	for _, fulfill := range outcome.RemoteFulfills {
		next, err := lnwallet.ReceiveFulfill(current, fulfill)
		if err != nil {
			log.Errorf("channel %x: folding rescued preimage for htlc %d: %v",
				chanID, fulfill.ID, err)
			continue
		}
		current = next
	}

	resolved := make(map[uint64]struct{}, len(current.PostErrorOutgoingResolvedIds))
	for id := range current.PostErrorOutgoingResolvedIds {
		resolved[id] = struct{}{}
	}
	for _, ids := range class.SentExpiredByHash {
		for _, id := range ids {
			resolved[id] = struct{}{}
		}
	}
	current = current.WithPostErrorOutgoingResolvedIds(resolved)

	suspended, fail := lnwallet.LocalSuspend(current, chanID, lnwallet.ErrCodeTimedOutOutgoingHtlc)
	outcome.HC = suspended
	outcome.SuspendFail = fail

	return outcome, nil
}

// ExpiryWatcher drives block-tick processing off a periodic ticker.Ticker
// rather than waiting on an externally pushed block-count feed, for
// deployments that only have a polling chain backend available. On each
// tick it calls the onTick callback given to Start with the latest height;
// it never touches channel state itself, so an onTick that posts onto each
// link's own event queue keeps the watcher's goroutine from racing the link.
type ExpiryWatcher struct {
	checker PreimageChecker
	ticker  ticker.Ticker

	quit chan struct{}
}

// NewExpiryWatcher constructs a watcher that ticks at interval. checker is
// stored on the watcher but not consulted by it; ambiguous outgoing timeouts
// are resolved by ProcessBlockTick with the checker passed to it.
func NewExpiryWatcher(checker PreimageChecker, interval ticker.Ticker) *ExpiryWatcher {
	return &ExpiryWatcher{
		checker: checker,
		ticker:  interval,
		quit:    make(chan struct{}),
	}
}

// Start begins the watcher's ticking, invoking onTick with the latest
// observed block height on every tick until Stop is called.
func (w *ExpiryWatcher) Start(currentHeight func() uint32, onTick func(height uint32)) {
	w.ticker.Resume()
	go func() {
		for {
			select {
			case <-w.ticker.Ticks():
				onTick(currentHeight())
			case <-w.quit:
				w.ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the watcher.
func (w *ExpiryWatcher) Stop() {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
}
