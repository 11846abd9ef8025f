package htlcswitch

import (
	"context"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/queue"

	"github.com/lightningnetwork/hosted-channeld/channeldb"
	"github.com/lightningnetwork/hosted-channeld/contractcourt"
	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// Transport is the minimal capability a hostedChannelLink needs from the
// peer connection: queue one or more messages for delivery to the remote
// party. It says nothing about framing, encryption, or reconnection --
// those are peer.go's concern.
type Transport interface {
	SendMessages(msgs ...lnwire.Message) error
}

// hostedChannelLink drives a single hosted channel's state machine.
// Everything that can change a channel's HostedCommits arrives as an
// Event on queue and is handled by the single goroutine running
// doProcess, so no two goroutines ever race to mutate the same channel's
// state (spec.md §5).
type hostedChannelLink struct {
	chanID lnwire.ChannelID

	db        *channeldb.DB
	signer    lnwallet.ChannelSigner
	hostPub   *btcec.PublicKey
	transport Transport
	checker   contractcourt.PreimageChecker

	// currentBlockDay supplies the live day-since-epoch value the §4.2
	// out-of-sync check and every LCSS we sign are stamped with; it is
	// never derived from the last-signed LCSS itself.
	currentBlockDay func() uint32

	hc *lnwallet.HostedCommits

	blockHeight uint32 // atomic
	nextHtlcID  uint64 // atomic

	queue *queue.ConcurrentQueue
	quit  chan struct{}
}

// NewHostedChannelLink constructs a link around an already-loaded
// HostedCommits. The caller is responsible for persisting hc before this
// call (or having loaded it from channeldb.DB.FetchHostedChannel). checker
// resolves ambiguous outgoing-HTLC timeouts (spec.md §4.4); currentBlockDay
// supplies the live day-since-epoch counter.
func NewHostedChannelLink(chanID lnwire.ChannelID, db *channeldb.DB,
	signer lnwallet.ChannelSigner, hostPub *btcec.PublicKey,
	transport Transport, hc *lnwallet.HostedCommits,
	checker contractcourt.PreimageChecker, currentBlockDay func() uint32) *hostedChannelLink {

	return &hostedChannelLink{
		chanID:          chanID,
		db:              db,
		signer:          signer,
		hostPub:         hostPub,
		transport:       transport,
		checker:         checker,
		currentBlockDay: currentBlockDay,
		hc:              hc,
		queue:           queue.NewConcurrentQueue(64),
		quit:            make(chan struct{}),
	}
}

// Start launches the link's event queue and its draining goroutine.
func (l *hostedChannelLink) Start() {
	l.queue.Start()
	activeLinks.Inc()
	go l.doProcess()
}

// Stop tears the link down; it is safe to call more than once.
func (l *hostedChannelLink) Stop() {
	select {
	case <-l.quit:
		return
	default:
		close(l.quit)
	}
	l.queue.Stop()
	activeLinks.Dec()
}

// Post enqueues an event for this link's goroutine to handle. It never
// blocks the caller on the event actually being processed.
func (l *hostedChannelLink) Post(ev Event) {
	select {
	case l.queue.ChanIn() <- ev:
	case <-l.quit:
	}
}

// doProcess is the link's single-threaded event handler: it drains
// l.queue and dispatches each Event to its handler, in order, for as long
// as the link is running.
func (l *hostedChannelLink) doProcess() {
	for {
		select {
		case raw, ok := <-l.queue.ChanOut():
			if !ok {
				return
			}

			ev, ok := raw.(Event)
			if !ok {
				log.Errorf("hosted channel link %x: dropping event of "+
					"unexpected type %T", l.chanID, raw)
				continue
			}

			l.handle(ev)

		case <-l.quit:
			return
		}
	}
}

func (l *hostedChannelLink) handle(ev Event) {
	switch event := ev.(type) {
	case SocketEvent:
		l.handleSocket(event)
	case BlockTickEvent:
		l.handleBlockTick(event)
	case WireEvent:
		l.handleWire(event.Msg)
	case PreimageFoundEvent:
		l.handlePreimageFound(event)
	case AddCmd:
		l.handleAddCmd(event)
	case FulfillCmd:
		l.handleFulfillCmd(event)
	case FailCmd:
		l.handleFailCmd(event)
	case SignCmd:
		l.attemptSign()
	case ResizeCmd:
		l.handleResizeCmd(event)
	case OverrideAcceptCmd:
		l.handleOverrideAcceptCmd(event)
	default:
		log.Warnf("hosted channel link %x: unhandled event %T", l.chanID, ev)
	}
}

func (l *hostedChannelLink) handleSocket(ev SocketEvent) {
	if ev.Online {
		l.hc.State = lnwallet.StateWaitForAccept
		if err := l.persist(); err != nil {
			log.Errorf("hosted channel link %x: persist on connect: %v", l.chanID, err)
			return
		}

		invoke := &lnwire.InvokeHostedChannel{
			RefundScriptPubKey: l.hc.LastCrossSignedState.RefundScriptPubKey,
		}
		if err := l.transport.SendMessages(invoke); err != nil {
			log.Errorf("hosted channel link %x: send invoke: %v", l.chanID, err)
		}
		return
	}

	l.hc.State = lnwallet.StateSleeping
	if err := l.persist(); err != nil {
		log.Errorf("hosted channel link %x: persist on disconnect: %v", l.chanID, err)
	}
}

func (l *hostedChannelLink) handleBlockTick(ev BlockTickEvent) {
	atomic.StoreUint32(&l.blockHeight, ev.Height)

	if l.hc.State == lnwallet.StateOpen || l.hc.State == lnwallet.StateSleeping {
		l.processExpiry(ev.Height)
	}

	if l.hc.State != lnwallet.StateOpen {
		return
	}
	if len(l.hc.NextLocalUpdates) == 0 && len(l.hc.NextRemoteUpdates) == 0 &&
		l.hc.ResizeProposal == nil {
		return
	}

	l.attemptSign()
}

// processExpiry runs spec.md §4.4's expiry/preimage-rescue algorithm
// against the latest tip, persisting whatever ProcessBlockTick folds back
// into hc and relaying a suspend Fail if the tick forced one.
func (l *hostedChannelLink) processExpiry(tip uint32) {
	outcome, err := contractcourt.ProcessBlockTick(
		context.Background(), l.hc, l.chanID, tip, l.checker,
	)
	if err != nil {
		log.Errorf("hosted channel link %x: process block tick: %v", l.chanID, err)
		return
	}

	if outcome.HC == l.hc {
		return
	}

	l.hc = outcome.HC
	l.persistQuiet()

	if outcome.SuspendFail != nil {
		if err := l.transport.SendMessages(outcome.SuspendFail); err != nil {
			log.Errorf("hosted channel link %x: send suspend fail: %v", l.chanID, err)
		}
	}
}

func (l *hostedChannelLink) handleWire(msg lnwire.Message) {
	switch m := msg.(type) {
	case *lnwire.InitHostedChannel:
		l.handleInitHostedChannel(m)

	case *lnwire.LastCrossSignedState:
		l.handleLastCrossSignedState(m)

	case *lnwire.StateUpdate:
		l.handleStateUpdate(m)

	case *lnwire.UpdateAddHTLC:
		next, err := lnwallet.ReceiveAdd(l.hc, m)
		l.commitOrSuspend(next, err)

	case *lnwire.UpdateFulfillHTLC:
		next, err := lnwallet.ReceiveFulfill(l.hc, m)
		l.commitOrSuspend(next, err)

	case *lnwire.UpdateFailHTLC:
		next, err := lnwallet.ReceiveFail(l.hc, m)
		l.commitOrDisconnect(next, err)

	case *lnwire.UpdateFailMalformedHTLC:
		next, err := lnwallet.ReceiveFailMalformed(l.hc, m)
		l.commitOrDisconnect(next, err)

	case *lnwire.ResizeChannel:
		if lnwallet.VerifyResizeSig(l.hc.RemoteInfo.NodeSpecificPubKey, m) {
			next := *l.hc
			next.ResizeProposal = m
			l.hc = &next
			l.persistQuiet()
		}

	case *lnwire.StateOverride:
		l.hc = lnwallet.ReceiveStateOverride(l.hc, m)
		l.persistQuiet()

	case *lnwire.Fail:
		l.hc = lnwallet.ReceiveRemoteError(l.hc, m)
		l.persistQuiet()

	case *lnwire.AskBrandingInfo:
		l.handleAskBrandingInfo(m)

	default:
		log.Debugf("hosted channel link %x: ignoring wire message %T", l.chanID, msg)
	}
}

// handleInitHostedChannel implements spec.md §4.5's WaitForAccept +
// InitHostedChannel transition: the host's reply to our InvokeHostedChannel
// on a brand new channel (as opposed to the LastCrossSignedState restore
// path, handled by handleLastCrossSignedState).
func (l *hostedChannelLink) handleInitHostedChannel(init *lnwire.InitHostedChannel) {
	if l.hc.State != lnwallet.StateWaitForAccept {
		log.Warnf("hosted channel link %x: ignoring InitHostedChannel outside "+
			"WaitForAccept (state %s)", l.chanID, l.hc.State)
		return
	}

	next, su, err := lnwallet.AcceptInitHostedChannel(
		l.hc, l.signer, init, l.currentBlockDay(),
	)
	if err != nil {
		log.Errorf("hosted channel link %x: rejecting InitHostedChannel: %v",
			l.chanID, err)
		suspended, fail := lnwallet.LocalSuspend(l.hc, l.chanID, lnwallet.ErrCodeManualSuspend)
		l.hc = suspended
		l.persistQuiet()
		if fail != nil {
			l.transport.SendMessages(fail)
		}
		return
	}

	l.hc = next
	if err := l.persist(); err != nil {
		log.Errorf("hosted channel link %x: persist after InitHostedChannel: %v",
			l.chanID, err)
		return
	}
	if err := l.transport.SendMessages(su); err != nil {
		log.Errorf("hosted channel link %x: send initial state update: %v",
			l.chanID, err)
	}
}

func (l *hostedChannelLink) handleLastCrossSignedState(remote *lnwire.LastCrossSignedState) {
	result, err := lnwallet.AttemptInitResync(
		l.hc, l.signer, l.hc.RemoteInfo.NodeSpecificPubKey, l.hostPub, l.chanID, remote,
	)
	if err != nil {
		log.Errorf("hosted channel link %x: resync failed: %v", l.chanID, err)
		return
	}

	resyncOutcomes.WithLabelValues(resyncOutcomeLabel(result.Outcome)).Inc()

	l.hc = result.HC
	l.hc.State = lnwallet.StateOpen
	if err := l.persist(); err != nil {
		log.Errorf("hosted channel link %x: persist after resync: %v", l.chanID, err)
		return
	}

	if err := l.transport.SendMessages(result.OutMessages...); err != nil {
		log.Errorf("hosted channel link %x: send resync messages: %v", l.chanID, err)
	}
}

func resyncOutcomeLabel(outcome lnwallet.ResyncOutcome) string {
	switch outcome {
	case lnwallet.ResyncEven:
		return "even"
	case lnwallet.ResyncAhead:
		return "ahead"
	case lnwallet.ResyncBehind:
		return "behind"
	case lnwallet.ResyncTooFarBehind:
		return "too_far_behind"
	default:
		return "unknown"
	}
}

func (l *hostedChannelLink) handleStateUpdate(su *lnwire.StateUpdate) {
	if l.hc.State == lnwallet.StateWaitRemoteHostedStateUpdate {
		l.handleInitialStateUpdate(su)
		return
	}

	result, err := lnwallet.AttemptStateUpdate(
		l.hc, l.signer, l.hostPub, l.currentBlockDay(), su,
	)
	switch err {
	case nil:
		signAttempts.WithLabelValues("success").Inc()
		l.hc = result.HC
		if perr := l.persist(); perr != nil {
			log.Errorf("hosted channel link %x: persist after state update: %v",
				l.chanID, perr)
		}
		htlcsForwarded.WithLabelValues("remote_rejected").Add(float64(len(result.RemoteRejectedIDs)))

	case lnwallet.ErrRetrySign:
		signAttempts.WithLabelValues("retry").Inc()
		l.attemptSign()

	case lnwallet.ErrOutOfSyncBlockDay:
		signAttempts.WithLabelValues("out_of_sync").Inc()
		l.hc.State = lnwallet.StateSleeping
		l.persistQuiet()

	case lnwallet.ErrWrongRemoteSig:
		signAttempts.WithLabelValues("wrong_sig").Inc()
		next, fail := lnwallet.LocalSuspend(l.hc, l.chanID, lnwallet.ErrCodeWrongRemoteSig)
		l.hc = next
		l.persistQuiet()
		if fail != nil {
			l.transport.SendMessages(fail)
		}

	default:
		log.Errorf("hosted channel link %x: state update error: %v", l.chanID, err)
	}
}

// handleInitialStateUpdate implements spec.md §4.5's
// WaitRemoteHostedStateUpdate + StateUpdate transition: the host's reply to
// the zero-state LCSS we signed in handleInitHostedChannel.
func (l *hostedChannelLink) handleInitialStateUpdate(su *lnwire.StateUpdate) {
	next, err := lnwallet.AttemptInitialStateUpdate(l.hc, l.hostPub, l.currentBlockDay(), su)
	switch err {
	case nil:
		signAttempts.WithLabelValues("initial_success").Inc()
		l.hc = next
		if perr := l.persist(); perr != nil {
			log.Errorf("hosted channel link %x: persist after initial state update: %v",
				l.chanID, perr)
			return
		}
		ask := &lnwire.AskBrandingInfo{ChanID: l.chanID}
		if serr := l.transport.SendMessages(ask); serr != nil {
			log.Errorf("hosted channel link %x: send ask branding info: %v",
				l.chanID, serr)
		}

	case lnwallet.ErrOutOfSyncBlockDay:
		signAttempts.WithLabelValues("initial_out_of_sync").Inc()
		l.hc.State = lnwallet.StateSleeping
		l.persistQuiet()

	case lnwallet.ErrWrongRemoteSig:
		signAttempts.WithLabelValues("initial_wrong_sig").Inc()
		suspended, fail := lnwallet.LocalSuspend(l.hc, l.chanID, lnwallet.ErrCodeWrongRemoteSig)
		l.hc = suspended
		l.persistQuiet()
		if fail != nil {
			l.transport.SendMessages(fail)
		}

	default:
		signAttempts.WithLabelValues("initial_rejected").Inc()
		suspended, fail := lnwallet.LocalSuspend(l.hc, l.chanID, lnwallet.ErrCodeManualSuspend)
		l.hc = suspended
		l.persistQuiet()
		if fail != nil {
			l.transport.SendMessages(fail)
		}
	}
}

func (l *hostedChannelLink) attemptSign() {
	signed, su, err := lnwallet.AttemptSign(l.hc, l.signer, l.currentBlockDay())
	if err != nil {
		log.Errorf("hosted channel link %x: attempt sign: %v", l.chanID, err)
		return
	}

	_ = signed // kept locally only via l.hc's pending queues until the host acks

	if err := l.transport.SendMessages(su); err != nil {
		log.Errorf("hosted channel link %x: send state update: %v", l.chanID, err)
	}
}

func (l *hostedChannelLink) handlePreimageFound(ev PreimageFoundEvent) {
	next, _, err := lnwallet.CmdFulfillHtlc(l.hc, ev.HtlcID, ev.Preimage)
	l.commitOrLog(next, err, "preimage rescue fulfill")
}

func (l *hostedChannelLink) handleAddCmd(cmd AddCmd) {
	id := atomic.AddUint64(&l.nextHtlcID, 1)

	next, add, err := lnwallet.SendAdd(l.hc, cmd.Cmd, id, atomic.LoadUint32(&l.blockHeight))
	if err != nil {
		cmd.Result <- AddResult{Err: err}
		return
	}

	l.hc = next
	if perr := l.persist(); perr != nil {
		cmd.Result <- AddResult{Err: perr}
		return
	}

	if err := l.transport.SendMessages(add); err != nil {
		cmd.Result <- AddResult{Err: err}
		return
	}

	htlcsForwarded.WithLabelValues("sent_add").Inc()
	cmd.Result <- AddResult{ID: id}
	l.attemptSign()
}

func (l *hostedChannelLink) handleFulfillCmd(cmd FulfillCmd) {
	next, msg, err := lnwallet.CmdFulfillHtlc(l.hc, cmd.HtlcID, cmd.Preimage)
	if err != nil {
		cmd.Done <- err
		return
	}

	l.hc = next
	if perr := l.persist(); perr != nil {
		cmd.Done <- perr
		return
	}
	cmd.Done <- l.transport.SendMessages(msg)
	l.attemptSign()
}

func (l *hostedChannelLink) handleFailCmd(cmd FailCmd) {
	next, msg, err := lnwallet.CmdFailHtlc(l.hc, cmd.HtlcID, cmd.Reason)
	if err != nil {
		cmd.Done <- err
		return
	}

	l.hc = next
	if perr := l.persist(); perr != nil {
		cmd.Done <- perr
		return
	}
	cmd.Done <- l.transport.SendMessages(msg)
	l.attemptSign()
}

func (l *hostedChannelLink) handleResizeCmd(cmd ResizeCmd) {
	next, resize, err := lnwallet.ProposeResize(l.hc, l.signer, cmd.Delta)
	if err != nil {
		cmd.Done <- err
		return
	}

	l.hc = next
	if perr := l.persist(); perr != nil {
		cmd.Done <- perr
		return
	}
	cmd.Done <- l.transport.SendMessages(resize)
}

func (l *hostedChannelLink) handleOverrideAcceptCmd(cmd OverrideAcceptCmd) {
	result, err := lnwallet.AcceptOverride(l.hc, l.signer, l.hostPub)
	if err != nil {
		cmd.Done <- err
		return
	}

	l.hc = result.HC
	htlcsForwarded.WithLabelValues("override_rejected").Add(float64(len(result.RemoteRejectedIDs)))
	cmd.Done <- l.persist()
}

func (l *hostedChannelLink) handleAskBrandingInfo(ask *lnwire.AskBrandingInfo) {
	branding, err := l.db.FetchBranding(l.chanID)
	if err != nil {
		return
	}
	if err := l.transport.SendMessages(branding); err != nil {
		log.Errorf("hosted channel link %x: send branding: %v", l.chanID, err)
	}
}

// commitOrSuspend adopts next on success; on a protocol-fatal error it
// localSuspends the channel with ErrCodeManualSuspend and notifies the
// peer, matching spec.md §4.8's "suspend, don't crash" discipline.
func (l *hostedChannelLink) commitOrSuspend(next *lnwallet.HostedCommits, err error) {
	if err != nil {
		suspended, fail := lnwallet.LocalSuspend(l.hc, l.chanID, lnwallet.ErrCodeManualSuspend)
		l.hc = suspended
		l.persistQuiet()
		if fail != nil {
			l.transport.SendMessages(fail)
		}
		return
	}

	l.hc = next
	l.persistQuiet()
}

// commitOrDisconnect adopts next on success; on ErrDisconnectAndSleep (a
// fail racing an unsigned add, spec.md §4.3) it drops to Sleeping instead
// of suspending, since the condition resolves itself on reconnect/resync.
func (l *hostedChannelLink) commitOrDisconnect(next *lnwallet.HostedCommits, err error) {
	if err == lnwallet.ErrDisconnectAndSleep {
		l.hc.State = lnwallet.StateSleeping
		l.persistQuiet()
		return
	}
	l.commitOrSuspend(next, err)
}

func (l *hostedChannelLink) commitOrLog(next *lnwallet.HostedCommits, err error, what string) {
	if err != nil {
		log.Errorf("hosted channel link %x: %s: %v", l.chanID, what, err)
		return
	}
	l.hc = next
	l.persistQuiet()
}

// persist durably writes l.hc before returning; callers that must send a
// message as a consequence of this state change always call persist (and
// check its error) before calling transport.SendMessages, realizing the
// write-then-send ordering guarantee of spec.md §5.
func (l *hostedChannelLink) persist() error {
	return l.db.PutHostedChannel(l.chanID, l.hc)
}

func (l *hostedChannelLink) persistQuiet() {
	if err := l.persist(); err != nil {
		log.Errorf("hosted channel link %x: persist: %v", l.chanID, err)
	}
}
