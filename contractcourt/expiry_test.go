package contractcourt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

type fakeChecker struct {
	found map[[32]byte][32]byte
	err   error
}

func (f *fakeChecker) Check(_ context.Context, hashes [][32]byte) (map[[32]byte][32]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[[32]byte][32]byte)
	for _, h := range hashes {
		if preimage, ok := f.found[h]; ok {
			out[h] = preimage
		}
	}
	return out, nil
}

func testHC(t *testing.T) (*lnwallet.HostedCommits, lnwire.ChannelID) {
	t.Helper()

	clientPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	hostPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hc := &lnwallet.HostedCommits{
		RemoteInfo: lnwallet.RemoteInfo{
			NodeID:             hostPriv.PubKey(),
			NodeSpecificPubKey: clientPriv.PubKey(),
		},
		LastCrossSignedState: lnwire.LastCrossSignedState{
			InitHostedChannel: lnwire.InitHostedChannel{
				ChannelCapacity:      1_000_000_000,
				MaxHtlcValueInFlight: 1_000_000_000,
				HtlcMinimum:          1000,
				MaxAcceptedHtlcs:     30,
			},
			LocalBalance:  600_000_000,
			RemoteBalance: 400_000_000,
		},
		State: lnwallet.StateOpen,
	}
	chanID := lnwallet.ChannelIDFor(clientPriv.PubKey(), hostPriv.PubKey())
	return hc, chanID
}

func TestClassifyExpiryNoneExpired(t *testing.T) {
	hc, _ := testHC(t)
	hc.LastCrossSignedState.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 1, PaymentHash: [32]byte{1}, Expiry: 500},
	}

	class := ClassifyExpiry(hc, 400)
	require.Empty(t, class.SentExpiredByHash)
	require.False(t, class.MustSuspendImmediately)
}

func TestClassifyExpiryGroupsByHash(t *testing.T) {
	hc, _ := testHC(t)
	hash := [32]byte{7}
	hc.LastCrossSignedState.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 1, PaymentHash: hash, Expiry: 100},
		{ID: 2, PaymentHash: hash, Expiry: 100},
		{ID: 3, PaymentHash: [32]byte{9}, Expiry: 900},
	}

	class := ClassifyExpiry(hc, 200)
	require.ElementsMatch(t, []uint64{1, 2}, class.SentExpiredByHash[hash])
	require.Empty(t, class.SentExpiredByHash[[32]byte{9}])
	require.False(t, class.MustSuspendImmediately)
}

func TestClassifyExpiryFulfilledIncomingExpiring(t *testing.T) {
	hc, _ := testHC(t)
	hc.LastCrossSignedState.IncomingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 5, PaymentHash: [32]byte{3}, Expiry: 100},
	}
	hc.NextLocalUpdates = []lnwallet.UpdateMessage{
		&lnwallet.FulfillHtlcUpdate{ID: 5},
	}

	class := ClassifyExpiry(hc, 200)
	require.True(t, class.MustSuspendImmediately)
}

func TestClassifyExpiryUnrevealedIncomingExpiringIsFine(t *testing.T) {
	hc, _ := testHC(t)
	hc.LastCrossSignedState.IncomingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 5, PaymentHash: [32]byte{3}, Expiry: 100},
	}

	class := ClassifyExpiry(hc, 200)
	require.False(t, class.MustSuspendImmediately)
}

func TestProcessBlockTickNoExpiryIsNoop(t *testing.T) {
	hc, chanID := testHC(t)
	hc.LastCrossSignedState.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 1, PaymentHash: [32]byte{1}, Expiry: 500},
	}

	outcome, err := ProcessBlockTick(context.Background(), hc, chanID, 400, &fakeChecker{})
	require.NoError(t, err)
	require.Same(t, hc, outcome.HC)
	require.Nil(t, outcome.SuspendFail)
	require.Empty(t, outcome.RemoteFulfills)
	require.Empty(t, outcome.RejectedLocallyIDs)
}

func TestProcessBlockTickRescuesViaPreimageCheck(t *testing.T) {
	hc, chanID := testHC(t)
	hash := [32]byte{7}
	preimage := [32]byte{42}
	hc.LastCrossSignedState.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 1, PaymentHash: hash, Expiry: 100},
	}

	checker := &fakeChecker{found: map[[32]byte][32]byte{hash: preimage}}
	outcome, err := ProcessBlockTick(context.Background(), hc, chanID, 200, checker)
	require.NoError(t, err)

	require.Len(t, outcome.RemoteFulfills, 1)
	require.Equal(t, uint64(1), outcome.RemoteFulfills[0].ID)
	require.Equal(t, preimage, outcome.RemoteFulfills[0].PaymentPreimage)
	require.Empty(t, outcome.RejectedLocallyIDs)

	require.NotNil(t, outcome.SuspendFail)
	require.Equal(t, lnwallet.ErrCodeTimedOutOutgoingHtlc, string(outcome.SuspendFail.Data))
	require.NotNil(t, outcome.HC.LocalError)
}

func TestProcessBlockTickRejectsUnrescued(t *testing.T) {
	hc, chanID := testHC(t)
	hash := [32]byte{7}
	hc.LastCrossSignedState.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 1, PaymentHash: hash, Expiry: 100},
	}

	checker := &fakeChecker{found: map[[32]byte][32]byte{}}
	outcome, err := ProcessBlockTick(context.Background(), hc, chanID, 200, checker)
	require.NoError(t, err)

	require.Empty(t, outcome.RemoteFulfills)
	require.Equal(t, []uint64{1}, outcome.RejectedLocallyIDs)
	require.NotNil(t, outcome.SuspendFail)
	require.Contains(t, outcome.HC.PostErrorOutgoingResolvedIds, uint64(1))
}

func TestProcessBlockTickCheckerErrorTreatedAsUnrescued(t *testing.T) {
	hc, chanID := testHC(t)
	hash := [32]byte{7}
	hc.LastCrossSignedState.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 1, PaymentHash: hash, Expiry: 100},
	}

	checker := &fakeChecker{err: errors.New("preimage lookup backend unavailable")}
	outcome, err := ProcessBlockTick(context.Background(), hc, chanID, 200, checker)
	require.NoError(t, err)

	require.Empty(t, outcome.RemoteFulfills)
	require.Equal(t, []uint64{1}, outcome.RejectedLocallyIDs)
	require.NotNil(t, outcome.SuspendFail)
}

func TestProcessBlockTickSuspendsImmediatelyOnFulfilledExpiringIncoming(t *testing.T) {
	hc, chanID := testHC(t)
	hc.LastCrossSignedState.IncomingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 9, PaymentHash: [32]byte{3}, Expiry: 100},
	}
	hc.NextLocalUpdates = []lnwallet.UpdateMessage{
		&lnwallet.FulfillHtlcUpdate{ID: 9},
	}

	outcome, err := ProcessBlockTick(context.Background(), hc, chanID, 200, &fakeChecker{})
	require.NoError(t, err)
	require.NotNil(t, outcome.SuspendFail)
	require.Equal(t, lnwallet.ErrCodeManualSuspend, string(outcome.SuspendFail.Data))
}

func TestExpiryWatcherStartStop(t *testing.T) {
	mock := ticker.NewTestTicker()
	w := NewExpiryWatcher(&fakeChecker{}, mock)

	ticked := make(chan uint32, 1)
	w.Start(func() uint32 { return 123 }, func(height uint32) {
		ticked <- height
	})

	select {
	case mock.Force <- time.Time{}:
	case <-time.After(time.Second):
		t.Fatal("watcher never read from the ticker")
	}

	require.Equal(t, uint32(123), <-ticked)
	w.Stop()
}
