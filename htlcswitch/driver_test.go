package htlcswitch

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/hosted-channeld/channeldb"
	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

type fakeTransport struct {
	sent []lnwire.Message
}

func (f *fakeTransport) SendMessages(msgs ...lnwire.Message) error {
	f.sent = append(f.sent, msgs...)
	return nil
}

// fakeChecker never rescues anything; the expiry tests in this package
// exercise the driver's wiring into contractcourt, not ProcessBlockTick's
// own PreimageCheck logic (already covered by contractcourt's own tests).
type fakeChecker struct {
	found map[[32]byte][32]byte
}

func (f *fakeChecker) Check(_ context.Context, hashes [][32]byte) (map[[32]byte][32]byte, error) {
	out := make(map[[32]byte][32]byte)
	for _, h := range hashes {
		if preimage, ok := f.found[h]; ok {
			out[h] = preimage
		}
	}
	return out, nil
}

func testLink(t *testing.T) (*hostedChannelLink, *fakeTransport) {
	t.Helper()

	db, err := channeldb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clientPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	hostPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	signer := lnwallet.NewPrivKeyChannelSigner(clientPriv)

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
	require.NoError(t, db.PutHostedChannel(chanID, hc))

	transport := &fakeTransport{}
	link := NewHostedChannelLink(
		chanID, db, signer, hostPriv.PubKey(), transport, hc,
		&fakeChecker{}, func() uint32 { return 0 },
	)

	return link, transport
}

func TestHandleSocketOnlineSendsInvoke(t *testing.T) {
	link, transport := testLink(t)

	link.handle(SocketEvent{Online: true})

	require.Equal(t, lnwallet.StateWaitForAccept, link.hc.State)
	require.Len(t, transport.sent, 1)
	_, ok := transport.sent[0].(*lnwire.InvokeHostedChannel)
	require.True(t, ok)
}

func TestHandleSocketOfflineSleeps(t *testing.T) {
	link, _ := testLink(t)

	link.handle(SocketEvent{Online: false})
	require.Equal(t, lnwallet.StateSleeping, link.hc.State)
}

func TestHandleAddCmdSendsAndPersists(t *testing.T) {
	link, transport := testLink(t)

	result := make(chan AddResult, 1)
	link.handle(AddCmd{
		Cmd:    lnwallet.AddHtlcCmd{Amount: 10_000_000, Expiry: 10_000},
		Result: result,
	})

	res := <-result
	require.NoError(t, res.Err)
	require.NotZero(t, res.ID)

	require.Len(t, link.hc.NextLocalUpdates, 1)

	// one UpdateAddHTLC from handleAddCmd, one StateUpdate from the
	// follow-up attemptSign.
	require.Len(t, transport.sent, 2)
	_, ok := transport.sent[0].(*lnwire.UpdateAddHTLC)
	require.True(t, ok)
	_, ok = transport.sent[1].(*lnwire.StateUpdate)
	require.True(t, ok)

	stored, err := link.db.FetchHostedChannel(link.chanID)
	require.NoError(t, err)
	require.Len(t, stored.NextLocalUpdates, 1)
}

func TestHandleAddCmdRejectsBelowMinimum(t *testing.T) {
	link, transport := testLink(t)

	result := make(chan AddResult, 1)
	link.handle(AddCmd{
		Cmd:    lnwallet.AddHtlcCmd{Amount: 1, Expiry: 10_000},
		Result: result,
	})

	res := <-result
	require.ErrorIs(t, res.Err, lnwallet.ErrHtlcBelowMinimum)
	require.Empty(t, transport.sent)
}

func TestHandleWireAddSuspendsOnInvalid(t *testing.T) {
	link, transport := testLink(t)

	add := &lnwire.UpdateAddHTLC{
		ID:     1,
		Amount: link.hc.LastCrossSignedState.MaxHtlcValueInFlight + 1,
	}
	link.handle(WireEvent{Msg: add})

	require.NotNil(t, link.hc.LocalError)
	require.Len(t, transport.sent, 1)
	_, ok := transport.sent[0].(*lnwire.Fail)
	require.True(t, ok)
}

func TestHandleAskBrandingInfoRepliesWhenCached(t *testing.T) {
	link, transport := testLink(t)

	branding := &lnwire.HostedChannelBranding{
		ChanID: link.chanID,
		Rgb:    [3]byte{1, 2, 3},
	}
	require.NoError(t, link.db.PutBranding(link.chanID, branding))

	link.handle(WireEvent{Msg: &lnwire.AskBrandingInfo{ChanID: link.chanID}})

	require.Len(t, transport.sent, 1)
	got, ok := transport.sent[0].(*lnwire.HostedChannelBranding)
	require.True(t, ok)
	require.Equal(t, branding.Rgb, got.Rgb)
}

func TestHandleInitHostedChannelAcceptsAndSendsStateUpdate(t *testing.T) {
	link, transport := testLink(t)
	link.hc.State = lnwallet.StateWaitForAccept
	link.hc.LastCrossSignedState = lnwire.LastCrossSignedState{}

	init := &lnwire.InitHostedChannel{
		ChannelCapacity:      1_000_000_000,
		InitialClientBalance: 0,
		MaxHtlcValueInFlight: 100_000_000,
		HtlcMinimum:          1000,
		MaxAcceptedHtlcs:     10,
	}
	link.handle(WireEvent{Msg: init})

	require.Equal(t, lnwallet.StateWaitRemoteHostedStateUpdate, link.hc.State)
	require.Equal(t, uint64(1_000_000_000), link.hc.LastCrossSignedState.RemoteBalance)
	require.Len(t, transport.sent, 1)
	su, ok := transport.sent[0].(*lnwire.StateUpdate)
	require.True(t, ok)
	require.Equal(t, uint32(0), su.LocalUpdates)
	require.Equal(t, uint32(0), su.RemoteUpdates)
}

func TestHandleInitHostedChannelRejectsBadBounds(t *testing.T) {
	link, transport := testLink(t)
	link.hc.State = lnwallet.StateWaitForAccept

	init := &lnwire.InitHostedChannel{
		ChannelCapacity:      1_000_000_000,
		InitialClientBalance: 0,
		MaxHtlcValueInFlight: 1,
		HtlcMinimum:          1000,
		MaxAcceptedHtlcs:     10,
	}
	link.handle(WireEvent{Msg: init})

	require.NotNil(t, link.hc.LocalError)
	require.Len(t, transport.sent, 1)
	fail, ok := transport.sent[0].(*lnwire.Fail)
	require.True(t, ok)
	require.Equal(t, lnwallet.ErrCodeManualSuspend, string(fail.Data))
}

func TestHandleStateUpdateInitialAcceptanceOpensChannel(t *testing.T) {
	db, err := channeldb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clientPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	hostPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	clientSigner := lnwallet.NewPrivKeyChannelSigner(clientPriv)
	hostSigner := lnwallet.NewPrivKeyChannelSigner(hostPriv)

	hc := &lnwallet.HostedCommits{
		RemoteInfo: lnwallet.RemoteInfo{
			NodeID:             hostPriv.PubKey(),
			NodeSpecificPubKey: clientPriv.PubKey(),
		},
		State: lnwallet.StateWaitForAccept,
	}
	chanID := lnwallet.ChannelIDFor(clientPriv.PubKey(), hostPriv.PubKey())
	require.NoError(t, db.PutHostedChannel(chanID, hc))

	transport := &fakeTransport{}
	link := NewHostedChannelLink(
		chanID, db, clientSigner, hostPriv.PubKey(), transport, hc,
		&fakeChecker{}, func() uint32 { return 200 },
	)

	init := &lnwire.InitHostedChannel{
		ChannelCapacity:      1_000_000_000,
		InitialClientBalance: 0,
		MaxHtlcValueInFlight: 100_000_000,
		HtlcMinimum:          1000,
		MaxAcceptedHtlcs:     10,
	}
	link.handle(WireEvent{Msg: init})
	require.Equal(t, lnwallet.StateWaitRemoteHostedStateUpdate, link.hc.State)

	hostView := lnwallet.ReverseLCSS(&link.hc.LastCrossSignedState)
	hostSigned, err := lnwallet.WithLocalSigOfRemote(hostSigner, hostView)
	require.NoError(t, err)

	reply := &lnwire.StateUpdate{
		BlockDay:             hostSigned.BlockDay,
		LocalUpdates:         hostSigned.LocalUpdates,
		RemoteUpdates:        hostSigned.RemoteUpdates,
		LocalSigOfRemoteLCSS: hostSigned.LocalSigOfRemote,
	}

	transport.sent = nil
	link.handle(WireEvent{Msg: reply})

	require.Equal(t, lnwallet.StateOpen, link.hc.State)
	require.Len(t, transport.sent, 1)
	_, ok := transport.sent[0].(*lnwire.AskBrandingInfo)
	require.True(t, ok)
}

func TestHandleBlockTickProcessesExpiry(t *testing.T) {
	link, transport := testLink(t)
	link.hc.LastCrossSignedState.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 1, PaymentHash: [32]byte{7}, Expiry: 100},
	}

	link.handle(BlockTickEvent{Height: 200})

	require.NotNil(t, link.hc.LocalError)
	require.Contains(t, link.hc.PostErrorOutgoingResolvedIds, uint64(1))
	require.Len(t, transport.sent, 1)
	fail, ok := transport.sent[0].(*lnwire.Fail)
	require.True(t, ok)
	require.Equal(t, lnwallet.ErrCodeTimedOutOutgoingHtlc, string(fail.Data))
}

func TestHandleBlockTickSkipsExpiryOutsideOpenOrSleeping(t *testing.T) {
	link, transport := testLink(t)
	link.hc.State = lnwallet.StateWaitForAccept
	link.hc.LastCrossSignedState.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{
		{ID: 1, PaymentHash: [32]byte{7}, Expiry: 100},
	}

	link.handle(BlockTickEvent{Height: 200})

	require.Nil(t, link.hc.LocalError)
	require.Empty(t, transport.sent)
}

func TestRegistryAddGetRemove(t *testing.T) {
	reg := NewLinkRegistry()
	link, _ := testLink(t)

	reg.AddLink(link.chanID, link)
	require.Equal(t, 1, reg.NumLinks())

	got, err := reg.GetLink(link.chanID)
	require.NoError(t, err)
	require.Same(t, link, got)

	reg.RemoveLink(link.chanID)
	_, err = reg.GetLink(link.chanID)
	require.ErrorIs(t, err, ErrLinkNotFound)
}
