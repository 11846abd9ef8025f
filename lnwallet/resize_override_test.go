package lnwallet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

func TestProposeResizeSignsNewCapacity(t *testing.T) {
	parties := newHandshakeParties(t)
	hc := testHostedCommits(t)

	delta := uint64(100_000_000)
	next, resize, err := ProposeResize(hc, parties.clientSigner, delta)
	require.NoError(t, err)
	require.Equal(t, hc.LastCrossSignedState.ChannelCapacity+delta, resize.NewCapacity)
	require.True(t, VerifyResizeSig(parties.clientSigner.PubKey(), resize))
	require.Same(t, resize, next.ResizeProposal)
}

func TestVerifyResizeSigRejectsTamperedCapacity(t *testing.T) {
	parties := newHandshakeParties(t)
	hc := testHostedCommits(t)

	_, resize, err := ProposeResize(hc, parties.clientSigner, 100_000_000)
	require.NoError(t, err)

	tampered := *resize
	tampered.NewCapacity += 1
	require.False(t, VerifyResizeSig(parties.clientSigner.PubKey(), &tampered))
}

func TestFoldResizeAppliesCapacitySwap(t *testing.T) {
	parties := newHandshakeParties(t)
	hc := testHostedCommits(t)

	delta := uint64(50_000_000)
	hc, resize, err := ProposeResize(hc, parties.clientSigner, delta)
	require.NoError(t, err)

	l := hc.LastCrossSignedState
	folded := foldResize(hc, &l)
	require.Equal(t, resize.NewCapacity, folded.ChannelCapacity)
	require.Equal(t, l.RemoteBalance+delta, folded.RemoteBalance)
}

func TestFoldResizeNoOpWithoutProposal(t *testing.T) {
	hc := testHostedCommits(t)
	l := hc.LastCrossSignedState
	require.Same(t, &l, foldResize(hc, &l))
}

func TestAcceptOverrideRebuildsCleanState(t *testing.T) {
	parties := newHandshakeParties(t)
	hc := testHostedCommits(t)

	outgoing := testAdd(1, 20_000_000)
	hc.LastCrossSignedState.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{outgoing}

	capacity := hc.LastCrossSignedState.ChannelCapacity
	hostBalance := uint64(700_000_000)

	so := &lnwire.StateOverride{
		BlockDay:      hc.LastCrossSignedState.BlockDay + 1,
		LocalBalance:  hostBalance,
		LocalUpdates:  hc.LastCrossSignedState.RemoteUpdates,
		RemoteUpdates: hc.LastCrossSignedState.LocalUpdates,
	}

	// Build the override so its signature verifies the way AcceptOverride
	// expects: the host signs our candidate's as-is hash before we
	// re-sign our own half.
	candidate := hc.LastCrossSignedState
	candidate.BlockDay = so.BlockDay
	candidate.LocalBalance = capacity - so.LocalBalance
	candidate.RemoteBalance = so.LocalBalance
	candidate.LocalUpdates = so.RemoteUpdates
	candidate.RemoteUpdates = so.LocalUpdates
	candidate.IncomingHtlcs = nil
	candidate.OutgoingHtlcs = nil

	hostSig, err := parties.hostSigner.SignHash(hostedSigHash(&candidate))
	require.NoError(t, err)
	so.LocalSigOfRemoteLCSS = hostSig

	hc = ReceiveStateOverride(hc, so)

	result, err := AcceptOverride(hc, parties.clientSigner, parties.hostSigner.PubKey())
	require.NoError(t, err)
	require.Empty(t, result.HC.LastCrossSignedState.IncomingHtlcs)
	require.Empty(t, result.HC.LastCrossSignedState.OutgoingHtlcs)
	require.Equal(t, capacity-hostBalance, result.HC.LastCrossSignedState.LocalBalance)
	require.Contains(t, result.RemoteRejectedIDs, uint64(1))
	require.Nil(t, result.HC.OverrideProposal)
}

func TestAcceptOverrideRejectsNegativeLocalBalance(t *testing.T) {
	hc := testHostedCommits(t)
	hc.OverrideProposal = &lnwire.StateOverride{
		LocalBalance: hc.LastCrossSignedState.ChannelCapacity + 1,
	}

	_, err := AcceptOverride(hc, nil, nil)
	require.Error(t, err)
}

func TestAcceptOverrideRejectsRegressedCounters(t *testing.T) {
	hc := testHostedCommits(t)
	hc.LastCrossSignedState.RemoteUpdates = 5
	hc.OverrideProposal = &lnwire.StateOverride{
		LocalUpdates: 2,
	}

	_, err := AcceptOverride(hc, nil, nil)
	require.ErrorContains(t, err, "update number from remote host is wrong")
}

func TestAcceptOverrideNoProposal(t *testing.T) {
	hc := testHostedCommits(t)
	_, err := AcceptOverride(hc, nil, nil)
	require.Error(t, err)
}
