package lnwallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

func testRemoteInfo(t *testing.T) RemoteInfo {
	t.Helper()
	node, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	specific, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return RemoteInfo{
		NodeID:             node.PubKey(),
		NodeSpecificPubKey: specific.PubKey(),
	}
}

func testHostedCommits(t *testing.T) *HostedCommits {
	t.Helper()
	return &HostedCommits{
		RemoteInfo:           testRemoteInfo(t),
		LastCrossSignedState: *zeroStateLCSS(),
		State:                StateOpen,
	}
}

func TestSendAddAppendsToNextLocalUpdates(t *testing.T) {
	hc := testHostedCommits(t)

	cmd := AddHtlcCmd{Amount: 10_000_000, Expiry: 1000}
	next, add, err := SendAdd(hc, cmd, 1, 100)
	require.NoError(t, err)
	require.Len(t, next.NextLocalUpdates, 1)
	require.Equal(t, add.Amount, cmd.Amount)
	require.Empty(t, hc.NextLocalUpdates, "original hc must not be mutated")
}

func TestSendAddRejectsBelowMinimum(t *testing.T) {
	hc := testHostedCommits(t)

	cmd := AddHtlcCmd{Amount: hc.LastCrossSignedState.HtlcMinimum - 1, Expiry: 1000}
	_, _, err := SendAdd(hc, cmd, 1, 100)
	require.ErrorIs(t, err, ErrHtlcBelowMinimum)
}

func TestSendAddRejectsDustExpiry(t *testing.T) {
	hc := testHostedCommits(t)

	cmd := AddHtlcCmd{Amount: 10_000_000, Expiry: 101}
	_, _, err := SendAdd(hc, cmd, 1, 100)
	require.ErrorIs(t, err, ErrHtlcDustExpiry)
}

func TestSendAddRejectsWhenInError(t *testing.T) {
	hc := testHostedCommits(t)
	hc.LocalError = &lnwire.Fail{Data: []byte(ErrCodeManualSuspend)}

	cmd := AddHtlcCmd{Amount: 10_000_000, Expiry: 1000}
	_, _, err := SendAdd(hc, cmd, 1, 100)
	require.ErrorIs(t, err, ErrChannelNotAbleToSend)
}

func TestSendAddRejectsExceedingMaxInFlight(t *testing.T) {
	hc := testHostedCommits(t)

	cmd := AddHtlcCmd{
		Amount: hc.LastCrossSignedState.MaxHtlcValueInFlight + 1,
		Expiry: 1000,
	}
	_, _, err := SendAdd(hc, cmd, 1, 100)
	require.Error(t, err)
}

func TestReceiveAddAppendsToNextRemoteUpdates(t *testing.T) {
	hc := testHostedCommits(t)

	add := &lnwire.UpdateAddHTLC{ID: 1, Amount: 10_000_000, Expiry: 1000}
	next, err := ReceiveAdd(hc, add)
	require.NoError(t, err)
	require.Len(t, next.NextRemoteUpdates, 1)
}

func TestCmdFulfillHtlcRequiresKnownID(t *testing.T) {
	hc := testHostedCommits(t)

	_, _, err := CmdFulfillHtlc(hc, 999, [32]byte{})
	require.ErrorIs(t, err, ErrHtlcIdNotFound)
}

func TestCmdFulfillHtlcAllowedEvenInError(t *testing.T) {
	hc := testHostedCommits(t)
	add := &lnwire.UpdateAddHTLC{ID: 5, Amount: 10_000_000, Expiry: 1000}
	hc, err := ReceiveAdd(hc, add)
	require.NoError(t, err)
	hc.LocalError = &lnwire.Fail{Data: []byte(ErrCodeManualSuspend)}

	next, msg, err := CmdFulfillHtlc(hc, 5, [32]byte{1})
	require.NoError(t, err)
	require.Equal(t, uint64(5), msg.ID)
	require.Len(t, next.NextLocalUpdates, 1)
}

func TestCmdFailHtlcRejectedWhenInError(t *testing.T) {
	hc := testHostedCommits(t)
	hc.LocalError = &lnwire.Fail{Data: []byte(ErrCodeManualSuspend)}

	_, _, err := CmdFailHtlc(hc, 1, []byte("reason"))
	require.ErrorIs(t, err, ErrChannelInError)
}

func TestReceiveFailRacesUnsignedAdd(t *testing.T) {
	hc := testHostedCommits(t)

	add := &lnwire.UpdateAddHTLC{ID: 1, Amount: 10_000_000, Expiry: 1000}
	hc, _, err := SendAdd(hc, AddHtlcCmd{Amount: add.Amount, Expiry: add.Expiry}, 1, 100)
	require.NoError(t, err)

	fail := &lnwire.UpdateFailHTLC{ID: 1}
	_, err = ReceiveFail(hc, fail)
	require.ErrorIs(t, err, ErrDisconnectAndSleep)
}

func TestReceiveFailAgainstSignedOutgoingSucceeds(t *testing.T) {
	hc := testHostedCommits(t)
	add := &lnwire.UpdateAddHTLC{ID: 1, Amount: 10_000_000, Expiry: 1000}
	hc.LastCrossSignedState.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{add}

	fail := &lnwire.UpdateFailHTLC{ID: 1}
	next, err := ReceiveFail(hc, fail)
	require.NoError(t, err)
	require.Len(t, next.NextRemoteUpdates, 1)
}

func TestLocalSuspendIsIdempotent(t *testing.T) {
	hc := testHostedCommits(t)
	chanID := lnwire.ChannelID{1, 2, 3}

	next, fail := LocalSuspend(hc, chanID, ErrCodeManualSuspend)
	require.NotNil(t, fail)
	require.NotNil(t, next.LocalError)

	again, fail2 := LocalSuspend(next, chanID, ErrCodeManualSuspend)
	require.Nil(t, fail2)
	require.Same(t, next, again)
}

func TestReceiveRemoteErrorTransitionsToOpen(t *testing.T) {
	hc := testHostedCommits(t)
	hc.State = StateWaitForAccept

	next := ReceiveRemoteError(hc, &lnwire.Fail{Data: []byte(ErrCodeManualSuspend)})
	require.Equal(t, StateOpen, next.State)
	require.NotNil(t, next.RemoteError)
}

func TestHostedCommitsInError(t *testing.T) {
	hc := testHostedCommits(t)
	require.False(t, hc.InError())

	hc.RemoteError = &lnwire.Fail{}
	require.True(t, hc.InError())
}
