package lnwallet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

func baseSpec() HtlcSpec {
	return HtlcSpec{
		LocalBalance:  400_000_000,
		RemoteBalance: 600_000_000,
	}
}

func testAdd(id uint64, amount uint64) *lnwire.UpdateAddHTLC {
	return &lnwire.UpdateAddHTLC{
		ID:     id,
		Amount: amount,
		Expiry: 500,
	}
}

func TestApplyUpdateLocalAddMovesLocalBalance(t *testing.T) {
	spec := baseSpec()
	add := testAdd(1, 50_000_000)

	next, err := ApplyUpdate(spec, &AddHtlcUpdate{Add: add}, true)
	require.NoError(t, err)
	require.Equal(t, spec.LocalBalance-add.Amount, next.LocalBalance)
	require.Len(t, next.OutgoingHtlcs, 1)
	require.Equal(t, add, next.OutgoingHtlcs[0])
}

func TestApplyUpdateRemoteAddMovesRemoteBalance(t *testing.T) {
	spec := baseSpec()
	add := testAdd(1, 50_000_000)

	next, err := ApplyUpdate(spec, &AddHtlcUpdate{Add: add}, false)
	require.NoError(t, err)
	require.Equal(t, spec.RemoteBalance-add.Amount, next.RemoteBalance)
	require.Len(t, next.IncomingHtlcs, 1)
}

func TestApplyUpdateAddInsufficientBalance(t *testing.T) {
	spec := baseSpec()
	add := testAdd(1, spec.LocalBalance+1)

	_, err := ApplyUpdate(spec, &AddHtlcUpdate{Add: add}, true)
	require.ErrorIs(t, err, ErrChannelNotAbleToSend)
}

func TestApplyUpdateFulfillIncomingCreditsLocal(t *testing.T) {
	spec := baseSpec()
	add := testAdd(7, 10_000_000)
	spec.IncomingHtlcs = []*lnwire.UpdateAddHTLC{add}

	fulfill := &FulfillHtlcUpdate{ID: 7, Fulfill: &lnwire.UpdateFulfillHTLC{ID: 7}}
	next, err := ApplyUpdate(spec, fulfill, true)
	require.NoError(t, err)
	require.Equal(t, spec.LocalBalance+add.Amount, next.LocalBalance)
	require.Empty(t, next.IncomingHtlcs)
}

func TestApplyUpdateFulfillOutgoingCreditsRemote(t *testing.T) {
	spec := baseSpec()
	add := testAdd(9, 10_000_000)
	spec.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{add}

	fulfill := &FulfillHtlcUpdate{ID: 9, Fulfill: &lnwire.UpdateFulfillHTLC{ID: 9}}
	next, err := ApplyUpdate(spec, fulfill, false)
	require.NoError(t, err)
	require.Equal(t, spec.RemoteBalance+add.Amount, next.RemoteBalance)
	require.Empty(t, next.OutgoingHtlcs)
}

func TestApplyUpdateFailReturnsValueWithoutTransfer(t *testing.T) {
	spec := baseSpec()
	add := testAdd(3, 20_000_000)
	spec.OutgoingHtlcs = []*lnwire.UpdateAddHTLC{add}

	fail := &FailHtlcUpdate{ID: 3, Fail: &lnwire.UpdateFailHTLC{ID: 3}}
	next, err := ApplyUpdate(spec, fail, false)
	require.NoError(t, err)
	require.Equal(t, spec.LocalBalance+add.Amount, next.LocalBalance)
	require.Equal(t, spec.RemoteBalance, next.RemoteBalance)
	require.Empty(t, next.OutgoingHtlcs)
}

func TestProjectSpecOrdersLocalThenRemote(t *testing.T) {
	spec := baseSpec()
	localAdd := testAdd(1, 10_000_000)
	remoteAdd := testAdd(2, 20_000_000)

	next, err := ProjectSpec(spec,
		[]UpdateMessage{&AddHtlcUpdate{Add: localAdd}},
		[]UpdateMessage{&AddHtlcUpdate{Add: remoteAdd}},
	)
	require.NoError(t, err)
	require.Equal(t, spec.LocalBalance-localAdd.Amount, next.LocalBalance)
	require.Equal(t, spec.RemoteBalance-remoteAdd.Amount, next.RemoteBalance)
	require.Len(t, next.OutgoingHtlcs, 1)
	require.Len(t, next.IncomingHtlcs, 1)
}

func TestPopHtlcByIDNotFound(t *testing.T) {
	_, _, err := popHtlcByID(nil, 42)
	require.ErrorIs(t, err, ErrHtlcIdNotFound)
}
