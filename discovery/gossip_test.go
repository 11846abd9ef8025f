package discovery

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/hosted-channeld/channeldb"
	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

func openTestDB(t *testing.T) *channeldb.DB {
	t.Helper()
	db, err := channeldb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testChannelUpdate(t *testing.T, hostPriv *btcec.PrivateKey, shortID uint64) *lnwire.ChannelUpdate {
	t.Helper()

	cu := &lnwire.ChannelUpdate{
		ShortChannelID:            shortID,
		Timestamp:                 1,
		CltvExpiryDelta:           144,
		HtlcMinimumMsat:           1000,
		FeeBaseMsat:               1000,
		FeeProportionalMillionths: 10,
	}
	signer := lnwallet.NewPrivKeyChannelSigner(hostPriv)

	data, err := cu.DataToSign()
	require.NoError(t, err)
	hash := sha256.Sum256(data)
	sig, err := signer.SignHash(hash)
	require.NoError(t, err)
	cu.Signature = sig
	return cu
}

func TestAcceptChannelUpdateValid(t *testing.T) {
	db := openTestDB(t)
	gossiper := New(db, [32]byte{1})

	hostPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	clientPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hc := &lnwallet.HostedCommits{
		RemoteInfo: lnwallet.RemoteInfo{
			NodeID:             hostPriv.PubKey(),
			NodeSpecificPubKey: clientPriv.PubKey(),
		},
	}

	cu := testChannelUpdate(t, hostPriv, 42)

	next, err := gossiper.AcceptChannelUpdate(hc, hostPriv.PubKey(), cu)
	require.NoError(t, err)
	require.Same(t, cu, next.UpdateOpt)
	require.Nil(t, hc.UpdateOpt, "AcceptChannelUpdate must not mutate its input")
}

func TestAcceptChannelUpdateWrongSigner(t *testing.T) {
	db := openTestDB(t)
	gossiper := New(db, [32]byte{1})

	hostPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	impostorPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hc := &lnwallet.HostedCommits{}
	cu := testChannelUpdate(t, impostorPriv, 42)

	_, err = gossiper.AcceptChannelUpdate(hc, hostPriv.PubKey(), cu)
	require.Error(t, err)
}

func TestHandleQueryPublicHostedChannels(t *testing.T) {
	db := openTestDB(t)
	chainHash := [32]byte{9}
	gossiper := New(db, chainHash)

	hostPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	clientPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	cu := testChannelUpdate(t, hostPriv, 7)
	hc := &lnwallet.HostedCommits{
		RemoteInfo: lnwallet.RemoteInfo{
			NodeID:             hostPriv.PubKey(),
			NodeSpecificPubKey: clientPriv.PubKey(),
		},
		UpdateOpt: cu,
	}
	chanID := lnwallet.ChannelIDFor(clientPriv.PubKey(), hostPriv.PubKey())
	require.NoError(t, db.PutHostedChannel(chanID, hc))

	// A channel with no announced update yet must be skipped.
	otherPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	otherHC := &lnwallet.HostedCommits{
		RemoteInfo: lnwallet.RemoteInfo{
			NodeID:             hostPriv.PubKey(),
			NodeSpecificPubKey: otherPriv.PubKey(),
		},
	}
	otherChanID := lnwallet.ChannelIDFor(otherPriv.PubKey(), hostPriv.PubKey())
	require.NoError(t, db.PutHostedChannel(otherChanID, otherHC))

	updates, end, err := gossiper.HandleQueryPublicHostedChannels(
		&lnwire.QueryPublicHostedChannels{ChainHash: chainHash},
	)
	require.NoError(t, err)
	require.True(t, end.Complete)
	require.Equal(t, chainHash, end.ChainHash)
	require.Len(t, updates, 1)
	require.Equal(t, uint64(7), updates[0].ShortChannelID)
}

func TestHandleQueryPublicHostedChannelsWrongChain(t *testing.T) {
	db := openTestDB(t)
	gossiper := New(db, [32]byte{9})

	updates, end, err := gossiper.HandleQueryPublicHostedChannels(
		&lnwire.QueryPublicHostedChannels{ChainHash: [32]byte{1}},
	)
	require.NoError(t, err)
	require.Empty(t, updates)
	require.True(t, end.Complete)
}
