package discovery

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

func TestValidateAnnouncementSignature(t *testing.T) {
	db := openTestDB(t)
	gossiper := New(db, [32]byte{1})

	clientPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signer := lnwallet.NewPrivKeyChannelSigner(clientPriv)

	const shortID = uint64(99)
	sig := mustAnnouncementSig(t, signer, shortID)

	ann := &lnwire.AnnouncementSignature{
		ShortChannelID: shortID,
		NodeSignature:  sig,
	}

	require.NoError(t, gossiper.validateAnnouncementSignature(clientPriv.PubKey(), ann))
}

func TestValidateAnnouncementSignatureWrongKey(t *testing.T) {
	db := openTestDB(t)
	gossiper := New(db, [32]byte{1})

	clientPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	otherPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signer := lnwallet.NewPrivKeyChannelSigner(clientPriv)

	const shortID = uint64(99)
	sig := mustAnnouncementSig(t, signer, shortID)

	ann := &lnwire.AnnouncementSignature{
		ShortChannelID: shortID,
		NodeSignature:  sig,
	}

	require.Error(t, gossiper.validateAnnouncementSignature(otherPriv.PubKey(), ann))
}

func mustAnnouncementSig(t *testing.T, signer *lnwallet.PrivKeyChannelSigner, shortID uint64) lnwire.Sig64 {
	t.Helper()

	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], shortID)
	digest := sha256.Sum256(b[:])

	sig, err := signer.SignHash(digest)
	require.NoError(t, err)
	return sig
}
