package lnwallet

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// ChannelSigner is the narrow signing capability a hosted channel needs:
// sign a 32-byte digest with the node's private key, and expose the matching
// public key; verifying signatures is left to package functions, not this
// interface. The node private key never leaves an
// implementation of this interface, matching the design note that it is the
// most sensitive piece of the environment value and must be kept behind a
// narrow capability rather than passed around directly.
type ChannelSigner interface {
	// SignHash signs the given 32-byte digest and returns a fixed-size,
	// 64-byte (R || S) signature.
	SignHash(hash [32]byte) (lnwire.Sig64, error)

	// PubKey returns the public key corresponding to this signer's
	// private key.
	PubKey() *btcec.PublicKey
}

// PrivKeyChannelSigner is a ChannelSigner backed directly by an in-memory
// secp256k1 private key. It is the signer used by the daemon when the node
// key is held locally rather than behind a remote signer.
type PrivKeyChannelSigner struct {
	priv *btcec.PrivateKey
}

// NewPrivKeyChannelSigner wraps priv as a ChannelSigner.
func NewPrivKeyChannelSigner(priv *btcec.PrivateKey) *PrivKeyChannelSigner {
	return &PrivKeyChannelSigner{priv: priv}
}

// SignHash is part of the ChannelSigner interface.
func (p *PrivKeyChannelSigner) SignHash(hash [32]byte) (lnwire.Sig64, error) {
	return signHash(p.priv, hash)
}

// PubKey is part of the ChannelSigner interface.
func (p *PrivKeyChannelSigner) PubKey() *btcec.PublicKey {
	return p.priv.PubKey()
}

// signHash produces a fixed 64-byte (R || S) signature over hash using the
// compact signature format, discarding the leading recovery-id byte that
// format normally carries: hosted-channel peers identify signers by
// position (local/remote), never by key recovery.
func signHash(priv *btcec.PrivateKey, hash [32]byte) (lnwire.Sig64, error) {
	compact := ecdsa.SignCompact(priv, hash[:], false)

	var sig lnwire.Sig64
	copy(sig[:], compact[1:])
	return sig, nil
}

// verifyHash verifies that sig is a valid signature over hash under pub.
func verifyHash(pub *btcec.PublicKey, hash [32]byte, sig lnwire.Sig64) bool {
	var r, s btcec.ModNScalar
	r.SetByteSlice(sig[:32])
	s.SetByteSlice(sig[32:])

	ecSig := ecdsa.NewSignature(&r, &s)
	return ecSig.Verify(hash[:], pub)
}

// VerifyChannelUpdateSig reports whether cu.Signature is a valid signature,
// under hostPub, over sha256(cu.DataToSign()). Exported for package
// discovery, which validates gossiped ChannelUpdates against the channel's
// host before accepting them into HostedCommits.updateOpt.
func VerifyChannelUpdateSig(hostPub *btcec.PublicKey, cu *lnwire.ChannelUpdate) (bool, error) {
	data, err := cu.DataToSign()
	if err != nil {
		return false, err
	}
	return verifyHash(hostPub, sha256.Sum256(data), cu.Signature), nil
}

// announcementSigHash returns sha256(u64_LE(shortChanID)), the digest an
// AnnouncementSignature co-signs.
func announcementSigHash(shortChanID uint64) [32]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], shortChanID)
	return sha256.Sum256(b[:])
}

// VerifyAnnouncementSig reports whether sig is a valid signature, under
// pub, over the short channel id being jointly announced.
func VerifyAnnouncementSig(pub *btcec.PublicKey, shortChanID uint64, sig lnwire.Sig64) bool {
	return verifyHash(pub, announcementSigHash(shortChanID), sig)
}
