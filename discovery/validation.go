package discovery

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/davecgh/go-spew/spew"
	"github.com/go-errors/errors"

	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// validateChannelUpdate validates a gossiped ChannelUpdate by checking that
// the included signature covers the announcement and was produced by the
// channel's host. Unlike the teacher's four-signature BOLT7 channel
// announcement, a hosted channel has no funding transaction to prove
// ownership of and no second (bitcoin-key) signature to check: the host's
// node identity alone authorizes its own routing policy.
func (d *Gossiper) validateChannelUpdate(hostPub *btcec.PublicKey, a *lnwire.ChannelUpdate) error {
	ok, err := lnwallet.VerifyChannelUpdateSig(hostPub, a)
	if err != nil {
		return errors.Errorf("unable to reconstruct message: %v", err)
	}
	if !ok {
		return errors.Errorf("invalid signature for channel update %v", spew.Sdump(a))
	}
	return nil
}

// validateAnnouncementSignature validates the client co-signature attached
// to a joint public announcement of a hosted channel's short id.
func (d *Gossiper) validateAnnouncementSignature(pub *btcec.PublicKey,
	a *lnwire.AnnouncementSignature) error {

	if !lnwallet.VerifyAnnouncementSig(pub, a.ShortChannelID, a.NodeSignature) {
		return errors.Errorf("invalid announcement signature for short id %d",
			a.ShortChannelID)
	}
	return nil
}
