package discovery

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lightningnetwork/hosted-channeld/channeldb"
	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// Gossiper answers QueryPublicHostedChannels from the local store of
// publicly-announced hosted channels and validates ChannelUpdate gossip
// signatures before they are accepted into a channel's HostedCommits
// (SPEC_FULL.md §5.1). It has no notion of multi-hop forwarding or
// path-finding: a hosted channel routes through a single trusted host, so
// gossip here exists only so wallets can discover and display a host's
// published routing policy, not to build a routing graph.
type Gossiper struct {
	db        *channeldb.DB
	chainHash [32]byte
}

// New returns a Gossiper backed by db, answering only for chainHash.
func New(db *channeldb.DB, chainHash [32]byte) *Gossiper {
	return &Gossiper{db: db, chainHash: chainHash}
}

// AcceptChannelUpdate validates cu against hostPub and, if valid, returns a
// copy of hc with cu installed as its UpdateOpt. The caller (the owning
// channel's event loop) is responsible for persisting the result.
func (d *Gossiper) AcceptChannelUpdate(hc *lnwallet.HostedCommits, hostPub *btcec.PublicKey,
	cu *lnwire.ChannelUpdate) (*lnwallet.HostedCommits, error) {

	if err := d.validateChannelUpdate(hostPub, cu); err != nil {
		return nil, err
	}
	return hc.WithUpdateOpt(cu), nil
}

// HandleQueryPublicHostedChannels answers q with every ChannelUpdate this
// node has on file for q.ChainHash, terminated by a
// ReplyPublicHostedChannelsEnd. Channels that have never had a
// ChannelUpdate installed (UpdateOpt == nil) are silently skipped: they
// have nothing to announce yet.
func (d *Gossiper) HandleQueryPublicHostedChannels(
	q *lnwire.QueryPublicHostedChannels) ([]*lnwire.ChannelUpdate, *lnwire.ReplyPublicHostedChannelsEnd, error) {

	end := &lnwire.ReplyPublicHostedChannelsEnd{
		ChainHash: q.ChainHash,
		Complete:  true,
	}

	if q.ChainHash != d.chainHash {
		return nil, end, nil
	}

	all, err := d.db.FetchAllHostedChannels()
	if err != nil {
		return nil, nil, err
	}

	updates := make([]*lnwire.ChannelUpdate, 0, len(all))
	for _, hc := range all {
		if hc.UpdateOpt != nil {
			updates = append(updates, hc.UpdateOpt)
		}
	}

	return updates, end, nil
}
