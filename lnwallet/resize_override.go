package lnwallet

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// resizeSigHash is the digest a client signs to authorize a capacity
// increase: sha256(u64_LE(newCapacity)) (spec.md §4.7).
func resizeSigHash(newCapacity uint64) [32]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], newCapacity)
	return sha256.Sum256(b[:])
}

// ProposeResize builds and signs a ResizeChannel proposing a capacity
// increase of delta, storing it as hc.ResizeProposal (spec.md §4.7). The
// caller is responsible for sending the message and then issuing CMD_SIGN
// so the new capacity is folded into the next signed LCSS.
func ProposeResize(hc *HostedCommits, signer ChannelSigner, delta uint64) (
	*HostedCommits, *lnwire.ResizeChannel, error) {

	newCapacity := hc.LastCrossSignedState.ChannelCapacity + delta

	sig, err := signer.SignHash(resizeSigHash(newCapacity))
	if err != nil {
		return nil, nil, err
	}

	resize := &lnwire.ResizeChannel{
		NewCapacity: newCapacity,
		ClientSig:   sig,
	}

	next := hc.clone()
	next.ResizeProposal = resize
	return next, resize, nil
}

// VerifyResizeSig reports whether resize.ClientSig is a valid signature
// over resize.NewCapacity under the client's public key; the host calls
// this before accepting a resize proposal.
func VerifyResizeSig(clientPub *btcec.PublicKey, resize *lnwire.ResizeChannel) bool {
	return verifyHash(clientPub, resizeSigHash(resize.NewCapacity), resize.ClientSig)
}

// foldResize returns a copy of l with hc's pending resize proposal (if any)
// folded in: channelCapacityMsat becomes the proposed new capacity, and the
// host's balance is credited with the delta (spec.md §4.7's withResize).
func foldResize(hc *HostedCommits, l *lnwire.LastCrossSignedState) *lnwire.LastCrossSignedState {
	if hc.ResizeProposal == nil {
		return l
	}
	out := *l
	applyResizeSwap(hc.ResizeProposal, &out)
	return &out
}

// applyResizeSwap mutates l in place to reflect resize's proposed capacity.
func applyResizeSwap(resize *lnwire.ResizeChannel, l *lnwire.LastCrossSignedState) {
	delta := resize.NewCapacity - l.ChannelCapacity
	l.ChannelCapacity = resize.NewCapacity
	l.RemoteBalance += delta
}

// ReceiveStateOverride stores a host-proposed StateOverride as
// hc.OverrideProposal. It is never auto-applied (spec.md §4.7); the user
// must explicitly call AcceptOverride.
func ReceiveStateOverride(hc *HostedCommits, override *lnwire.StateOverride) *HostedCommits {
	next := hc.clone()
	next.OverrideProposal = override
	return next
}

// AcceptOverride applies hc.OverrideProposal, the host's forced recovery
// state, constructing a fresh LCSS with empty HTLC sets (spec.md §4.7).
// Any pre-override outgoing HTLCs are gone; their ids are returned in
// SignResult.RemoteRejectedIDs so the driver can emit addRejectedLocally
// for each.
func AcceptOverride(hc *HostedCommits, signer ChannelSigner, hostPub *btcec.PublicKey) (
	*SignResult, error) {

	so := hc.OverrideProposal
	if so == nil {
		return nil, fmt.Errorf("no override proposal to accept")
	}

	l := hc.LastCrossSignedState

	if so.LocalBalance > l.ChannelCapacity {
		return nil, fmt.Errorf("new local balance from remote host is wrong")
	}
	if so.LocalUpdates < l.RemoteUpdates {
		return nil, fmt.Errorf("new local update number from remote host is wrong")
	}
	if so.RemoteUpdates < l.LocalUpdates {
		return nil, fmt.Errorf("new remote update number from remote host is wrong")
	}
	if so.BlockDay < l.BlockDay {
		return nil, fmt.Errorf("new blockday from remote host is wrong")
	}

	candidate := l
	candidate.BlockDay = so.BlockDay
	candidate.LocalBalance = l.ChannelCapacity - so.LocalBalance
	candidate.RemoteBalance = so.LocalBalance
	candidate.LocalUpdates = so.RemoteUpdates
	candidate.RemoteUpdates = so.LocalUpdates
	candidate.IncomingHtlcs = nil
	candidate.OutgoingHtlcs = nil
	candidate.RemoteSigOfLocal = so.LocalSigOfRemoteLCSS
	candidate.LocalSigOfRemote = lnwire.Sig64{}

	resigned, err := WithLocalSigOfRemote(signer, &candidate)
	if err != nil {
		return nil, err
	}
	if !VerifyRemoteSig(hostPub, resigned) {
		return nil, ErrWrongRemoteSig
	}

	var rejected []uint64
	for _, htlc := range l.OutgoingHtlcs {
		rejected = append(rejected, htlc.ID)
	}

	next := hc.clone()
	next.LastCrossSignedState = *resigned
	next.NextLocalUpdates = nil
	next.NextRemoteUpdates = nil
	next.OverrideProposal = nil
	next.LocalError = nil
	next.RemoteError = nil
	next.PostErrorOutgoingResolvedIds = nil

	return &SignResult{HC: next, RemoteRejectedIDs: rejected}, nil
}
