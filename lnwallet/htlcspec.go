package lnwallet

import "github.com/lightningnetwork/hosted-channeld/lnwire"

// HtlcSpec is the projected balances and in-flight HTLC sets derived from an
// LCSS plus however many pending updates have been folded into it so far
// (spec.md §2, item 4). LocalSpec is the HtlcSpec of the last signed LCSS;
// NextLocalSpec additionally folds in nextLocalUpdates ++ nextRemoteUpdates.
type HtlcSpec struct {
	LocalBalance  uint64
	RemoteBalance uint64

	// IncomingHtlcs were added by the remote party; we are the payee.
	IncomingHtlcs []*lnwire.UpdateAddHTLC

	// OutgoingHtlcs were added by us; the remote party is the payee.
	OutgoingHtlcs []*lnwire.UpdateAddHTLC
}

// LocalSpec returns the HtlcSpec implied directly by the channel's last
// signed LCSS, with no pending updates folded in.
func LocalSpec(lcss *lnwire.LastCrossSignedState) HtlcSpec {
	return HtlcSpec{
		LocalBalance:  lcss.LocalBalance,
		RemoteBalance: lcss.RemoteBalance,
		IncomingHtlcs: lcss.IncomingHtlcs,
		OutgoingHtlcs: lcss.OutgoingHtlcs,
	}
}

// ApplyUpdate folds a single pending UpdateMessage into spec, returning the
// resulting projected spec. originIsLocal indicates whether upd came from
// nextLocalUpdates (our own pending updates) or nextRemoteUpdates (the
// peer's).
//
// An add moves value from the payer's balance into the in-flight set. A
// fulfill of an incoming add credits us (the payee) and removes it from
// IncomingHtlcs; a fulfill of an outgoing add (sent by the remote party to
// settle something we added) credits the remote party and removes it from
// OutgoingHtlcs. A fail/fail-malformed returns the held value to the payer
// without transferring it.
func ApplyUpdate(spec HtlcSpec, upd UpdateMessage, originIsLocal bool) (HtlcSpec, error) {
	switch u := upd.(type) {
	case *AddHtlcUpdate:
		add := u.Add
		if originIsLocal {
			if add.Amount > spec.LocalBalance {
				return spec, ErrChannelNotAbleToSend
			}
			spec.LocalBalance -= add.Amount
			spec.OutgoingHtlcs = append(spec.OutgoingHtlcs, add)
		} else {
			if add.Amount > spec.RemoteBalance {
				return spec, ErrChannelNotAbleToSend
			}
			spec.RemoteBalance -= add.Amount
			spec.IncomingHtlcs = append(spec.IncomingHtlcs, add)
		}

	case *FulfillHtlcUpdate:
		if originIsLocal {
			add, rest, err := popHtlcByID(spec.IncomingHtlcs, u.ID)
			if err != nil {
				return spec, err
			}
			spec.LocalBalance += add.Amount
			spec.IncomingHtlcs = rest
		} else {
			add, rest, err := popHtlcByID(spec.OutgoingHtlcs, u.ID)
			if err != nil {
				return spec, err
			}
			spec.RemoteBalance += add.Amount
			spec.OutgoingHtlcs = rest
		}

	case *FailHtlcUpdate:
		spec = applyFail(spec, u.ID, originIsLocal)

	case *FailMalformedHtlcUpdate:
		spec = applyFail(spec, u.ID, originIsLocal)

	default:
		return spec, NewTransitionError([32]byte{}, "unknown update message type %T", upd)
	}

	return spec, nil
}

func applyFail(spec HtlcSpec, id uint64, originIsLocal bool) HtlcSpec {
	if originIsLocal {
		add, rest, err := popHtlcByID(spec.IncomingHtlcs, id)
		if err == nil {
			spec.RemoteBalance += add.Amount
			spec.IncomingHtlcs = rest
		}
	} else {
		add, rest, err := popHtlcByID(spec.OutgoingHtlcs, id)
		if err == nil {
			spec.LocalBalance += add.Amount
			spec.OutgoingHtlcs = rest
		}
	}
	return spec
}

// popHtlcByID removes and returns the HTLC with the given id from htlcs,
// returning the remaining slice.
func popHtlcByID(htlcs []*lnwire.UpdateAddHTLC, id uint64) (
	*lnwire.UpdateAddHTLC, []*lnwire.UpdateAddHTLC, error) {

	for i, h := range htlcs {
		if h.ID == id {
			rest := make([]*lnwire.UpdateAddHTLC, 0, len(htlcs)-1)
			rest = append(rest, htlcs[:i]...)
			rest = append(rest, htlcs[i+1:]...)
			return h, rest, nil
		}
	}
	return nil, htlcs, ErrHtlcIdNotFound
}

// findHtlcByID returns the HTLC with the given id without removing it.
func findHtlcByID(htlcs []*lnwire.UpdateAddHTLC, id uint64) (*lnwire.UpdateAddHTLC, bool) {
	for _, h := range htlcs {
		if h.ID == id {
			return h, true
		}
	}
	return nil, false
}

// ProjectSpec applies updates in order (nextLocalUpdates ++ nextRemoteUpdates,
// per spec.md §4.2) on top of base and returns the resulting spec.
func ProjectSpec(base HtlcSpec, localUpdates, remoteUpdates []UpdateMessage) (HtlcSpec, error) {
	spec := base

	var err error
	for _, upd := range localUpdates {
		spec, err = ApplyUpdate(spec, upd, true)
		if err != nil {
			return spec, err
		}
	}
	for _, upd := range remoteUpdates {
		spec, err = ApplyUpdate(spec, upd, false)
		if err != nil {
			return spec, err
		}
	}

	return spec, nil
}
