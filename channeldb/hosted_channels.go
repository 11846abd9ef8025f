package channeldb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// hostedCommitsVersion is bumped whenever the on-disk encoding of a
// HostedCommits record changes shape.
const hostedCommitsVersion = 0

var bufPool = &sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// updateTag distinguishes the four UpdateMessage variants inside a pending
// update queue's on-disk encoding.
type updateTag uint8

const (
	tagAdd updateTag = iota
	tagFulfill
	tagFail
	tagFailMalformed
)

// PutHostedChannel persists hc under its channel id, overwriting any
// previous record. The caller must ensure the write this protects (an
// outgoing wire message, a state transition) is observed to complete only
// after this call returns successfully.
func (d *DB) PutHostedChannel(chanID lnwire.ChannelID, hc *lnwallet.HostedCommits) error {
	var buf bytes.Buffer
	if err := serializeHostedCommits(&buf, hc); err != nil {
		return err
	}

	return kvdb.Update(d, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(hostedChannelBucket)
		if bucket == nil {
			return ErrNoChanDBExists
		}

		return bucket.Put(chanID[:], buf.Bytes())
	}, func() {})
}

// FetchHostedChannel retrieves the HostedCommits record stored under
// chanID, or ErrChannelNoExist if none is stored.
func (d *DB) FetchHostedChannel(chanID lnwire.ChannelID) (*lnwallet.HostedCommits, error) {
	var hc *lnwallet.HostedCommits

	err := kvdb.View(d, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(hostedChannelBucket)
		if bucket == nil {
			return ErrChannelNoExist
		}

		raw := bucket.Get(chanID[:])
		if raw == nil {
			return ErrChannelNoExist
		}

		decoded, err := deserializeHostedCommits(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		hc = decoded
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}

	return hc, nil
}

// DeleteHostedChannel removes the record stored under chanID. It is not
// an error to delete a channel id that does not exist.
func (d *DB) DeleteHostedChannel(chanID lnwire.ChannelID) error {
	return kvdb.Update(d, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(hostedChannelBucket)
		if bucket == nil {
			return ErrNoChanDBExists
		}

		return bucket.Delete(chanID[:])
	}, func() {})
}

// FetchAllHostedChannels returns every HostedCommits record currently
// stored, keyed by channel id.
func (d *DB) FetchAllHostedChannels() (map[lnwire.ChannelID]*lnwallet.HostedCommits, error) {
	channels := make(map[lnwire.ChannelID]*lnwallet.HostedCommits)

	err := kvdb.View(d, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(hostedChannelBucket)
		if bucket == nil {
			return ErrNoActiveChannels
		}

		return bucket.ForEach(func(k, v []byte) error {
			if len(k) != 32 {
				return nil
			}

			hc, err := deserializeHostedCommits(bytes.NewReader(v))
			if err != nil {
				return err
			}

			var chanID lnwire.ChannelID
			copy(chanID[:], k)
			channels[chanID] = hc
			return nil
		})
	}, func() {})
	if err != nil && err != ErrNoActiveChannels {
		return nil, err
	}

	return channels, nil
}

func serializeHostedCommits(w *bytes.Buffer, hc *lnwallet.HostedCommits) error {
	if err := binary.Write(w, byteOrder, uint8(hostedCommitsVersion)); err != nil {
		return err
	}

	if err := writePubKey(w, hc.RemoteInfo.NodeID); err != nil {
		return err
	}
	if err := writePubKey(w, hc.RemoteInfo.NodeSpecificPubKey); err != nil {
		return err
	}

	if err := hc.LastCrossSignedState.Encode(w, 0); err != nil {
		return err
	}

	if err := writeUpdateQueue(w, hc.NextLocalUpdates); err != nil {
		return err
	}
	if err := writeUpdateQueue(w, hc.NextRemoteUpdates); err != nil {
		return err
	}

	if err := writeOptionalMessage(w, hc.UpdateOpt); err != nil {
		return err
	}
	if err := writeOptionalMessage(w, hc.LocalError); err != nil {
		return err
	}
	if err := writeOptionalMessage(w, hc.RemoteError); err != nil {
		return err
	}
	if err := writeOptionalMessage(w, hc.ResizeProposal); err != nil {
		return err
	}
	if err := writeOptionalMessage(w, hc.OverrideProposal); err != nil {
		return err
	}

	if err := binary.Write(w, byteOrder, uint32(len(hc.PostErrorOutgoingResolvedIds))); err != nil {
		return err
	}
	for id := range hc.PostErrorOutgoingResolvedIds {
		if err := binary.Write(w, byteOrder, id); err != nil {
			return err
		}
	}

	return binary.Write(w, byteOrder, uint8(hc.State))
}

func deserializeHostedCommits(r *bytes.Reader) (*lnwallet.HostedCommits, error) {
	var version uint8
	if err := binary.Read(r, byteOrder, &version); err != nil {
		return nil, err
	}
	if version != hostedCommitsVersion {
		return nil, fmt.Errorf("unknown hosted commits version %d", version)
	}

	nodeID, err := readPubKey(r)
	if err != nil {
		return nil, err
	}
	nodeSpecific, err := readPubKey(r)
	if err != nil {
		return nil, err
	}

	var lcss lnwire.LastCrossSignedState
	if err := lcss.Decode(r, 0); err != nil {
		return nil, err
	}

	nextLocal, err := readUpdateQueue(r)
	if err != nil {
		return nil, err
	}
	nextRemote, err := readUpdateQueue(r)
	if err != nil {
		return nil, err
	}

	updateOpt, err := readOptionalChannelUpdate(r)
	if err != nil {
		return nil, err
	}
	localErr, err := readOptionalFail(r)
	if err != nil {
		return nil, err
	}
	remoteErr, err := readOptionalFail(r)
	if err != nil {
		return nil, err
	}
	resize, err := readOptionalResize(r)
	if err != nil {
		return nil, err
	}
	override, err := readOptionalOverride(r)
	if err != nil {
		return nil, err
	}

	var numResolved uint32
	if err := binary.Read(r, byteOrder, &numResolved); err != nil {
		return nil, err
	}
	resolved := make(map[uint64]struct{}, numResolved)
	for i := uint32(0); i < numResolved; i++ {
		var id uint64
		if err := binary.Read(r, byteOrder, &id); err != nil {
			return nil, err
		}
		resolved[id] = struct{}{}
	}

	var state uint8
	if err := binary.Read(r, byteOrder, &state); err != nil {
		return nil, err
	}

	return &lnwallet.HostedCommits{
		RemoteInfo: lnwallet.RemoteInfo{
			NodeID:             nodeID,
			NodeSpecificPubKey: nodeSpecific,
		},
		LastCrossSignedState:         lcss,
		NextLocalUpdates:             nextLocal,
		NextRemoteUpdates:            nextRemote,
		UpdateOpt:                    updateOpt,
		LocalError:                   localErr,
		RemoteError:                  remoteErr,
		ResizeProposal:               resize,
		OverrideProposal:             override,
		PostErrorOutgoingResolvedIds: resolved,
		State:                        lnwallet.ChannelState(state),
	}, nil
}

func writePubKey(w *bytes.Buffer, pub *btcec.PublicKey) error {
	var compressed [33]byte
	if pub != nil {
		copy(compressed[:], pub.SerializeCompressed())
	}
	_, err := w.Write(compressed[:])
	return err
}

func readPubKey(r *bytes.Reader) (*btcec.PublicKey, error) {
	var raw [33]byte
	if _, err := r.Read(raw[:]); err != nil {
		return nil, err
	}

	var zero [33]byte
	if raw == zero {
		return nil, nil
	}

	return btcec.ParsePubKey(raw[:])
}

func writeUpdateQueue(w *bytes.Buffer, updates []lnwallet.UpdateMessage) error {
	if err := binary.Write(w, byteOrder, uint32(len(updates))); err != nil {
		return err
	}

	for _, u := range updates {
		switch msg := u.(type) {
		case *lnwallet.AddHtlcUpdate:
			if err := binary.Write(w, byteOrder, uint8(tagAdd)); err != nil {
				return err
			}
			if err := msg.Add.Encode(w, 0); err != nil {
				return err
			}
		case *lnwallet.FulfillHtlcUpdate:
			if err := binary.Write(w, byteOrder, uint8(tagFulfill)); err != nil {
				return err
			}
			if err := msg.Fulfill.Encode(w, 0); err != nil {
				return err
			}
		case *lnwallet.FailHtlcUpdate:
			if err := binary.Write(w, byteOrder, uint8(tagFail)); err != nil {
				return err
			}
			if err := msg.Fail.Encode(w, 0); err != nil {
				return err
			}
		case *lnwallet.FailMalformedHtlcUpdate:
			if err := binary.Write(w, byteOrder, uint8(tagFailMalformed)); err != nil {
				return err
			}
			if err := msg.FailMalformed.Encode(w, 0); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown update message type %T", u)
		}
	}

	return nil
}

func readUpdateQueue(r *bytes.Reader) ([]lnwallet.UpdateMessage, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return nil, err
	}

	updates := make([]lnwallet.UpdateMessage, 0, n)
	for i := uint32(0); i < n; i++ {
		var tag uint8
		if err := binary.Read(r, byteOrder, &tag); err != nil {
			return nil, err
		}

		switch updateTag(tag) {
		case tagAdd:
			add := &lnwire.UpdateAddHTLC{}
			if err := add.Decode(r, 0); err != nil {
				return nil, err
			}
			updates = append(updates, &lnwallet.AddHtlcUpdate{Add: add})

		case tagFulfill:
			fulfill := &lnwire.UpdateFulfillHTLC{}
			if err := fulfill.Decode(r, 0); err != nil {
				return nil, err
			}
			updates = append(updates, &lnwallet.FulfillHtlcUpdate{
				ID: fulfill.ID, Fulfill: fulfill,
			})

		case tagFail:
			fail := &lnwire.UpdateFailHTLC{}
			if err := fail.Decode(r, 0); err != nil {
				return nil, err
			}
			updates = append(updates, &lnwallet.FailHtlcUpdate{
				ID: fail.ID, Fail: fail,
			})

		case tagFailMalformed:
			malformed := &lnwire.UpdateFailMalformedHTLC{}
			if err := malformed.Decode(r, 0); err != nil {
				return nil, err
			}
			updates = append(updates, &lnwallet.FailMalformedHtlcUpdate{
				ID: malformed.ID, FailMalformed: malformed,
			})

		default:
			return nil, fmt.Errorf("unknown update tag %d", tag)
		}
	}

	return updates, nil
}

func writeOptionalMessage(w *bytes.Buffer, msg lnwire.Message) error {
	if msg == nil {
		return binary.Write(w, byteOrder, false)
	}
	if err := binary.Write(w, byteOrder, true); err != nil {
		return err
	}
	return msg.Encode(w, 0)
}

func readPresence(r *bytes.Reader) (bool, error) {
	var present bool
	err := binary.Read(r, byteOrder, &present)
	return present, err
}

func readOptionalChannelUpdate(r *bytes.Reader) (*lnwire.ChannelUpdate, error) {
	present, err := readPresence(r)
	if err != nil || !present {
		return nil, err
	}
	msg := &lnwire.ChannelUpdate{}
	if err := msg.Decode(r, 0); err != nil {
		return nil, err
	}
	return msg, nil
}

func readOptionalFail(r *bytes.Reader) (*lnwire.Fail, error) {
	present, err := readPresence(r)
	if err != nil || !present {
		return nil, err
	}
	msg := &lnwire.Fail{}
	if err := msg.Decode(r, 0); err != nil {
		return nil, err
	}
	return msg, nil
}

func readOptionalResize(r *bytes.Reader) (*lnwire.ResizeChannel, error) {
	present, err := readPresence(r)
	if err != nil || !present {
		return nil, err
	}
	msg := &lnwire.ResizeChannel{}
	if err := msg.Decode(r, 0); err != nil {
		return nil, err
	}
	return msg, nil
}

func readOptionalOverride(r *bytes.Reader) (*lnwire.StateOverride, error) {
	present, err := readPresence(r)
	if err != nil || !present {
		return nil, err
	}
	msg := &lnwire.StateOverride{}
	if err := msg.Decode(r, 0); err != nil {
		return nil, err
	}
	return msg, nil
}
