package channeldb

import (
	"bytes"

	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// PutBranding caches the display branding a host supplied for chanID,
// overwriting any previous entry.
func (d *DB) PutBranding(chanID lnwire.ChannelID, branding *lnwire.HostedChannelBranding) error {
	var buf bytes.Buffer
	if err := branding.Encode(&buf, 0); err != nil {
		return err
	}

	return kvdb.Update(d, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(brandingBucket)
		if bucket == nil {
			return ErrNoChanDBExists
		}

		return bucket.Put(chanID[:], buf.Bytes())
	}, func() {})
}

// FetchBranding returns the cached branding for chanID, or
// ErrBrandingNotFound if the host has never supplied one.
func (d *DB) FetchBranding(chanID lnwire.ChannelID) (*lnwire.HostedChannelBranding, error) {
	var branding *lnwire.HostedChannelBranding

	err := kvdb.View(d, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(brandingBucket)
		if bucket == nil {
			return ErrBrandingNotFound
		}

		raw := bucket.Get(chanID[:])
		if raw == nil {
			return ErrBrandingNotFound
		}

		msg := &lnwire.HostedChannelBranding{}
		if err := msg.Decode(bytes.NewReader(raw), 0); err != nil {
			return err
		}
		branding = msg
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}

	return branding, nil
}
