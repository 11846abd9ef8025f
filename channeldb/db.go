package channeldb

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lightningnetwork/lnd/kvdb"
)

const (
	dbName           = "hostedchannel.db"
	dbFilePermission = 0600
)

var (
	// hostedChannelBucket holds one entry per hosted channel, keyed by
	// its 32-byte channel id, value the tagged-versioned encoding of a
	// HostedCommits record.
	hostedChannelBucket = []byte("hosted-channel")

	// brandingBucket holds one HostedChannelBranding per channel id,
	// written by PutBranding and read by FetchBranding.
	brandingBucket = []byte("hosted-branding")

	// hostedGraphBucket is created alongside the other buckets but nothing
	// writes to it; QueryPublicHostedChannels is answered from the stored
	// HostedCommits records instead.
	hostedGraphBucket = []byte("hosted-graph")

	// metaBucket stores the database's schema version.
	metaBucket = []byte("meta")

	dbVersionKey = []byte("dbp")

	// byteOrder is the preferred byte order for on-disk integers, since
	// big-endian keys sort in numeric order under a cursor scan.
	byteOrder = binary.BigEndian
)

// migration mutates a prior version of the database into the next, in
// place, inside the same update transaction that records the new version
// number.
type migration func(tx kvdb.RwTx) error

type version struct {
	number    uint32
	migration migration
}

// dbVersions lists, in order, every migration required to bring a
// database from a prior schema version up to the current one. The base
// version requires no migration.
var dbVersions = []version{
	{
		number:    0,
		migration: nil,
	},
}

// DB is the primary datastore for the hosted-channel daemon: it stores
// HostedCommits records and the per-channel branding records, all behind a
// single kvdb.Backend.
type DB struct {
	kvdb.Backend

	dbPath string
}

// Open opens an existing hosted-channel database, creating and
// initializing one at dbPath if none exists yet. Any migrations required
// to bring an older database up to date are applied before Open returns.
func Open(dbPath string) (*DB, error) {
	if !fileExists(dbPath) {
		if err := os.MkdirAll(dbPath, 0700); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(dbPath, dbName)

	backend, err := kvdb.Create(
		kvdb.BoltBackendName, path, true, kvdb.DefaultDBTimeout,
	)
	if err != nil {
		return nil, err
	}

	chanDB := &DB{
		Backend: backend,
		dbPath:  dbPath,
	}

	if err := chanDB.initBuckets(); err != nil {
		backend.Close()
		return nil, err
	}

	if err := chanDB.syncVersions(dbVersions); err != nil {
		backend.Close()
		return nil, err
	}

	return chanDB, nil
}

// initBuckets creates every top-level bucket the database needs, if it
// does not already exist. CreateTopLevelBucket is idempotent, so this is
// safe to run against an already-populated database.
func (d *DB) initBuckets() error {
	return kvdb.Update(d, func(tx kvdb.RwTx) error {
		buckets := [][]byte{
			hostedChannelBucket,
			brandingBucket,
			hostedGraphBucket,
			metaBucket,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateTopLevelBucket(bucket); err != nil {
				return err
			}
		}

		return nil
	}, func() {})
}

// Wipe completely deletes all saved state within every bucket the
// database uses. The deletion happens inside a single transaction, so it
// is fully atomic.
func (d *DB) Wipe() error {
	return kvdb.Update(d, func(tx kvdb.RwTx) error {
		buckets := [][]byte{
			hostedChannelBucket,
			brandingBucket,
			hostedGraphBucket,
		}

		for _, bucket := range buckets {
			err := tx.DeleteTopLevelBucket(bucket)
			if err != nil && err != kvdb.ErrBucketNotFound {
				return err
			}
		}

		return nil
	}, func() {})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// getLatestDBVersion returns the number of the last version in the list of
// database versions.
func getLatestDBVersion(versions []version) uint32 {
	if len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1].number
}

// getMigrationsToApply returns the full set of migrations that must run
// to bring a database at curVersion up to the latest version known to
// dbVersions.
func getMigrationsToApply(versions []version, curVersion uint32) []migration {
	var migrations []migration
	for _, v := range versions {
		if v.number > curVersion && v.migration != nil {
			migrations = append(migrations, v.migration)
		}
	}
	return migrations
}

// syncVersions applies any migrations needed to bring the database's
// on-disk schema version up to the latest one known to versions.
func (d *DB) syncVersions(versions []version) error {
	meta, err := d.fetchMeta()
	if err != nil {
		return err
	}

	curVersion := meta.DbVersionNumber
	latestVersion := getLatestDBVersion(versions)
	if curVersion == latestVersion {
		return nil
	}

	log.Infof("Applying %d migrations to hosted channel database",
		latestVersion-curVersion)

	migrations := getMigrationsToApply(versions, curVersion)

	return kvdb.Update(d, func(tx kvdb.RwTx) error {
		for _, m := range migrations {
			if err := m(tx); err != nil {
				return err
			}
		}

		meta.DbVersionNumber = latestVersion
		return d.putMeta(meta, tx)
	}, func() {})
}

// Meta records the database's on-disk schema version.
type Meta struct {
	DbVersionNumber uint32
}

func (d *DB) fetchMeta() (*Meta, error) {
	meta := &Meta{}

	err := kvdb.View(d, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(metaBucket)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(dbVersionKey)
		if data == nil {
			return nil
		}
		if len(data) != 4 {
			return fmt.Errorf("corrupt db version entry")
		}

		meta.DbVersionNumber = byteOrder.Uint32(data)
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}

	return meta, nil
}

func (d *DB) putMeta(meta *Meta, tx kvdb.RwTx) error {
	bucket, err := tx.CreateTopLevelBucket(metaBucket)
	if err != nil {
		return err
	}

	var b [4]byte
	byteOrder.PutUint32(b[:], meta.DbVersionNumber)
	return bucket.Put(dbVersionKey, b[:])
}
