// Package storage implements the Storage Engine (spec §4.2): an embedded
// ordered key-value store wrapping blocks, rounds, balances, nonces and
// indexes, providing atomic commit groups and crash-safe recovery. It wraps
// go.etcd.io/bbolt exactly the way the teacher's node/store package does,
// generalized from a UTXO ledger to FinDAG's account/block/round model.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Key-space bucket names, one per logical space in spec §4.2.
var (
	bucketBlocks  = []byte("block")
	bucketTips    = []byte("tip")
	bucketRounds  = []byte("round")
	bucketAccts   = []byte("acct")
	bucketTxHist  = []byte("tx_hist")
	bucketTxs     = []byte("tx")
	bucketMeta    = []byte("meta")
	allBuckets    = [][]byte{bucketBlocks, bucketTips, bucketRounds, bucketAccts, bucketTxHist, bucketTxs, bucketMeta}
)

// Well-known keys in the meta/ space.
var (
	metaKeyLatestRound     = []byte("latest_round")
	metaKeyGenesis         = []byte("genesis")
	metaKeySchemaVersion   = []byte("schema_version")
	metaKeyFinalizedPrefix = []byte("finalized/") // finalized/<block hashtimer> -> marker
)

// SchemaVersion is the current on-disk schema version, gated via
// meta/schema_version (spec §6).
const SchemaVersion = 1

// DB is the Storage Engine: a single bbolt database file under DataDir,
// holding every logical key space as its own bucket.
type DB struct {
	path string
	bdb  *bolt.DB
}

// Open opens (creating if absent) the storage engine rooted at dataDir.
func Open(dataDir string) (*DB, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("storage: data_dir required")
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: mkdir data_dir: %w", err)
	}
	path := filepath.Join(dataDir, "findag.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open bbolt: %w", err)
	}
	d := &DB{path: path, bdb: bdb}
	if err := d.bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		v := tx.Bucket(bucketMeta).Get(metaKeySchemaVersion)
		if v == nil {
			return tx.Bucket(bucketMeta).Put(metaKeySchemaVersion, encodeU64(SchemaVersion))
		}
		if decodeU64(v) > SchemaVersion {
			return fmt.Errorf("storage: schema_version %d newer than supported %d", decodeU64(v), SchemaVersion)
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the underlying bbolt database.
func (d *DB) Close() error {
	if d == nil || d.bdb == nil {
		return nil
	}
	return d.bdb.Close()
}

// Path returns the backing database file path.
func (d *DB) Path() string { return d.path }

func encodeU64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[7-i] = byte(v >> (8 * i))
	}
	return out
}

func decodeU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < len(b) && i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
