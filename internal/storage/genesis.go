package storage

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/findag-labs/findag-core/internal/types"
)

// GenesisSeed describes the initial account balances and genesis block a
// fresh chain is bootstrapped with.
type GenesisSeed struct {
	Block    types.Block
	Balances []AccountMutation
}

// InitGenesis bootstraps an empty Storage Engine with seed.Block as the sole
// DAG tip and seed.Balances as the opening account state. It is a no-op
// error if genesis has already been initialized, mirroring the teacher's
// init_genesis.go guard against double-initializing a chain directory.
func (d *DB) InitGenesis(seed GenesisSeed) error {
	return d.bdb.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketMeta).Get(metaKeyGenesis) != nil {
			return fmt.Errorf("storage: genesis already initialized")
		}
		blocks := tx.Bucket(bucketBlocks)
		if err := blocks.Put(seed.Block.HashTimer[:], types.EncodeBlock(seed.Block)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTips).Put(seed.Block.HashTimer[:], []byte{1}); err != nil {
			return err
		}
		for _, m := range seed.Balances {
			if err := putAccountTx(tx, m.Address, m.Asset, m.State); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(metaKeyGenesis, seed.Block.HashTimer[:])
	})
}

// GenesisBlockID returns the HashTimer of the genesis block, or ok=false if
// InitGenesis has not yet run.
func (d *DB) GenesisBlockID() (types.HashTimer, bool, error) {
	var id types.HashTimer
	var ok bool
	err := d.bdb.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(metaKeyGenesis)
		if v == nil {
			return nil
		}
		copy(id[:], v)
		ok = true
		return nil
	})
	return id, ok, err
}
