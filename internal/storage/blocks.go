package storage

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/findag-labs/findag-core/internal/types"
)

// GetBlock returns the decoded Block stored under id, or ok=false if absent.
func (d *DB) GetBlock(id types.HashTimer) (types.Block, bool, error) {
	var blk types.Block
	var ok bool
	err := d.bdb.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(id[:])
		if v == nil {
			return nil
		}
		decoded, err := types.DecodeBlock(v)
		if err != nil {
			return err
		}
		blk, ok = decoded, true
		return nil
	})
	return blk, ok, err
}

// HasBlock reports whether a block with the given id is already persisted.
func (d *DB) HasBlock(id types.HashTimer) (bool, error) {
	var ok bool
	err := d.bdb.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketBlocks).Get(id[:]) != nil
		return nil
	})
	return ok, err
}

// Tips returns the current DAG tip set: HashTimers of blocks with no
// locally-known child (spec §3, §4.4).
func (d *DB) Tips() ([]types.HashTimer, error) {
	var out []types.HashTimer
	err := d.bdb.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTips).ForEach(func(k, _ []byte) error {
			var h types.HashTimer
			copy(h[:], k)
			out = append(out, h)
			return nil
		})
	})
	return out, err
}

// CommitBlock persists blk and its included transaction bodies, removes
// parentsConsumed from the tip index, and adds blk itself as a new tip, all
// in one atomic commit group (spec §4.4: "write block, remove chosen tips
// from the tip index, add this block to the tip index"). includedTxs must
// contain exactly the transactions named by blk.TxIDs; it fails if any
// parent is not already known, or if blk is already present.
func (d *DB) CommitBlock(blk types.Block, parentsConsumed []types.HashTimer, includedTxs []types.Transaction) error {
	return d.bdb.Update(func(tx *bolt.Tx) error {
		blocks := tx.Bucket(bucketBlocks)
		tips := tx.Bucket(bucketTips)
		txs := tx.Bucket(bucketTxs)
		if blocks.Get(blk.HashTimer[:]) != nil {
			return fmt.Errorf("storage: block %s already exists", blk.HashTimer)
		}
		for _, p := range parentsConsumed {
			if blocks.Get(p[:]) == nil {
				return fmt.Errorf("storage: parent %s not known locally", p)
			}
		}
		if len(includedTxs) != len(blk.TxIDs) {
			return fmt.Errorf("storage: includedTxs has %d entries, block names %d", len(includedTxs), len(blk.TxIDs))
		}
		for i, t := range includedTxs {
			if t.HashTimer != blk.TxIDs[i] {
				return fmt.Errorf("storage: includedTxs[%d] hashtimer mismatch", i)
			}
			if err := txs.Put(t.HashTimer[:], types.EncodeTransaction(t)); err != nil {
				return err
			}
		}
		encoded := types.EncodeBlock(blk)
		if err := blocks.Put(blk.HashTimer[:], encoded); err != nil {
			return err
		}
		for _, p := range parentsConsumed {
			if err := tips.Delete(p[:]); err != nil {
				return err
			}
		}
		return tips.Put(blk.HashTimer[:], []byte{1})
	})
}

// GetTransaction returns the decoded Transaction persisted under id (written
// when its containing Block was committed), or ok=false if absent.
func (d *DB) GetTransaction(id types.HashTimer) (types.Transaction, bool, error) {
	var t types.Transaction
	var ok bool
	err := d.bdb.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTxs).Get(id[:])
		if v == nil {
			return nil
		}
		decoded, err := types.DecodeTransaction(v)
		if err != nil {
			return err
		}
		t, ok = decoded, true
		return nil
	})
	return t, ok, err
}

// MarkFinalized records that block id has been included in a committed
// Round, enforcing invariant 5 ("every committed Block appears in exactly
// one committed Round").
func (d *DB) MarkFinalized(tx *bolt.Tx, id types.HashTimer) error {
	key := append(append([]byte{}, metaKeyFinalizedPrefix...), id[:]...)
	return tx.Bucket(bucketMeta).Put(key, []byte{1})
}

// IsFinalized reports whether block id has already been included in a
// committed Round.
func (d *DB) IsFinalized(id types.HashTimer) (bool, error) {
	key := append(append([]byte{}, metaKeyFinalizedPrefix...), id[:]...)
	var finalized bool
	err := d.bdb.View(func(tx *bolt.Tx) error {
		finalized = tx.Bucket(bucketMeta).Get(key) != nil
		return nil
	})
	return finalized, err
}
