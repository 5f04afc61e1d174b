package storage

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/findag-labs/findag-core/internal/types"
)

func roundKey(n uint64) []byte {
	return encodeU64(n)
}

// GetRound returns the decoded Round numbered n, or ok=false if not yet
// committed.
func (d *DB) GetRound(n uint64) (types.Round, bool, error) {
	var r types.Round
	var ok bool
	err := d.bdb.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRounds).Get(roundKey(n))
		if v == nil {
			return nil
		}
		decoded, err := types.DecodeRound(v)
		if err != nil {
			return err
		}
		r, ok = decoded, true
		return nil
	})
	return r, ok, err
}

// LatestRoundNumber returns the highest committed round number, and
// ok=false if no round has ever committed (the chain is pre-genesis-round).
func (d *DB) LatestRoundNumber() (uint64, bool, error) {
	var n uint64
	var ok bool
	err := d.bdb.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(metaKeyLatestRound)
		if v == nil {
			return nil
		}
		n, ok = decodeU64(v), true
		return nil
	})
	return n, ok, err
}

// TxHistKey builds the `tx_hist/` key: account ‖ HashTimer (spec §4.2).
func TxHistKey(addr types.Address, id types.HashTimer) []byte {
	key := make([]byte, 0, types.AddressLen+types.HashTimerLen)
	key = append(key, addr[:]...)
	key = append(key, id[:]...)
	return key
}

// RoundCommit bundles everything the RoundChain Finalizer must apply
// atomically when a round reaches quorum (spec §4.5 "Commit").
type RoundCommit struct {
	Round            types.Round
	AccountMutations []AccountMutation
	// IncludedTxIDs maps each committed transaction to the address whose
	// tx_hist/ entry should record it (spec §4.2: key is account ‖ HashTimer).
	IncludedTxIDs map[types.HashTimer]types.Address
}

// CommitRound applies all account-state mutations, marks included blocks
// finalized, writes the Round, and advances meta/latest_round, in one
// storage commit group (spec §4.5: "all in one storage commit group...
// either commits or is retried as a whole on restart").
func (d *DB) CommitRound(rc RoundCommit) error {
	return d.bdb.Update(func(tx *bolt.Tx) error {
		var prevLatest uint64
		var havePrev bool
		if v := tx.Bucket(bucketMeta).Get(metaKeyLatestRound); v != nil {
			prevLatest, havePrev = decodeU64(v), true
		}
		if havePrev && rc.Round.Number != prevLatest+1 {
			return fmt.Errorf("storage: round number %d does not follow latest %d", rc.Round.Number, prevLatest)
		}
		if !havePrev && rc.Round.Number != 1 {
			return fmt.Errorf("storage: first round must be numbered 1, got %d", rc.Round.Number)
		}
		for _, m := range rc.AccountMutations {
			if err := putAccountTx(tx, m.Address, m.Asset, m.State); err != nil {
				return err
			}
		}
		for id, addr := range rc.IncludedTxIDs {
			if err := tx.Bucket(bucketTxHist).Put(TxHistKey(addr, id), id[:]); err != nil {
				return err
			}
		}
		for _, id := range rc.Round.BlockIDsInOrder {
			if err := d.MarkFinalized(tx, id); err != nil {
				return err
			}
		}
		if err := tx.Bucket(bucketRounds).Put(roundKey(rc.Round.Number), types.EncodeRound(rc.Round)); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(metaKeyLatestRound, encodeU64(rc.Round.Number))
	})
}
