package storage

import (
	bolt "go.etcd.io/bbolt"

	"github.com/findag-labs/findag-core/internal/types"
)

// GetAccount returns the committed AccountState for (addr, asset), or the
// zero state (balance 0, locked 0, nonce 0) if the account has never been
// touched.
func (d *DB) GetAccount(addr types.Address, asset types.Currency) (types.AccountState, error) {
	var out types.AccountState
	err := d.bdb.View(func(tx *bolt.Tx) error {
		return getAccountTx(tx, addr, asset, &out)
	})
	return out, err
}

func getAccountTx(tx *bolt.Tx, addr types.Address, asset types.Currency, out *types.AccountState) error {
	v := tx.Bucket(bucketAccts).Get(types.AccountKey(addr, asset))
	if v == nil {
		*out = types.AccountState{}
		return nil
	}
	decoded, err := types.DecodeAccountState(v)
	if err != nil {
		return err
	}
	*out = decoded
	return nil
}

func putAccountTx(tx *bolt.Tx, addr types.Address, asset types.Currency, st types.AccountState) error {
	return tx.Bucket(bucketAccts).Put(types.AccountKey(addr, asset), types.EncodeAccountState(st))
}

// AccountMutation is a single (address, asset) -> new-state write applied as
// part of a Round commit.
type AccountMutation struct {
	Address types.Address
	Asset   types.Currency
	State   types.AccountState
}
