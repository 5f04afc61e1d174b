package finalizer

import (
	"sort"

	"golang.org/x/crypto/sha3"

	"github.com/findag-labs/findag-core/internal/storage"
	"github.com/findag-labs/findag-core/internal/types"
)

// stateLeaf is one (address, asset) -> new-state mutation produced by
// applying a round's linearized transactions.
type stateLeaf struct {
	addr  types.Address
	asset types.Currency
	state types.AccountState
}

func leafBytes(l stateLeaf) []byte {
	buf := make([]byte, 0, types.AddressLen+1+len(l.asset)+16+16+8)
	buf = append(buf, l.addr[:]...)
	buf = append(buf, byte(len(l.asset)))
	buf = append(buf, []byte(l.asset)...)
	bal := l.state.Balance.Bytes16()
	locked := l.state.Locked.Bytes16()
	buf = append(buf, bal[:]...)
	buf = append(buf, locked[:]...)
	var nonce [8]byte
	for i := 0; i < 8; i++ {
		nonce[i] = byte(l.state.Nonce >> (8 * (7 - i)))
	}
	buf = append(buf, nonce[:]...)
	return buf
}

// StateRoot computes the round's state commitment: a tagged Merkle root over
// the (address, asset) -> AccountState mutations produced by the round,
// sorted for determinism, adapted from the teacher's consensus/merkle.go
// tagged leaf/node hashing (odd-node promotion carries the lone node
// forward unchanged), then combined with prevStateRoot so the result chains
// to the prior round's committed state (spec §4.5 step 5: "the digest is
// computed over the mutated account entries combined with
// R_prev.state_root"). prevStateRoot is the zero value for round 1, which
// has no predecessor.
func StateRoot(mutations []storage.AccountMutation, prevStateRoot [32]byte) [32]byte {
	leaves := make([]stateLeaf, len(mutations))
	for i, m := range mutations {
		leaves[i] = stateLeaf{addr: m.Address, asset: m.Asset, state: m.State}
	}
	sort.Slice(leaves, func(i, j int) bool {
		if leaves[i].addr != leaves[j].addr {
			return leaves[i].addr.Less(leaves[j].addr)
		}
		return leaves[i].asset < leaves[j].asset
	})

	const leafTag = 0x00
	const nodeTag = 0x01
	const rootTag = 0x02

	var mutationsRoot [32]byte
	if len(leaves) == 0 {
		mutationsRoot = sha3_256([]byte("findag-empty-state-root"))
	} else {
		level := make([][32]byte, len(leaves))
		for i, l := range leaves {
			level[i] = sha3_256(append([]byte{leafTag}, leafBytes(l)...))
		}
		for len(level) > 1 {
			next := make([][32]byte, 0, (len(level)+1)/2)
			for i := 0; i < len(level); {
				if i == len(level)-1 {
					next = append(next, level[i])
					i++
					continue
				}
				buf := make([]byte, 0, 1+32+32)
				buf = append(buf, nodeTag)
				buf = append(buf, level[i][:]...)
				buf = append(buf, level[i+1][:]...)
				next = append(next, sha3_256(buf))
				i += 2
			}
			level = next
		}
		mutationsRoot = level[0]
	}

	buf := make([]byte, 0, 1+32+32)
	buf = append(buf, rootTag)
	buf = append(buf, prevStateRoot[:]...)
	buf = append(buf, mutationsRoot[:]...)
	return sha3_256(buf)
}

func sha3_256(b []byte) [32]byte {
	h := sha3.New256()
	_, _ = h.Write(b)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
