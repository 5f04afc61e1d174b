package finalizer

import (
	"sort"

	"github.com/findag-labs/findag-core/internal/storage"
	"github.com/findag-labs/findag-core/internal/types"
)

// Proposal is one validator's candidate Round, built from a frontier
// snapshot before quorum has been reached (spec §4.5: "Each validator
// independently proposes (round_number, block_ids_in_order, state_root)").
type Proposal struct {
	Number          uint64
	PrevRoundHash   [32]byte
	BlockIDsInOrder []types.HashTimer
	StateRoot       [32]byte
	Mutations       []storage.AccountMutation
	// IncludedTxIDs maps every transaction that survived re-validation to
	// the account its tx_hist/ entry is recorded under (spec §4.2).
	IncludedTxIDs map[types.HashTimer]types.Address
}

// acctKey identifies one (address, asset) projected-state entry during
// linearization.
type acctKey struct {
	addr  types.Address
	asset types.Currency
}

// BuildProposal computes the frontier, linearizes it, and replays its
// transactions against projected account state, dropping any transaction
// that fails re-validation (spec §4.5 step 4: stale nonce, double-spend, or
// insufficient funds). It returns *FinalizerError{Code: CodeFrontierEmpty}
// if the frontier is empty, per spec §7 ("FrontierEmpty — skip tick").
// prevStateRoot is the predecessor round's committed state_root (the zero
// value for round 1), chained into the returned Proposal's StateRoot.
func BuildProposal(db *storage.DB, number uint64, prevRoundHash [32]byte, prevStateRoot [32]byte) (*Proposal, error) {
	frontier, err := ComputeFrontier(db)
	if err != nil {
		return nil, err
	}
	if len(frontier) == 0 {
		return nil, &FinalizerError{Code: CodeFrontierEmpty}
	}
	ordered := Linearize(frontier)

	blockIDs := make([]types.HashTimer, len(ordered))
	for i, b := range ordered {
		blockIDs[i] = b.HashTimer
	}

	// Flatten transactions in block order, keeping only the first occurrence
	// of any tx_id across the whole frontier (spec §4.5 step 3).
	seen := make(map[types.HashTimer]bool)
	var txOrder []types.HashTimer
	for _, b := range ordered {
		for _, id := range b.TxIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			txOrder = append(txOrder, id)
		}
	}

	state := make(map[acctKey]types.AccountState)
	loadState := func(addr types.Address, asset types.Currency) (types.AccountState, error) {
		k := acctKey{addr, asset}
		if s, ok := state[k]; ok {
			return s, nil
		}
		s, err := db.GetAccount(addr, asset)
		if err != nil {
			return types.AccountState{}, err
		}
		state[k] = s
		return s, nil
	}

	included := make(map[types.HashTimer]types.Address)
	for _, id := range txOrder {
		tx, ok, err := db.GetTransaction(id)
		if err != nil {
			return nil, &FinalizerError{Code: CodeStorageFailure, Reason: err.Error()}
		}
		if !ok {
			// Referenced by a block but not locally persisted (should not
			// happen for locally-committed blocks); excluded defensively.
			continue
		}

		from, err := loadState(tx.From, tx.Asset)
		if err != nil {
			return nil, &FinalizerError{Code: CodeStorageFailure, Reason: err.Error()}
		}
		if tx.Nonce != from.Nonce {
			continue // stale or already-applied: double-spend guard (spec §4.5 step 4)
		}
		cost, err := tx.Amount.Add(types.AmountFromUint64(tx.Fee))
		if err != nil {
			continue // amount+fee overflow: cannot have been validly admitted, drop
		}
		if from.Balance.Less(cost) {
			continue // insufficient committed balance at replay time
		}

		to, err := loadState(tx.To, tx.Asset)
		if err != nil {
			return nil, &FinalizerError{Code: CodeStorageFailure, Reason: err.Error()}
		}
		creditedTo, err := to.Balance.Add(tx.Amount)
		if err != nil {
			continue // recipient balance would overflow 128 bits: drop rather than corrupt state
		}

		from.Balance = from.Balance.Sub(cost)
		from.Locked = from.Locked.Sub(cost)
		from.Nonce++
		to.Balance = creditedTo

		state[acctKey{tx.From, tx.Asset}] = from
		state[acctKey{tx.To, tx.Asset}] = to
		included[id] = tx.From
	}

	mutations := make([]storage.AccountMutation, 0, len(state))
	for k, v := range state {
		mutations = append(mutations, storage.AccountMutation{Address: k.addr, Asset: k.asset, State: v})
	}
	sort.Slice(mutations, func(i, j int) bool {
		if mutations[i].Address != mutations[j].Address {
			return mutations[i].Address.Less(mutations[j].Address)
		}
		return mutations[i].Asset < mutations[j].Asset
	})

	return &Proposal{
		Number:          number,
		PrevRoundHash:   prevRoundHash,
		BlockIDsInOrder: blockIDs,
		StateRoot:       StateRoot(mutations, prevStateRoot),
		Mutations:       mutations,
		IncludedTxIDs:   included,
	}, nil
}

// SignableBytes returns the canonical bytes a validator signs to vote for
// this proposal (spec §9).
func (p *Proposal) SignableBytes() []byte {
	return types.ProposalSignableBytes(p.Number, p.StateRoot, p.BlockIDsInOrder)
}

// MatchesProposal reports whether other is byte-identical to p over the
// fields that matter for quorum agreement (number, block order, state
// root) — spec §4.5: "signatures from >= quorum_size distinct validators
// over a byte-identical proposal."
func (p *Proposal) MatchesProposal(other *Proposal) bool {
	if p.Number != other.Number || p.StateRoot != other.StateRoot {
		return false
	}
	if len(p.BlockIDsInOrder) != len(other.BlockIDsInOrder) {
		return false
	}
	for i := range p.BlockIDsInOrder {
		if p.BlockIDsInOrder[i] != other.BlockIDsInOrder[i] {
			return false
		}
	}
	return true
}
