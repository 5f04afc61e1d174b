package finalizer

import (
	"sort"

	"github.com/findag-labs/findag-core/internal/storage"
	"github.com/findag-labs/findag-core/internal/types"
)

// ComputeFrontier walks backward from the current DAG tips, collecting every
// reachable Block that has not yet been finalized in a committed Round. This
// resolves spec.md's open "frontier rule" question: the frontier is
// reachability-from-tips minus already-finalized, not first-seen-by-
// wall-clock (see DESIGN.md).
func ComputeFrontier(db *storage.DB) ([]types.Block, error) {
	tips, err := db.Tips()
	if err != nil {
		return nil, &FinalizerError{Code: CodeStorageFailure, Reason: err.Error()}
	}
	visited := make(map[types.HashTimer]bool)
	var frontier []types.Block
	queue := append([]types.HashTimer(nil), tips...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		finalized, err := db.IsFinalized(id)
		if err != nil {
			return nil, &FinalizerError{Code: CodeStorageFailure, Reason: err.Error()}
		}
		if finalized {
			continue
		}

		blk, ok, err := db.GetBlock(id)
		if err != nil {
			return nil, &FinalizerError{Code: CodeStorageFailure, Reason: err.Error()}
		}
		if !ok {
			continue // referenced but not yet synced locally; excluded from this round
		}
		frontier = append(frontier, blk)
		queue = append(queue, blk.ParentHashTimers...)
	}
	return frontier, nil
}

// Linearize produces the deterministic commit order for a frontier: blocks
// ascending by HashTimer, with ProducerAddr as a tiebreak for the
// pathological case of a HashTimer collision (spec §4.5).
func Linearize(frontier []types.Block) []types.Block {
	out := append([]types.Block(nil), frontier...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].HashTimer != out[j].HashTimer {
			return out[i].HashTimer.Less(out[j].HashTimer)
		}
		return out[i].ProducerAddr.Less(out[j].ProducerAddr)
	})
	return out
}
