package finalizer

// FinalizerError is the typed round-finalization failure taxonomy (spec §7).
type FinalizerError struct {
	Code   string
	Reason string
}

func (e *FinalizerError) Error() string {
	if e.Reason == "" {
		return "finalizer: " + e.Code
	}
	return "finalizer: " + e.Code + ": " + e.Reason
}

const (
	CodeFrontierEmpty    = "FRONTIER_EMPTY"
	CodeQuorumTimeout    = "QUORUM_TIMEOUT"
	CodeProposalMismatch = "PROPOSAL_MISMATCH"
	CodeStorageFailure   = "STORAGE_FAILURE"
)
