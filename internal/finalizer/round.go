// Package finalizer implements the RoundChain Finalizer (spec §4.5): it
// turns the DAG into a linear, state-advancing sequence of Rounds by
// collecting the blocks referenced since the last round, linearizing them
// deterministically, gathering validator signatures over the resulting
// proposal, and committing once a quorum agrees.
package finalizer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/findag-labs/findag-core/internal/fintime"
	"github.com/findag-labs/findag-core/internal/storage"
	"github.com/findag-labs/findag-core/internal/txpool"
	"github.com/findag-labs/findag-core/internal/types"
)

// RoundState is one state of the round state machine described in spec
// §4.5 ("State machine of a round"): Proposing -> Collecting -> Committed
// (terminal), or Proposing -> Stalled -> Proposing on timeout.
type RoundState int

const (
	StateProposing RoundState = iota
	StateCollecting
	StateStalled
	StateCommitted
)

func (s RoundState) String() string {
	switch s {
	case StateProposing:
		return "Proposing"
	case StateCollecting:
		return "Collecting"
	case StateStalled:
		return "Stalled"
	case StateCommitted:
		return "Committed"
	default:
		return "Unknown"
	}
}

// OnRoundCommit is invoked with every Round the Finalizer commits, so a
// caller (e.g. the gossip layer) can announce it and notify bridge
// collaborators of finalization status.
type OnRoundCommit func(types.Round)

// Config holds the finalizer's static policy, mirroring the relevant fields
// of internal/config.Config.
type Config struct {
	RoundIntervalMS     uint64
	RoundStallTimeoutMS uint64
	QuorumSize          int
}

// Finalizer drives the RoundChain state machine for one validator: it
// proposes rounds, collects votes (its own and peers'), and commits once a
// quorum of distinct validators agrees on a byte-identical proposal.
type Finalizer struct {
	db     *storage.DB
	pool   *txpool.Pool
	clock  *fintime.Service
	self   types.Address
	signer ed25519.PrivateKey
	cfg    Config

	mu         sync.Mutex
	state      RoundState
	number     uint64
	proposal   *Proposal
	votes      map[types.Address][]byte // validator -> signature over proposal.SignableBytes()
	proposedAt time.Time
	onCommit   OnRoundCommit
}

// New constructs a Finalizer. self/signer are this node's validator
// identity, used to sign its own proposals.
func New(db *storage.DB, pool *txpool.Pool, clock *fintime.Service, self types.Address, signer ed25519.PrivateKey, cfg Config, onCommit OnRoundCommit) (*Finalizer, error) {
	if db == nil {
		return nil, errors.New("finalizer: nil storage")
	}
	if pool == nil {
		return nil, errors.New("finalizer: nil pool")
	}
	if clock == nil {
		return nil, errors.New("finalizer: nil clock")
	}
	if len(signer) != ed25519.PrivateKeySize {
		return nil, errors.New("finalizer: signer key has wrong size")
	}
	if cfg.QuorumSize <= 0 {
		cfg.QuorumSize = 1
	}
	latest, ok, err := db.LatestRoundNumber()
	if err != nil {
		return nil, &FinalizerError{Code: CodeStorageFailure, Reason: err.Error()}
	}
	next := uint64(1)
	if ok {
		next = latest + 1
	}
	return &Finalizer{
		db:       db,
		pool:     pool,
		clock:    clock,
		self:     self,
		signer:   signer,
		cfg:      cfg,
		state:    StateProposing,
		number:   next,
		votes:    make(map[types.Address][]byte),
		onCommit: onCommit,
	}, nil
}

// State returns the finalizer's current round state and round number.
func (f *Finalizer) State() (RoundState, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.number
}

// Tick advances the state machine by one round_interval: if Proposing, it
// builds a fresh proposal from the current frontier and casts this node's
// own vote; if Collecting and round_stall_timeout has elapsed without
// quorum, it moves to Stalled and immediately re-proposes for the same
// round number against an updated frontier (spec §4.5 "Disagreement").
// It returns the committed Round when this tick's own vote reaches quorum,
// (nil, nil) when a proposal is collecting votes or still within the stall
// timeout, and *FinalizerError{Code: CodeFrontierEmpty} when there is
// nothing new to propose.
func (f *Finalizer) Tick() (*types.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case StateCollecting:
		timeout := time.Duration(f.cfg.RoundStallTimeoutMS) * time.Millisecond
		if timeout > 0 && time.Since(f.proposedAt) < timeout {
			return nil, nil
		}
		f.state = StateStalled
		fallthrough
	case StateStalled, StateProposing:
		return f.propose()
	default: // StateCommitted is never reached here; a new Finalizer.number is minted after commit
		return nil, nil
	}
}

// propose builds a new proposal for f.number and records this node's own
// vote, committing immediately if that self-vote alone already reaches
// quorum_size (the single-validator / quorum_size=1 case: spec §4.5 never
// requires a second, externally-arriving vote when one is already enough).
// Caller must hold f.mu.
func (f *Finalizer) propose() (*types.Round, error) {
	prevHash, prevStateRoot, err := f.prevRoundInfo()
	if err != nil {
		return nil, err
	}
	prop, err := BuildProposal(f.db, f.number, prevHash, prevStateRoot)
	if err != nil {
		var fe *FinalizerError
		if errors.As(err, &fe) && fe.Code == CodeFrontierEmpty {
			f.state = StateProposing
			return nil, err
		}
		return nil, err
	}
	f.proposal = prop
	f.votes = make(map[types.Address][]byte)
	f.proposedAt = time.Now()
	f.state = StateCollecting

	sig := ed25519.Sign(f.signer, prop.SignableBytes())
	f.votes[f.self] = sig

	if len(f.votes) >= f.cfg.QuorumSize {
		return f.commitLocked()
	}
	return nil, nil
}

// prevRoundInfo returns H(prev_round) and prev_round.state_root for the
// round preceding f.number, or both zero values if f.number is 1 (genesis
// round has no predecessor).
func (f *Finalizer) prevRoundInfo() (hash [32]byte, stateRoot [32]byte, err error) {
	if f.number <= 1 {
		return [32]byte{}, [32]byte{}, nil
	}
	prev, ok, err := f.db.GetRound(f.number - 1)
	if err != nil {
		return [32]byte{}, [32]byte{}, &FinalizerError{Code: CodeStorageFailure, Reason: err.Error()}
	}
	if !ok {
		return [32]byte{}, [32]byte{}, fmt.Errorf("finalizer: missing committed round %d", f.number-1)
	}
	return hashRound(prev), prev.StateRoot, nil
}

// ReceiveVote records a peer validator's signature over a round proposal,
// committing the round if this pushes the proposal to quorum. It returns
// *FinalizerError{Code: CodeProposalMismatch} (not fatal; spec §7: "drop
// foreign proposal") if the peer's proposal diverges from this node's own
// in-flight proposal for the same round number.
func (f *Finalizer) ReceiveVote(validator types.Address, peerProposal *Proposal, sig []byte) (*types.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateCommitted {
		return nil, nil // already finalized this round locally; ignore stragglers
	}
	if f.proposal == nil || peerProposal.Number != f.number {
		return nil, &FinalizerError{Code: CodeProposalMismatch, Reason: "unknown round number"}
	}
	if !f.proposal.MatchesProposal(peerProposal) {
		return nil, &FinalizerError{Code: CodeProposalMismatch, Reason: "frontier visibility diverges"}
	}
	if !ed25519.Verify(ed25519.PublicKey(validator[:]), f.proposal.SignableBytes(), sig) {
		return nil, &FinalizerError{Code: CodeProposalMismatch, Reason: "invalid signature"}
	}
	f.votes[validator] = sig

	if len(f.votes) < f.cfg.QuorumSize {
		return nil, nil
	}
	return f.commitLocked()
}

// commitLocked applies the current proposal as a committed Round. Caller
// must hold f.mu.
func (f *Finalizer) commitLocked() (*types.Round, error) {
	sigs := make([]types.ValidatorSignature, 0, len(f.votes))
	for addr, sig := range f.votes {
		sigs = append(sigs, types.ValidatorSignature{Validator: addr, Signature: sig})
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Validator.Less(sigs[j].Validator) })

	round := types.Round{
		Number:          f.proposal.Number,
		PrevRoundHash:   f.proposal.PrevRoundHash,
		BlockIDsInOrder: f.proposal.BlockIDsInOrder,
		ValidatorSigs:   sigs,
		FinalizedAt:     f.clock.Now(),
		StateRoot:       f.proposal.StateRoot,
	}

	if err := f.db.CommitRound(storage.RoundCommit{
		Round:            round,
		AccountMutations: f.proposal.Mutations,
		IncludedTxIDs:    f.proposal.IncludedTxIDs,
	}); err != nil {
		return nil, &FinalizerError{Code: CodeStorageFailure, Reason: err.Error()}
	}

	ids := make([]types.HashTimer, 0, len(f.proposal.IncludedTxIDs))
	for id := range f.proposal.IncludedTxIDs {
		ids = append(ids, id)
	}
	f.pool.Remove(ids)

	f.state = StateCommitted
	committed := round
	f.number++
	f.proposal = nil
	f.votes = make(map[types.Address][]byte)
	f.state = StateProposing

	if f.onCommit != nil {
		f.onCommit(committed)
	}
	return &committed, nil
}

// OwnVote returns this node's current in-flight proposal and its own
// signature over it, for the gossip layer to broadcast as a RoundProposal
// message. ok is false if no proposal is currently being collected.
func (f *Finalizer) OwnVote() (prop *Proposal, sig []byte, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.proposal == nil {
		return nil, nil, false
	}
	return f.proposal, f.votes[f.self], true
}

// hashRound computes H(round) over the canonicalized proposal bytes plus
// its finalized signatures, used as the next round's prev_round_hash.
func hashRound(r types.Round) [32]byte {
	buf := types.ProposalSignableBytes(r.Number, r.StateRoot, r.BlockIDsInOrder)
	buf = append(buf, r.PrevRoundHash[:]...)
	for _, sig := range r.ValidatorSigs {
		buf = append(buf, sig.Validator[:]...)
		buf = append(buf, sig.Signature...)
	}
	return fintime.Digest(buf)
}
