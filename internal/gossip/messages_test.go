package gossip

import (
	"testing"

	"github.com/findag-labs/findag-core/internal/types"
)

func TestBlockAnnounceRoundTrip(t *testing.T) {
	blk := types.Block{
		ParentHashTimers:  []types.HashTimer{{1}, {2}},
		ProducerAddr:      types.Address{9},
		TxIDs:             []types.HashTimer{{3}},
		ProducerSignature: []byte("sig"),
		ProducedAt:        42,
	}
	blk.HashTimer = types.HashTimer{7}
	msg := BlockAnnounce{Block: blk}
	decoded, err := DecodeBlockAnnounce(msg.Encode())
	if err != nil {
		t.Fatalf("DecodeBlockAnnounce: %v", err)
	}
	if decoded.Block.HashTimer != blk.HashTimer || len(decoded.Block.ParentHashTimers) != 2 {
		t.Fatalf("round-trip mismatch: %+v", decoded.Block)
	}
}

func TestRoundProposalRoundTrip(t *testing.T) {
	m := RoundProposal{
		Number:          5,
		PrevRoundHash:   [32]byte{1, 2, 3},
		BlockIDsInOrder: []types.HashTimer{{4}, {5}, {6}},
		StateRoot:       [32]byte{9, 9},
		Proposer:        types.Address{1},
		Signature:       []byte("a-64-byte-ed25519-signature-placeholder-value-xx"),
	}
	decoded, err := DecodeRoundProposal(m.Encode())
	if err != nil {
		t.Fatalf("DecodeRoundProposal: %v", err)
	}
	if decoded.Number != m.Number || decoded.StateRoot != m.StateRoot || len(decoded.BlockIDsInOrder) != 3 {
		t.Fatalf("round-trip mismatch: %+v", decoded)
	}
	if string(decoded.Signature) != string(m.Signature) {
		t.Fatalf("signature mismatch")
	}
}

func TestRoundVoteRoundTrip(t *testing.T) {
	m := RoundVote{Number: 3, StateRoot: [32]byte{1}, Validator: types.Address{2}, Signature: []byte("sig")}
	decoded, err := DecodeRoundVote(m.Encode())
	if err != nil {
		t.Fatalf("DecodeRoundVote: %v", err)
	}
	if decoded.Number != 3 || decoded.Validator != m.Validator {
		t.Fatalf("round-trip mismatch: %+v", decoded)
	}
}

func TestBlockRequestRoundTrip(t *testing.T) {
	m := BlockRequest{ID: types.HashTimer{1, 2, 3}}
	decoded, err := DecodeBlockRequest(m.Encode())
	if err != nil {
		t.Fatalf("DecodeBlockRequest: %v", err)
	}
	if decoded.ID != m.ID {
		t.Fatalf("round-trip mismatch")
	}
}
