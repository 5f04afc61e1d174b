package gossip

import (
	"fmt"

	"github.com/findag-labs/findag-core/internal/finalizer"
	"github.com/findag-labs/findag-core/internal/types"
)

// Command names for FinDAG's gossip surface (spec §6): block relay, round
// proposal exchange, and block backfill.
const (
	CmdBlockAnnounce = "blockann"
	CmdRoundProposal = "roundprop"
	CmdRoundVote     = "roundvote"
	CmdBlockRequest  = "blockreq"
	CmdBlockResponse = "blockresp"
	CmdBlockNotFound = "blocknf"
)

// BlockAnnounce carries a freshly produced or relayed Block (spec §4.4
// "Gossip contract").
type BlockAnnounce struct {
	Block types.Block
}

func (m BlockAnnounce) Encode() []byte { return types.EncodeBlock(m.Block) }

func DecodeBlockAnnounce(b []byte) (BlockAnnounce, error) {
	blk, err := types.DecodeBlock(b)
	if err != nil {
		return BlockAnnounce{}, fmt.Errorf("gossip: decode blockann: %w", err)
	}
	return BlockAnnounce{Block: blk}, nil
}

// RoundProposal carries one validator's candidate round, prior to quorum
// (spec §4.5 "Each validator independently proposes...").
type RoundProposal struct {
	Number          uint64
	PrevRoundHash   [32]byte
	BlockIDsInOrder []types.HashTimer
	StateRoot       [32]byte
	Proposer        types.Address
	Signature       []byte
}

func (m RoundProposal) Encode() []byte {
	buf := make([]byte, 0, 8+32+8+len(m.BlockIDsInOrder)*types.HashTimerLen+types.AddressLen+2+len(m.Signature))
	buf = appendU64(buf, m.Number)
	buf = append(buf, m.PrevRoundHash[:]...)
	buf = append(buf, m.StateRoot[:]...)
	buf = appendU64(buf, uint64(len(m.BlockIDsInOrder)))
	for _, id := range m.BlockIDsInOrder {
		buf = append(buf, id[:]...)
	}
	buf = append(buf, m.Proposer[:]...)
	buf = appendU16(buf, uint16(len(m.Signature)))
	buf = append(buf, m.Signature...)
	return buf
}

func DecodeRoundProposal(b []byte) (RoundProposal, error) {
	c := &cursor{buf: b}
	var m RoundProposal
	var err error
	if m.Number, err = c.readU64(); err != nil {
		return m, err
	}
	if m.PrevRoundHash, err = c.readBytes32(); err != nil {
		return m, err
	}
	if m.StateRoot, err = c.readBytes32(); err != nil {
		return m, err
	}
	n, err := c.readU64()
	if err != nil {
		return m, err
	}
	m.BlockIDsInOrder = make([]types.HashTimer, n)
	for i := range m.BlockIDsInOrder {
		id, err := c.readBytes32()
		if err != nil {
			return m, err
		}
		m.BlockIDsInOrder[i] = types.HashTimer(id)
	}
	prop, err := c.readN(types.AddressLen)
	if err != nil {
		return m, err
	}
	copy(m.Proposer[:], prop)
	if m.Signature, err = c.readBytesN16(); err != nil {
		return m, err
	}
	return m, nil
}

// Proposal adapts a RoundProposal wire message into the shape
// internal/finalizer.ReceiveVote expects, letting the gossip layer hand
// peer proposals straight to the Finalizer without an intermediate type.
func (m RoundProposal) Proposal() *finalizer.Proposal {
	return &finalizer.Proposal{
		Number:          m.Number,
		PrevRoundHash:   m.PrevRoundHash,
		BlockIDsInOrder: m.BlockIDsInOrder,
		StateRoot:       m.StateRoot,
	}
}

// RoundVote carries one validator's signature over a RoundProposal it
// agrees with, sent separately from the proposal itself so a validator can
// vote for a peer-originated proposal without re-deriving it.
type RoundVote struct {
	Number    uint64
	StateRoot [32]byte
	Validator types.Address
	Signature []byte
}

func (m RoundVote) Encode() []byte {
	buf := make([]byte, 0, 8+32+types.AddressLen+2+len(m.Signature))
	buf = appendU64(buf, m.Number)
	buf = append(buf, m.StateRoot[:]...)
	buf = append(buf, m.Validator[:]...)
	buf = appendU16(buf, uint16(len(m.Signature)))
	buf = append(buf, m.Signature...)
	return buf
}

func DecodeRoundVote(b []byte) (RoundVote, error) {
	c := &cursor{buf: b}
	var m RoundVote
	var err error
	if m.Number, err = c.readU64(); err != nil {
		return m, err
	}
	if m.StateRoot, err = c.readBytes32(); err != nil {
		return m, err
	}
	v, err := c.readN(types.AddressLen)
	if err != nil {
		return m, err
	}
	copy(m.Validator[:], v)
	if m.Signature, err = c.readBytesN16(); err != nil {
		return m, err
	}
	return m, nil
}

// BlockRequest asks a peer to serve a persisted block by id (spec §6
// "BlockRequest(id)").
type BlockRequest struct {
	ID types.HashTimer
}

func (m BlockRequest) Encode() []byte { return append([]byte(nil), m.ID[:]...) }

func DecodeBlockRequest(b []byte) (BlockRequest, error) {
	if len(b) != types.HashTimerLen {
		return BlockRequest{}, fmt.Errorf("gossip: blockreq must be %d bytes", types.HashTimerLen)
	}
	var m BlockRequest
	copy(m.ID[:], b)
	return m, nil
}
