package types

import (
	"encoding/binary"
	"fmt"
)

// This file implements the documented binary persisted-state format
// (length-prefixed fields, little-endian counts/nonces/fees, 128-bit amounts
// as 16 big-endian bytes via Amount.Bytes16) referenced in spec §6,
// used by internal/storage to persist Transactions, Blocks, Rounds and
// account entries. The reader/writer idiom (offset cursor plus small typed
// helpers) follows the teacher's consensus/util.go and consensus/tx_parse.go.

const txHistSchema = 1

// cursor tracks a read position into a byte slice, erroring on truncation.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) readU8(name string) (byte, error) {
	if c.off+1 > len(c.buf) {
		return 0, fmt.Errorf("types: decode %s: truncated", name)
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

func (c *cursor) readU16(name string) (uint16, error) {
	if c.off+2 > len(c.buf) {
		return 0, fmt.Errorf("types: decode %s: truncated", name)
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off : c.off+2])
	c.off += 2
	return v, nil
}

func (c *cursor) readU64(name string) (uint64, error) {
	if c.off+8 > len(c.buf) {
		return 0, fmt.Errorf("types: decode %s: truncated", name)
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off : c.off+8])
	c.off += 8
	return v, nil
}

func (c *cursor) readN(n int, name string) ([]byte, error) {
	if n < 0 || c.off+n > len(c.buf) {
		return nil, fmt.Errorf("types: decode %s: truncated", name)
	}
	v := c.buf[c.off : c.off+n]
	c.off += n
	return v, nil
}

func (c *cursor) readBytes32(name string) ([32]byte, error) {
	var out [32]byte
	v, err := c.readN(32, name)
	if err != nil {
		return out, err
	}
	copy(out[:], v)
	return out, nil
}

func (c *cursor) readBytesN(name string) ([]byte, error) {
	n, err := c.readU64(name + "_len")
	if err != nil {
		return nil, err
	}
	v, err := c.readN(int(n), name)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v...), nil
}

func appendBytesN(buf []byte, field []byte) []byte {
	buf = appendUint64LE(buf, uint64(len(field)))
	return append(buf, field...)
}

// EncodeTransaction serializes a Transaction for durable storage (the
// transaction-body bucket written by storage.CommitBlock), distinct from
// SignableBytes which covers only the signed portion.
func EncodeTransaction(t Transaction) []byte {
	buf := make([]byte, 0, 128+len(t.Memo))
	buf = appendUint64LE(buf, txHistSchema)
	buf = append(buf, t.From[:]...)
	buf = append(buf, t.To[:]...)
	buf = appendBytesN(buf, []byte(t.Asset))
	amt := t.Amount.Bytes16()
	buf = append(buf, amt[:]...)
	buf = appendUint64LE(buf, t.Nonce)
	buf = appendUint64LE(buf, t.Fee)
	buf = appendBytesN(buf, t.Memo)
	buf = appendBytesN(buf, t.Signature)
	buf = append(buf, t.HashTimer[:]...)
	buf = appendUint64LE(buf, t.SubmittedAt)
	return buf
}

// DecodeTransaction is the inverse of EncodeTransaction.
func DecodeTransaction(b []byte) (Transaction, error) {
	var t Transaction
	c := &cursor{buf: b}
	schema, err := c.readU64("schema")
	if err != nil {
		return t, err
	}
	if schema != txHistSchema {
		return t, fmt.Errorf("types: unsupported transaction schema %d", schema)
	}
	fromB, err := c.readN(AddressLen, "from")
	if err != nil {
		return t, err
	}
	copy(t.From[:], fromB)
	toB, err := c.readN(AddressLen, "to")
	if err != nil {
		return t, err
	}
	copy(t.To[:], toB)
	asset, err := c.readBytesN("asset")
	if err != nil {
		return t, err
	}
	t.Asset = Currency(asset)
	amtB, err := c.readN(16, "amount")
	if err != nil {
		return t, err
	}
	var amt16 [16]byte
	copy(amt16[:], amtB)
	t.Amount = AmountFromBytes16(amt16)
	if t.Nonce, err = c.readU64("nonce"); err != nil {
		return t, err
	}
	if t.Fee, err = c.readU64("fee"); err != nil {
		return t, err
	}
	if t.Memo, err = c.readBytesN("memo"); err != nil {
		return t, err
	}
	if t.Signature, err = c.readBytesN("signature"); err != nil {
		return t, err
	}
	htB, err := c.readN(HashTimerLen, "hashtimer")
	if err != nil {
		return t, err
	}
	copy(t.HashTimer[:], htB)
	if t.SubmittedAt, err = c.readU64("submitted_at"); err != nil {
		return t, err
	}
	return t, nil
}

// EncodeBlock serializes a Block for the `block/` key space.
func EncodeBlock(b Block) []byte {
	buf := make([]byte, 0, 128+len(b.ParentHashTimers)*HashTimerLen+len(b.TxIDs)*HashTimerLen)
	buf = append(buf, b.HashTimer[:]...)
	buf = appendUint64LE(buf, uint64(len(b.ParentHashTimers)))
	for _, p := range b.ParentHashTimers {
		buf = append(buf, p[:]...)
	}
	buf = append(buf, b.ProducerAddr[:]...)
	buf = appendUint64LE(buf, uint64(len(b.TxIDs)))
	for _, id := range b.TxIDs {
		buf = append(buf, id[:]...)
	}
	buf = appendBytesN(buf, b.ProducerSignature)
	buf = appendUint64LE(buf, b.ProducedAt)
	return buf
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(raw []byte) (Block, error) {
	var blk Block
	c := &cursor{buf: raw}
	htB, err := c.readN(HashTimerLen, "hashtimer")
	if err != nil {
		return blk, err
	}
	copy(blk.HashTimer[:], htB)
	nParents, err := c.readU64("parent_count")
	if err != nil {
		return blk, err
	}
	blk.ParentHashTimers = make([]HashTimer, nParents)
	for i := range blk.ParentHashTimers {
		pb, err := c.readN(HashTimerLen, "parent")
		if err != nil {
			return blk, err
		}
		copy(blk.ParentHashTimers[i][:], pb)
	}
	prodB, err := c.readN(AddressLen, "producer_addr")
	if err != nil {
		return blk, err
	}
	copy(blk.ProducerAddr[:], prodB)
	nTx, err := c.readU64("tx_count")
	if err != nil {
		return blk, err
	}
	blk.TxIDs = make([]HashTimer, nTx)
	for i := range blk.TxIDs {
		idB, err := c.readN(HashTimerLen, "tx_id")
		if err != nil {
			return blk, err
		}
		copy(blk.TxIDs[i][:], idB)
	}
	if blk.ProducerSignature, err = c.readBytesN("producer_signature"); err != nil {
		return blk, err
	}
	if blk.ProducedAt, err = c.readU64("produced_at"); err != nil {
		return blk, err
	}
	return blk, nil
}

// EncodeRound serializes a Round for the `round/` key space.
func EncodeRound(r Round) []byte {
	buf := make([]byte, 0, 128+len(r.BlockIDsInOrder)*HashTimerLen+len(r.ValidatorSigs)*96)
	buf = appendUint64LE(buf, r.Number)
	buf = append(buf, r.PrevRoundHash[:]...)
	buf = appendUint64LE(buf, uint64(len(r.BlockIDsInOrder)))
	for _, id := range r.BlockIDsInOrder {
		buf = append(buf, id[:]...)
	}
	buf = appendUint64LE(buf, uint64(len(r.ValidatorSigs)))
	for _, vs := range r.ValidatorSigs {
		buf = append(buf, vs.Validator[:]...)
		buf = appendBytesN(buf, vs.Signature)
	}
	buf = appendUint64LE(buf, r.FinalizedAt)
	buf = append(buf, r.StateRoot[:]...)
	return buf
}

// DecodeRound is the inverse of EncodeRound.
func DecodeRound(raw []byte) (Round, error) {
	var r Round
	c := &cursor{buf: raw}
	var err error
	if r.Number, err = c.readU64("number"); err != nil {
		return r, err
	}
	if r.PrevRoundHash, err = c.readBytes32("prev_round_hash"); err != nil {
		return r, err
	}
	nBlocks, err := c.readU64("block_count")
	if err != nil {
		return r, err
	}
	r.BlockIDsInOrder = make([]HashTimer, nBlocks)
	for i := range r.BlockIDsInOrder {
		idB, err := c.readN(HashTimerLen, "block_id")
		if err != nil {
			return r, err
		}
		copy(r.BlockIDsInOrder[i][:], idB)
	}
	nSigs, err := c.readU64("sig_count")
	if err != nil {
		return r, err
	}
	r.ValidatorSigs = make([]ValidatorSignature, nSigs)
	for i := range r.ValidatorSigs {
		vB, err := c.readN(AddressLen, "validator")
		if err != nil {
			return r, err
		}
		copy(r.ValidatorSigs[i].Validator[:], vB)
		if r.ValidatorSigs[i].Signature, err = c.readBytesN("validator_signature"); err != nil {
			return r, err
		}
	}
	if r.FinalizedAt, err = c.readU64("finalized_at"); err != nil {
		return r, err
	}
	if r.StateRoot, err = c.readBytes32("state_root"); err != nil {
		return r, err
	}
	return r, nil
}

// EncodeAccountState serializes an AccountState for the `acct/` key space.
func EncodeAccountState(a AccountState) []byte {
	buf := make([]byte, 0, 40)
	bal := a.Balance.Bytes16()
	buf = append(buf, bal[:]...)
	locked := a.Locked.Bytes16()
	buf = append(buf, locked[:]...)
	buf = appendUint64LE(buf, a.Nonce)
	return buf
}

// DecodeAccountState is the inverse of EncodeAccountState.
func DecodeAccountState(raw []byte) (AccountState, error) {
	var a AccountState
	c := &cursor{buf: raw}
	balB, err := c.readN(16, "balance")
	if err != nil {
		return a, err
	}
	var bal16 [16]byte
	copy(bal16[:], balB)
	a.Balance = AmountFromBytes16(bal16)
	lockedB, err := c.readN(16, "locked")
	if err != nil {
		return a, err
	}
	var locked16 [16]byte
	copy(locked16[:], lockedB)
	a.Locked = AmountFromBytes16(locked16)
	if a.Nonce, err = c.readU64("nonce"); err != nil {
		return a, err
	}
	return a, nil
}

// AccountKey builds the `acct/` key: address ‖ asset.
func AccountKey(addr Address, asset Currency) []byte {
	key := make([]byte, 0, AddressLen+len(asset))
	key = append(key, addr[:]...)
	key = append(key, []byte(asset)...)
	return key
}
