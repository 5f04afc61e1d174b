// Package types defines FinDAG's core data model: addresses, assets, amounts,
// signed transactions, DAG blocks, finality rounds, and account state, along
// with their canonical binary encodings (spec §3, §6).
package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/ed25519"
)

// AddressLen is the byte width of a public-key-derived Address.
const AddressLen = 32

// HashTimerLen is the byte width of a HashTimer identifier.
const HashTimerLen = 32

// Address is a 32-byte public-key-derived identifier. Equality and ordering
// are byte-wise (spec §3).
type Address [AddressLen]byte

// AddressFromPubkey derives an Address from an Ed25519 public key. FinDAG
// addresses are the raw public key bytes; a 32-byte Ed25519 key fits exactly.
func AddressFromPubkey(pub ed25519.PublicKey) (Address, error) {
	var a Address
	if len(pub) != AddressLen {
		return a, fmt.Errorf("types: ed25519 pubkey must be %d bytes, got %d", AddressLen, len(pub))
	}
	copy(a[:], pub)
	return a, nil
}

// String renders the address in its human-readable prefixed form.
func (a Address) String() string {
	return "fdg1" + hexEncode(a[:])
}

// Less reports byte-wise ordering, a < b.
func (a Address) Less(b Address) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// HashTimer is the 32-byte identifier computed as
// H(node_id || fin_time || payload_digest || local_sequence). It serves
// simultaneously as a time-ordered timestamp and a unique object id (spec §3).
type HashTimer [HashTimerLen]byte

// Less reports whether h < other, using the byte representation's total
// order (spec §3: "totally ordered by their byte representation").
func (h HashTimer) Less(other HashTimer) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

func (h HashTimer) String() string {
	return hexEncode(h[:])
}

// IsZero reports whether h is the zero value (used to detect "no parent"/"no
// tip" sentinels).
func (h HashTimer) IsZero() bool {
	return h == HashTimer{}
}

func hexEncode(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out)
}

// Currency is a short ASCII asset code drawn from a configurable whitelist
// (spec §3). Unknown codes are rejected at admission.
type Currency string

// Transaction is a signed, typed asset movement (spec §3).
type Transaction struct {
	From        Address
	To          Address
	Asset       Currency
	Amount      Amount
	Nonce       uint64
	Fee         uint64
	Memo        []byte
	Signature   []byte // ed25519.SignatureSize bytes
	HashTimer   HashTimer
	SubmittedAt uint64 // FinDAG Time at admission
}

// ErrMemoTooLarge is returned by SignableBytes when the memo does not fit its
// uint16 length prefix.
var ErrMemoTooLarge = errors.New("types: memo exceeds 65535 bytes")

// SignableBytes returns the canonical encoding of the signable portion of a
// transaction, exactly as specified in spec §6:
//
//	from ‖ to ‖ asset_len ‖ asset ‖ amount_le16 ‖ nonce_le8 ‖ fee_le8 ‖ memo_len ‖ memo
//
// asset_len is a single byte and memo_len a little-endian uint16; amount is
// 16 little-endian bytes, nonce and fee 8 little-endian bytes each.
func (t Transaction) SignableBytes() ([]byte, error) {
	if len(t.Memo) > 0xFFFF {
		return nil, ErrMemoTooLarge
	}
	if len(t.Asset) > 0xFF {
		return nil, fmt.Errorf("types: asset code exceeds 255 bytes")
	}
	buf := make([]byte, 0, AddressLen*2+1+len(t.Asset)+16+8+8+2+len(t.Memo))
	buf = append(buf, t.From[:]...)
	buf = append(buf, t.To[:]...)
	buf = append(buf, byte(len(t.Asset)))
	buf = append(buf, []byte(t.Asset)...)
	amt := t.Amount.EncodeLE16()
	buf = append(buf, amt[:]...)
	buf = appendUint64LE(buf, t.Nonce)
	buf = appendUint64LE(buf, t.Fee)
	buf = appendUint16LE(buf, uint16(len(t.Memo)))
	buf = append(buf, t.Memo...)
	return buf, nil
}

// VerifySignature checks that Signature verifies From over SignableBytes.
func (t Transaction) VerifySignature() (bool, error) {
	msg, err := t.SignableBytes()
	if err != nil {
		return false, err
	}
	if len(t.Signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(ed25519.PublicKey(t.From[:]), msg, t.Signature), nil
}

// Sign computes and sets Signature using priv, returning the signed copy.
func (t Transaction) Sign(priv ed25519.PrivateKey) (Transaction, error) {
	msg, err := t.SignableBytes()
	if err != nil {
		return Transaction{}, err
	}
	t.Signature = ed25519.Sign(priv, msg)
	return t, nil
}

// Block is a DAG node: a batch of transactions referencing one or more
// parent blocks (spec §3).
type Block struct {
	HashTimer         HashTimer
	ParentHashTimers  []HashTimer
	ProducerAddr      Address
	TxIDs             []HashTimer
	ProducerSignature []byte
	ProducedAt        uint64
}

// PayloadDigestInput returns the bytes hashed to form the block's payload
// digest, over which the producer's HashTimer is stamped (spec §4.4):
// (parent_hashtimers, tx_ids, producer_addr).
func (b Block) PayloadDigestInput() []byte {
	buf := make([]byte, 0, len(b.ParentHashTimers)*HashTimerLen+len(b.TxIDs)*HashTimerLen+AddressLen+8)
	buf = appendUint64LE(buf, uint64(len(b.ParentHashTimers)))
	for _, p := range b.ParentHashTimers {
		buf = append(buf, p[:]...)
	}
	buf = appendUint64LE(buf, uint64(len(b.TxIDs)))
	for _, id := range b.TxIDs {
		buf = append(buf, id[:]...)
	}
	buf = append(buf, b.ProducerAddr[:]...)
	return buf
}

// SignableBytes returns the bytes a producer signs to authenticate a block:
// the HashTimer (once stamped) plus the payload digest input.
func (b Block) SignableBytes() []byte {
	buf := append([]byte(nil), b.HashTimer[:]...)
	buf = append(buf, b.PayloadDigestInput()...)
	return buf
}

// VerifySignature checks ProducerSignature against the expected producer key.
func (b Block) VerifySignature() bool {
	if len(b.ProducerSignature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(b.ProducerAddr[:]), b.SignableBytes(), b.ProducerSignature)
}

// Round is the atomic unit of finality: a linearization of Blocks committed
// together with a quorum of validator signatures (spec §3).
type Round struct {
	Number          uint64
	PrevRoundHash   [32]byte
	BlockIDsInOrder []HashTimer
	ValidatorSigs   []ValidatorSignature
	FinalizedAt     uint64
	StateRoot       [32]byte
}

// ValidatorSignature pairs a validator's address with its signature over the
// canonical round proposal bytes.
type ValidatorSignature struct {
	Validator Address
	Signature []byte
}

// ProposalSignableBytes returns the canonicalized bytes a validator signs
// when voting for a round proposal (spec §9):
//
//	round_number ‖ state_root ‖ ordered_block_ids
func ProposalSignableBytes(number uint64, stateRoot [32]byte, blockIDs []HashTimer) []byte {
	buf := make([]byte, 0, 8+32+len(blockIDs)*HashTimerLen+8)
	buf = appendUint64LE(buf, number)
	buf = append(buf, stateRoot[:]...)
	buf = appendUint64LE(buf, uint64(len(blockIDs)))
	for _, id := range blockIDs {
		buf = append(buf, id[:]...)
	}
	return buf
}

// AccountState is the per-(address, asset) ledger entry (spec §3).
type AccountState struct {
	Balance Amount
	Locked  Amount
	Nonce   uint64
}

func appendUint64LE(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint16LE(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}
