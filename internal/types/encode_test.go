package types

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/ed25519"
)

func TestTransactionSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	from, err := AddressFromPubkey(pub)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	tx := Transaction{
		From:   from,
		To:     Address{1, 2, 3},
		Asset:  "USD",
		Amount: AmountFromUint64(100),
		Nonce:  0,
		Fee:    1,
		Memo:   []byte("hello"),
	}
	signed, err := tx.Sign(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := signed.VerifySignature()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid signature")
	}
	signed.Amount = AmountFromUint64(200)
	ok, err = signed.VerifySignature()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected tampered transaction to fail verification")
	}
}

func TestTransactionEncodeDecodeRoundTrip(t *testing.T) {
	tx := Transaction{
		From:        Address{1},
		To:          Address{2},
		Asset:       "USD",
		Amount:      AmountFromUint64(12345),
		Nonce:       7,
		Fee:         3,
		Memo:        []byte("payment"),
		Signature:   bytes.Repeat([]byte{0xAB}, ed25519.SignatureSize),
		HashTimer:   HashTimer{9, 9, 9},
		SubmittedAt: 555,
	}
	enc := EncodeTransaction(tx)
	dec, err := DecodeTransaction(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec != tx && !txEqual(dec, tx) {
		t.Fatalf("round-trip mismatch: got %+v want %+v", dec, tx)
	}
}

func txEqual(a, b Transaction) bool {
	return a.From == b.From && a.To == b.To && a.Asset == b.Asset &&
		a.Amount == b.Amount && a.Nonce == b.Nonce && a.Fee == b.Fee &&
		bytes.Equal(a.Memo, b.Memo) && bytes.Equal(a.Signature, b.Signature) &&
		a.HashTimer == b.HashTimer && a.SubmittedAt == b.SubmittedAt
}

func TestBlockEncodeDecodeRoundTrip(t *testing.T) {
	blk := Block{
		HashTimer:         HashTimer{1, 2, 3},
		ParentHashTimers:  []HashTimer{{4, 5, 6}, {7, 8, 9}},
		ProducerAddr:      Address{10},
		TxIDs:             []HashTimer{{11}, {12}, {13}},
		ProducerSignature: bytes.Repeat([]byte{0xCD}, ed25519.SignatureSize),
		ProducedAt:        999,
	}
	enc := EncodeBlock(blk)
	dec, err := DecodeBlock(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.HashTimer != blk.HashTimer || dec.ProducerAddr != blk.ProducerAddr || dec.ProducedAt != blk.ProducedAt {
		t.Fatalf("round-trip mismatch: got %+v want %+v", dec, blk)
	}
	if len(dec.ParentHashTimers) != len(blk.ParentHashTimers) || len(dec.TxIDs) != len(blk.TxIDs) {
		t.Fatalf("slice length mismatch: got %+v want %+v", dec, blk)
	}
}

func TestRoundEncodeDecodeRoundTrip(t *testing.T) {
	r := Round{
		Number:          3,
		PrevRoundHash:   [32]byte{1},
		BlockIDsInOrder: []HashTimer{{1}, {2}},
		ValidatorSigs: []ValidatorSignature{
			{Validator: Address{1}, Signature: bytes.Repeat([]byte{0xEE}, ed25519.SignatureSize)},
			{Validator: Address{2}, Signature: bytes.Repeat([]byte{0xFF}, ed25519.SignatureSize)},
		},
		FinalizedAt: 123,
		StateRoot:   [32]byte{9},
	}
	enc := EncodeRound(r)
	dec, err := DecodeRound(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.Number != r.Number || dec.PrevRoundHash != r.PrevRoundHash || dec.StateRoot != r.StateRoot {
		t.Fatalf("round-trip mismatch: got %+v want %+v", dec, r)
	}
	if len(dec.ValidatorSigs) != len(r.ValidatorSigs) {
		t.Fatalf("sig count mismatch: got %d want %d", len(dec.ValidatorSigs), len(r.ValidatorSigs))
	}
}

func TestAccountStateEncodeDecodeRoundTrip(t *testing.T) {
	a := AccountState{Balance: AmountFromUint64(1000), Locked: AmountFromUint64(50), Nonce: 4}
	dec, err := DecodeAccountState(EncodeAccountState(a))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec != a {
		t.Fatalf("round-trip mismatch: got %+v want %+v", dec, a)
	}
}
