package txpool

import (
	"testing"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/findag-labs/findag-core/internal/fintime"
	"github.com/findag-labs/findag-core/internal/types"
)

type fakeSource struct {
	states map[types.Address]types.AccountState
}

func newFakeSource() *fakeSource {
	return &fakeSource{states: make(map[types.Address]types.AccountState)}
}

func (f *fakeSource) GetAccount(addr types.Address, asset types.Currency) (types.AccountState, error) {
	return f.states[addr], nil
}

func newTestAccount(t *testing.T) (types.Address, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr, err := types.AddressFromPubkey(pub)
	if err != nil {
		t.Fatalf("AddressFromPubkey: %v", err)
	}
	return addr, priv
}

func signTx(t *testing.T, priv ed25519.PrivateKey, tx types.Transaction) types.Transaction {
	t.Helper()
	signed, err := tx.Sign(priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	digest := fintime.Digest(signed.Signature)
	signed.HashTimer = fintime.StampWith([]byte("node-1"), 1, digest[:], uint64(tx.Nonce))
	return signed
}

func testConfig() Config {
	return NewConfig(1000, 4096, time.Minute, []string{"USD"})
}

func TestAddAcceptsWellFormedTransaction(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(1000)}

	p := New(testConfig(), src)
	tx := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(100), Nonce: 0, Fee: 1})
	if err := p.Add(tx, time.Now()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("Len=%d want 1", p.Len())
	}
}

func TestAddRejectsBadSignature(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(1000)}

	p := New(testConfig(), src)
	tx := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(100), Nonce: 0, Fee: 1})
	tx.Amount = types.AmountFromUint64(999) // tamper after signing
	err := p.Add(tx, time.Now())
	if !IsCode(err, CodeInvalidSignature) {
		t.Fatalf("want InvalidSignature, got %v", err)
	}
}

func TestAddRejectsUnknownAsset(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(1000)}

	p := New(testConfig(), src)
	tx := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "EUR", Amount: types.AmountFromUint64(1), Nonce: 0, Fee: 1})
	err := p.Add(tx, time.Now())
	if !IsCode(err, CodeUnknownAsset) {
		t.Fatalf("want UnknownAsset, got %v", err)
	}
}

func TestAddRejectsBadNonce(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(1000), Nonce: 5}

	p := New(testConfig(), src)
	tx := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: 1, Fee: 1})
	err := p.Add(tx, time.Now())
	if !IsCode(err, CodeBadNonce) {
		t.Fatalf("want BadNonce, got %v", err)
	}
}

func TestAddRejectsInsufficientFunds(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(10)}

	p := New(testConfig(), src)
	tx := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(100), Nonce: 0, Fee: 1})
	err := p.Add(tx, time.Now())
	if !IsCode(err, CodeInsufficientFunds) {
		t.Fatalf("want InsufficientFunds, got %v", err)
	}
}

func TestAddRejectsDuplicate(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(1000)}

	p := New(testConfig(), src)
	tx := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: 0, Fee: 1})
	if err := p.Add(tx, time.Now()); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	err := p.Add(tx, time.Now())
	if !IsCode(err, CodeDuplicate) {
		t.Fatalf("want Duplicate, got %v", err)
	}
}

func TestAddEnforcesContiguousNoncesAcrossQueue(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(1000)}

	p := New(testConfig(), src)
	tx0 := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: 0, Fee: 1})
	if err := p.Add(tx0, time.Now()); err != nil {
		t.Fatalf("Add nonce 0: %v", err)
	}
	// Skipping nonce 1 to submit nonce 2 should be rejected.
	tx2 := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: 2, Fee: 1})
	if err := p.Add(tx2, time.Now()); !IsCode(err, CodeBadNonce) {
		t.Fatalf("want BadNonce for skipped nonce, got %v", err)
	}
	tx1 := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: 1, Fee: 1})
	if err := p.Add(tx1, time.Now()); err != nil {
		t.Fatalf("Add nonce 1: %v", err)
	}
}

func TestAddRejectsWhenReservedExceedsBalance(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(150)}

	p := New(testConfig(), src)
	tx1 := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(100), Nonce: 0, Fee: 1})
	if err := p.Add(tx1, time.Now()); err != nil {
		t.Fatalf("Add nonce 0: %v", err)
	}
	tx2 := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(100), Nonce: 1, Fee: 1})
	if err := p.Add(tx2, time.Now()); !IsCode(err, CodeInsufficientFunds) {
		t.Fatalf("want InsufficientFunds once reserved exceeds balance, got %v", err)
	}
}

func TestSelectRespectsFeePriorityAndNonceOrder(t *testing.T) {
	src := newFakeSource()
	a, aPriv := newTestAccount(t)
	b, bPriv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[a] = types.AccountState{Balance: types.AmountFromUint64(1000)}
	src.states[b] = types.AccountState{Balance: types.AmountFromUint64(1000)}

	p := New(testConfig(), src)
	aTx1 := signTx(t, aPriv, types.Transaction{From: a, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: 0, Fee: 1})
	aTx2 := signTx(t, aPriv, types.Transaction{From: a, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: 1, Fee: 1})
	bTx1 := signTx(t, bPriv, types.Transaction{From: b, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: 0, Fee: 50})
	for _, tx := range []types.Transaction{aTx1, aTx2, bTx1} {
		if err := p.Add(tx, time.Now()); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	selected := p.Select(2, 0)
	if len(selected) != 2 {
		t.Fatalf("len=%d want 2", len(selected))
	}
	// b's single high-fee tx should come first.
	if selected[0].From != b {
		t.Fatalf("expected b's tx first, got from=%x", selected[0].From)
	}
	if selected[1].From != a || selected[1].Nonce != 0 {
		t.Fatalf("expected a's nonce-0 tx second, got from=%x nonce=%d", selected[1].From, selected[1].Nonce)
	}
	if p.Len() != 1 {
		t.Fatalf("Len=%d want 1 remaining", p.Len())
	}
}

func TestSelectRespectsByteCap(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(1000)}

	p := New(testConfig(), src)
	tx := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: 0, Fee: 1})
	if err := p.Add(tx, time.Now()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	selected := p.Select(10, 1)
	if len(selected) != 0 {
		t.Fatalf("expected nothing selected under an impossible byte cap, got %d", len(selected))
	}
}

func TestRemoveThenRevertRestoresPending(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(1000)}

	p := New(testConfig(), src)
	tx := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: 0, Fee: 1})
	if err := p.Add(tx, time.Now()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	selected := p.Select(10, 0)
	if len(selected) != 1 {
		t.Fatalf("len=%d want 1", len(selected))
	}
	if p.Len() != 0 {
		t.Fatalf("Len=%d want 0 after Select", p.Len())
	}
	p.Revert(selected, time.Now())
	if p.Len() != 1 {
		t.Fatalf("Len=%d want 1 after Revert", p.Len())
	}
}

func TestRateLimitEventuallyRejects(t *testing.T) {
	src := newFakeSource()
	from, priv := newTestAccount(t)
	to, _ := newTestAccount(t)
	src.states[from] = types.AccountState{Balance: types.AmountFromUint64(1_000_000)}

	p := New(testConfig(), src)
	now := time.Now()
	var lastErr error
	for i := uint64(0); i < 20; i++ {
		tx := signTx(t, priv, types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(1), Nonce: i, Fee: 1})
		lastErr = p.Add(tx, now)
		if lastErr != nil {
			break
		}
	}
	if !IsCode(lastErr, CodeRateLimited) {
		t.Fatalf("expected eventual RateLimited, got %v", lastErr)
	}
}
