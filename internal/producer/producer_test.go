package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/findag-labs/findag-core/internal/fintime"
	"github.com/findag-labs/findag-core/internal/storage"
	"github.com/findag-labs/findag-core/internal/txpool"
	"github.com/findag-labs/findag-core/internal/types"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newValidator(t *testing.T) (types.Address, ed25519.PrivateKey) {
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

func seedGenesis(t *testing.T, db *storage.DB, producer types.Address, balances []storage.AccountMutation) types.HashTimer {
	t.Helper()
	genesis := types.Block{ProducerAddr: producer}
	digest := fintime.Digest(genesis.PayloadDigestInput())
	genesis.HashTimer = fintime.StampWith([]byte("genesis"), 1, digest[:], 0)
	if err := db.InitGenesis(storage.GenesisSeed{Block: genesis, Balances: balances}); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}
	return genesis.HashTimer
}

func TestProduceOneFailsWithNoTipsBeforeGenesis(t *testing.T) {
	db := openTestDB(t)
	addr, priv := newValidator(t)
	clock, err := fintime.New(addr[:])
	if err != nil {
		t.Fatalf("fintime.New: %v", err)
	}
	pool := txpool.New(txpool.NewConfig(100, 4096, time.Minute, []string{"USD"}), db)
	p, err := New(db, pool, clock, addr, priv, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.ProduceOne(context.Background())
	var pe *ProducerError
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.As(err, &pe) || pe.Code != CodeNoTips {
		t.Fatalf("want CodeNoTips, got %v", err)
	}
}

func TestProduceOneAssemblesAndCommitsEmptyBlock(t *testing.T) {
	db := openTestDB(t)
	addr, priv := newValidator(t)
	seedGenesis(t, db, addr, nil)
	clock, err := fintime.New(addr[:])
	if err != nil {
		t.Fatalf("fintime.New: %v", err)
	}
	pool := txpool.New(txpool.NewConfig(100, 4096, time.Minute, []string{"USD"}), db)
	p, err := New(db, pool, clock, addr, priv, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	blk, err := p.ProduceOne(context.Background())
	if err != nil {
		t.Fatalf("ProduceOne: %v", err)
	}
	if len(blk.TxIDs) != 0 {
		t.Fatalf("expected empty liveness block, got %d txs", len(blk.TxIDs))
	}
	if !blk.VerifySignature() {
		t.Fatalf("block signature does not verify")
	}
	tips, err := db.Tips()
	if err != nil {
		t.Fatalf("Tips: %v", err)
	}
	if len(tips) != 1 || tips[0] != blk.HashTimer {
		t.Fatalf("expected sole tip to be the new block, got %v", tips)
	}
}

func TestProduceOneIncludesPendingTransactions(t *testing.T) {
	db := openTestDB(t)
	addr, priv := newValidator(t)
	from, fromPriv := newValidator(t)
	to, _ := newValidator(t)
	seedGenesis(t, db, addr, []storage.AccountMutation{
		{Address: from, Asset: "USD", State: types.AccountState{Balance: types.AmountFromUint64(1000)}},
	})
	clock, err := fintime.New(addr[:])
	if err != nil {
		t.Fatalf("fintime.New: %v", err)
	}
	pool := txpool.New(txpool.NewConfig(100, 4096, time.Minute, []string{"USD"}), db)
	tx := types.Transaction{From: from, To: to, Asset: "USD", Amount: types.AmountFromUint64(10), Nonce: 0, Fee: 1}
	signed, err := tx.Sign(fromPriv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	digest := fintime.Digest(signed.Signature)
	signed.HashTimer = fintime.StampWith([]byte("client"), 1, digest[:], 1)
	if err := pool.Add(signed, time.Now()); err != nil {
		t.Fatalf("pool.Add: %v", err)
	}

	p, err := New(db, pool, clock, addr, priv, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	blk, err := p.ProduceOne(context.Background())
	if err != nil {
		t.Fatalf("ProduceOne: %v", err)
	}
	if len(blk.TxIDs) != 1 || blk.TxIDs[0] != signed.HashTimer {
		t.Fatalf("expected block to include the pending tx, got %v", blk.TxIDs)
	}
	if pool.Len() != 0 {
		t.Fatalf("expected pool drained after selection, got %d", pool.Len())
	}
}

func TestProduceOneSkipsEmptyTickWithinHeartbeat(t *testing.T) {
	db := openTestDB(t)
	addr, priv := newValidator(t)
	seedGenesis(t, db, addr, nil)
	clock, err := fintime.New(addr[:])
	if err != nil {
		t.Fatalf("fintime.New: %v", err)
	}
	pool := txpool.New(txpool.NewConfig(100, 4096, time.Minute, []string{"USD"}), db)
	cfg := DefaultConfig()
	cfg.HeartbeatIntervalMS = 1000
	p, err := New(db, pool, clock, addr, priv, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := p.ProduceOne(context.Background())
	if err != nil {
		t.Fatalf("ProduceOne (first): %v", err)
	}
	if first == nil {
		t.Fatalf("expected the first empty tick to produce a liveness block")
	}

	second, err := p.ProduceOne(context.Background())
	if err != nil {
		t.Fatalf("ProduceOne (second): %v", err)
	}
	if second != nil {
		t.Fatalf("expected the immediately-following empty tick to be skipped, got a block")
	}

	tips, err := db.Tips()
	if err != nil {
		t.Fatalf("Tips: %v", err)
	}
	if len(tips) != 1 || tips[0] != first.HashTimer {
		t.Fatalf("expected sole tip still the first block, got %v", tips)
	}
}

func TestProduceOneProducesAfterHeartbeatElapses(t *testing.T) {
	db := openTestDB(t)
	addr, priv := newValidator(t)
	seedGenesis(t, db, addr, nil)
	clock, err := fintime.New(addr[:])
	if err != nil {
		t.Fatalf("fintime.New: %v", err)
	}
	pool := txpool.New(txpool.NewConfig(100, 4096, time.Minute, []string{"USD"}), db)
	cfg := DefaultConfig()
	cfg.HeartbeatIntervalMS = 1
	p, err := New(db, pool, clock, addr, priv, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.ProduceOne(context.Background()); err != nil {
		t.Fatalf("ProduceOne (first): %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	second, err := p.ProduceOne(context.Background())
	if err != nil {
		t.Fatalf("ProduceOne (second): %v", err)
	}
	if second == nil {
		t.Fatalf("expected a liveness block once heartbeat_interval elapses")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	db := openTestDB(t)
	addr, priv := newValidator(t)
	seedGenesis(t, db, addr, nil)
	clock, err := fintime.New(addr[:])
	if err != nil {
		t.Fatalf("fintime.New: %v", err)
	}
	pool := txpool.New(txpool.NewConfig(100, 4096, time.Minute, []string{"USD"}), db)
	cfg := DefaultConfig()
	cfg.BlockIntervalMS = 5
	p, err := New(db, pool, clock, addr, priv, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err == nil {
		t.Fatalf("expected context deadline error")
	}
}
