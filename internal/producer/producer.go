// Package producer implements FinDAG's DAG block producer (spec §4.4):
// tip selection, batch assembly from the transaction pool, HashTimer
// stamping, signing, and persistence. Grounded on the teacher's
// node/miner.go tick/config shape, retargeted from PoW mining to DAG block
// assembly.
package producer

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/findag-labs/findag-core/internal/fintime"
	"github.com/findag-labs/findag-core/internal/storage"
	"github.com/findag-labs/findag-core/internal/txpool"
	"github.com/findag-labs/findag-core/internal/types"
)

// Config mirrors the relevant fields of internal/config.Config.
type Config struct {
	BlockIntervalMS     uint64
	HeartbeatIntervalMS uint64
	MaxTxsPerBlock      int
	MaxBlockBytes       int
	MaxParents          int
}

// DefaultConfig returns devnet-sane defaults, mirroring the teacher's
// DefaultMinerConfig.
func DefaultConfig() Config {
	return Config{
		BlockIntervalMS:     50,
		HeartbeatIntervalMS: 1000,
		MaxTxsPerBlock:      2048,
		MaxBlockBytes:       2 << 20,
		MaxParents:          4,
	}
}

// OnBlock is invoked with every block the Producer successfully assembles
// and commits, so a caller (e.g. the gossip layer) can announce it.
type OnBlock func(types.Block)

// Producer assembles DAG blocks from pending pool transactions, stamps and
// signs them, and persists them to storage.
type Producer struct {
	db      *storage.DB
	pool    *txpool.Pool
	clock   *fintime.Service
	signer  ed25519.PrivateKey
	addr    types.Address
	cfg     Config
	onBlock OnBlock

	// lastProduced is the wall-clock time this node last committed a block.
	// The zero value means "never produced", which is always stale enough to
	// clear the heartbeat gate in ProduceOne. Only read/written from
	// ProduceOne, which Run calls sequentially from a single goroutine.
	lastProduced time.Time
}

// New constructs a Producer. signer must correspond to addr.
func New(db *storage.DB, pool *txpool.Pool, clock *fintime.Service, addr types.Address, signer ed25519.PrivateKey, cfg Config, onBlock OnBlock) (*Producer, error) {
	if db == nil {
		return nil, errors.New("producer: nil storage")
	}
	if pool == nil {
		return nil, errors.New("producer: nil pool")
	}
	if clock == nil {
		return nil, errors.New("producer: nil clock")
	}
	if len(signer) != ed25519.PrivateKeySize {
		return nil, errors.New("producer: signer key has wrong size")
	}
	if cfg.MaxParents <= 0 {
		cfg.MaxParents = 4
	}
	if cfg.MaxTxsPerBlock <= 0 {
		cfg.MaxTxsPerBlock = 2048
	}
	if cfg.HeartbeatIntervalMS == 0 {
		cfg.HeartbeatIntervalMS = 1000
	}
	return &Producer{db: db, pool: pool, clock: clock, signer: signer, addr: addr, cfg: cfg, onBlock: onBlock}, nil
}

// Run calls ProduceOne every cfg.BlockIntervalMS until ctx is canceled. A
// tick produces at most one block; see ProduceOne for when an empty tick is
// skipped. A CodeNoTips error skips the tick; any other tick error ends Run
// and is returned.
func (p *Producer) Run(ctx context.Context) error {
	interval := time.Duration(p.cfg.BlockIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.ProduceOne(ctx); err != nil && !errors.Is(err, context.Canceled) {
				var pe *ProducerError
				if errors.As(err, &pe) && pe.Code == CodeNoTips {
					continue
				}
				return err
			}
		}
	}
}

// ProduceOne selects parents, pulls a batch from the pool, and assembles,
// signs, and commits one Block. It returns a *ProducerError on CodeNoTips if
// the DAG has no tips yet (i.e. genesis has not been initialized). If the
// pool is empty and this node has produced a block within the last
// heartbeat_interval, it returns (nil, nil) and skips production entirely
// rather than flooding the DAG with empty liveness blocks (spec §4.4: "if
// the pool is empty AND the producer has been a tip for more than
// heartbeat_interval, produce an empty block ... otherwise skip").
func (p *Producer) ProduceOne(ctx context.Context) (*types.Block, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	parents, err := p.selectParents()
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return nil, &ProducerError{Code: CodeNoTips}
	}

	batch := p.pool.Select(p.cfg.MaxTxsPerBlock, p.cfg.MaxBlockBytes)
	if len(batch) == 0 {
		heartbeat := time.Duration(p.cfg.HeartbeatIntervalMS) * time.Millisecond
		if time.Since(p.lastProduced) < heartbeat {
			return nil, nil
		}
	}
	txIDs := make([]types.HashTimer, len(batch))
	for i, tx := range batch {
		txIDs[i] = tx.HashTimer
	}

	blk := types.Block{
		ParentHashTimers: parents,
		ProducerAddr:     p.addr,
		TxIDs:            txIDs,
	}
	digest := fintime.Digest(blk.PayloadDigestInput())
	blk.HashTimer = p.clock.Stamp(digest[:])
	blk.ProducedAt = p.clock.Now()
	blk.ProducerSignature = ed25519.Sign(p.signer, blk.SignableBytes())

	if err := p.db.CommitBlock(blk, parents, batch); err != nil {
		// The batch was pulled from the pool under the assumption this block
		// would commit; put it back so the transactions aren't lost.
		p.pool.Revert(batch, time.Now())
		return nil, &ProducerError{Code: CodeStorageFailure, Reason: err.Error()}
	}
	p.lastProduced = time.Now()

	if p.onBlock != nil {
		p.onBlock(blk)
	}
	return &blk, nil
}

// selectParents returns up to cfg.MaxParents current tips, preferring tips
// produced by other validators over the node's own prior tips (fairness),
// then breaking ties by descending HashTimer (spec §4.4: "HashTimer-highest
// tips, with a cross-validator fairness preference").
func (p *Producer) selectParents() ([]types.HashTimer, error) {
	tips, err := p.db.Tips()
	if err != nil {
		return nil, &ProducerError{Code: CodeStorageFailure, Reason: err.Error()}
	}
	if len(tips) == 0 {
		return nil, nil
	}

	type candidate struct {
		id      types.HashTimer
		foreign bool
	}
	cands := make([]candidate, 0, len(tips))
	for _, id := range tips {
		blk, ok, err := p.db.GetBlock(id)
		if err != nil {
			return nil, &ProducerError{Code: CodeStorageFailure, Reason: err.Error()}
		}
		if !ok {
			return nil, &ProducerError{Code: CodeParentUnavailable, Reason: id.String()}
		}
		cands = append(cands, candidate{id: id, foreign: blk.ProducerAddr != p.addr})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].foreign != cands[j].foreign {
			return cands[i].foreign // foreign tips sort first
		}
		return cands[j].id.Less(cands[i].id) // descending HashTimer
	})

	n := len(cands)
	if n > p.cfg.MaxParents {
		n = p.cfg.MaxParents
	}
	out := make([]types.HashTimer, n)
	for i := 0; i < n; i++ {
		out[i] = cands[i].id
	}
	return out, nil
}
