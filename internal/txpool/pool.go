// Package txpool implements FinDAG's transaction admission pipeline and
// pending-transaction pool (spec §4.3), grounded on the teacher's
// node/p2p_runtime.go PeerManager for its locking/indexing shape and on
// node/p2p/banscore.go for the decaying rate-limit accumulator.
package txpool

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/findag-labs/findag-core/internal/types"
)

// AccountSource is the read-only view of committed account state the pool
// consults during admission. *storage.DB satisfies this interface.
type AccountSource interface {
	GetAccount(addr types.Address, asset types.Currency) (types.AccountState, error)
}

// Config holds the pool's static admission policy, mirroring the relevant
// fields of internal/config.Config.
type Config struct {
	Capacity       int
	MaxTxBytes     int
	TxTTL          time.Duration
	AssetWhitelist map[types.Currency]struct{}
}

// NewConfig builds a Config from whitelist codes and limits.
func NewConfig(capacity, maxTxBytes int, ttl time.Duration, assets []string) Config {
	wl := make(map[types.Currency]struct{}, len(assets))
	for _, a := range assets {
		wl[types.Currency(a)] = struct{}{}
	}
	return Config{Capacity: capacity, MaxTxBytes: maxTxBytes, TxTTL: ttl, AssetWhitelist: wl}
}

type entry struct {
	tx         types.Transaction
	size       int
	feePerByte float64
	admittedAt time.Time
}

// accountQueue is the nonce-ordered pending queue for a single account,
// ascending by nonce; index 0 is always the next nonce to include.
type accountQueue struct {
	items    []*entry
	reserved types.Amount // sum of amount+fee across all queued entries
}

// Pool is FinDAG's transaction pool: per-account nonce-ordered queues, a
// global fee-priority frontier, and a TTL duplicate-seen set.
type Pool struct {
	cfg    Config
	source AccountSource

	mu        sync.Mutex
	byID      map[types.HashTimer]*entry
	byAccount map[types.Address]*accountQueue
	limiters  map[types.Address]*submitScore
	seen      map[types.HashTimer]time.Time
}

// New constructs an empty Pool reading committed account state from source.
func New(cfg Config, source AccountSource) *Pool {
	return &Pool{
		cfg:       cfg,
		source:    source,
		byID:      make(map[types.HashTimer]*entry),
		byAccount: make(map[types.Address]*accountQueue),
		limiters:  make(map[types.Address]*submitScore),
		seen:      make(map[types.HashTimer]time.Time),
	}
}

// Len reports the number of currently pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

// Add runs the full admission pipeline for tx and, on success, inserts it
// into the pool. Rejections are always a *PoolError (spec §7), checked in
// the fixed order: structural validity, signature, capacity, rate limit,
// duplicate, nonce, solvency.
func (p *Pool) Add(tx types.Transaction, now time.Time) error {
	size, err := p.checkStructural(tx)
	if err != nil {
		return err
	}

	ok, err := tx.VerifySignature()
	if err != nil {
		return newPoolError(CodeMalformed, err.Error())
	}
	if !ok {
		return newPoolError(CodeInvalidSignature, "")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.byID) >= p.cfg.Capacity {
		return newPoolError(CodeBusy, "pool at capacity")
	}

	limiter := p.limiters[tx.From]
	if limiter == nil {
		limiter = &submitScore{}
		p.limiters[tx.From] = limiter
	}
	if !limiter.allow(now) {
		return newPoolError(CodeRateLimited, "")
	}
	limiter.record(now)

	if _, dup := p.byID[tx.HashTimer]; dup {
		return newPoolError(CodeDuplicate, "")
	}
	if seenAt, ok := p.seen[tx.HashTimer]; ok && now.Sub(seenAt) < p.cfg.TxTTL {
		return newPoolError(CodeDuplicate, "")
	}

	committed, err := p.source.GetAccount(tx.From, tx.Asset)
	if err != nil {
		return fmt.Errorf("txpool: load account: %w", err)
	}

	aq := p.byAccount[tx.From]
	queuedCount := 0
	if aq != nil {
		queuedCount = len(aq.items)
	}
	expectedNonce := committed.Nonce + uint64(queuedCount)
	if tx.Nonce != expectedNonce {
		return newPoolError(CodeBadNonce, fmt.Sprintf("expected %d got %d", expectedNonce, tx.Nonce))
	}

	cost, err := tx.Amount.Add(types.AmountFromUint64(tx.Fee))
	if err != nil {
		return newPoolError(CodeMalformed, "amount+fee overflow")
	}
	reserved := types.Amount{}
	if aq != nil {
		reserved = aq.reserved
	}
	alreadyLocked, err := committed.Locked.Add(reserved)
	if err != nil {
		return newPoolError(CodeMalformed, "locked overflow")
	}
	available := committed.Balance.Sub(alreadyLocked)
	if available.Less(cost) {
		return newPoolError(CodeInsufficientFunds, "")
	}

	e := &entry{
		tx:         tx,
		size:       size,
		feePerByte: float64(tx.Fee) / float64(size),
		admittedAt: now,
	}
	if aq == nil {
		aq = &accountQueue{}
		p.byAccount[tx.From] = aq
	}
	aq.items = append(aq.items, e)
	newReserved, err := aq.reserved.Add(cost)
	if err != nil {
		return newPoolError(CodeMalformed, "reserved overflow")
	}
	aq.reserved = newReserved
	p.byID[tx.HashTimer] = e
	p.seen[tx.HashTimer] = now
	return nil
}

func (p *Pool) checkStructural(tx types.Transaction) (int, error) {
	payload, err := tx.SignableBytes()
	if err != nil {
		return 0, newPoolError(CodeMalformed, err.Error())
	}
	size := len(payload) + 64 // + ed25519 signature
	if p.cfg.MaxTxBytes > 0 && size > p.cfg.MaxTxBytes {
		return 0, newPoolError(CodeOverSize, fmt.Sprintf("%d > %d", size, p.cfg.MaxTxBytes))
	}
	if tx.From == (types.Address{}) {
		return 0, newPoolError(CodeMalformed, "empty from address")
	}
	if len(p.cfg.AssetWhitelist) > 0 {
		if _, ok := p.cfg.AssetWhitelist[tx.Asset]; !ok {
			return 0, newPoolError(CodeUnknownAsset, string(tx.Asset))
		}
	}
	return size, nil
}

// Select returns up to batchCap transactions, at most byteCap total bytes,
// drawn from the global fee-priority frontier while preserving each
// account's contiguous nonce-prefix invariant: a transaction is only
// selectable once every lower-nonce transaction from the same account has
// already been selected (spec §4.3). Selected entries are removed from the
// pool; callers that fail to finalize the resulting block must call Revert.
func (p *Pool) Select(batchCap, byteCap int) []types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	fh := make(frontierHeap, 0, len(p.byAccount))
	for _, aq := range p.byAccount {
		if len(aq.items) == 0 {
			continue
		}
		heap.Push(&fh, aq.items[0])
	}

	var out []types.Transaction
	usedBytes := 0
	for fh.Len() > 0 && len(out) < batchCap {
		e := heap.Pop(&fh).(*entry)
		if byteCap > 0 && usedBytes+e.size > byteCap {
			continue
		}
		out = append(out, e.tx)
		usedBytes += e.size
		addr := e.tx.From
		// e was its account's queue head; removeLocked drops it, so the
		// account's next nonce is now at index 0.
		p.removeLocked(e)
		if aq := p.byAccount[addr]; aq != nil && len(aq.items) > 0 {
			heap.Push(&fh, aq.items[0])
		}
	}
	return out
}

// removeLocked drops e from byID and its account queue's head, adjusting
// reserved balance. Caller must hold p.mu.
func (p *Pool) removeLocked(e *entry) {
	delete(p.byID, e.tx.HashTimer)
	aq := p.byAccount[e.tx.From]
	if aq == nil || len(aq.items) == 0 {
		return
	}
	aq.items = aq.items[1:]
	fee := types.AmountFromUint64(e.tx.Fee)
	if cost, err := e.tx.Amount.Add(fee); err == nil {
		aq.reserved = aq.reserved.Sub(cost)
	}
	if len(aq.items) == 0 {
		delete(p.byAccount, e.tx.From)
	}
}

// Remove permanently drops ids from the pool (spec: transactions finalized
// in a committed round never return to pending).
func (p *Pool) Remove(ids []types.HashTimer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		if e, ok := p.byID[id]; ok {
			p.removeLocked(e)
		}
	}
}

// Revert re-admits previously selected transactions, restoring their
// pending/reserved bookkeeping without re-running signature or rate-limit
// checks, since they were already validated once. The producer calls it when
// CommitBlock fails for the block that carried them; nothing calls it when a
// round commit fails.
func (p *Pool) Revert(txs []types.Transaction, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range txs {
		if _, already := p.byID[tx.HashTimer]; already {
			continue
		}
		payload, err := tx.SignableBytes()
		if err != nil {
			continue
		}
		size := len(payload) + 64
		e := &entry{
			tx:         tx,
			size:       size,
			feePerByte: float64(tx.Fee) / float64(size),
			admittedAt: now,
		}
		aq := p.byAccount[tx.From]
		if aq == nil {
			aq = &accountQueue{}
			p.byAccount[tx.From] = aq
		}
		aq.items = insertByNonce(aq.items, e)
		fee := types.AmountFromUint64(tx.Fee)
		if cost, err := tx.Amount.Add(fee); err == nil {
			if newReserved, err := aq.reserved.Add(cost); err == nil {
				aq.reserved = newReserved
			}
		}
		p.byID[tx.HashTimer] = e
		p.seen[tx.HashTimer] = now
	}
}

func insertByNonce(items []*entry, e *entry) []*entry {
	i := 0
	for ; i < len(items); i++ {
		if e.tx.Nonce < items[i].tx.Nonce {
			break
		}
	}
	items = append(items, nil)
	copy(items[i+1:], items[i:])
	items[i] = e
	return items
}

// frontierHeap orders account-queue heads by descending fee-per-byte with
// HashTimer as a deterministic tiebreak, per spec §4.3's
// (−fee_per_byte, HashTimer) priority index.
type frontierHeap []*entry

func (h frontierHeap) Len() int { return len(h) }
func (h frontierHeap) Less(i, j int) bool {
	if h[i].feePerByte != h[j].feePerByte {
		return h[i].feePerByte > h[j].feePerByte
	}
	return h[i].tx.HashTimer.Less(h[j].tx.HashTimer)
}
func (h frontierHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *frontierHeap) Push(x any)   { *h = append(*h, x.(*entry)) }
func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
