// Package miner assembles candidate blocks from the mempool and searches
// for a valid proof-of-work, submitting successes to the chain. Grounded
// on the teacher's pkg/miner/miner.go, whose mineBlock ran a single
// sequential nonce loop; here block assembly stays close to the teacher's
// shape (coinbase-first, ticker-driven loop, start/stop/IsMining) but the
// search itself is handed to validation.Mine's worker pool.
package miner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/chain"
	"github.com/gochain/gochain/pkg/mempool"
	"github.com/gochain/gochain/pkg/params"
	"github.com/gochain/gochain/pkg/validation"
)

// Config tunes the miner's block assembly and search.
type Config struct {
	Enabled         bool
	Workers         int
	BlockInterval   time.Duration
	MaxBlockBytes   int
	CoinbaseAddress string
}

// DefaultConfig matches spec.md §5's defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		Workers:       1,
		BlockInterval: params.TargetBlockTime,
		MaxBlockBytes: params.MaxBlockSize,
	}
}

// Miner repeatedly assembles and mines candidate blocks against chain's
// current tip, submitting any solution found back to chain.
type Miner struct {
	mu      sync.RWMutex
	chain   *chain.Chain
	pool    *mempool.Mempool
	config  Config
	mining  bool
	stop    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	lastMined *block.Block
}

// New constructs a Miner over chain, pulling candidate transactions from
// pool.
func New(c *chain.Chain, pool *mempool.Mempool, config Config) *Miner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Miner{chain: c, pool: pool, config: config, ctx: ctx, cancel: cancel}
}

// Start launches the background mining loop; it returns an error if
// already mining.
func (m *Miner) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mining {
		return fmt.Errorf("miner: already mining")
	}
	m.mining = true
	m.stop = make(chan struct{})
	go m.loop(m.stop)
	return nil
}

// Stop halts the background mining loop, a no-op if not mining.
func (m *Miner) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mining {
		return
	}
	m.mining = false
	close(m.stop)
}

// IsMining reports whether the background loop is currently running.
func (m *Miner) IsMining() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mining
}

func (m *Miner) loop(stop chan struct{}) {
	ticker := time.NewTicker(m.config.BlockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := m.MineOne(stop); err != nil {
				continue
			}
		}
	}
}

// MineOne assembles one candidate block atop the current tip, searches for
// a valid proof-of-work (bounded by cancel, which may be nil), and submits
// it to the chain on success. It returns the mined block, or an error if
// assembly, mining, or submission failed.
func (m *Miner) MineOne(cancel <-chan struct{}) (*block.Block, error) {
	tipHash, tipHeight := m.chain.Tip()
	tipHeader, ok := m.chain.HeaderByHeight(tipHeight)
	if !ok {
		return nil, fmt.Errorf("miner: tip header unavailable")
	}
	if h, _ := tipHeader.Hash(); h != tipHash {
		return nil, fmt.Errorf("miner: tip header inconsistent")
	}

	candidate := m.assemble(tipHeader)

	workers := m.config.Workers
	if workers < 1 {
		workers = 1
	}
	maxTimestamp := time.Now().Add(params.MaxFutureBlockTime).Unix()

	found, ok, err := validation.Mine(candidate.Header, workers, maxTimestamp, cancel)
	if err != nil {
		return nil, fmt.Errorf("miner: pow search failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("miner: cancelled before a solution was found")
	}
	candidate.Header = *found

	if err := m.chain.AddBlock(candidate); err != nil {
		return nil, fmt.Errorf("miner: chain rejected mined block: %w", err)
	}

	m.pool.RemoveConflicting(spentKeys(candidate))

	m.mu.Lock()
	m.lastMined = candidate
	m.mu.Unlock()

	return candidate, nil
}

// assemble builds a candidate block extending tipHeader, selecting
// transactions from the mempool in descending fee-rate order and paying
// the subsidy plus their fees to the configured coinbase address.
func (m *Miner) assemble(tipHeader *block.BlockHeader) *block.Block {
	height := tipHeader.Height + 1
	prevHash, _ := tipHeader.Hash()

	headerBudget := 128 // rough header+framing allowance, grounded on the teacher's fixed 80-byte estimate but sized generously for the canonical codec's length prefixes
	txs := m.pool.SelectForBlock(m.config.MaxBlockBytes - headerBudget)

	var totalFees uint64
	for _, tx := range txs {
		if fee, err := validation.StatefulCheck(tx, m.chain.UTXOSet(), m.chain.Certificates()); err == nil {
			totalFees += fee
		}
	}

	coinbase := block.Transaction{
		Kind: block.KindCoinbase,
		Outputs: []block.TxOutput{{
			Amount:    params.Subsidy(height) + totalFees,
			Recipient: m.config.CoinbaseAddress,
			State:     block.StatePlain,
		}},
		Timestamp: time.Now().Unix(),
	}

	transactions := make([]block.Transaction, 0, len(txs)+1)
	transactions = append(transactions, coinbase)
	for _, tx := range txs {
		transactions = append(transactions, *tx)
	}

	hdr := block.BlockHeader{
		Height:        height,
		PrevBlockHash: prevHash,
		Timestamp:     time.Now().Unix(),
		Difficulty:    validation.ExpectedDifficulty(m.chain, height),
	}
	b := &block.Block{Header: hdr, Transactions: transactions}
	b.Header.MerkleRoot = b.MerkleRoot()
	return b
}

// spentKeys collects every UTXOKey b's non-coinbase transactions consume,
// so the mempool can drop any now-conflicting pending transaction.
func spentKeys(b *block.Block) []block.UTXOKey {
	var keys []block.UTXOKey
	for _, tx := range b.Transactions[1:] {
		for _, in := range tx.Inputs {
			keys = append(keys, in.Key())
		}
	}
	return keys
}

// LastMined returns the most recently mined block, if any.
func (m *Miner) LastMined() *block.Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastMined
}

// Close stops mining and releases the miner's context.
func (m *Miner) Close() error {
	m.Stop()
	m.cancel()
	return nil
}

func (m *Miner) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("Miner{mining=%t workers=%d}", m.mining, m.config.Workers)
}
