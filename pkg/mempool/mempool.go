// Package mempool implements the fee-priority pool of admitted,
// not-yet-mined transactions: admission against current chain state,
// conflict detection via a UTXOKey secondary index, byte-bounded eviction
// of the lowest fee-rate entries, and horizon-based expiry. Grounded on the
// teacher's pkg/mempool/mempool.go, with its two confirmed bugs fixed: the
// ascending/descending heap mix-up in mining selection (the teacher's
// GetTransactionsForBlock popped from its ascending min-heap, serving the
// lowest-fee transactions first) and its O(n) linear-scan conflict check
// (replaced here by a UTXOKey -> txid index).
package mempool

import (
	"container/heap"
	"sync"
	"time"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/certificate"
	"github.com/gochain/gochain/pkg/chainerr"
	"github.com/gochain/gochain/pkg/params"
	"github.com/gochain/gochain/pkg/utxo"
	"github.com/gochain/gochain/pkg/validation"
)

// Config tunes mempool admission.
type Config struct {
	MaxBytes int
	Expiry   time.Duration
}

// DefaultConfig matches spec.md §4.E's defaults.
func DefaultConfig() Config {
	return Config{MaxBytes: params.MempoolMaxBytes, Expiry: params.MempoolExpiry}
}

// Mempool is the concurrency-safe pending-transaction pool.
type Mempool struct {
	mu sync.Mutex

	config Config

	byTxID    map[block.TxID]*entry
	conflicts map[block.UTXOKey]block.TxID

	feeHeap   feeHeap
	evictHeap evictHeap

	totalBytes int

	utxos *utxo.Set
	certs *certificate.Registry
}

// New constructs an empty mempool that admits against utxos/certs.
func New(utxos *utxo.Set, certs *certificate.Registry, config Config) *Mempool {
	return &Mempool{
		config:    config,
		byTxID:    make(map[block.TxID]*entry),
		conflicts: make(map[block.UTXOKey]block.TxID),
		utxos:     utxos,
		certs:     certs,
	}
}

// nowUnix is overridable in tests; defaults to time.Now().Unix().
var nowUnix = func() int64 { return time.Now().Unix() }

// Admit validates and admits tx. It fails with TransactionConflict if any
// input conflicts an already-admitted transaction, MempoolFull if the pool
// is at capacity and tx's fee rate is not enough to evict room for itself,
// or any of the stateless/stateful validation rejections.
func (m *Mempool) Admit(tx *block.Transaction) error {
	if err := validation.StatelessCheck(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	txid := tx.TxID()
	if _, exists := m.byTxID[txid]; exists {
		return nil // already admitted; idempotent
	}

	for _, in := range tx.Inputs {
		if _, ok := m.conflicts[in.Key()]; ok {
			return chainerr.New(chainerr.CodeTransactionConflict, "input conflicts an already-admitted transaction")
		}
	}

	fee, err := validation.StatefulCheck(tx, m.utxos, m.certs)
	if err != nil {
		return err
	}

	size := tx.Size()
	if m.totalBytes+size > m.config.MaxBytes {
		if !m.makeRoom(size, fee) {
			return chainerr.New(chainerr.CodeMempoolFull, "mempool full and new transaction does not outbid eviction candidates")
		}
	}

	e := &entry{tx: tx, txid: txid, entryTime: nowUnix(), fee: fee, size: size}
	m.byTxID[txid] = e
	for _, in := range tx.Inputs {
		m.conflicts[in.Key()] = txid
	}
	heap.Push(&m.feeHeap, e)
	heap.Push(&m.evictHeap, e)
	m.totalBytes += size

	return nil
}

// makeRoom evicts lowest fee-rate entries until newSize bytes are free,
// refusing if newFee's rate would not outrank what it would have to evict.
func (m *Mempool) makeRoom(newSize int, newFee uint64) bool {
	newRate := float64(newFee) / float64(newSize)
	freed := m.config.MaxBytes - m.totalBytes
	var victims []*entry
	for freed < newSize {
		if m.evictHeap.Len() == 0 {
			break
		}
		victim := m.evictHeap[0]
		if victim.feeRate() >= newRate {
			break
		}
		victims = append(victims, victim)
		freed += victim.size
		heap.Pop(&m.evictHeap)
	}
	if freed < newSize {
		// restore anything we speculatively popped
		for _, v := range victims {
			heap.Push(&m.evictHeap, v)
		}
		return false
	}
	for _, v := range victims {
		m.removeLocked(v.txid)
	}
	return true
}

func (m *Mempool) removeLocked(txid block.TxID) {
	e, ok := m.byTxID[txid]
	if !ok {
		return
	}
	delete(m.byTxID, txid)
	for _, in := range e.tx.Inputs {
		delete(m.conflicts, in.Key())
	}
	m.feeHeap.remove(e)
	m.evictHeap.remove(e)
	m.totalBytes -= e.size
}

// Remove evicts txid if present, with no effect otherwise.
func (m *Mempool) Remove(txid block.TxID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(txid)
}

// RemoveConflicting removes every entry that spends any of the given keys;
// used when a block applies and its inputs' UTXOs are gone.
func (m *Mempool) RemoveConflicting(keys []block.UTXOKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if txid, ok := m.conflicts[k]; ok {
			m.removeLocked(txid)
		}
	}
}

// Get returns the pending transaction for txid, if present.
func (m *Mempool) Get(txid block.TxID) (*block.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byTxID[txid]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// SelectForBlock returns transactions in descending fee-per-byte order,
// skipping any transaction that would push the total past maxBytes and
// going on with the rest. The heap is copied first so selection does not
// mutate the live mempool.
func (m *Mempool) SelectForBlock(maxBytes int) []*block.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := make(feeHeap, len(m.feeHeap))
	copy(working, m.feeHeap)
	for i := range working {
		working[i].feeIndex = i
	}
	heap.Init(&working)

	var selected []*block.Transaction
	used := 0
	for working.Len() > 0 {
		e := heap.Pop(&working).(*entry)
		if used+e.size > maxBytes {
			continue
		}
		selected = append(selected, e.tx)
		used += e.size
	}
	// working shares *entry pointers with the live heap; restore the live
	// positions its swaps overwrote.
	for i, e := range m.feeHeap {
		e.feeIndex = i
	}
	return selected
}

// ExpireOlderThan evicts every entry whose admission time predates the
// configured horizon, measured from now.
func (m *Mempool) ExpireOlderThan(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-m.config.Expiry).Unix()
	var expired []block.TxID
	for txid, e := range m.byTxID {
		if e.entryTime < cutoff {
			expired = append(expired, txid)
		}
	}
	for _, txid := range expired {
		m.removeLocked(txid)
	}
	return len(expired)
}

// Info summarizes mempool state for the query surface (spec.md §6
// mempool_info).
type Info struct {
	Count      int
	TotalBytes int
}

func (m *Mempool) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Info{Count: len(m.byTxID), TotalBytes: m.totalBytes}
}
