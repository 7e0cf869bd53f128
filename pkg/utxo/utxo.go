// Package utxo holds the in-memory unspent-output index: the primary
// UTXOKey -> TxOutput mapping plus an address secondary index, kept
// coherent under a single RWMutex and snapshot-able for reorg rollback.
package utxo

import (
	"sync"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/chainerr"
)

// Balance summarizes an address's holdings split by coin-state.
type Balance struct {
	Total       uint64
	Certified   uint64
	Compensated uint64
}

// Set is the concurrency-safe unspent-output index.
type Set struct {
	mu        sync.RWMutex
	outputs   map[block.UTXOKey]block.TxOutput
	byAddress map[string]map[block.UTXOKey]struct{}
}

// New returns an empty UTXO set.
func New() *Set {
	return &Set{
		outputs:   make(map[block.UTXOKey]block.TxOutput),
		byAddress: make(map[string]map[block.UTXOKey]struct{}),
	}
}

// Add registers a new unspent output. Fails with UTXOExists if key is
// already present — the caller must not be able to mint the same output
// twice.
func (s *Set) Add(key block.UTXOKey, out block.TxOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(key, out)
}

func (s *Set) addLocked(key block.UTXOKey, out block.TxOutput) error {
	if _, exists := s.outputs[key]; exists {
		return chainerr.New(chainerr.CodeUTXOExists, "duplicate utxo key")
	}
	s.outputs[key] = out
	set, ok := s.byAddress[out.Recipient]
	if !ok {
		set = make(map[block.UTXOKey]struct{})
		s.byAddress[out.Recipient] = set
	}
	set[key] = struct{}{}
	return nil
}

// Get returns the output at key, if any.
func (s *Set) Get(key block.UTXOKey) (block.TxOutput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outputs[key]
	return out, ok
}

// Remove deletes and returns the output at key. Fails with UTXONotFound if
// absent.
func (s *Set) Remove(key block.UTXOKey) (block.TxOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(key)
}

func (s *Set) removeLocked(key block.UTXOKey) (block.TxOutput, error) {
	out, ok := s.outputs[key]
	if !ok {
		return block.TxOutput{}, chainerr.New(chainerr.CodeUTXONotFound, "utxo not found")
	}
	delete(s.outputs, key)
	if addrSet, ok := s.byAddress[out.Recipient]; ok {
		delete(addrSet, key)
		if len(addrSet) == 0 {
			delete(s.byAddress, out.Recipient)
		}
	}
	return out, nil
}

// Balance computes an address's holdings from the secondary index.
func (s *Set) Balance(address string) Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var b Balance
	for key := range s.byAddress[address] {
		out := s.outputs[key]
		b.Total += out.Amount
		switch out.State {
		case block.StateCertified:
			b.Certified += out.Amount
		case block.StateCompensated:
			b.Compensated += out.Amount
		}
	}
	return b
}

// KeyedOutput pairs a UTXOKey with the output it refers to, for listing.
type KeyedOutput struct {
	Key    block.UTXOKey
	Output block.TxOutput
}

// ListByAddress returns every unspent output paying address.
func (s *Set) ListByAddress(address string) []KeyedOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.byAddress[address]
	out := make([]KeyedOutput, 0, len(keys))
	for k := range keys {
		out = append(out, KeyedOutput{Key: k, Output: s.outputs[k]})
	}
	return out
}

// Snapshot is a full copy of the set's contents at a point in time,
// used to roll back a failed reorg or block application.
type Snapshot struct {
	outputs   map[block.UTXOKey]block.TxOutput
	byAddress map[string]map[block.UTXOKey]struct{}
}

// Snapshot captures the current state of the set. Held under the caller's
// read lock for the duration of whatever reorg attempt it guards, per the
// concurrency discipline of restoring a consistent (tip, UTXO) pair.
func (s *Set) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		outputs:   make(map[block.UTXOKey]block.TxOutput, len(s.outputs)),
		byAddress: make(map[string]map[block.UTXOKey]struct{}, len(s.byAddress)),
	}
	for k, v := range s.outputs {
		snap.outputs[k] = v
	}
	for addr, keys := range s.byAddress {
		copied := make(map[block.UTXOKey]struct{}, len(keys))
		for k := range keys {
			copied[k] = struct{}{}
		}
		snap.byAddress[addr] = copied
	}
	return snap
}

// Restore reverts the set to exactly the state snap captured.
func (s *Set) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = snap.outputs
	s.byAddress = snap.byAddress
}

// Clone deep-copies the entire set, used to seed the temporary per-block
// UTXO set that block validation checks intra-block spending against
// without mutating the authoritative set until the whole block is known
// valid.
func (s *Set) Clone() *Set {
	snap := s.Snapshot()
	return &Set{outputs: snap.outputs, byAddress: snap.byAddress}
}
