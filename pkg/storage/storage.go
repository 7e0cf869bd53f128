// Package storage persists the block tree to disk with badger/v4,
// encoding every value with this repository's canonical binary codec
// (pkg/block) rather than JSON, so the bytes on disk are the same bytes
// nodes hash and exchange over the wire. Grounded on the teacher's
// pkg/storage/storage.go, with its build-tag split removed (badger is
// always available here, not an optional feature) and JSON serialization
// replaced throughout.
package storage

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/chainerr"
)

// Key prefixes, per spec.md §6's keyspace.
const (
	prefixBlock  = "block/"
	prefixTx     = "tx/"
	prefixHeight = "height/"
	prefixCert   = "cert/"
	keyTip       = "meta/tip"
)

// Config configures the on-disk store.
type Config struct {
	DataDir string
}

// DefaultConfig points at a relative data directory, overridden by the CLI.
func DefaultConfig() Config {
	return Config{DataDir: "./data"}
}

// Store wraps a badger database holding the canonical-encoded chain.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) the badger database at config.DataDir.
func Open(config Config) (*Store, error) {
	opts := badger.DefaultOptions(config.DataDir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeStorageError, "failed to open database", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(h block.Hash) []byte {
	return append([]byte(prefixBlock), h[:]...)
}

func heightKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixHeight, height))
}

func txKey(id block.TxID) []byte {
	return append([]byte(prefixTx), id[:]...)
}

// PutBlock writes b under its hash and indexes it by height, so both
// GetBlock and GetBlockByHeight are O(1) lookups.
func (s *Store) PutBlock(b *block.Block) error {
	h, err := b.Hash()
	if err != nil {
		return chainerr.Wrap(chainerr.CodeStorageError, "failed to hash block", err)
	}
	encoded := b.Encode()
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(blockKey(h), encoded); err != nil {
			return err
		}
		return txn.Set(heightKey(b.Header.Height), h[:])
	})
}

// GetBlock reads the block stored under hash h.
func (s *Store) GetBlock(h block.Hash) (*block.Block, error) {
	var encoded []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(h))
		if err != nil {
			return err
		}
		encoded, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, chainerr.New(chainerr.CodeStorageError, "block not found")
	}
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeStorageError, "failed to read block", err)
	}
	return block.DecodeBlock(encoded)
}

// GetBlockByHeight resolves height to its hash and reads the block.
func (s *Store) GetBlockByHeight(height uint64) (*block.Block, error) {
	var hashBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(heightKey(height))
		if err != nil {
			return err
		}
		hashBytes, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, chainerr.New(chainerr.CodeStorageError, "no block at that height")
	}
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeStorageError, "failed to read height index", err)
	}
	var h block.Hash
	copy(h[:], hashBytes)
	return s.GetBlock(h)
}

// PutTransaction indexes tx by its TxID, independent of the block it is
// already stored inside, so GetTransaction can return it without
// re-walking every block.
func (s *Store) PutTransaction(tx *block.Transaction) error {
	encoded := tx.Encode()
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(txKey(tx.TxID()), encoded)
	})
}

// GetTransaction reads the transaction stored under id.
func (s *Store) GetTransaction(id block.TxID) (*block.Transaction, error) {
	var encoded []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(txKey(id))
		if err != nil {
			return err
		}
		encoded, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, chainerr.New(chainerr.CodeStorageError, "transaction not found")
	}
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeStorageError, "failed to read transaction", err)
	}
	return block.DecodeTransaction(encoded)
}

// PutTip records the current best-chain tip hash and height.
func (s *Store) PutTip(h block.Hash, height uint64) error {
	val := append(append([]byte{}, h[:]...), encodeHeight(height)...)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyTip), val)
	})
}

// GetTip returns the recorded tip, or ok=false if none has been stored yet
// (a fresh database, which the chain layer seeds with genesis).
func (s *Store) GetTip() (h block.Hash, height uint64, ok bool, err error) {
	var val []byte
	getErr := s.db.View(func(txn *badger.Txn) error {
		item, txErr := txn.Get([]byte(keyTip))
		if txErr != nil {
			return txErr
		}
		val, txErr = item.ValueCopy(nil)
		return txErr
	})
	if getErr == badger.ErrKeyNotFound {
		return block.Hash{}, 0, false, nil
	}
	if getErr != nil {
		return block.Hash{}, 0, false, chainerr.Wrap(chainerr.CodeStorageError, "failed to read tip", getErr)
	}
	copy(h[:], val[:32])
	height = decodeHeight(val[32:])
	return h, height, true, nil
}

func encodeHeight(height uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(height >> (8 * i))
	}
	return b
}

func decodeHeight(b []byte) uint64 {
	var height uint64
	for i := 0; i < 8 && i < len(b); i++ {
		height = height<<8 | uint64(b[i])
	}
	return height
}

// PutCertificate persists a certificate record's pre-encoded bytes under
// its id. Encoding is the caller's responsibility (pkg/certificate owns
// the canonical shape) so this package stays independent of that type.
func (s *Store) PutCertificate(id string, encoded []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append([]byte(prefixCert), id...), encoded)
	})
}

// GetCertificate reads the raw encoded bytes stored under id.
func (s *Store) GetCertificate(id string) ([]byte, error) {
	var encoded []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(append([]byte(prefixCert), id...))
		if err != nil {
			return err
		}
		encoded, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, chainerr.New(chainerr.CodeStorageError, "certificate not found")
	}
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeStorageError, "failed to read certificate", err)
	}
	return encoded, nil
}

// Compact runs badger's value-log garbage collection, mirroring the
// teacher's Compact.
func (s *Store) Compact() error {
	err := s.db.RunValueLogGC(0.7)
	if err != nil && err != badger.ErrNoRewrite {
		return chainerr.Wrap(chainerr.CodeStorageError, "compaction failed", err)
	}
	return nil
}

// ReplayAll streams every stored block in ascending height order into fn,
// stopping at the first error fn returns (io.EOF-style termination is
// signalled by GetBlockByHeight's own CodeStorageError once heights run
// out). Used at startup to rebuild the in-memory chain (header index,
// UTXO set, certificate registry) from whatever was last persisted.
func (s *Store) ReplayAll(fn func(b *block.Block) error) error {
	height := uint64(0)
	for {
		b, err := s.GetBlockByHeight(height)
		if err != nil {
			if chainerr.CodeOf(err) == chainerr.CodeStorageError {
				return nil
			}
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		height++
	}
}
