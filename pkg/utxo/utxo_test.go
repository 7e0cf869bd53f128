package utxo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/chainerr"
)

func key(txidByte byte, idx uint32) block.UTXOKey {
	return block.UTXOKey{TxID: block.TxID{txidByte}, Index: idx}
}

func TestAddAndGet(t *testing.T) {
	s := New()
	k := key(1, 0)
	out := block.TxOutput{Amount: 100, Recipient: "addr1"}

	require.NoError(t, s.Add(k, out))

	got, ok := s.Get(k)
	require.True(t, ok)
	assert.Equal(t, out, got)
}

func TestAddRejectsDuplicateKey(t *testing.T) {
	s := New()
	k := key(1, 0)
	require.NoError(t, s.Add(k, block.TxOutput{Amount: 1, Recipient: "a"}))

	err := s.Add(k, block.TxOutput{Amount: 2, Recipient: "b"})
	require.Error(t, err)
	assert.Equal(t, chainerr.CodeUTXOExists, chainerr.CodeOf(err))
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	s := New()
	_, ok := s.Get(key(9, 0))
	assert.False(t, ok)
}

func TestRemoveReturnsAndDeletesOutput(t *testing.T) {
	s := New()
	k := key(1, 0)
	out := block.TxOutput{Amount: 100, Recipient: "addr1"}
	require.NoError(t, s.Add(k, out))

	removed, err := s.Remove(k)
	require.NoError(t, err)
	assert.Equal(t, out, removed)

	_, ok := s.Get(k)
	assert.False(t, ok, "removed output must no longer be present")
}

func TestRemoveMissingKeyFails(t *testing.T) {
	s := New()
	_, err := s.Remove(key(1, 0))
	require.Error(t, err)
	assert.Equal(t, chainerr.CodeUTXONotFound, chainerr.CodeOf(err))
}

func TestBalanceAggregatesByCoinState(t *testing.T) {
	s := New()
	addr := "addr1"
	require.NoError(t, s.Add(key(1, 0), block.TxOutput{Amount: 100, Recipient: addr, State: block.StatePlain}))
	require.NoError(t, s.Add(key(2, 0), block.TxOutput{Amount: 50, Recipient: addr, State: block.StateCertified}))
	require.NoError(t, s.Add(key(3, 0), block.TxOutput{Amount: 25, Recipient: addr, State: block.StateCompensated}))
	require.NoError(t, s.Add(key(4, 0), block.TxOutput{Amount: 999, Recipient: "someone_else"}))

	bal := s.Balance(addr)
	assert.Equal(t, uint64(175), bal.Total)
	assert.Equal(t, uint64(50), bal.Certified)
	assert.Equal(t, uint64(25), bal.Compensated)
}

func TestBalanceOfUnknownAddressIsZero(t *testing.T) {
	s := New()
	bal := s.Balance("nobody")
	assert.Equal(t, Balance{}, bal)
}

func TestListByAddressReturnsAllOutputsAndOnlyThoseOutputs(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(key(1, 0), block.TxOutput{Amount: 10, Recipient: "alice"}))
	require.NoError(t, s.Add(key(1, 1), block.TxOutput{Amount: 20, Recipient: "alice"}))
	require.NoError(t, s.Add(key(2, 0), block.TxOutput{Amount: 30, Recipient: "bob"}))

	listed := s.ListByAddress("alice")
	require.Len(t, listed, 2)

	var total uint64
	for _, ko := range listed {
		total += ko.Output.Amount
	}
	assert.Equal(t, uint64(30), total)
}

func TestRemoveClearsEmptyAddressBucket(t *testing.T) {
	s := New()
	k := key(1, 0)
	require.NoError(t, s.Add(k, block.TxOutput{Amount: 10, Recipient: "alice"}))
	_, err := s.Remove(k)
	require.NoError(t, err)

	// Re-adding a different output to the same address should start from an
	// empty bucket, not resurrect the removed key.
	require.NoError(t, s.Add(key(2, 0), block.TxOutput{Amount: 5, Recipient: "alice"}))
	listed := s.ListByAddress("alice")
	require.Len(t, listed, 1)
	assert.Equal(t, uint64(5), listed[0].Output.Amount)
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(key(1, 0), block.TxOutput{Amount: 100, Recipient: "alice"}))

	snap := s.Snapshot()

	require.NoError(t, s.Add(key(2, 0), block.TxOutput{Amount: 200, Recipient: "bob"}))
	_, err := s.Remove(key(1, 0))
	require.NoError(t, err)

	s.Restore(snap)

	_, ok := s.Get(key(1, 0))
	assert.True(t, ok, "restore must bring back the snapshotted output")
	_, ok = s.Get(key(2, 0))
	assert.False(t, ok, "restore must undo additions made after the snapshot")
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(key(1, 0), block.TxOutput{Amount: 100, Recipient: "alice"}))

	clone := s.Clone()
	require.NoError(t, clone.Add(key(2, 0), block.TxOutput{Amount: 50, Recipient: "bob"}))

	_, ok := s.Get(key(2, 0))
	assert.False(t, ok, "mutating the clone must not affect the original set")

	_, err := s.Remove(key(1, 0))
	require.NoError(t, err)
	_, ok = clone.Get(key(1, 0))
	assert.True(t, ok, "mutating the original must not affect an already-taken clone")
}

func TestConcurrentAddAndGetDoNotRace(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := key(byte(i), uint32(i))
			_ = s.Add(k, block.TxOutput{Amount: uint64(i), Recipient: "addr"})
			s.Get(k)
		}(i)
	}
	wg.Wait()
}
