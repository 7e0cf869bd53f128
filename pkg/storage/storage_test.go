package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gochain/gochain/pkg/block"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetBlockRoundTrips(t *testing.T) {
	s := openTestStore(t)
	b := block.Genesis()

	require.NoError(t, s.PutBlock(b))

	h, err := b.Hash()
	require.NoError(t, err)

	got, err := s.GetBlock(h)
	require.NoError(t, err)
	assert.Equal(t, b.Header.Height, got.Header.Height)
	assert.Equal(t, b.Header.MerkleRoot, got.Header.MerkleRoot)
	assert.Len(t, got.Transactions, 1)
}

func TestGetBlockByHeightResolvesIndex(t *testing.T) {
	s := openTestStore(t)
	b := block.Genesis()
	require.NoError(t, s.PutBlock(b))

	got, err := s.GetBlockByHeight(0)
	require.NoError(t, err)
	assert.Equal(t, b.Header.Timestamp, got.Header.Timestamp)
}

func TestGetBlockMissingReturnsError(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetBlock(block.Hash{0xFF})
	assert.Error(t, err)
}

func TestPutGetTransactionRoundTrips(t *testing.T) {
	s := openTestStore(t)
	tx := &block.Transaction{
		Kind: block.KindTransfer,
		Inputs: []block.TxInput{{
			PrevTxID:  block.TxID{1, 2, 3},
			PrevIndex: 0,
		}},
		Outputs: []block.TxOutput{{
			Amount:    500,
			Recipient: "recipient-a",
			State:     block.StatePlain,
		}},
		Timestamp: 1_700_000_500,
	}
	require.NoError(t, s.PutTransaction(tx))

	got, err := s.GetTransaction(tx.TxID())
	require.NoError(t, err)
	assert.Equal(t, tx.Outputs[0].Amount, got.Outputs[0].Amount)
	assert.Equal(t, tx.Outputs[0].Recipient, got.Outputs[0].Recipient)
}

func TestGetTipBeforeAnyPutReportsNotOk(t *testing.T) {
	s := openTestStore(t)
	_, _, ok, err := s.GetTip()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutGetTipRoundTrips(t *testing.T) {
	s := openTestStore(t)
	b := block.Genesis()
	h, err := b.Hash()
	require.NoError(t, err)

	require.NoError(t, s.PutTip(h, 0))

	gotHash, gotHeight, ok, err := s.GetTip()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h, gotHash)
	assert.Equal(t, uint64(0), gotHeight)
}

func TestPutGetCertificateRoundTrips(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutCertificate("cert-1", []byte("encoded-payload")))

	got, err := s.GetCertificate("cert-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("encoded-payload"), got)
}

func TestGetCertificateMissingReturnsError(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetCertificate("does-not-exist")
	assert.Error(t, err)
}

func TestReplayAllVisitsBlocksInHeightOrder(t *testing.T) {
	s := openTestStore(t)
	genesis := block.Genesis()
	require.NoError(t, s.PutBlock(genesis))

	next := &block.Block{
		Header: block.BlockHeader{
			Height:    1,
			Timestamp: genesis.Header.Timestamp + 1,
		},
		Transactions: []block.Transaction{{
			Kind: block.KindCoinbase,
			Outputs: []block.TxOutput{{
				Amount:    50,
				Recipient: "miner-a",
				State:     block.StatePlain,
			}},
			Timestamp: genesis.Header.Timestamp + 1,
		}},
	}
	next.Header.MerkleRoot = next.MerkleRoot()
	require.NoError(t, s.PutBlock(next))

	var heights []uint64
	require.NoError(t, s.ReplayAll(func(b *block.Block) error {
		heights = append(heights, b.Header.Height)
		return nil
	}))
	assert.Equal(t, []uint64{0, 1}, heights)
}

func TestCompactDoesNotError(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutBlock(block.Genesis()))
	assert.NoError(t, s.Compact())
}
