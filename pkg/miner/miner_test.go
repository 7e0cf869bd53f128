package miner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gochain/gochain/pkg/chain"
	"github.com/gochain/gochain/pkg/mempool"
	"github.com/gochain/gochain/pkg/params"
)

func TestMineOneExtendsChain(t *testing.T) {
	c := chain.New()
	pool := mempool.New(c.UTXOSet(), c.Certificates(), mempool.DefaultConfig())
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.CoinbaseAddress = "miner-address"
	m := New(c, pool, cfg)

	mined, err := m.MineOne(nil)
	require.NoError(t, err)
	require.NotNil(t, mined)

	_, height := c.Tip()
	assert.Equal(t, uint64(1), height)

	bal := c.UTXOSet().Balance("miner-address")
	assert.Equal(t, params.Subsidy(1), bal.Total)
}

func TestMineOneRespectsCancel(t *testing.T) {
	c := chain.New()
	pool := mempool.New(c.UTXOSet(), c.Certificates(), mempool.DefaultConfig())
	m := New(c, pool, DefaultConfig())

	cancel := make(chan struct{})
	close(cancel)

	_, err := m.MineOne(cancel)
	assert.Error(t, err)
}

func TestStartStopIsMining(t *testing.T) {
	c := chain.New()
	pool := mempool.New(c.UTXOSet(), c.Certificates(), mempool.DefaultConfig())
	cfg := DefaultConfig()
	cfg.BlockInterval = 10 * time.Millisecond
	m := New(c, pool, cfg)

	require.NoError(t, m.Start())
	assert.True(t, m.IsMining())
	err := m.Start()
	assert.Error(t, err)

	m.Stop()
	assert.False(t, m.IsMining())
	require.NoError(t, m.Close())
}
