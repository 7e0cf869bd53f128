package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gochain/gochain/pkg/block"
)

func TestInventoryCacheMarkSeenIsIdempotent(t *testing.T) {
	c := newInventoryCache(10)
	item := InvVector{Kind: InvBlock, Hash: block.Hash{0x01}}

	assert.False(t, c.Seen(item))
	assert.True(t, c.MarkSeen(item))
	assert.True(t, c.Seen(item))
	assert.False(t, c.MarkSeen(item)) // already known
}

func TestInventoryCacheEvictsOldestOverCapacity(t *testing.T) {
	c := newInventoryCache(2)
	a := InvVector{Kind: InvBlock, Hash: block.Hash{0x01}}
	b := InvVector{Kind: InvBlock, Hash: block.Hash{0x02}}
	d := InvVector{Kind: InvBlock, Hash: block.Hash{0x03}}

	c.MarkSeen(a)
	c.MarkSeen(b)
	c.MarkSeen(d) // evicts a, the least recently seen

	assert.False(t, c.Seen(a))
	assert.True(t, c.Seen(b))
	assert.True(t, c.Seen(d))
}

func TestInventoryCacheDistinguishesKindsOfSameHash(t *testing.T) {
	c := newInventoryCache(10)
	h := block.Hash{0x42}
	c.MarkSeen(InvVector{Kind: InvBlock, Hash: h})

	assert.False(t, c.Seen(InvVector{Kind: InvTx, Hash: h}))
}
