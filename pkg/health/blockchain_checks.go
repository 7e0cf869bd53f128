package health

import (
	"fmt"
	"time"

	"github.com/gochain/gochain/pkg/chain"
	"github.com/gochain/gochain/pkg/mempool"
)

// ChainHealthChecker checks the health of the blockchain by reading the
// chain's tip and comparing it against the header height for staleness and
// difficulty sanity.
type ChainHealthChecker struct {
	chain       *chain.Chain
	maxBlockAge time.Duration
	name        string
}

// NewChainHealthChecker creates a new chain health checker. The maximum
// tip block age is fixed at one hour.
func NewChainHealthChecker(c *chain.Chain) *ChainHealthChecker {
	return &ChainHealthChecker{
		chain:       c,
		maxBlockAge: time.Hour,
		name:        "blockchain",
	}
}

// Name returns the name of this health checker.
func (c *ChainHealthChecker) Name() string {
	return c.name
}

// Check performs a health check on the blockchain.
func (c *ChainHealthChecker) Check() (*Component, error) {
	start := time.Now()

	tipHash, height := c.chain.Tip()
	header, ok := c.chain.HeaderByHeight(height)
	if !ok {
		return &Component{
			Name:      c.Name(),
			Status:    StatusUnhealthy,
			Message:   "No tip header available",
			LastCheck: time.Now(),
			CheckTime: time.Since(start),
			Details: map[string]interface{}{
				"height": height,
				"error":  "tip header missing",
			},
		}, nil
	}

	details := map[string]interface{}{
		"height":     height,
		"tip_hash":   fmt.Sprintf("%x", tipHash),
		"difficulty": header.Difficulty,
	}

	blockAge := time.Since(time.Unix(header.Timestamp, 0))
	details["last_block_time"] = header.Timestamp
	details["block_age"] = blockAge.String()

	if height > 0 && blockAge > c.maxBlockAge {
		details["max_block_age"] = c.maxBlockAge.String()
		return &Component{
			Name:      c.Name(),
			Status:    StatusDegraded,
			Message:   fmt.Sprintf("Last block is %v old", blockAge),
			LastCheck: time.Now(),
			CheckTime: time.Since(start),
			Details:   details,
		}, nil
	}

	if header.Difficulty == 0 {
		return &Component{
			Name:      c.Name(),
			Status:    StatusDegraded,
			Message:   "Block difficulty is zero",
			LastCheck: time.Now(),
			CheckTime: time.Since(start),
			Details:   details,
		}, nil
	}

	if b, found := c.chain.GetBlockByHeight(height); found {
		details["transactions"] = len(b.Transactions)
	}

	return &Component{
		Name:      c.Name(),
		Status:    StatusHealthy,
		Message:   "Blockchain is healthy",
		LastCheck: time.Now(),
		CheckTime: time.Since(start),
		Details:   details,
	}, nil
}

// MempoolHealthChecker checks the health of the mempool by watching for
// unbounded growth relative to its configured byte budget.
type MempoolHealthChecker struct {
	mempool      *mempool.Mempool
	maxOccupancy int
	name         string
}

// NewMempoolHealthChecker creates a new mempool health checker. maxOccupancy
// is the byte total at or above which the mempool is considered degraded;
// zero disables the check.
func NewMempoolHealthChecker(m *mempool.Mempool, maxOccupancy int) *MempoolHealthChecker {
	return &MempoolHealthChecker{
		mempool:      m,
		maxOccupancy: maxOccupancy,
		name:         "mempool",
	}
}

// Name returns the name of this health checker.
func (c *MempoolHealthChecker) Name() string {
	return c.name
}

// Check performs a health check on the mempool.
func (c *MempoolHealthChecker) Check() (*Component, error) {
	start := time.Now()
	info := c.mempool.Info()

	details := map[string]interface{}{
		"transaction_count": info.Count,
		"total_bytes":       info.TotalBytes,
	}

	status := StatusHealthy
	message := "Mempool is healthy"
	if c.maxOccupancy > 0 && info.TotalBytes >= c.maxOccupancy {
		status = StatusDegraded
		message = fmt.Sprintf("Mempool occupancy %d bytes at or above budget %d", info.TotalBytes, c.maxOccupancy)
	}

	return &Component{
		Name:      c.Name(),
		Status:    status,
		Message:   message,
		LastCheck: time.Now(),
		CheckTime: time.Since(start),
		Details:   details,
	}, nil
}

// PeerCounter is the narrow view of a network transport a health checker
// needs: how many peers it currently holds open.
type PeerCounter interface {
	PeerCount() int
}

// NetworkHealthChecker checks peer connectivity, flagging the node as
// degraded once it drops below minPeers and unhealthy at zero.
type NetworkHealthChecker struct {
	network  PeerCounter
	minPeers int
	name     string
}

// NewNetworkHealthChecker creates a new network health checker.
func NewNetworkHealthChecker(n PeerCounter, minPeers int) *NetworkHealthChecker {
	return &NetworkHealthChecker{
		network:  n,
		minPeers: minPeers,
		name:     "network",
	}
}

// Name returns the name of this health checker.
func (c *NetworkHealthChecker) Name() string {
	return c.name
}

// Check performs a health check on peer connectivity.
func (c *NetworkHealthChecker) Check() (*Component, error) {
	start := time.Now()
	peers := c.network.PeerCount()

	status := StatusHealthy
	message := "Network is healthy"
	switch {
	case peers == 0:
		status = StatusUnhealthy
		message = "No connected peers"
	case peers < c.minPeers:
		status = StatusDegraded
		message = fmt.Sprintf("Connected peer count %d below minimum %d", peers, c.minPeers)
	}

	return &Component{
		Name:      c.Name(),
		Status:    status,
		Message:   message,
		LastCheck: time.Now(),
		CheckTime: time.Since(start),
		Details: map[string]interface{}{
			"connected_peers": peers,
			"min_peers":       c.minPeers,
		},
	}, nil
}
