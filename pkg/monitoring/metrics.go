package monitoring

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects node metrics two ways: atomic/mutex-guarded fields feed
// the JSON snapshot returned by GetMetrics, and a private prometheus.Registry
// holds the same values as real Gauge/Counter collectors for Registry() to
// expose through promhttp. Grounded on the teacher's pkg/monitoring/metrics.go,
// whose GetPrometheusMetrics hand-built the exposition-format text; that is
// replaced here by registering actual prometheus/client_golang collectors.
type Metrics struct {
	mu       sync.RWMutex
	registry *prometheus.Registry

	blockHeight     int64
	totalBlocks     int64
	totalTxns       int64
	pendingTxns     int64
	chainDifficulty float64

	connectedPeers int64
	totalPeers     int64
	networkLatency int64 // milliseconds

	hashRate      int64 // hashes per second
	blocksMined   int64
	miningEnabled bool

	blockProcessingTime int64 // milliseconds
	txnProcessingTime   int64 // milliseconds
	memoryUsage         int64 // bytes

	totalErrors      int64
	validationErrors int64
	networkErrors    int64

	lastBlockTime time.Time
	lastSyncTime  time.Time
	startTime     time.Time

	utxoCount      int64
	chainSize      int64 // bytes
	orphanedBlocks int64
	rejectedBlocks int64
	rejectedTxns   int64
	avgBlockTime   int64 // seconds
	avgTxnPerBlock float64
	avgBlockSize   int64 // bytes

	promBlockHeight     prometheus.Gauge
	promTotalBlocks     prometheus.Counter
	promTotalTxns       prometheus.Counter
	promPendingTxns     prometheus.Gauge
	promChainDifficulty prometheus.Gauge
	promConnectedPeers  prometheus.Gauge
	promTotalPeers      prometheus.Gauge
	promHashRate        prometheus.Gauge
	promBlocksMined     prometheus.Counter
	promMemoryUsage     prometheus.Gauge
	promTotalErrors     prometheus.Counter
	promValidationErrs  prometheus.Counter
	promNetworkErrs     prometheus.Counter
	promUptime          prometheus.GaugeFunc
}

// NewMetrics creates a new metrics collector backed by a private Prometheus
// registry, so multiple Metrics instances (e.g. in tests) never collide on
// the default global registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	factory := promauto.With(m.registry)
	m.promBlockHeight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "gochain", Name: "block_height", Help: "Current blockchain height",
	})
	m.promTotalBlocks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "gochain", Name: "total_blocks", Help: "Total number of blocks observed",
	})
	m.promTotalTxns = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "gochain", Name: "total_transactions", Help: "Total number of transactions observed",
	})
	m.promPendingTxns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "gochain", Name: "pending_transactions", Help: "Number of transactions pending in the mempool",
	})
	m.promChainDifficulty = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "gochain", Name: "chain_difficulty", Help: "Current chain difficulty",
	})
	m.promConnectedPeers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "gochain", Name: "connected_peers", Help: "Number of connected peers",
	})
	m.promTotalPeers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "gochain", Name: "total_peers", Help: "Total number of known peers",
	})
	m.promHashRate = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "gochain", Name: "hash_rate", Help: "Current miner hash rate",
	})
	m.promBlocksMined = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "gochain", Name: "blocks_mined", Help: "Total blocks mined locally",
	})
	m.promMemoryUsage = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "gochain", Name: "memory_usage_bytes", Help: "Current heap memory usage in bytes",
	})
	m.promTotalErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "gochain", Name: "total_errors", Help: "Total number of errors observed",
	})
	m.promValidationErrs = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "gochain", Name: "validation_errors", Help: "Total number of transaction/block validation errors",
	})
	m.promNetworkErrs = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "gochain", Name: "network_errors", Help: "Total number of p2p network errors",
	})
	m.promUptime = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gochain", Name: "uptime_seconds", Help: "Node uptime in seconds",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	return m
}

// Registry returns the Prometheus registry metrics are exported through, for
// wiring into a promhttp handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// UpdateBlockHeight updates the current block height
func (m *Metrics) UpdateBlockHeight(height int64) {
	atomic.StoreInt64(&m.blockHeight, height)
	m.promBlockHeight.Set(float64(height))
}

// UpdateTotalBlocks updates the total number of blocks; the Prometheus
// counter only tracks the forward delta since counters cannot be set.
func (m *Metrics) UpdateTotalBlocks(count int64) {
	prev := atomic.SwapInt64(&m.totalBlocks, count)
	if delta := count - prev; delta > 0 {
		m.promTotalBlocks.Add(float64(delta))
	}
}

// UpdateTotalTxns updates the total number of transactions
func (m *Metrics) UpdateTotalTxns(count int64) {
	prev := atomic.SwapInt64(&m.totalTxns, count)
	if delta := count - prev; delta > 0 {
		m.promTotalTxns.Add(float64(delta))
	}
}

// UpdatePendingTxns updates the number of pending transactions
func (m *Metrics) UpdatePendingTxns(count int64) {
	atomic.StoreInt64(&m.pendingTxns, count)
	m.promPendingTxns.Set(float64(count))
}

// UpdateChainDifficulty updates the current chain difficulty
func (m *Metrics) UpdateChainDifficulty(difficulty float64) {
	m.mu.Lock()
	m.chainDifficulty = difficulty
	m.mu.Unlock()
	m.promChainDifficulty.Set(difficulty)
}

// UpdateConnectedPeers updates the number of connected peers
func (m *Metrics) UpdateConnectedPeers(count int64) {
	atomic.StoreInt64(&m.connectedPeers, count)
	m.promConnectedPeers.Set(float64(count))
}

// UpdateTotalPeers updates the total number of known peers
func (m *Metrics) UpdateTotalPeers(count int64) {
	atomic.StoreInt64(&m.totalPeers, count)
	m.promTotalPeers.Set(float64(count))
}

// UpdateNetworkLatency updates the average network latency
func (m *Metrics) UpdateNetworkLatency(latency int64) {
	atomic.StoreInt64(&m.networkLatency, latency)
}

// UpdateHashRate updates the current hash rate
func (m *Metrics) UpdateHashRate(rate int64) {
	atomic.StoreInt64(&m.hashRate, rate)
	m.promHashRate.Set(float64(rate))
}

// UpdateBlocksMined updates the number of blocks mined
func (m *Metrics) UpdateBlocksMined(count int64) {
	prev := atomic.SwapInt64(&m.blocksMined, count)
	if delta := count - prev; delta > 0 {
		m.promBlocksMined.Add(float64(delta))
	}
}

// SetMiningEnabled sets whether mining is enabled
func (m *Metrics) SetMiningEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.miningEnabled = enabled
}

// UpdateBlockProcessingTime updates the average block processing time
func (m *Metrics) UpdateBlockProcessingTime(duration time.Duration) {
	atomic.StoreInt64(&m.blockProcessingTime, int64(duration.Milliseconds()))
}

// UpdateTxnProcessingTime updates the average transaction processing time
func (m *Metrics) UpdateTxnProcessingTime(duration time.Duration) {
	atomic.StoreInt64(&m.txnProcessingTime, int64(duration.Milliseconds()))
}

// UpdateMemoryUsage updates the current memory usage
func (m *Metrics) UpdateMemoryUsage(bytes int64) {
	atomic.StoreInt64(&m.memoryUsage, bytes)
	m.promMemoryUsage.Set(float64(bytes))
}

// IncrementErrors increments the total error count
func (m *Metrics) IncrementErrors() {
	atomic.AddInt64(&m.totalErrors, 1)
	m.promTotalErrors.Inc()
}

// IncrementValidationErrors increments the validation error count
func (m *Metrics) IncrementValidationErrors() {
	atomic.AddInt64(&m.validationErrors, 1)
	m.promValidationErrs.Inc()
}

// IncrementNetworkErrors increments the network error count
func (m *Metrics) IncrementNetworkErrors() {
	atomic.AddInt64(&m.networkErrors, 1)
	m.promNetworkErrs.Inc()
}

// UpdateLastBlockTime updates the timestamp of the last block
func (m *Metrics) UpdateLastBlockTime(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBlockTime = t
}

// UpdateLastSyncTime updates the timestamp of the last sync
func (m *Metrics) UpdateLastSyncTime(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSyncTime = t
}

// UpdateUTXOCount updates the UTXO count
func (m *Metrics) UpdateUTXOCount(count int64) {
	atomic.StoreInt64(&m.utxoCount, count)
}

// UpdateChainSize updates the chain size in bytes
func (m *Metrics) UpdateChainSize(size int64) {
	atomic.StoreInt64(&m.chainSize, size)
}

// IncrementOrphanedBlocks increments the orphaned blocks count
func (m *Metrics) IncrementOrphanedBlocks() {
	atomic.AddInt64(&m.orphanedBlocks, 1)
}

// IncrementRejectedBlocks increments the rejected blocks count
func (m *Metrics) IncrementRejectedBlocks() {
	atomic.AddInt64(&m.rejectedBlocks, 1)
}

// IncrementRejectedTxns increments the rejected transactions count
func (m *Metrics) IncrementRejectedTxns() {
	atomic.AddInt64(&m.rejectedTxns, 1)
}

// UpdateAvgBlockTime updates the average block time
func (m *Metrics) UpdateAvgBlockTime(seconds int64) {
	atomic.StoreInt64(&m.avgBlockTime, seconds)
}

// UpdateAvgTxnPerBlock updates the average transactions per block
func (m *Metrics) UpdateAvgTxnPerBlock(avg float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.avgTxnPerBlock = avg
}

// UpdateAvgBlockSize updates the average block size
func (m *Metrics) UpdateAvgBlockSize(size int64) {
	atomic.StoreInt64(&m.avgBlockSize, size)
}

// GetMetrics returns a point-in-time JSON-friendly snapshot of all metrics.
func (m *Metrics) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)

	return map[string]interface{}{
		"blockchain": map[string]interface{}{
			"block_height":           atomic.LoadInt64(&m.blockHeight),
			"total_blocks":           atomic.LoadInt64(&m.totalBlocks),
			"total_transactions":     atomic.LoadInt64(&m.totalTxns),
			"pending_transactions":   atomic.LoadInt64(&m.pendingTxns),
			"chain_difficulty":       m.chainDifficulty,
			"last_block_time":        m.lastBlockTime,
			"utxo_count":             atomic.LoadInt64(&m.utxoCount),
			"chain_size_bytes":       atomic.LoadInt64(&m.chainSize),
			"orphaned_blocks":        atomic.LoadInt64(&m.orphanedBlocks),
			"rejected_blocks":        atomic.LoadInt64(&m.rejectedBlocks),
			"rejected_transactions":  atomic.LoadInt64(&m.rejectedTxns),
			"avg_block_time_seconds": atomic.LoadInt64(&m.avgBlockTime),
			"avg_txn_per_block":      m.avgTxnPerBlock,
			"avg_block_size_bytes":   atomic.LoadInt64(&m.avgBlockSize),
		},
		"network": map[string]interface{}{
			"connected_peers": atomic.LoadInt64(&m.connectedPeers),
			"total_peers":     atomic.LoadInt64(&m.totalPeers),
			"network_latency": atomic.LoadInt64(&m.networkLatency),
			"last_sync_time":  m.lastSyncTime,
		},
		"mining": map[string]interface{}{
			"hash_rate":      atomic.LoadInt64(&m.hashRate),
			"blocks_mined":   atomic.LoadInt64(&m.blocksMined),
			"mining_enabled": m.miningEnabled,
		},
		"performance": map[string]interface{}{
			"block_processing_time": atomic.LoadInt64(&m.blockProcessingTime),
			"txn_processing_time":   atomic.LoadInt64(&m.txnProcessingTime),
			"memory_usage":          atomic.LoadInt64(&m.memoryUsage),
		},
		"errors": map[string]interface{}{
			"total_errors":      atomic.LoadInt64(&m.totalErrors),
			"validation_errors": atomic.LoadInt64(&m.validationErrors),
			"network_errors":    atomic.LoadInt64(&m.networkErrors),
		},
		"system": map[string]interface{}{
			"uptime":     uptime.String(),
			"start_time": m.startTime,
		},
	}
}

// Reset resets all metrics to zero. Prometheus counters are monotonic by
// design and are intentionally left untouched; only the gauges and the JSON
// snapshot fields are cleared.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	atomic.StoreInt64(&m.blockHeight, 0)
	atomic.StoreInt64(&m.totalBlocks, 0)
	atomic.StoreInt64(&m.totalTxns, 0)
	atomic.StoreInt64(&m.pendingTxns, 0)
	atomic.StoreInt64(&m.connectedPeers, 0)
	atomic.StoreInt64(&m.totalPeers, 0)
	atomic.StoreInt64(&m.networkLatency, 0)
	atomic.StoreInt64(&m.hashRate, 0)
	atomic.StoreInt64(&m.blocksMined, 0)
	atomic.StoreInt64(&m.blockProcessingTime, 0)
	atomic.StoreInt64(&m.txnProcessingTime, 0)
	atomic.StoreInt64(&m.memoryUsage, 0)
	atomic.StoreInt64(&m.totalErrors, 0)
	atomic.StoreInt64(&m.validationErrors, 0)
	atomic.StoreInt64(&m.networkErrors, 0)
	atomic.StoreInt64(&m.utxoCount, 0)
	atomic.StoreInt64(&m.chainSize, 0)
	atomic.StoreInt64(&m.orphanedBlocks, 0)
	atomic.StoreInt64(&m.rejectedBlocks, 0)
	atomic.StoreInt64(&m.rejectedTxns, 0)
	atomic.StoreInt64(&m.avgBlockTime, 0)
	atomic.StoreInt64(&m.avgBlockSize, 0)

	m.chainDifficulty = 0
	m.miningEnabled = false
	m.lastBlockTime = time.Time{}
	m.lastSyncTime = time.Time{}
	m.avgTxnPerBlock = 0
	m.startTime = time.Now()

	m.promBlockHeight.Set(0)
	m.promPendingTxns.Set(0)
	m.promChainDifficulty.Set(0)
	m.promConnectedPeers.Set(0)
	m.promTotalPeers.Set(0)
	m.promHashRate.Set(0)
	m.promMemoryUsage.Set(0)
}
