package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/chain"
	"github.com/gochain/gochain/pkg/health"
	"github.com/gochain/gochain/pkg/logger"
	"github.com/gochain/gochain/pkg/mempool"
)

// ChainInterface is the narrow view of pkg/chain.Chain the monitoring
// service needs: the current tip, its header, and header/body lookup by
// height for the average-block-time and block-size rollups.
type ChainInterface interface {
	Tip() (block.Hash, uint64)
	HeaderByHeight(height uint64) (*block.BlockHeader, bool)
	GetBlockByHeight(height uint64) (*block.Block, bool)
}

// MempoolInterface is the narrow view of pkg/mempool.Mempool the monitoring
// service needs.
type MempoolInterface interface {
	Info() mempool.Info
}

// NetworkInterface is the narrow view of pkg/p2p.Node the monitoring service
// needs; also satisfies health.PeerCounter so the same value can back the
// network health checker.
type NetworkInterface interface {
	PeerCount() int
}

// SimpleHealthChecker is a simple health checker for testing
type SimpleHealthChecker struct {
	name   string
	status health.Status
}

func (shc *SimpleHealthChecker) Name() string {
	return shc.name
}

func (shc *SimpleHealthChecker) Check() (*health.Component, error) {
	return &health.Component{
		Name:    shc.name,
		Status:  shc.status,
		Message: "Simple health checker for testing",
		Details: map[string]interface{}{},
	}, nil
}

// Service represents the monitoring service
type Service struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	metrics       *Metrics
	systemHealth  *health.SystemHealth
	chain         ChainInterface
	mempool       MempoolInterface
	network       NetworkInterface
	config        *Config
	ctx           context.Context
	cancel        context.CancelFunc
	metricsServer *http.Server
	healthServer  *http.Server
	checkers      []health.HealthChecker
}

// Config holds configuration for the monitoring service
type Config struct {
	MetricsPort         int
	HealthPort          int
	LogLevel            logger.Level
	LogJSON             bool
	LogFile             string
	MetricsPath         string
	HealthPath          string
	PrometheusPath      string
	CollectInterval     time.Duration
	HealthCheckInterval time.Duration
	EnablePrometheus    bool
	MinPeers            int // minimum connected peers before the network checker degrades
	MempoolByteBudget   int // mempool occupancy at or above which the mempool checker degrades; 0 disables it
}

// DefaultConfig returns default monitoring configuration
func DefaultConfig() *Config {
	return &Config{
		MetricsPort:         9090,
		HealthPort:          8080,
		LogLevel:            logger.INFO,
		LogJSON:             false,
		LogFile:             "",
		MetricsPath:         "/metrics",
		HealthPath:          "/health",
		PrometheusPath:      "/prometheus",
		CollectInterval:     30 * time.Second,
		HealthCheckInterval: 15 * time.Second,
		EnablePrometheus:    true,
		MinPeers:            1,
		MempoolByteBudget:   0,
	}
}

// NewService creates a new monitoring service
func NewService(config *Config, chain ChainInterface, mempool MempoolInterface, network NetworkInterface) *Service {
	if config == nil {
		config = DefaultConfig()
	}

	logConfig := &logger.Config{
		Level:   config.LogLevel,
		Prefix:  "monitoring",
		UseJSON: config.LogJSON,
		LogFile: config.LogFile,
		Output:  os.Stdout,
	}

	log := logger.NewLogger(logConfig)

	metrics := NewMetrics()
	systemHealth := health.NewSystemHealth("1.0.0")

	ctx, cancel := context.WithCancel(context.Background())

	service := &Service{
		logger:       log,
		metrics:      metrics,
		systemHealth: systemHealth,
		chain:        chain,
		mempool:      mempool,
		network:      network,
		config:       config,
		ctx:          ctx,
		cancel:       cancel,
		checkers:     make([]health.HealthChecker, 0),
	}

	service.registerHealthCheckers()
	go service.startBackgroundMonitoring()

	return service
}

// registerHealthCheckers registers all health checkers. Where the injected
// interface's underlying value is the real concrete type, a real checker
// backed by that type's own state is registered; otherwise (mocks, tests) a
// SimpleHealthChecker reporting a fixed status stands in.
func (s *Service) registerHealthCheckers() {
	if chainWrapper, ok := s.chain.(*chain.Chain); ok {
		chainChecker := health.NewChainHealthChecker(chainWrapper)
		s.systemHealth.RegisterComponent(chainChecker)
		s.checkers = append(s.checkers, chainChecker)
	} else {
		s.logger.Debug("Skipping chain health checker registration (not a *chain.Chain)")
		if s.chain != nil {
			simpleChainChecker := &SimpleHealthChecker{name: "blockchain", status: health.StatusHealthy}
			s.systemHealth.RegisterComponent(simpleChainChecker)
			s.checkers = append(s.checkers, simpleChainChecker)
		}
	}

	if mempoolWrapper, ok := s.mempool.(*mempool.Mempool); ok {
		mempoolChecker := health.NewMempoolHealthChecker(mempoolWrapper, s.config.MempoolByteBudget)
		s.systemHealth.RegisterComponent(mempoolChecker)
		s.checkers = append(s.checkers, mempoolChecker)
	} else {
		s.logger.Debug("Skipping mempool health checker registration (not a *mempool.Mempool)")
		if s.mempool != nil {
			simpleMempoolChecker := &SimpleHealthChecker{name: "mempool", status: health.StatusHealthy}
			s.systemHealth.RegisterComponent(simpleMempoolChecker)
			s.checkers = append(s.checkers, simpleMempoolChecker)
		}
	}

	if s.network != nil {
		networkChecker := health.NewNetworkHealthChecker(s.network, s.config.MinPeers)
		s.systemHealth.RegisterComponent(networkChecker)
		s.checkers = append(s.checkers, networkChecker)
	}

	s.logger.Info("Health checkers registered")
}

// RegisterHealthChecker manually registers a health checker (useful for testing)
func (s *Service) RegisterHealthChecker(checker health.HealthChecker) {
	s.systemHealth.RegisterComponent(checker)
	s.checkers = append(s.checkers, checker)
}

// startBackgroundMonitoring starts the background monitoring loop
func (s *Service) startBackgroundMonitoring() {
	metricsTicker := time.NewTicker(s.config.CollectInterval)
	healthTicker := time.NewTicker(s.config.HealthCheckInterval)
	defer metricsTicker.Stop()
	defer healthTicker.Stop()

	s.logger.Info("Starting background monitoring")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Background monitoring stopped")
			return
		case <-metricsTicker.C:
			s.UpdateMetrics()
		case <-healthTicker.C:
			s.runHealthChecks()
		}
	}
}

// UpdateMetrics updates all metrics from the chain, mempool and network.
func (s *Service) UpdateMetrics() {
	if s.chain != nil {
		_, height := s.chain.Tip()
		if header, ok := s.chain.HeaderByHeight(height); ok {
			s.metrics.UpdateBlockHeight(int64(height))
			s.metrics.UpdateLastBlockTime(time.Unix(header.Timestamp, 0))
			s.metrics.UpdateChainDifficulty(float64(header.Difficulty))

			if height > 0 {
				if prevHeader, ok := s.chain.HeaderByHeight(height - 1); ok {
					s.metrics.UpdateAvgBlockTime(header.Timestamp - prevHeader.Timestamp)
				}
			}

			if b, ok := s.chain.GetBlockByHeight(height); ok {
				if txnCount := len(b.Transactions); txnCount > 0 {
					s.metrics.UpdateAvgTxnPerBlock(float64(txnCount))
				}
				s.metrics.UpdateAvgBlockSize(int64(b.Size()))
			}
		}
		s.metrics.UpdateTotalBlocks(int64(height) + 1)
	}

	if s.mempool != nil {
		info := s.mempool.Info()
		s.metrics.UpdatePendingTxns(int64(info.Count))
	}

	if s.network != nil {
		s.metrics.UpdateConnectedPeers(int64(s.network.PeerCount()))
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s.metrics.UpdateMemoryUsage(int64(m.Alloc))

	s.logger.Debug("Metrics updated")
}

// runHealthChecks runs health checks for all registered components
func (s *Service) runHealthChecks() {
	var wg sync.WaitGroup

	for _, checker := range s.checkers {
		wg.Add(1)
		go func(c health.HealthChecker) {
			defer wg.Done()
			s.runComponentCheck(c)
		}(checker)
	}

	wg.Wait()
	s.logger.Debug("Health checks completed")
}

// runComponentCheck runs a health check for a single component
func (s *Service) runComponentCheck(checker health.HealthChecker) {
	start := time.Now()
	component, err := checker.Check()
	checkTime := time.Since(start)

	if err != nil {
		component.Status = health.StatusUnhealthy
		component.Message = err.Error()
	}

	component.LastCheck = time.Now()
	component.CheckTime = checkTime

	s.systemHealth.UpdateComponent(
		checker.Name(),
		component.Status,
		component.Message,
		component.Details,
	)
}

// Start starts the monitoring service
func (s *Service) Start() error {
	s.logger.Info("Starting monitoring service")

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	if err := s.startHealthServer(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}

	s.logger.Info("Monitoring service started successfully")
	return nil
}

// startMetricsServer starts the metrics HTTP server
func (s *Service) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.MetricsPath, s.metricsHandler)

	if s.config.EnablePrometheus {
		mux.Handle(s.config.PrometheusPath, promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	s.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.MetricsPort),
		Handler: mux,
	}

	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server error: %v", err)
		}
	}()

	s.logger.Info("Metrics server started on port %d", s.config.MetricsPort)
	return nil
}

// startHealthServer starts the health check HTTP server
func (s *Service) startHealthServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.HealthPath, s.healthHandler)
	mux.HandleFunc(s.config.HealthPath+"z/ready", s.readyHandler)

	s.healthServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.HealthPort),
		Handler: mux,
	}

	go func() {
		if err := s.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Health server error: %v", err)
		}
	}()

	s.logger.Info("Health server started on port %d", s.config.HealthPort)
	return nil
}

// metricsHandler handles metrics requests
func (s *Service) metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	metrics := s.metrics.GetMetrics()
	if err := json.NewEncoder(w).Encode(metrics); err != nil {
		http.Error(w, "Failed to encode metrics", http.StatusInternalServerError)
		return
	}
}

// healthHandler handles health check requests
func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	healthReport := s.systemHealth.GetHealthReport()
	if err := json.NewEncoder(w).Encode(healthReport); err != nil {
		http.Error(w, "Failed to encode health report", http.StatusInternalServerError)
		return
	}
}

// readyHandler reports readiness: 200 when the system should accept
// traffic, 503 when an unhealthy component means it should not.
func (s *Service) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !s.systemHealth.IsReady() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Stop stops the monitoring service
func (s *Service) Stop() error {
	s.logger.Info("Stopping monitoring service")

	s.cancel()

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(context.Background()); err != nil {
			s.logger.Error("Failed to shutdown metrics server: %v", err)
		}
	}

	if s.healthServer != nil {
		if err := s.healthServer.Shutdown(context.Background()); err != nil {
			s.logger.Error("Failed to shutdown health server: %v", err)
		}
	}

	s.logger.Info("Monitoring service stopped")
	return nil
}

// GetLogger returns the logger instance
func (s *Service) GetLogger() *logger.Logger {
	return s.logger
}

// GetMetrics returns the metrics instance
func (s *Service) GetMetrics() *Metrics {
	return s.metrics
}

// GetSystemHealth returns the system health instance
func (s *Service) GetSystemHealth() *health.SystemHealth {
	return s.systemHealth
}

// LogInfo logs an info message
func (s *Service) LogInfo(format string, args ...interface{}) {
	s.logger.Info(format, args...)
}

// LogError logs an error message
func (s *Service) LogError(format string, args ...interface{}) {
	s.logger.Error(format, args...)
}

// LogDebug logs a debug message
func (s *Service) LogDebug(format string, args ...interface{}) {
	s.logger.Debug(format, args...)
}

// LogWarn logs a warning message
func (s *Service) LogWarn(format string, args ...interface{}) {
	s.logger.Warn(format, args...)
}

// GetMetricsEndpoint returns the metrics endpoint URL
func (s *Service) GetMetricsEndpoint() string {
	return fmt.Sprintf("http://localhost:%d%s", s.config.MetricsPort, s.config.MetricsPath)
}

// GetHealthEndpoint returns the health endpoint URL
func (s *Service) GetHealthEndpoint() string {
	return fmt.Sprintf("http://localhost:%d%s", s.config.HealthPort, s.config.HealthPath)
}

// GetPrometheusEndpoint returns the Prometheus endpoint URL
func (s *Service) GetPrometheusEndpoint() string {
	if !s.config.EnablePrometheus {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d%s", s.config.MetricsPort, s.config.PrometheusPath)
}
