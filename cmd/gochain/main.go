// Command gochain runs a full node: chain storage, mempool, optional
// miner, libp2p peer sync, the read-only JSON query surface, and
// monitoring/health endpoints. Subcommands also let an operator inspect
// genesis, manage a local wallet, and query a running node's balance and
// certificate state. Grounded on the teacher's cmd/gochain/main.go, which
// wired cobra + viper the same way over its own (now-superseded) package
// set.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gochain/gochain/pkg/api"
	"github.com/gochain/gochain/pkg/chain"
	"github.com/gochain/gochain/pkg/logger"
	"github.com/gochain/gochain/pkg/mempool"
	"github.com/gochain/gochain/pkg/miner"
	"github.com/gochain/gochain/pkg/monitoring"
	"github.com/gochain/gochain/pkg/p2p"
	"github.com/gochain/gochain/pkg/storage"
	"github.com/gochain/gochain/pkg/wallet"
)

var (
	configFile  string
	dataDir     string
	port        int
	mining      bool
	networkName string
	walletFile  string
	passphrase  string
	apiAddr     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gochain",
		Short: "gochain - a proof-of-work carbon-offset ledger",
		Long: `gochain runs a full node: proof-of-work consensus, libp2p peer sync,
a transaction mempool, an optional miner, and a read-only JSON query surface.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "chain data directory (overrides config)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "p2p listen port (0 for random)")
	rootCmd.PersistentFlags().BoolVar(&mining, "mining", false, "enable mining")
	rootCmd.PersistentFlags().StringVar(&networkName, "network", "mainnet", "network name (mainnet, testnet, devnet)")
	rootCmd.PersistentFlags().StringVar(&walletFile, "wallet-file", "wallet.dat", "path to the wallet keystore file")
	rootCmd.PersistentFlags().StringVar(&passphrase, "passphrase", "", "passphrase protecting the wallet keystore")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api-addr", "http://127.0.0.1:8090", "address of a running node's query surface, for query subcommands")

	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(genesisCmd())
	rootCmd.AddCommand(walletCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(certificateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if d := viper.GetString("storage.data_dir"); d != "" {
		return d
	}
	return "./data"
}

func setupLogger() *logger.Logger {
	level := logger.INFO
	switch strings.ToLower(viper.GetString("logging.level")) {
	case "debug":
		level = logger.DEBUG
	case "warn":
		level = logger.WARN
	case "error":
		level = logger.ERROR
	}
	return logger.NewLogger(&logger.Config{
		Level:   level,
		Prefix:  "gochain",
		Output:  os.Stdout,
		UseJSON: strings.ToLower(viper.GetString("logging.format")) == "json",
		LogFile: viper.GetString("logging.log_file"),
	})
}

func createMonitoringConfig() *monitoring.Config {
	cfg := monitoring.DefaultConfig()
	if p := viper.GetInt("monitoring.metrics_port"); p != 0 {
		cfg.MetricsPort = p
	}
	if p := viper.GetInt("monitoring.health_port"); p != 0 {
		cfg.HealthPort = p
	}
	if n := viper.GetInt("monitoring.min_peers"); n != 0 {
		cfg.MinPeers = n
	}
	if b := viper.GetInt("monitoring.mempool_byte_budget"); b != 0 {
		cfg.MempoolByteBudget = b
	}
	cfg.EnablePrometheus = viper.GetBool("monitoring.prometheus_enabled")
	return cfg
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gochain node",
		RunE:  runNode,
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger()
	log.Info("starting gochain node (network=%s port=%d mining=%t)", networkName, port, mining)

	store, err := storage.Open(storage.Config{DataDir: resolveDataDir()})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	c, err := chain.NewFromStorage(store)
	if err != nil {
		return fmt.Errorf("failed to load chain: %w", err)
	}

	pool := mempool.New(c.UTXOSet(), c.Certificates(), mempool.DefaultConfig())

	hostCfg := p2p.DefaultHostConfig()
	hostCfg.ListenPort = port
	hostCfg.BootstrapPeers = viper.GetStringSlice("p2p.bootstrap_peers")

	node, err := p2p.New(hostCfg, c, pool, log)
	if err != nil {
		return fmt.Errorf("failed to start p2p node: %w", err)
	}
	node.Start()
	defer node.Close()
	log.Info("p2p node listening on %v", node.Addrs())

	w := wallet.New(wallet.Config{KeystorePath: walletFile, Passphrase: passphrase})
	if err := w.Load(); err != nil {
		log.Warn("no existing wallet loaded from %s: %v", walletFile, err)
	}

	var mnr *miner.Miner
	if mining {
		minerCfg := miner.DefaultConfig()
		minerCfg.Enabled = true
		if accounts := w.Accounts(); len(accounts) > 0 {
			minerCfg.CoinbaseAddress = accounts[0].Address
		} else {
			account, err := w.CreateAccount()
			if err != nil {
				return fmt.Errorf("failed to create coinbase account: %w", err)
			}
			minerCfg.CoinbaseAddress = account.Address
			if err := w.Save(); err != nil {
				log.Warn("failed to persist new coinbase account: %v", err)
			}
		}
		mnr = miner.New(c, pool, minerCfg)
		if err := mnr.Start(); err != nil {
			return fmt.Errorf("failed to start miner: %w", err)
		}
		defer mnr.Stop()
		log.Info("mining enabled, coinbase address %s", minerCfg.CoinbaseAddress)
	}

	var monitoringService *monitoring.Service
	if viper.GetBool("monitoring.enabled") {
		monitoringService = monitoring.NewService(createMonitoringConfig(), c, pool, node)
		if err := monitoringService.Start(); err != nil {
			log.Error("failed to start monitoring service: %v", err)
		} else {
			log.Info("metrics endpoint: %s", monitoringService.GetMetricsEndpoint())
			log.Info("health endpoint: %s", monitoringService.GetHealthEndpoint())
		}
		defer monitoringService.Stop()
	}

	var apiServer *api.Server
	if viper.GetBool("api.enabled") {
		apiPort := viper.GetInt("api.port")
		if apiPort == 0 {
			apiPort = 8090
		}
		apiServer = api.NewServer(&api.ServerConfig{
			Port:    apiPort,
			Chain:   c,
			Mempool: pool,
			Network: node,
			Wallet:  w,
			Logger:  log,
		})
		go func() {
			if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
				log.Error("api server error: %v", err)
			}
		}()
		log.Info("api server started on port %d", apiPort)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, height := c.Tip()
				log.Info("status: height=%d peers=%d mempool=%d", height, node.PeerCount(), pool.Info().Count)
				if monitoringService != nil {
					monitoringService.UpdateMetrics()
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down gochain node...")
	cancel()
	return nil
}

func genesisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genesis",
		Short: "Inspect the genesis block",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			store, err := storage.Open(storage.Config{DataDir: resolveDataDir()})
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer store.Close()

			c, err := chain.NewFromStorage(store)
			if err != nil {
				return fmt.Errorf("failed to load chain: %w", err)
			}

			b, ok := c.GetBlockByHeight(0)
			if !ok {
				return fmt.Errorf("no genesis block found")
			}
			h, err := b.Hash()
			if err != nil {
				return fmt.Errorf("failed to hash genesis block: %w", err)
			}
			fmt.Printf("Genesis hash: %s\n", h.String())
			fmt.Printf("Timestamp: %s\n", time.Unix(b.Header.Timestamp, 0).UTC().Format(time.RFC3339))
			fmt.Printf("Difficulty: %d\n", b.Header.Difficulty)
			fmt.Printf("Transactions: %d\n", len(b.Transactions))
			return nil
		},
	}
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Create or inspect the local wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := wallet.New(wallet.Config{KeystorePath: walletFile, Passphrase: passphrase})
			if err := w.Load(); err != nil {
				account, err := w.CreateAccount()
				if err != nil {
					return fmt.Errorf("failed to create account: %w", err)
				}
				if err := w.Save(); err != nil {
					return fmt.Errorf("failed to save wallet: %w", err)
				}
				fmt.Printf("Created new wallet at %s\n", walletFile)
				fmt.Printf("Address: %s\n", account.Address)
				fmt.Printf("Public key: %x\n", account.PublicKey())
				return nil
			}
			fmt.Printf("Loaded wallet from %s\n", walletFile)
			for _, account := range w.Accounts() {
				fmt.Printf("Address: %s\n", account.Address)
			}
			return nil
		},
	}
	return cmd
}

func balanceCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Query an address's balance from a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body map[string]interface{}
			if err := fetchJSON(apiAddr+"/api/v1/balance/"+url.PathEscape(address), &body); err != nil {
				return err
			}
			fmt.Printf("Address: %s\n", body["address"])
			fmt.Printf("Total: %v\n", body["total"])
			fmt.Printf("Certified: %v\n", body["certified"])
			fmt.Printf("Compensated: %v\n", body["compensated"])
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "account address")
	cmd.MarkFlagRequired("address")
	return cmd
}

func certificateCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "certificate",
		Short: "Look up a certificate from a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body map[string]interface{}
			if err := fetchJSON(apiAddr+"/api/v1/certificates/"+url.PathEscape(id), &body); err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(body, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "certificate id")
	cmd.MarkFlagRequired("id")
	return cmd
}

func fetchJSON(endpoint string, v interface{}) error {
	resp, err := http.Get(endpoint)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(data))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
