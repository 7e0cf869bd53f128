package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(t *testing.T) {
	t.Helper()
	configFile = ""
	dataDir = ""
	port = 0
	mining = false
	networkName = "testnet"
	walletFile = filepath.Join(t.TempDir(), "wallet.dat")
	passphrase = "test"
	apiAddr = ""
	viper.Reset()
}

func TestLoadConfigWithNoFilePresentSucceeds(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	assert.NoError(t, loadConfig())
}

func TestResolveDataDirPrefersFlagOverViper(t *testing.T) {
	resetFlags(t)
	viper.Set("storage.data_dir", "/from/viper")
	assert.Equal(t, "/from/viper", resolveDataDir())

	dataDir = "/from/flag"
	assert.Equal(t, "/from/flag", resolveDataDir())
}

func TestResolveDataDirDefault(t *testing.T) {
	resetFlags(t)
	assert.Equal(t, "./data", resolveDataDir())
}

func TestSetupLoggerHonorsViperLevel(t *testing.T) {
	resetFlags(t)
	viper.Set("logging.level", "debug")
	log := setupLogger()
	require.NotNil(t, log)
	defer log.Close()
}

func TestCreateMonitoringConfigAppliesOverrides(t *testing.T) {
	resetFlags(t)
	viper.Set("monitoring.metrics_port", 19090)
	viper.Set("monitoring.health_port", 19091)
	viper.Set("monitoring.min_peers", 2)
	viper.Set("monitoring.mempool_byte_budget", 4096)
	viper.Set("monitoring.prometheus_enabled", true)

	cfg := createMonitoringConfig()
	assert.Equal(t, 19090, cfg.MetricsPort)
	assert.Equal(t, 19091, cfg.HealthPort)
	assert.Equal(t, 2, cfg.MinPeers)
	assert.Equal(t, 4096, cfg.MempoolByteBudget)
	assert.True(t, cfg.EnablePrometheus)
}

func TestRunNodeFailsGracefullyOnUnwritableStorage(t *testing.T) {
	resetFlags(t)
	dataDir = "/this/path/cannot/possibly/be/created/by/a/test"

	cmd := &cobra.Command{}
	err := runNode(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open storage")
}

func TestGenesisCmdPrintsSeededGenesisBlock(t *testing.T) {
	resetFlags(t)
	dataDir = t.TempDir()

	cmd := genesisCmd()
	cmd.SetArgs(nil)
	require.NoError(t, cmd.RunE(cmd, nil))
}

func TestWalletCmdCreatesAndReloadsAccount(t *testing.T) {
	resetFlags(t)

	cmd := walletCmd()
	require.NoError(t, cmd.RunE(cmd, nil))
	require.NoError(t, cmd.RunE(cmd, nil)) // second run loads the same keystore
}

func TestFetchJSONDecodesSuccessfulResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"address": "abc", "total": 42})
	}))
	defer server.Close()

	var body map[string]interface{}
	require.NoError(t, fetchJSON(server.URL, &body))
	assert.Equal(t, "abc", body["address"])
}

func TestFetchJSONReturnsErrorOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	var body map[string]interface{}
	err := fetchJSON(server.URL, &body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestBalanceCmdPrintsQueriedBalance(t *testing.T) {
	resetFlags(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"address": "alice", "total": 100, "certified": 0, "compensated": 0,
		})
	}))
	defer server.Close()
	apiAddr = server.URL

	cmd := balanceCmd()
	cmd.Flags().Set("address", "alice")
	require.NoError(t, cmd.RunE(cmd, nil))
}

func TestCertificateCmdPrintsQueriedCertificate(t *testing.T) {
	resetFlags(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"certificate_id": "cert-1"})
	}))
	defer server.Close()
	apiAddr = server.URL

	cmd := certificateCmd()
	cmd.Flags().Set("id", "cert-1")
	require.NoError(t, cmd.RunE(cmd, nil))
}
