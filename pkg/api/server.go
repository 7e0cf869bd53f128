// Package api exposes the node's read-only query surface over HTTP/JSON:
// tip, block and transaction lookups, balances, UTXOs, certificates,
// mempool/peer status, and transaction submission. Routes are dispatched
// from a plain net/http.ServeMux, matching the teacher's own choice to not
// pull in a router dependency for this surface.
package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/certificate"
	"github.com/gochain/gochain/pkg/chainerr"
	"github.com/gochain/gochain/pkg/logger"
	"github.com/gochain/gochain/pkg/mempool"
	"github.com/gochain/gochain/pkg/utxo"
	"github.com/gochain/gochain/pkg/wallet"
)

// ChainInterface is the read surface the API needs from the chain.
type ChainInterface interface {
	Tip() (block.Hash, uint64)
	HeaderByHeight(height uint64) (*block.BlockHeader, bool)
	GetBlock(h block.Hash) (*block.Block, bool)
	GetBlockByHeight(height uint64) (*block.Block, bool)
	UTXOSet() *utxo.Set
	Certificates() *certificate.Registry
}

// MempoolInterface is the surface the API needs from the mempool.
type MempoolInterface interface {
	Admit(tx *block.Transaction) error
	Info() mempool.Info
}

// NetworkInterface is the surface the API needs from the P2P node.
type NetworkInterface interface {
	PeerCount() int
	Addrs() []string
	BroadcastTx(tx *block.Transaction, from peer.ID)
}

// WalletInterface exposes local account lookups for the accounts route;
// nil disables it.
type WalletInterface interface {
	Accounts() []*wallet.Account
}

// Server serves the node's read-only JSON query surface.
type Server struct {
	mux     *http.ServeMux
	chain   ChainInterface
	mempool MempoolInterface
	network NetworkInterface
	wallet  WalletInterface
	log     *logger.Logger
	port    int
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Port    int
	Chain   ChainInterface
	Mempool MempoolInterface
	Network NetworkInterface
	Wallet  WalletInterface
	Logger  *logger.Logger
}

// NewServer creates a new API server.
func NewServer(config *ServerConfig) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		chain:   config.Chain,
		mempool: config.Mempool,
		network: config.Network,
		wallet:  config.Wallet,
		log:     config.Logger,
		port:    config.Port,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.healthHandler)

	s.mux.HandleFunc("/api/v1/tip", s.getTipHandler)
	s.mux.HandleFunc("/api/v1/blocks/", s.getBlockHandler)
	s.mux.HandleFunc("/api/v1/transactions/", s.transactionsHandler)
	s.mux.HandleFunc("/api/v1/balance/", s.getBalanceHandler)
	s.mux.HandleFunc("/api/v1/utxos/", s.listUTXOsHandler)
	s.mux.HandleFunc("/api/v1/certificates", s.listCertificatesHandler)
	s.mux.HandleFunc("/api/v1/certificates/", s.getCertificateHandler)
	s.mux.HandleFunc("/api/v1/mempool", s.mempoolInfoHandler)
	s.mux.HandleFunc("/api/v1/peers", s.peerInfoHandler)
	s.mux.HandleFunc("/api/v1/accounts", s.getAccountsHandler)
}

// Handler exposes the underlying mux so cmd/gochain can mount it alongside
// other HTTP surfaces, or so tests can drive it directly.
func (s *Server) Handler() http.Handler { return s.mux }

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := ":" + strconv.Itoa(s.port)
	if s.log != nil {
		s.log.Info("api server listening on %s", addr)
	}
	return http.ListenAndServe(addr, s.mux)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}

// statusForErr maps a chainerr.Code to an HTTP status; codes with no
// specific mapping default to 400, and an error that carries no chainerr
// code (CodeUnknown) maps to 500.
func statusForErr(err error) int {
	switch chainerr.CodeOf(err) {
	case chainerr.CodeUTXONotFound, chainerr.CodeAccountNotFound:
		return http.StatusNotFound
	case chainerr.CodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "gochain-api",
	})
}

// getTipHandler implements the get_tip operation.
func (s *Server) getTipHandler(w http.ResponseWriter, r *http.Request) {
	hash, height := s.chain.Tip()
	header, ok := s.chain.HeaderByHeight(height)
	resp := map[string]interface{}{
		"hash":   hash.String(),
		"height": height,
	}
	if ok {
		resp["difficulty"] = header.Difficulty
		resp["timestamp"] = time.Unix(header.Timestamp, 0).UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// getBlockHandler implements the get_block operation, addressed either by
// hex hash or by decimal height: /api/v1/blocks/<hash-or-height>.
func (s *Server) getBlockHandler(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/v1/blocks/")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing block identifier")
		return
	}

	var (
		b  *block.Block
		ok bool
	)
	if height, err := strconv.ParseUint(key, 10, 64); err == nil {
		b, ok = s.chain.GetBlockByHeight(height)
	} else {
		raw, decodeErr := hex.DecodeString(key)
		if decodeErr != nil || len(raw) != 32 {
			writeError(w, http.StatusBadRequest, "invalid block identifier")
			return
		}
		var h block.Hash
		copy(h[:], raw)
		b, ok = s.chain.GetBlock(h)
	}
	if !ok {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, blockView(b))
}

func blockView(b *block.Block) map[string]interface{} {
	h, _ := b.Hash()
	txs := make([]map[string]interface{}, 0, len(b.Transactions))
	for i := range b.Transactions {
		txs = append(txs, txView(&b.Transactions[i]))
	}
	return map[string]interface{}{
		"hash":         h.String(),
		"height":       b.Header.Height,
		"prev_hash":    b.Header.PrevBlockHash.String(),
		"merkle_root":  b.Header.MerkleRoot.String(),
		"timestamp":    time.Unix(b.Header.Timestamp, 0).UTC().Format(time.RFC3339),
		"difficulty":   b.Header.Difficulty,
		"nonce":        b.Header.Nonce,
		"tx_count":     len(b.Transactions),
		"size":         b.Size(),
		"transactions": txs,
	}
}

func txView(tx *block.Transaction) map[string]interface{} {
	id := tx.TxID()
	outputs := make([]map[string]interface{}, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		outputs = append(outputs, map[string]interface{}{
			"amount":    out.Amount,
			"recipient": out.Recipient,
			"state":     out.State.String(),
		})
	}
	return map[string]interface{}{
		"txid":    id.String(),
		"kind":    tx.Kind.String(),
		"inputs":  len(tx.Inputs),
		"outputs": outputs,
	}
}

// transactionsHandler implements get_transaction and submit_transaction
// over the same collection path.
func (s *Server) transactionsHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/")
	switch {
	case r.Method == http.MethodPost && path == "submit":
		s.submitTransactionHandler(w, r)
	case r.Method == http.MethodGet && path != "":
		s.getTransactionHandler(w, r, path)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// getTransactionHandler implements get_transaction, scanning blocks from
// the tip down since there is no dedicated transaction index.
func (s *Server) getTransactionHandler(w http.ResponseWriter, r *http.Request, txidHex string) {
	raw, err := hex.DecodeString(txidHex)
	if err != nil || len(raw) != 32 {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	var want block.TxID
	copy(want[:], raw)

	_, height := s.chain.Tip()
	for h := int64(height); h >= 0; h-- {
		b, ok := s.chain.GetBlockByHeight(uint64(h))
		if !ok {
			continue
		}
		for i := range b.Transactions {
			if b.Transactions[i].TxID() == want {
				resp := txView(&b.Transactions[i])
				resp["block_height"] = b.Header.Height
				writeJSON(w, http.StatusOK, resp)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "transaction not found")
}

// submitTransactionRequest is the wire shape accepted by submit_transaction:
// a transaction already built and signed by a wallet, hex-encoded via
// pkg/block's canonical encoding.
type submitTransactionRequest struct {
	RawTx string `json:"raw_tx"`
}

// submitTransactionHandler implements the submit_transaction operation: it
// admits the transaction to the mempool and, if a network is attached,
// relays it to peers.
func (s *Server) submitTransactionHandler(w http.ResponseWriter, r *http.Request) {
	if s.mempool == nil {
		writeError(w, http.StatusServiceUnavailable, "mempool not available")
		return
	}
	var req submitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	raw, err := hex.DecodeString(req.RawTx)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid raw_tx encoding")
		return
	}
	tx, err := block.DecodeTransaction(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed transaction")
		return
	}
	if err := s.mempool.Admit(tx); err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}
	if s.network != nil {
		s.network.BroadcastTx(tx, "")
	}
	id := tx.TxID()
	writeJSON(w, http.StatusOK, map[string]interface{}{"txid": id.String()})
}

// getBalanceHandler implements the get_balance operation:
// /api/v1/balance/<address>.
func (s *Server) getBalanceHandler(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimPrefix(r.URL.Path, "/api/v1/balance/")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}
	bal := s.chain.UTXOSet().Balance(address)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":     address,
		"total":       bal.Total,
		"certified":   bal.Certified,
		"compensated": bal.Compensated,
	})
}

// listUTXOsHandler implements the list_utxos operation:
// /api/v1/utxos/<address>.
func (s *Server) listUTXOsHandler(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimPrefix(r.URL.Path, "/api/v1/utxos/")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}
	owned := s.chain.UTXOSet().ListByAddress(address)
	out := make([]map[string]interface{}, 0, len(owned))
	for _, u := range owned {
		out = append(out, map[string]interface{}{
			"txid":      u.Key.TxID.String(),
			"index":     u.Key.Index,
			"amount":    u.Output.Amount,
			"state":     u.Output.State.String(),
			"recipient": u.Output.Recipient,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"utxos": out, "count": len(out)})
}

// getCertificateHandler implements the get_certificate operation:
// /api/v1/certificates/<id>.
func (s *Server) getCertificateHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/certificates/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing certificate id")
		return
	}
	rec, ok := s.chain.Certificates().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "certificate not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// listCertificatesHandler implements the list_certificates operation, with
// optional project_id/cert_type/standard/vintage_from/vintage_to filters.
func (s *Server) listCertificatesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := certificate.Filter{
		ProjectID: q.Get("project_id"),
		CertType:  q.Get("cert_type"),
		Standard:  q.Get("standard"),
	}
	if v, err := strconv.ParseUint(q.Get("vintage_from"), 10, 32); err == nil {
		filter.VintageFrom = uint32(v)
	}
	if v, err := strconv.ParseUint(q.Get("vintage_to"), 10, 32); err == nil {
		filter.VintageTo = uint32(v)
	}
	records := s.chain.Certificates().List(filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{"certificates": records, "count": len(records)})
}

// mempoolInfoHandler implements the mempool_info operation.
func (s *Server) mempoolInfoHandler(w http.ResponseWriter, r *http.Request) {
	if s.mempool == nil {
		writeError(w, http.StatusServiceUnavailable, "mempool not available")
		return
	}
	info := s.mempool.Info()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":       info.Count,
		"total_bytes": info.TotalBytes,
	})
}

// peerInfoHandler implements the peer_info operation.
func (s *Server) peerInfoHandler(w http.ResponseWriter, r *http.Request) {
	if s.network == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"peer_count": 0, "addrs": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peer_count": s.network.PeerCount(),
		"addrs":      s.network.Addrs(),
	})
}

// getAccountsHandler returns locally managed wallet addresses, an ambient
// convenience beyond the ten named query-surface operations.
func (s *Server) getAccountsHandler(w http.ResponseWriter, r *http.Request) {
	if s.wallet == nil {
		writeError(w, http.StatusServiceUnavailable, "wallet not available")
		return
	}
	accounts := s.wallet.Accounts()
	out := make([]map[string]interface{}, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, map[string]interface{}{
			"address":    a.Address,
			"public_key": hex.EncodeToString(a.PublicKey()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": out, "count": len(out)})
}
