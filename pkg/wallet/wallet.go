// Package wallet manages local signing keys and builds/signs spend
// transactions on top of pkg/crypto and pkg/utxo. It keeps the teacher's
// encrypted-keystore-file shape (salt + nonce + ciphertext, AES-GCM) but
// derives the encryption key with a real PBKDF2 implementation
// (golang.org/x/crypto/pbkdf2) instead of a hand-rolled HMAC loop, and
// signs/addresses through pkg/crypto rather than re-deriving secp256k1 and
// Base58Check logic locally.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/chainerr"
	"github.com/gochain/gochain/pkg/crypto"
	"github.com/gochain/gochain/pkg/utxo"
)

const (
	pbkdf2Iterations = 100_000
	saltSize         = 32
)

// Account is a single managed keypair and its derived address.
type Account struct {
	Address string
	key     *crypto.PrivateKey
}

// PublicKey returns the account's uncompressed public key bytes.
func (a *Account) PublicKey() []byte { return a.key.Public().Bytes() }

// Config configures a Wallet's on-disk keystore.
type Config struct {
	KeystorePath string
	Passphrase   string
}

// DefaultConfig matches the teacher's default wallet file name.
func DefaultConfig() Config {
	return Config{KeystorePath: "wallet.dat"}
}

// Wallet holds a set of accounts and can persist them to an encrypted
// keystore file.
type Wallet struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	config   Config
}

// New constructs an empty wallet. Call Load to populate it from an
// existing keystore file, or CreateAccount to start a fresh one.
func New(config Config) *Wallet {
	if config.KeystorePath == "" {
		config = DefaultConfig()
	}
	return &Wallet{
		accounts: make(map[string]*Account),
		config:   config,
	}
}

// CreateAccount generates a new secp256k1 keypair and adds it to the wallet.
func (w *Wallet) CreateAccount() (*Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeCryptoError, "failed to generate key", err)
	}
	account := &Account{Address: crypto.Address(key.Public()), key: key}

	w.mu.Lock()
	w.accounts[account.Address] = account
	w.mu.Unlock()
	return account, nil
}

// ImportPrivateKey adds a hex-encoded private key to the wallet, returning
// the existing account unchanged if it is already present.
func (w *Wallet) ImportPrivateKey(privateKeyHex string) (*Account, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeCryptoError, "invalid private key hex", err)
	}
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeCryptoError, "invalid private key", err)
	}
	address := crypto.Address(key.Public())

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.accounts[address]; ok {
		return existing, nil
	}
	account := &Account{Address: address, key: key}
	w.accounts[address] = account
	return account, nil
}

// ExportPrivateKey returns an account's private key as a hex string.
func (w *Wallet) ExportPrivateKey(address string) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	account, ok := w.accounts[address]
	if !ok {
		return "", chainerr.New(chainerr.CodeAccountNotFound, fmt.Sprintf("account not found: %s", address))
	}
	return hex.EncodeToString(account.key.Bytes()), nil
}

// GetAccount returns the account at address, if managed by this wallet.
func (w *Wallet) GetAccount(address string) (*Account, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	account, ok := w.accounts[address]
	return account, ok
}

// Accounts returns every account currently managed by the wallet.
func (w *Wallet) Accounts() []*Account {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Account, 0, len(w.accounts))
	for _, a := range w.accounts {
		out = append(out, a)
	}
	return out
}

// CreateTransaction selects UTXOs owned by fromAddress (via a greedy pass
// over ListByAddress, in the unspecified order it returns) covering amount+fee,
// builds a transfer paying toAddress with any leftover change returned to
// fromAddress, and signs it.
func (w *Wallet) CreateTransaction(utxos *utxo.Set, fromAddress, toAddress string, amount, fee uint64) (*block.Transaction, error) {
	account, ok := w.GetAccount(fromAddress)
	if !ok {
		return nil, chainerr.New(chainerr.CodeAccountNotFound, fmt.Sprintf("account not found: %s", fromAddress))
	}
	if !crypto.IsValidAddress(toAddress) {
		return nil, chainerr.New(chainerr.CodeInvalidAddress, "invalid recipient address")
	}

	available := utxos.ListByAddress(fromAddress)
	needed := amount + fee

	var selected []utxo.KeyedOutput
	var selectedTotal uint64
	for _, ko := range available {
		if ko.Output.State != block.StatePlain {
			continue // certified/compensated coins move through their own transaction kinds
		}
		if selectedTotal >= needed {
			break
		}
		selected = append(selected, ko)
		selectedTotal += ko.Output.Amount
	}
	if selectedTotal < needed {
		return nil, chainerr.New(chainerr.CodeInsufficientFunds, fmt.Sprintf("insufficient funds: need %d, have %d", needed, selectedTotal))
	}

	inputs := make([]block.TxInput, len(selected))
	for i, ko := range selected {
		inputs[i] = block.TxInput{PrevTxID: ko.Key.TxID, PrevIndex: ko.Key.Index}
	}

	outputs := []block.TxOutput{{Amount: amount, Recipient: toAddress, State: block.StatePlain}}
	if change := selectedTotal - needed; change > 0 {
		outputs = append(outputs, block.TxOutput{Amount: change, Recipient: fromAddress, State: block.StatePlain})
	}

	tx := &block.Transaction{
		Kind:    block.KindTransfer,
		Inputs:  inputs,
		Outputs: outputs,
	}

	if err := w.signInputs(tx, account); err != nil {
		return nil, err
	}
	return tx, nil
}

// SignTransaction attaches fromAddress's signature to every input of tx,
// assuming all inputs are owned by that single account.
func (w *Wallet) SignTransaction(tx *block.Transaction, fromAddress string) error {
	account, ok := w.GetAccount(fromAddress)
	if !ok {
		return chainerr.New(chainerr.CodeAccountNotFound, fmt.Sprintf("account not found: %s", fromAddress))
	}
	return w.signInputs(tx, account)
}

func (w *Wallet) signInputs(tx *block.Transaction, account *Account) error {
	digest := tx.SignatureHash()
	sig, err := crypto.Sign(account.key, digest[:])
	if err != nil {
		return chainerr.Wrap(chainerr.CodeCryptoError, "failed to sign transaction", err)
	}
	encoded, err := sig.Encode()
	if err != nil {
		return chainerr.Wrap(chainerr.CodeCryptoError, "failed to encode signature", err)
	}
	pub := account.PublicKey()
	for i := range tx.Inputs {
		tx.Inputs[i].Signature = encoded
		tx.Inputs[i].PubKey = pub
	}
	return nil
}

// VerifyTransaction checks every input's signature against tx's signing
// digest and the output it claims to spend.
func VerifyTransaction(tx *block.Transaction) error {
	digest := tx.SignatureHash()
	for i, in := range tx.Inputs {
		pub, err := crypto.PublicKeyFromBytes(in.PubKey)
		if err != nil {
			return chainerr.Wrap(chainerr.CodeInvalidSignature, fmt.Sprintf("input %d: malformed public key", i), err)
		}
		sig, err := crypto.DecodeSignature(in.Signature)
		if err != nil {
			return chainerr.Wrap(chainerr.CodeInvalidSignature, fmt.Sprintf("input %d: malformed signature", i), err)
		}
		if err := crypto.Verify(pub, digest[:], sig); err != nil {
			return chainerr.Wrap(chainerr.CodeInvalidSignature, fmt.Sprintf("input %d: signature verification failed", i), err)
		}
	}
	return nil
}

// keystoreFile is the JSON payload encrypted to disk: address -> hex private key.
type keystoreFile map[string]string

// Save encrypts and writes every managed account to the configured keystore path.
func (w *Wallet) Save() error {
	w.mu.RLock()
	data := make(keystoreFile, len(w.accounts))
	for addr, account := range w.accounts {
		data[addr] = hex.EncodeToString(account.key.Bytes())
	}
	w.mu.RUnlock()

	plaintext, err := json.Marshal(data)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeCryptoError, "failed to marshal keystore", err)
	}
	ciphertext, err := encrypt(plaintext, w.config.Passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(w.config.KeystorePath, ciphertext, 0600); err != nil {
		return chainerr.Wrap(chainerr.CodeStorageError, "failed to write keystore", err)
	}
	return nil
}

// Load decrypts and replaces the wallet's accounts from the configured
// keystore path.
func (w *Wallet) Load() error {
	ciphertext, err := os.ReadFile(w.config.KeystorePath)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeStorageError, "failed to read keystore", err)
	}
	plaintext, err := decrypt(ciphertext, w.config.Passphrase)
	if err != nil {
		return err
	}
	var data keystoreFile
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return chainerr.Wrap(chainerr.CodeCryptoError, "failed to unmarshal keystore", err)
	}

	accounts := make(map[string]*Account, len(data))
	for addr, keyHex := range data {
		raw, err := hex.DecodeString(keyHex)
		if err != nil {
			return chainerr.Wrap(chainerr.CodeCryptoError, "corrupt keystore entry", err)
		}
		key, err := crypto.PrivateKeyFromBytes(raw)
		if err != nil {
			return chainerr.Wrap(chainerr.CodeCryptoError, "corrupt keystore entry", err)
		}
		accounts[addr] = &Account{Address: addr, key: key}
	}

	w.mu.Lock()
	w.accounts = accounts
	w.mu.Unlock()
	return nil
}

// encrypt derives a key from passphrase with PBKDF2-HMAC-SHA256 and seals
// data with AES-256-GCM, returning salt(32) || nonce(12) || ciphertext.
func encrypt(data []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, chainerr.Wrap(chainerr.CodeCryptoError, "failed to generate salt", err)
	}
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeCryptoError, "failed to init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeCryptoError, "failed to init gcm", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, chainerr.Wrap(chainerr.CodeCryptoError, "failed to generate nonce", err)
	}
	sealed := gcm.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func decrypt(data []byte, passphrase string) ([]byte, error) {
	if len(data) < saltSize+12 {
		return nil, chainerr.New(chainerr.CodeCryptoError, "keystore ciphertext too short")
	}
	salt := data[:saltSize]
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeCryptoError, "failed to init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeCryptoError, "failed to init gcm", err)
	}
	nonceSize := gcm.NonceSize()
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeCryptoError, "failed to decrypt keystore (wrong passphrase?)", err)
	}
	return plaintext, nil
}
