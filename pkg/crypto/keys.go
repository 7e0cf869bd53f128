package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey wraps a secp256k1 public key.
type PublicKey struct {
	key *btcec.PublicKey
}

// GenerateKey creates a new random secp256k1 key pair.
func GenerateKey() (*PrivateKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: k}, nil
}

// PrivateKeyFromBytes reconstructs a private key from its 32-byte scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid private key length: %d", len(b))
	}
	d := new(big.Int).SetBytes(b)
	curve := btcec.S256()
	if d.Sign() <= 0 || d.Cmp(curve.N) >= 0 {
		return nil, fmt.Errorf("private key scalar out of range")
	}
	k, _ := btcec.PrivKeyFromBytes(b)
	return &PrivateKey{key: k}, nil
}

// Bytes returns the 32-byte big-endian scalar.
func (p *PrivateKey) Bytes() []byte {
	d := p.key.ToECDSA().D.Bytes()
	if len(d) == 32 {
		return d
	}
	padded := make([]byte, 32)
	copy(padded[32-len(d):], d)
	return padded
}

// Public returns the corresponding public key.
func (p *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: p.key.PubKey()}
}

// PublicKeyFromBytes parses an uncompressed or compressed secp256k1 public
// key, as produced by elliptic.Marshal/btcec.ParsePubKey.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	k, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &PublicKey{key: k}, nil
}

// Bytes returns the uncompressed (0x04 || X || Y) encoding of the key.
func (p *PublicKey) Bytes() []byte {
	curve := btcec.S256()
	return elliptic.Marshal(curve, p.key.X(), p.key.Y())
}

// ToECDSA exposes the standard-library type for interop where needed.
func (p *PublicKey) ToECDSA() *ecdsa.PublicKey {
	return p.key.ToECDSA()
}

// Hash160 returns RIPEMD-160(SHA-256(pubkey)), the address payload.
func (p *PublicKey) Hash160() []byte {
	return Hash160(p.Bytes())
}
