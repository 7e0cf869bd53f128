// Package crypto collects the primitives the rest of the chain builds on:
// hashing, secp256k1 signing, Base58Check addressing and the memory-hard
// proof-of-work hash. Nothing here touches chain state.
package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // RIPEMD-160 is required by the address format, not a new design choice
	"golang.org/x/crypto/scrypt"
)

// HashSize is the width in bytes of every hash used on-chain.
const HashSize = 32

// Hash256 is a single SHA-256 digest.
func Hash256(data []byte) [HashSize]byte {
	return sha256.Sum256(data)
}

// DoubleHash256 is SHA-256(SHA-256(data)), used for txids, merkle nodes and
// the P2P payload checksum.
func DoubleHash256(data []byte) [HashSize]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// Hash160 is RIPEMD-160(SHA-256(data)), used to derive the payload of an
// address from a public key.
func Hash160(data []byte) []byte {
	sh := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sh[:])
	return r.Sum(nil)
}

// PoW-hash parameters: scrypt with fixed, protocol-wide parameters so that
// mining cost is dominated by memory bandwidth rather than raw ALU speed.
const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = HashSize
)

// PoWHash computes the memory-hard proof-of-work hash of a block header's
// canonical serialization. The salt is the data itself: scrypt requires a
// salt parameter, and using the header bytes as both password and salt
// keeps the function a pure, deterministic hash of its input (no separate
// secret to manage or persist).
func PoWHash(headerBytes []byte) ([HashSize]byte, error) {
	out, err := scrypt.Key(headerBytes, headerBytes, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		var zero [HashSize]byte
		return zero, err
	}
	var result [HashSize]byte
	copy(result[:], out)
	return result, nil
}
