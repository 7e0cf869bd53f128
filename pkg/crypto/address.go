package crypto

import (
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/gochain/gochain/pkg/chainerr"
)

// AddressVersion is the single version byte this network uses; a distinct
// byte per network (mainnet/testnet/regtest) would be added here if this
// repository shipped more than one.
const AddressVersion byte = 0x00

const addressPayloadLen = 20 // Hash160 output size
const addressChecksumLen = 4
const addressTotalLen = 1 + addressPayloadLen + addressChecksumLen

// Address renders a public key as a Base58Check string:
// Base58Check(version || Hash160(pubkey)), checksum = first 4 bytes of
// DoubleHash256(version || payload).
func Address(pub *PublicKey) string {
	return EncodeAddress(pub.Hash160())
}

// EncodeAddress renders a raw 20-byte pubkey hash as a Base58Check address.
func EncodeAddress(pubKeyHash []byte) string {
	versioned := make([]byte, 0, addressTotalLen)
	versioned = append(versioned, AddressVersion)
	versioned = append(versioned, pubKeyHash...)
	checksum := DoubleHash256(versioned)
	versioned = append(versioned, checksum[:addressChecksumLen]...)
	return base58.Encode(versioned)
}

// DecodeAddress validates and decodes a Base58Check address, returning the
// 20-byte public key hash it encodes.
func DecodeAddress(address string) ([]byte, error) {
	data, err := base58.Decode(address)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.CodeInvalidAddress, "bad base58 alphabet", err)
	}
	if len(data) != addressTotalLen {
		return nil, chainerr.New(chainerr.CodeInvalidAddress, fmt.Sprintf("wrong length: %d", len(data)))
	}
	version := data[0]
	payload := data[1:21]
	checksum := data[21:25]
	if version != AddressVersion {
		return nil, chainerr.New(chainerr.CodeInvalidAddress, fmt.Sprintf("unsupported version byte: %d", version))
	}
	expected := DoubleHash256(data[:21])
	for i := 0; i < addressChecksumLen; i++ {
		if checksum[i] != expected[i] {
			return nil, chainerr.New(chainerr.CodeInvalidAddress, "checksum mismatch")
		}
	}
	out := make([]byte, addressPayloadLen)
	copy(out, payload)
	return out, nil
}

// IsValidAddress reports whether s decodes to a well-formed address.
func IsValidAddress(s string) bool {
	_, err := DecodeAddress(s)
	return err == nil
}

// BurnAddress is the unspendable sink every COMPENSATED output pays to. Its
// payload hash is never an actual public key hash (Hash160 of the fixed
// ASCII banner below), so no private key can ever spend from it.
var burnPayload = Hash160([]byte("GOCHAIN-CARBON-COMPENSATION-SINK"))

// BurnAddress returns the canonical unspendable address compensation burns
// value to.
func BurnAddress() string {
	return EncodeAddress(burnPayload)
}
