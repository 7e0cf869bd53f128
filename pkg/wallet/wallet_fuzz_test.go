//go:build go1.18

package wallet

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/gochain/gochain/pkg/crypto"
)

// FuzzAddressValidation checks that DecodeAddress never panics and that
// anything it accepts re-encodes to the same address.
func FuzzAddressValidation(f *testing.F) {
	f.Add("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	key, err := crypto.GenerateKey()
	if err == nil {
		f.Add(crypto.Address(key.Public()))
	}

	f.Fuzz(func(t *testing.T, address string) {
		if len(address) > 1000 {
			t.Skip("address too long")
		}
		pubKeyHash, err := crypto.DecodeAddress(address)
		if err != nil {
			return
		}
		if len(pubKeyHash) != 20 {
			t.Errorf("decoded address has unexpected hash length: %d", len(pubKeyHash))
		}
		if crypto.EncodeAddress(pubKeyHash) != address {
			t.Errorf("address encode/decode round trip failed for %q", address)
		}
	})
}

// FuzzPrivateKeyImport checks that ImportPrivateKey never panics and that
// anything it accepts round-trips through ExportPrivateKey.
func FuzzPrivateKeyImport(f *testing.F) {
	key, err := crypto.GenerateKey()
	if err == nil {
		f.Add(hexString(key.Bytes()))
	}
	f.Add("not-hex-at-all")

	f.Fuzz(func(t *testing.T, privateKeyHex string) {
		if len(privateKeyHex) > 1000 {
			t.Skip("private key too long")
		}
		w := New(Config{KeystorePath: filepath.Join(t.TempDir(), "wallet.dat")})
		account, err := w.ImportPrivateKey(privateKeyHex)
		if err != nil {
			return
		}
		if account == nil || account.Address == "" {
			t.Errorf("imported account is invalid")
			return
		}
		exported, err := w.ExportPrivateKey(account.Address)
		if err != nil {
			t.Errorf("failed to export imported key: %v", err)
			return
		}
		if !strings.EqualFold(exported, privateKeyHex) {
			t.Errorf("private key export mismatch: %s != %s", exported, privateKeyHex)
		}
	})
}

// FuzzKeystoreEncryptionRoundTrip checks that encrypt/decrypt round-trip
// for arbitrary plaintext and passphrases.
func FuzzKeystoreEncryptionRoundTrip(f *testing.F) {
	f.Add([]byte("test data"), "a passphrase")
	f.Add([]byte{}, "")

	f.Fuzz(func(t *testing.T, data []byte, passphrase string) {
		if len(data) > 1<<20 {
			t.Skip("data too large")
		}
		ciphertext, err := encrypt(data, passphrase)
		if err != nil {
			t.Errorf("encrypt failed: %v", err)
			return
		}
		if len(data) > 0 && string(ciphertext) == string(data) {
			t.Errorf("encrypted data must differ from plaintext")
		}
		plaintext, err := decrypt(ciphertext, passphrase)
		if err != nil {
			t.Errorf("decrypt of freshly-encrypted data failed: %v", err)
			return
		}
		if string(plaintext) != string(data) {
			t.Errorf("decrypted data does not match original")
		}
	})
}

// FuzzDecryptRejectsGarbage checks decrypt never panics on arbitrary bytes.
func FuzzDecryptRejectsGarbage(f *testing.F) {
	f.Add([]byte{1, 2, 3})
	f.Add(make([]byte, 64))

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 1<<20 {
			t.Skip("data too large")
		}
		_, _ = decrypt(data, "whatever")
	})
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0x0f]
	}
	return string(out)
}
