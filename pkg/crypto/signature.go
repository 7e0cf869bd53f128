package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Signature is a DER-encoded, low-S canonicalized secp256k1 ECDSA signature.
type Signature struct {
	R, S *big.Int
}

// Sign produces a low-S signature over digest. The nonce is drawn from
// crypto/rand, so repeated signatures of the same digest differ.
func Sign(priv *PrivateKey, digest []byte) (*Signature, error) {
	r, s, err := ecdsa.Sign(rand.Reader, priv.key.ToECDSA(), digest)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	r, s = canonicalize(r, s)
	return &Signature{R: r, S: s}, nil
}

// Verify checks sig against digest under pub, rejecting any signature that
// is not in canonical low-S form.
func Verify(pub *PublicKey, digest []byte, sig *Signature) error {
	if err := verifyCanonical(sig.R, sig.S); err != nil {
		return err
	}
	if !ecdsa.Verify(pub.ToECDSA(), digest, sig.R, sig.S) {
		return errors.New("signature verification failed")
	}
	return nil
}

// Encode renders the signature as ASN.1 DER.
func (s *Signature) Encode() ([]byte, error) {
	der := struct{ R, S *big.Int }{s.R, s.S}
	return asn1.Marshal(der)
}

// DecodeSignature parses an ASN.1 DER encoded signature.
func DecodeSignature(b []byte) (*Signature, error) {
	var der struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(b, &der); err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return &Signature{R: der.R, S: der.S}, nil
}

// canonicalize enforces low-S: if s > N/2, replace it with N - s.
func canonicalize(r, s *big.Int) (*big.Int, *big.Int) {
	n := btcec.S256().N
	half := new(big.Int).Rsh(n, 1)
	if s.Cmp(half) > 0 {
		s = new(big.Int).Sub(n, s)
	}
	return r, s
}

func verifyCanonical(r, s *big.Int) error {
	n := btcec.S256().N
	if r.Sign() <= 0 || r.Cmp(n) >= 0 {
		return errors.New("signature r out of range")
	}
	if s.Sign() <= 0 || s.Cmp(n) >= 0 {
		return errors.New("signature s out of range")
	}
	half := new(big.Int).Rsh(n, 1)
	if s.Cmp(half) > 0 {
		return errors.New("signature s not canonical (high-S)")
	}
	return nil
}
