package block

import (
	"github.com/gochain/gochain/pkg/crypto"
)

// SignatureHash is the digest every input's signature is computed over: the
// double-SHA-256 of the signing pre-image (signatures/pubkeys blanked).
func (tx *Transaction) SignatureHash() [32]byte {
	return crypto.DoubleHash256(tx.SigningPreimage())
}

// TxID is the double-SHA-256 of the fully-signed transaction, used to index
// it in the UTXO set and to reference it from later inputs.
func (tx *Transaction) TxID() TxID {
	return TxID(crypto.DoubleHash256(tx.Encode()))
}

// Hash is the block's identity: the memory-hard proof-of-work hash of the
// header's canonical encoding.
func (b *Block) Hash() (Hash, error) {
	return b.Header.Hash()
}

// Hash computes the PoW hash of a header on its own, without requiring the
// rest of the block (used by mining and by header-only sync).
func (h *BlockHeader) Hash() (Hash, error) {
	digest, err := crypto.PoWHash(h.Encode())
	if err != nil {
		return Hash{}, err
	}
	return Hash(digest), nil
}
