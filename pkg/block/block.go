package block

import (
	"encoding/hex"
	"fmt"
)

// Size returns the canonical wire size of the transaction in bytes.
func (tx *Transaction) Size() int {
	return len(tx.Encode())
}

// IsCoinbase reports whether tx is the synthetic, input-less
// reward/fee-collecting transaction a block opens with.
func (tx *Transaction) IsCoinbase() bool {
	return tx.Kind == KindCoinbase
}

// TotalOutput sums every output's amount. Callers must have already
// checked this cannot overflow (stateless validation enforces amounts in
// [0, MAX_SUPPLY]).
func (tx *Transaction) TotalOutput() uint64 {
	var total uint64
	for _, out := range tx.Outputs {
		total += out.Amount
	}
	return total
}

// String renders a short human-readable summary, used in logs.
func (tx *Transaction) String() string {
	id := tx.TxID()
	return fmt.Sprintf("Tx{kind=%s id=%s in=%d out=%d}", tx.Kind, hex.EncodeToString(id[:8]), len(tx.Inputs), len(tx.Outputs))
}

// Size returns the canonical wire size of the block in bytes.
func (b *Block) Size() int {
	return len(b.Encode())
}

// String renders a short human-readable summary, used in logs.
func (b *Block) String() string {
	h, _ := b.Hash()
	return fmt.Sprintf("Block{height=%d hash=%s txs=%d}", b.Header.Height, hex.EncodeToString(h[:8]), len(b.Transactions))
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (t TxID) String() string {
	return hex.EncodeToString(t[:])
}

// ZeroHash is the all-zero 32-byte hash genesis's PrevBlockHash carries.
var ZeroHash Hash
