//go:build go1.18

package block

import "testing"

// FuzzDecodeBlock feeds arbitrary bytes to DecodeBlock: it must never panic,
// and re-encoding anything it does accept must be deterministic.
func FuzzDecodeBlock(f *testing.F) {
	f.Add(Genesis().Encode())

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 1<<20 {
			t.Skip("input too large")
		}
		b, err := DecodeBlock(data)
		if err != nil {
			return
		}
		if !equalBytes(b.Encode(), data) {
			// Re-encoding need not reproduce the exact fuzzed bytes (trailing
			// garbage the decoder ignored), but it must at least be stable.
			second := b.Encode()
			if !equalBytes(b.Encode(), second) {
				t.Errorf("re-encoding a decoded block is not deterministic")
			}
		}
	})
}

// FuzzDecodeBlockHeader feeds arbitrary bytes to DecodeBlockHeader.
func FuzzDecodeBlockHeader(f *testing.F) {
	f.Add(Genesis().Header.Encode())

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 1<<16 {
			t.Skip("input too large")
		}
		h, err := DecodeBlockHeader(data)
		if err != nil {
			return
		}
		if _, err := h.Hash(); err != nil {
			t.Errorf("decoded header failed to hash: %v", err)
		}
	})
}

// FuzzDecodeTransaction feeds arbitrary bytes to DecodeTransaction.
func FuzzDecodeTransaction(f *testing.F) {
	tx := Transaction{Kind: KindCoinbase, Outputs: []TxOutput{{Amount: 1, Recipient: "a"}}}
	f.Add(tx.Encode())

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 1<<20 {
			t.Skip("input too large")
		}
		decoded, err := DecodeTransaction(data)
		if err != nil {
			return
		}
		id1 := decoded.TxID()
		id2 := decoded.TxID()
		if id1 != id2 {
			t.Errorf("TxID is not deterministic for decoded transaction")
		}
	})
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
