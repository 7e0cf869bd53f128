package block

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMultiInputMultiOutputTransaction exercises a transaction spending two
// prior outputs and paying three recipients.
func TestMultiInputMultiOutputTransaction(t *testing.T) {
	tx := Transaction{
		Kind: KindTransfer,
		Inputs: []TxInput{
			{PrevTxID: TxID{0x01}, PrevIndex: 0, Signature: []byte("sig1"), PubKey: []byte("pub1")},
			{PrevTxID: TxID{0x02}, PrevIndex: 1, Signature: []byte("sig2"), PubKey: []byte("pub2")},
		},
		Outputs: []TxOutput{
			{Amount: 1000, Recipient: "addr1"},
			{Amount: 500, Recipient: "addr2"},
			{Amount: 250, Recipient: "addr3"},
		},
		Timestamp: 1234,
	}

	assert.Equal(t, 2, len(tx.Inputs))
	assert.Equal(t, 3, len(tx.Outputs))
	assert.Equal(t, uint64(1750), tx.TotalOutput())

	id1 := tx.TxID()
	id2 := tx.TxID()
	assert.Equal(t, id1, id2, "TxID must be deterministic")
}

func TestTransactionWithMaximumAmount(t *testing.T) {
	maxValue := ^uint64(0)
	tx := Transaction{
		Kind:    KindTransfer,
		Inputs:  []TxInput{{PrevTxID: TxID{0x09}, PrevIndex: 0}},
		Outputs: []TxOutput{{Amount: maxValue, Recipient: "addr"}},
	}
	assert.Equal(t, maxValue, tx.Outputs[0].Amount)
	assert.Equal(t, 32, len(tx.TxID()))
}

func TestTransactionWithEmptySignatureFields(t *testing.T) {
	// Unsigned inputs (e.g. the signing pre-image) are legal at the encoding
	// layer — signature presence is a validation concern, not an encoding one.
	tx := Transaction{
		Kind:    KindTransfer,
		Inputs:  []TxInput{{PrevTxID: TxID{0x01}, PrevIndex: 0}},
		Outputs: []TxOutput{{Amount: 10, Recipient: "addr"}},
	}
	preimage := tx.SigningPreimage()
	require.NotEmpty(t, preimage)

	encoded := tx.Encode()
	decoded, err := DecodeTransaction(encoded)
	require.NoError(t, err)
	assert.Equal(t, tx.TxID(), decoded.TxID())
}

// TestSigningPreimageBlanksCredentials checks that the signing pre-image is
// identical regardless of what signature/pubkey bytes an input carries, so a
// signature never has to cover itself.
func TestSigningPreimageBlanksCredentials(t *testing.T) {
	base := Transaction{
		Kind:    KindTransfer,
		Inputs:  []TxInput{{PrevTxID: TxID{0x05}, PrevIndex: 2}},
		Outputs: []TxOutput{{Amount: 99, Recipient: "x"}},
	}
	signed := base
	signed.Inputs = []TxInput{{PrevTxID: TxID{0x05}, PrevIndex: 2, Signature: []byte("s"), PubKey: []byte("p")}}

	assert.Equal(t, base.SigningPreimage(), signed.SigningPreimage())
	assert.NotEqual(t, base.Encode(), signed.Encode(), "full encodings differ once credentials are attached")
}

func TestTransactionPerformanceWithManyInputsOutputs(t *testing.T) {
	numInputs, numOutputs := 100, 50

	inputs := make([]TxInput, numInputs)
	for i := 0; i < numInputs; i++ {
		inputs[i] = TxInput{
			PrevTxID:  TxID{byte(i)},
			PrevIndex: uint32(i),
			Signature: []byte(fmt.Sprintf("sig_%d", i)),
		}
	}
	outputs := make([]TxOutput, numOutputs)
	for i := 0; i < numOutputs; i++ {
		outputs[i] = TxOutput{Amount: uint64(1000 + i), Recipient: fmt.Sprintf("addr_%d", i)}
	}

	tx := Transaction{Kind: KindTransfer, Inputs: inputs, Outputs: outputs}
	assert.Equal(t, numInputs, len(tx.Inputs))
	assert.Equal(t, numOutputs, len(tx.Outputs))
	assert.Equal(t, 32, len(tx.TxID()))
}

func TestTransactionHashUniquenessAcrossManyTransactions(t *testing.T) {
	seen := make(map[TxID]bool)
	const n = 500
	for i := 0; i < n; i++ {
		tx := Transaction{
			Kind:    KindTransfer,
			Inputs:  []TxInput{{PrevTxID: TxID{byte(i), byte(i >> 8)}, PrevIndex: uint32(i)}},
			Outputs: []TxOutput{{Amount: uint64(1000 + i), Recipient: fmt.Sprintf("addr_%d", i)}},
		}
		id := tx.TxID()
		require.False(t, seen[id], "collision at iteration %d", i)
		seen[id] = true
	}
	assert.Equal(t, n, len(seen))
}

func TestTransactionHashChangesWhenTampered(t *testing.T) {
	tx := Transaction{
		Kind:    KindTransfer,
		Inputs:  []TxInput{{PrevTxID: TxID{0x11}, PrevIndex: 0}},
		Outputs: []TxOutput{{Amount: 1000, Recipient: "addr"}},
	}
	original := tx.TxID()

	tx.Outputs[0].Amount = 999
	tampered := tx.TxID()

	assert.NotEqual(t, original, tampered)
}

func TestTransactionSizeGrowsWithInputsAndOutputs(t *testing.T) {
	small := Transaction{Kind: KindTransfer, Outputs: []TxOutput{{Amount: 1, Recipient: "a"}}}
	big := Transaction{
		Kind: KindTransfer,
		Inputs: []TxInput{
			{PrevTxID: TxID{0x01}, PrevIndex: 0, Signature: []byte("sig"), PubKey: []byte("pub")},
		},
		Outputs: []TxOutput{{Amount: 1, Recipient: "a"}, {Amount: 2, Recipient: "b"}},
	}
	assert.Less(t, small.Size(), big.Size())
}
