package block

import "github.com/gochain/gochain/pkg/params"

// GenesisBanner is the fixed banner string genesis's sole coinbase output
// carries, in lieu of paying any real address — genesis's subsidy is
// unspendable by construction (no known private key hashes to this
// address), so it contributes nothing to circulating supply.
const GenesisBanner = "gochain genesis: carbon offset commons, block 0"

// GenesisTimestamp is fixed so every implementation agrees on the genesis
// hash bit-exactly.
const GenesisTimestamp int64 = 1_700_000_000

// Genesis constructs the constant genesis block. No proof-of-work is
// required for it: nonce is 0 and its hash is accepted unconditionally by
// chain initialization.
func Genesis() *Block {
	tx := Transaction{
		Kind:    KindCoinbase,
		Inputs:  nil,
		Outputs: []TxOutput{{
			Amount:    params.InitialSubsidy,
			Recipient: GenesisBanner,
			State:     StatePlain,
		}},
		Timestamp: GenesisTimestamp,
	}
	b := &Block{
		Header: BlockHeader{
			Height:        0,
			PrevBlockHash: ZeroHash,
			Timestamp:     GenesisTimestamp,
			Difficulty:    params.GenesisDifficulty,
			Nonce:         0,
		},
		Transactions: []Transaction{tx},
	}
	b.Header.MerkleRoot = b.MerkleRoot()
	return b
}
