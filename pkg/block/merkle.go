package block

import "github.com/gochain/gochain/pkg/crypto"

// MerkleRoot computes the Merkle root of the given leaf hashes (transaction
// txids, in block order). Internal nodes are
// SHA-256(SHA-256(left || right)); when a level has an odd count, the last
// node is duplicated before pairing, following the teacher's
// pkg/block/block.go buildMerkleTree shape but with the spec's required
// double-SHA-256 instead of a single SHA-256.
func MerkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}
	level := make([]Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined := make([]byte, 0, 64)
			combined = append(combined, level[i][:]...)
			combined = append(combined, level[i+1][:]...)
			next[i/2] = Hash(crypto.DoubleHash256(combined))
		}
		level = next
	}
	return level[0]
}

// MerkleRoot computes the block's Merkle root over its transactions' txids
// in order.
func (b *Block) MerkleRoot() Hash {
	leaves := make([]Hash, len(b.Transactions))
	for i := range b.Transactions {
		leaves[i] = Hash(b.Transactions[i].TxID())
	}
	return MerkleRoot(leaves)
}
