// Package validation implements stateless and stateful transaction checks,
// block validation, difficulty retargeting, cumulative work accounting and
// the cancellable mining loop — grounded on the teacher's
// pkg/consensus/consensus.go (target math, ChainReader pattern,
// single-threaded mining loop shape) and pkg/utxo/utxo.go (stateful
// transaction checks), unified and corrected: real double-SHA-256 instead
// of the teacher's placeholder/XOR merkle hash, a proper per-block
// temporary UTXO set for intra-block spending, and a parallel cancellable
// mining pool instead of a single goroutine.
package validation

import (
	"math/big"

	"github.com/gochain/gochain/pkg/block"
)

// Target returns 2^(256-difficulty) as the PoW hash must be strictly less
// than.
func Target(difficulty uint32) *big.Int {
	if difficulty >= 256 {
		return big.NewInt(0)
	}
	t := big.NewInt(1)
	t.Lsh(t, uint(256-difficulty))
	return t
}

// DifficultyFromTarget is Target's inverse, used by the retarget
// calculation: the largest difficulty whose target is >= the given target.
func DifficultyFromTarget(target *big.Int) uint32 {
	if target.Sign() <= 0 {
		return 256
	}
	bits := new(big.Int).Sub(target, big.NewInt(1)).BitLen()
	if bits > 256 {
		return 0
	}
	return uint32(256 - bits)
}

// CheckPoW reports whether header's PoW hash satisfies its declared
// difficulty's target.
func CheckPoW(h *block.BlockHeader) (bool, error) {
	hash, err := h.Hash()
	if err != nil {
		return false, err
	}
	hashInt := new(big.Int).SetBytes(hash[:])
	return hashInt.Cmp(Target(h.Difficulty)) < 0, nil
}

// BlockWork is a single block header's contribution to cumulative chain
// work: 2^difficulty, per SPEC_FULL.md's resolution of the cumulative-work
// Open Question.
func BlockWork(difficulty uint32) *big.Int {
	w := big.NewInt(1)
	w.Lsh(w, uint(difficulty))
	return w
}
