package validation

import (
	"math/big"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/params"
)

// ChainReader is the narrow read surface validation needs from the chain,
// kept as an interface (grounded on the teacher's pkg/consensus.ChainReader)
// so this package never imports pkg/chain and no import cycle results.
type ChainReader interface {
	// HeaderByHeight returns the best-chain header at height, if any.
	HeaderByHeight(height uint64) (*block.BlockHeader, bool)
	// TipHeight returns the current best-chain height.
	TipHeight() uint64
}

// MedianTimePast returns the median timestamp of the MedianTimeSpan blocks
// ending at (and including) height. Used to reject non-monotonic block
// timestamps.
func MedianTimePast(cr ChainReader, height uint64) int64 {
	var timestamps []int64
	for i := 0; i < params.MedianTimeSpan; i++ {
		if uint64(i) > height {
			break
		}
		h, ok := cr.HeaderByHeight(height - uint64(i))
		if !ok {
			break
		}
		timestamps = append(timestamps, h.Timestamp)
	}
	if len(timestamps) == 0 {
		return 0
	}
	sortInt64(timestamps)
	return timestamps[len(timestamps)/2]
}

func sortInt64(s []int64) {
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] > v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}
}

// ExpectedDifficulty computes the difficulty a block at height must declare.
// Between retarget boundaries it is simply the previous block's difficulty;
// every RetargetInterval blocks it is recomputed from how long the previous
// interval actually took, with the actual/expected ratio clamped to
// [1/4, 4] before being applied to the target (spec.md §4.D).
func ExpectedDifficulty(cr ChainReader, height uint64) uint32 {
	if height == 0 {
		return params.GenesisDifficulty
	}
	prev, ok := cr.HeaderByHeight(height - 1)
	if !ok {
		return params.GenesisDifficulty
	}
	if height%params.RetargetInterval != 0 {
		return prev.Difficulty
	}

	firstHeight := height - params.RetargetInterval
	first, ok := cr.HeaderByHeight(firstHeight)
	if !ok {
		return prev.Difficulty
	}

	actual := prev.Timestamp - first.Timestamp
	expected := int64(params.RetargetInterval) * int64(params.TargetBlockTime.Seconds())
	if actual <= 0 {
		actual = 1
	}

	// Clamp the ratio actual/expected to [1/4, 4] by clamping the
	// numerator/denominator pair directly, avoiding floating point.
	num, den := actual, expected
	if num*4 < den {
		num, den = 1, 4
	} else if num > den*4 {
		num, den = 4, 1
	}

	oldTarget := Target(prev.Difficulty)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(num))
	newTarget.Div(newTarget, big.NewInt(den))

	newDifficulty := DifficultyFromTarget(newTarget)
	if newDifficulty < params.GenesisDifficulty {
		newDifficulty = params.GenesisDifficulty
	}
	return newDifficulty
}
