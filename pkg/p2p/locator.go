package p2p

import "github.com/gochain/gochain/pkg/block"

// HeaderSource is the read slice of chain.Chain a locator is built against:
// enough to walk the best chain by height without taking a dependency on
// the chain package's full surface.
type HeaderSource interface {
	TipHeight() uint64
	HeaderByHeight(height uint64) (*block.BlockHeader, bool)
}

// BuildLocator returns a sparse list of this node's best-chain block
// hashes, starting at the tip and stepping back with exponentially growing
// gaps, always ending at genesis. A peer walking its own chain can find the
// highest locator hash it recognizes and knows everything above that point
// is what it needs to send — the same headers-first fork-finding technique
// used by every block locator in the corpus's style (doubling step,
// genesis always included).
func BuildLocator(h HeaderSource) []block.Hash {
	tipHeight := h.TipHeight()

	var locator []block.Hash
	step := uint64(1)
	height := tipHeight
	for {
		hdr, ok := h.HeaderByHeight(height)
		if ok {
			hash, err := hdr.Hash()
			if err == nil {
				locator = append(locator, hash)
			}
		}
		if height == 0 {
			break
		}
		if len(locator) >= 10 {
			step *= 2
		}
		if step > height {
			height = 0
		} else {
			height -= step
		}
	}
	return locator
}

// FindForkHeight returns the height of the highest hash in locator that h
// recognizes as being on its own best chain, or (0, false) if none match —
// in which case the caller should fall back to sending from genesis.
// Locator hashes are checked from newest to oldest (the order BuildLocator
// produces them in), so the first match found is the highest common point.
func FindForkHeight(h HeaderSource, locator []block.Hash) (uint64, bool) {
	tipHeight := h.TipHeight()
	known := make(map[block.Hash]uint64, tipHeight+1)
	for height := tipHeight; ; {
		hdr, ok := h.HeaderByHeight(height)
		if ok {
			if hash, err := hdr.Hash(); err == nil {
				known[hash] = height
			}
		}
		if height == 0 {
			break
		}
		height--
	}

	for _, want := range locator {
		if height, ok := known[want]; ok {
			return height, true
		}
	}
	return 0, false
}
