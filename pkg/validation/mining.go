package validation

import (
	"sync"
	"sync/atomic"

	"github.com/gochain/gochain/pkg/block"
)

// Mine searches for a nonce (and, on nonce-space exhaustion, an
// incremented timestamp bounded by maxTimestamp) that satisfies header's
// declared difficulty, splitting the nonce space across workers goroutines.
// Mining stops as soon as one worker finds a solution or cancel is closed;
// the shared atomic flag is polled between small nonce batches so the hash
// loop itself never blocks on a lock, per the cooperative-cancellation
// model of spec.md §5.
func Mine(header block.BlockHeader, workers int, maxTimestamp int64, cancel <-chan struct{}) (*block.BlockHeader, bool, error) {
	if workers < 1 {
		workers = 1
	}

	var found atomic.Bool
	var mu sync.Mutex
	var result *block.BlockHeader
	var workErr error

	done := make(chan struct{})
	var wg sync.WaitGroup

	const batchSize = 1 << 16

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(startNonce uint64, stride uint64) {
			defer wg.Done()
			h := header
			nonce := startNonce
			for {
				select {
				case <-cancel:
					return
				case <-done:
					return
				default:
				}
				if found.Load() {
					return
				}

				for i := uint64(0); i < batchSize; i++ {
					h.Nonce = nonce
					ok, err := CheckPoW(&h)
					if err != nil {
						mu.Lock()
						if workErr == nil {
							workErr = err
						}
						mu.Unlock()
						if found.CompareAndSwap(false, true) {
							close(done)
						}
						return
					}
					if ok {
						mu.Lock()
						if result == nil {
							cp := h
							result = &cp
						}
						mu.Unlock()
						if found.CompareAndSwap(false, true) {
							close(done)
						}
						return
					}
					nonce += stride
					if nonce < stride {
						// nonce space exhausted for this worker's stride;
						// bump the timestamp (bounded) and restart from
						// this worker's original offset.
						if h.Timestamp < maxTimestamp {
							h.Timestamp++
						}
						nonce = startNonce
					}
				}
			}
		}(uint64(w), uint64(workers))
	}

	wg.Wait()

	if workErr != nil {
		return nil, false, workErr
	}
	if result == nil {
		return nil, false, nil
	}
	return result, true, nil
}
