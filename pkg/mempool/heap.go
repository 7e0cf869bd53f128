package mempool

import (
	"container/heap"

	"github.com/gochain/gochain/pkg/block"
)

// entry is one pending transaction tracked by the mempool, grounded on the
// teacher's TransactionEntry shape (pkg/mempool/mempool.go): transaction,
// admission time, fee, size, plus a heap index each heap.Interface
// implementation maintains for O(log n) Remove.
type entry struct {
	tx        *block.Transaction
	txid      block.TxID
	entryTime int64
	fee       uint64
	size      int
	feeIndex  int // index within feeHeap (descending)
	evictIdx  int // index within evictHeap (ascending)
}

func (e *entry) feeRate() float64 {
	if e.size == 0 {
		return 0
	}
	return float64(e.fee) / float64(e.size)
}

// feeHeap is a max-heap ordered by descending fee-per-byte — used to select
// transactions for mining, highest fee-rate first. The teacher's mempool.go
// mistakenly used its ascending min-heap for this selection (a bug this
// repository does not carry forward); feeHeap here is the max-heap used
// correctly for that purpose.
type feeHeap []*entry

func (h feeHeap) Len() int            { return len(h) }
func (h feeHeap) Less(i, j int) bool  { return h[i].feeRate() > h[j].feeRate() }
func (h feeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].feeIndex = i
	h[j].feeIndex = j
}
func (h *feeHeap) Push(x interface{}) {
	e := x.(*entry)
	e.feeIndex = len(*h)
	*h = append(*h, e)
}
func (h *feeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
func (h *feeHeap) remove(e *entry) {
	if e.feeIndex >= 0 && e.feeIndex < h.Len() && (*h)[e.feeIndex] == e {
		heap.Remove(h, e.feeIndex)
	}
}

// evictHeap is a min-heap ordered by ascending fee-per-byte — used to pick
// eviction victims when the mempool is over its byte budget.
type evictHeap []*entry

func (h evictHeap) Len() int           { return len(h) }
func (h evictHeap) Less(i, j int) bool { return h[i].feeRate() < h[j].feeRate() }
func (h evictHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].evictIdx = i
	h[j].evictIdx = j
}
func (h *evictHeap) Push(x interface{}) {
	e := x.(*entry)
	e.evictIdx = len(*h)
	*h = append(*h, e)
}
func (h *evictHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
func (h *evictHeap) remove(e *entry) {
	if e.evictIdx >= 0 && e.evictIdx < h.Len() && (*h)[e.evictIdx] == e {
		heap.Remove(h, e.evictIdx)
	}
}
