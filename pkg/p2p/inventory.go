package p2p

import (
	"container/list"
	"sync"
)

// inventoryCache remembers inventory this node has already announced to or
// received from a peer, so the relay loop never re-sends or re-requests the
// same block/transaction. Adapted from the teacher's pkg/cache LRU
// (container/list + map, bounded capacity, evict-oldest), narrowed to a
// presence set keyed by InvVector rather than a general value cache — the
// P2P relay only ever needs to ask "have I already told this peer about
// this hash", never a stored payload.
type inventoryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently seen
}

func newInventoryCache(capacity int) *inventoryCache {
	return &inventoryCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Seen reports whether v has already been recorded, without recording it.
func (c *inventoryCache) Seen(v InvVector) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[v.key()]
	return ok
}

// MarkSeen records v as known, evicting the least-recently-seen entry if
// capacity is exceeded. Returns true if v was newly recorded (false if it
// was already known, in which case it is just moved to the front).
func (c *inventoryCache) MarkSeen(v InvVector) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := v.key()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return false
	}

	el := c.order.PushFront(key)
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(string))
		}
	}
	return true
}
