package runtime

import (
	"container/list"
	"sync"
)

// dedupSet is a bounded LRU set of message_ids, used by the Runtime's event
// loop to enforce at-most-once handler invocation within the window (§4.2,
// §5 "Dedup set lifetime"). newDedupSet only floors capacity at 1; the
// constants.MinDedupSetSize floor is applied by New before it builds the set.
type dedupSet struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newDedupSet(capacity int) *dedupSet {
	if capacity < 1 {
		capacity = 1
	}
	return &dedupSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// SeenAndAdd reports whether id was already present, adding it (and
// touching it most-recently-used) if not. Eviction of the least-recently
// seen id happens once the set exceeds capacity.
func (d *dedupSet) SeenAndAdd(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[id]; ok {
		d.order.MoveToFront(el)
		return true
	}

	el := d.order.PushFront(id)
	d.index[id] = el

	for d.order.Len() > d.capacity {
		oldest := d.order.Back()
		if oldest == nil {
			break
		}
		d.order.Remove(oldest)
		delete(d.index, oldest.Value.(string))
	}

	return false
}

// Len returns the current number of tracked ids.
func (d *dedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
