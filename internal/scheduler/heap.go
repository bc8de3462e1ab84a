package scheduler

import "container/heap"

// heapEntry keys the min-heap by fire time. Entries are lazily deleted:
// cancellation removes the record from the map, and stale heap entries
// are skipped on pop when they no longer match a live record.
type heapEntry struct {
	at int64 // unix nanos
	id string
}

type eventHeap []heapEntry

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].at < h[j].at }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(heapEntry)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func (h *eventHeap) push(e heapEntry) { heap.Push(h, e) }

func (h *eventHeap) pop() (heapEntry, bool) {
	if h.Len() == 0 {
		return heapEntry{}, false
	}
	return heap.Pop(h).(heapEntry), true
}

func (h eventHeap) peek() (heapEntry, bool) {
	if len(h) == 0 {
		return heapEntry{}, false
	}
	return h[0], true
}
