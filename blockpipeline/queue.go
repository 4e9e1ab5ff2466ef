package blockpipeline

import "container/heap"

// heightHeap is a min-heap of pending heights. The standard library's
// container/heap is used here rather than a third-party priority queue:
// none of the example repos import one, and the ordering need (strict
// ascending pop) is exactly what container/heap provides out of the box.
type heightHeap []uint64

func (h heightHeap) Len() int            { return len(h) }
func (h heightHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h heightHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *heightHeap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *heightHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// pendingQueue wraps heightHeap with dedup against heights already
// queued, since the same height may arrive twice before it's processed.
type pendingQueue struct {
	heap   heightHeap
	queued map[uint64]struct{}
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{queued: make(map[uint64]struct{})}
}

func (q *pendingQueue) push(h uint64) {
	if _, ok := q.queued[h]; ok {
		return
	}
	q.queued[h] = struct{}{}
	heap.Push(&q.heap, h)
}

func (q *pendingQueue) peek() (uint64, bool) {
	if q.heap.Len() == 0 {
		return 0, false
	}
	return q.heap[0], true
}

func (q *pendingQueue) pop() (uint64, bool) {
	if q.heap.Len() == 0 {
		return 0, false
	}
	h := heap.Pop(&q.heap).(uint64)
	delete(q.queued, h)
	return h, true
}

func (q *pendingQueue) len() int {
	return q.heap.Len()
}
