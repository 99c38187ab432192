package beacon

import (
	"container/heap"
	"container/list"
	"sync"
)

// Queue represents a thread-safe FIFO queue.
type Queue[T any] struct {
	mu   sync.Mutex
	list *list.List
}

// NewQueue creates and returns a new empty Queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{list: list.New()}
}

// Enqueue adds an item to the end of the queue.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.list.PushBack(item)
}

// Dequeue removes and returns the front item in the queue.
// It returns false if the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.list.Len() == 0 {
		var zero T
		return zero, false
	}
	front := q.list.Front()
	q.list.Remove(front)
	return front.Value.(T), true
}

// Len returns the number of items currently in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}

type requestHeap []*OnlineRequest

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(*OnlineRequest)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// PriorityQueue holds online requests ordered by (priority, arrival).
// Each priority level has its own capacity.
type PriorityQueue struct {
	mu       sync.Mutex
	heap     requestHeap
	seq      uint64
	capacity int
	counts   map[Priority]int
}

// NewPriorityQueue creates a queue holding at most capacity requests per priority.
// A capacity of 0 or less means unbounded.
func NewPriorityQueue(capacity int) *PriorityQueue {
	return &PriorityQueue{capacity: capacity, counts: make(map[Priority]int)}
}

// Push appends req behind every queued request of the same priority.
// Returns ErrQueueFull when its priority level is at capacity.
func (q *PriorityQueue) Push(req *OnlineRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && q.counts[req.Priority] >= q.capacity {
		return ErrQueueFull
	}
	q.seq++
	req.seq = q.seq
	heap.Push(&q.heap, req)
	q.counts[req.Priority]++
	return nil
}

// PopAdmissible removes and returns the head when admit accepts its priority.
// The head has the smallest priority, so a rejected head means nothing queued is
// admissible.
func (q *PriorityQueue) PopAdmissible(admit func(Priority) bool) (*OnlineRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 || !admit(q.heap[0].Priority) {
		return nil, false
	}
	req := heap.Pop(&q.heap).(*OnlineRequest)
	q.counts[req.Priority]--
	return req, true
}

// Len returns the number of queued requests.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// LenAt returns the number of queued requests with priority p.
func (q *PriorityQueue) LenAt(p Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[p]
}

// Drain removes every queued request in dispatch order.
func (q *PriorityQueue) Drain() []*OnlineRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*OnlineRequest, 0, len(q.heap))
	for len(q.heap) > 0 {
		out = append(out, heap.Pop(&q.heap).(*OnlineRequest))
	}
	q.counts = make(map[Priority]int)
	return out
}
