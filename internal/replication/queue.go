package replication

import (
	"container/heap"
	"sync"
)

// Queue is a concurrency-safe priority queue ordered by (priority, enqueue
// sequence). One mutex guards the heap so Put, Get and Remove stay atomic
// under concurrent workers.
type Queue struct {
	mu    sync.Mutex
	items taskHeap
	seq   uint64
}

func NewQueue() *Queue {
	return &Queue{}
}

// Put enqueues a pending task.
func (q *Queue) Put(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, &queueItem{task: t, seq: q.seq})
}

// Get pops the highest-priority task, or nil when the queue is empty. It never
// blocks; idle workers back off on their side.
func (q *Queue) Get() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.task
}

// Remove drops a still-queued task so the caller can mark it cancelled.
// Returns false when the task is not in the queue (already claimed or unknown).
func (q *Queue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.task.ID == taskID {
			heap.Remove(&q.items, i)
			return true
		}
	}
	return false
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

type queueItem struct {
	task  *Task
	seq   uint64
	index int
}

type taskHeap []*queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority < h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
