package dispatch

import (
	"container/heap"
	"sync"
	"time"
)

// Priority orders match tasks. Lower numeric value dequeues first.
type Priority int

// Task priorities.
const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// EntityType discriminates which side of the book a task rematches.
type EntityType string

// Task entity types.
const (
	EntityRequirement  EntityType = "requirement"
	EntityAvailability EntityType = "availability"
)

// MatchRequest is one queued match task.
type MatchRequest struct {
	Priority   Priority
	EntityType EntityType
	EntityID   string
	CreatedAt  time.Time
	RetryCount int

	seq int // insertion order tiebreaker within equal priority+timestamp
}

// taskHeap orders by priority, then created_at, then insertion order.
type taskHeap []*MatchRequest

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	if !h[i].CreatedAt.Equal(h[j].CreatedAt) {
		return h[i].CreatedAt.Before(h[j].CreatedAt)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*MatchRequest)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the dispatcher's priority queue. Enqueue never blocks; Dequeue
// waits up to a timeout for a task.
type Queue struct {
	mu     sync.Mutex
	tasks  taskHeap
	seq    int
	signal chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{signal: make(chan struct{}, 1)}
	heap.Init(&q.tasks)
	return q
}

// Enqueue adds a task and wakes one waiting consumer.
func (q *Queue) Enqueue(task *MatchRequest) {
	q.mu.Lock()
	q.seq++
	task.seq = q.seq
	heap.Push(&q.tasks, task)
	depth := len(q.tasks)
	q.mu.Unlock()

	QueueDepth.Set(float64(depth))
	EnqueuedTotal.WithLabelValues(task.Priority.String()).Inc()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Dequeue pops the highest-priority task, waiting up to timeout when the
// queue is empty. A nil return means the timeout elapsed.
func (q *Queue) Dequeue(timeout time.Duration) *MatchRequest {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := heap.Pop(&q.tasks).(*MatchRequest)
			depth := len(q.tasks)
			q.mu.Unlock()
			QueueDepth.Set(float64(depth))
			return task
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-deadline.C:
			return nil
		}
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
