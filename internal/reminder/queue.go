package reminder

import "sync"

// Queue is a FIFO of rendered reminder texts shared between the scheduler
// goroutine and the conversation loop.
type Queue struct {
	mu    sync.Mutex
	items []string
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Push(text string) {
	q.mu.Lock()
	q.items = append(q.items, text)
	q.mu.Unlock()
}

// Drain removes and returns everything queued so far, oldest first.
func (q *Queue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
