// Package memory provides in-memory implementations of the outbound ports,
// used by tests and by dev mode where no Redis or sqlite is available.
package memory

import (
	"context"
	"sync"
	"time"
)

// Queue is an in-process list store with the same blocking-pop semantics as
// the Redis adapter. Safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	lists  map[string][]string
	signal map[string]chan struct{}
}

// NewQueue creates an empty in-memory queue store.
func NewQueue() *Queue {
	return &Queue{
		lists:  make(map[string][]string),
		signal: make(map[string]chan struct{}),
	}
}

func (q *Queue) waiters(key string) chan struct{} {
	ch, ok := q.signal[key]
	if !ok {
		ch = make(chan struct{})
		q.signal[key] = ch
	}
	return ch
}

// Push appends payload to the tail of the list at key and wakes any waiters.
func (q *Queue) Push(_ context.Context, key, payload string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists[key] = append(q.lists[key], payload)
	close(q.waiters(key))
	delete(q.signal, key)
	return nil
}

// Pop blocks up to timeout for the head element of the list at key.
func (q *Queue) Pop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if items := q.lists[key]; len(items) > 0 {
			head := items[0]
			q.lists[key] = items[1:]
			q.mu.Unlock()
			return head, true, nil
		}
		wake := q.waiters(key)
		q.mu.Unlock()

		select {
		case <-wake:
		case <-deadline.C:
			return "", false, nil
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

// Length returns the number of pending elements at key.
func (q *Queue) Length(_ context.Context, key string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.lists[key])), nil
}

// Clear removes the list at key and returns how many elements it held.
func (q *Queue) Clear(_ context.Context, key string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := int64(len(q.lists[key]))
	delete(q.lists, key)
	return n, nil
}
