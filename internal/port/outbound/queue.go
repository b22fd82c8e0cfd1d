// Package outbound declares the driven-side ports of the sync engine.
package outbound

import (
	"context"
	"time"
)

// Queue is a thin boundary over a shared list-like store. It performs no
// validation and no retries; callers interpret empty results and errors.
type Queue interface {
	// Push appends payload to the tail of the list at key.
	Push(ctx context.Context, key, payload string) error

	// Pop blocks up to timeout for the head element of the list at key.
	// ok is false when the timeout elapsed with no element available;
	// that is the normal idle outcome, not an error.
	Pop(ctx context.Context, key string, timeout time.Duration) (payload string, ok bool, err error)

	// Length returns the number of pending elements at key.
	Length(ctx context.Context, key string) (int64, error)

	// Clear removes the list at key and returns how many elements were
	// discarded.
	Clear(ctx context.Context, key string) (removed int64, err error)
}
