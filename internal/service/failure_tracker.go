package service

import (
	"sync"
	"time"
)

// FailureTracker decides when corrective action is warranted. It tracks a
// consecutive processing-failure counter (reset by any success) and an
// invalid-message counter over a sliding time window. The intervention
// predicate trips when either crosses its configured threshold.
type FailureTracker struct {
	failureThreshold int
	invalidThreshold int
	invalidWindow    time.Duration
	now              func() time.Time

	mu                  sync.Mutex
	consecutiveFailures int
	invalidInWindow     int
	windowStart         time.Time
}

// NewFailureTracker creates a tracker with the given thresholds.
func NewFailureTracker(failureThreshold, invalidThreshold int, invalidWindow time.Duration) *FailureTracker {
	t := &FailureTracker{
		failureThreshold: failureThreshold,
		invalidThreshold: invalidThreshold,
		invalidWindow:    invalidWindow,
		now:              time.Now,
	}
	t.windowStart = t.now()
	return t
}

// RecordSuccess resets the consecutive-failure counter.
func (t *FailureTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutiveFailures = 0
}

// RecordFailure increments the consecutive-failure counter and returns it.
func (t *FailureTracker) RecordFailure() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutiveFailures++
	return t.consecutiveFailures
}

// RecordInvalid counts an invalid message within the current window,
// restarting the window first if it has elapsed. Returns the window count.
func (t *FailureTracker) RecordInvalid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollWindowLocked()
	t.invalidInWindow++
	return t.invalidInWindow
}

// InterventionNeeded reports whether either threshold has been crossed.
func (t *FailureTracker) InterventionNeeded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollWindowLocked()
	return t.consecutiveFailures >= t.failureThreshold ||
		t.invalidInWindow >= t.invalidThreshold
}

// Reset zeroes both counters and restarts the window. Called after a
// completed recovery so detection starts from a clean slate.
func (t *FailureTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutiveFailures = 0
	t.invalidInWindow = 0
	t.windowStart = t.now()
}

func (t *FailureTracker) rollWindowLocked() {
	if t.now().Sub(t.windowStart) > t.invalidWindow {
		t.invalidInWindow = 0
		t.windowStart = t.now()
	}
}
