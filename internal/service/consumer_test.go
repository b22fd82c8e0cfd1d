package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/adapter/outbound/agent"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/adapter/outbound/memory"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/domain/tool"
)

const testQueueKey = "tools:updates"

// stubTrigger records resync invocations.
type stubTrigger struct {
	calls  atomic.Int32
	reason atomic.Value
	result bool
}

func (s *stubTrigger) TriggerResync(_ context.Context, reason string) bool {
	s.calls.Add(1)
	s.reason.Store(reason)
	return s.result
}

func testConsumerOptions() ConsumerOptions {
	return ConsumerOptions{
		Enabled:         true,
		QueueKey:        testQueueKey,
		PollTimeout:     50 * time.Millisecond,
		MaxMessageAge:   0, // freshness not under test
		StopGracePeriod: 2 * time.Second,
	}
}

func newTestConsumer(queue *memory.Queue, mirror *memory.MirrorStore, trigger ResyncTrigger, tracker *FailureTracker) (*Consumer, *MetricsService) {
	logger := slog.New(slog.DiscardHandler)
	metrics := NewMetricsService(logger, nil)
	if tracker == nil {
		tracker = NewFailureTracker(100, 100, time.Minute)
	}
	c := NewConsumer(queue, mirror, trigger, metrics, tracker, testConsumerOptions(), logger)
	return c, metrics
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mirrorNames(t *testing.T, mirror *memory.MirrorStore) []string {
	t.Helper()
	tools, err := mirror.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	names := make([]string, len(tools))
	for i, ti := range tools {
		names[i] = ti.Name
	}
	return names
}

func TestConsumerEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	queue := memory.NewQueue()
	mirror := memory.NewMirrorStore()

	// Mock authority answering the resync protocol with exactly {t2}.
	authority := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RequestID string `json:"requestId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"requestId":          req.RequestID,
			"timestamp":          time.Now().UTC(),
			"currentTools":       []tool.Info{{Name: "t2", McpServerName: "geo-data"}},
			"discoveryTimestamp": time.Now().UTC(),
		})
	}))
	defer authority.Close()

	logger := slog.New(slog.DiscardHandler)
	metrics := NewMetricsService(logger, nil)
	tracker := NewFailureTracker(100, 100, time.Minute)
	reconciler := NewReconciler(mirror, logger)
	client := agent.New(agent.Options{
		BaseURL:      authority.URL,
		ResyncPath:   "/api/tools/resync",
		HTTPTimeout:  2 * time.Second,
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
	}, logger)
	rm := NewRecoveryManager(queue, client, reconciler, metrics, true, testQueueKey, logger)
	consumer := NewConsumer(queue, mirror, rm, metrics, tracker, testConsumerOptions(), logger)

	consumer.Start()
	defer consumer.Stop()

	// A valid incremental add lands in the mirror.
	payload := `{"messageId":"m1","timestamp":"2025-01-28T10:00:00Z","addedTools":["t1"],"removedTools":[],"source":"agent"}`
	if err := queue.Push(ctx, testQueueKey, payload); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "t1 in mirror", func() bool {
		names := mirrorNames(t, mirror)
		return len(names) == 1 && names[0] == "t1"
	})

	// A malformed payload is counted invalid, dropped, and the loop survives.
	if err := queue.Push(ctx, testQueueKey, "not-json"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "deserialization error recorded", func() bool {
		return metrics.deserializationErrors.Load() == 1
	})
	if names := mirrorNames(t, mirror); len(names) != 1 || names[0] != "t1" {
		t.Errorf("mirror changed by invalid payload: %v", names)
	}
	if !consumer.IsRunning() {
		t.Fatal("consumer must survive malformed payloads")
	}

	// Full resync replaces the mirror with the authoritative snapshot.
	if !rm.TriggerResync(ctx, "test") {
		t.Fatal("TriggerResync should succeed")
	}
	waitFor(t, 2*time.Second, "mirror replaced with t2", func() bool {
		names := mirrorNames(t, mirror)
		return len(names) == 1 && names[0] == "t2"
	})
}

func TestConsumerAppliesRemovals(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	queue := memory.NewQueue()
	mirror := memory.NewMirrorStore()
	_ = mirror.Upsert(ctx, tool.Info{Name: "t1", McpServerName: tool.BuiltInServerName})

	consumer, _ := newTestConsumer(queue, mirror, &stubTrigger{result: true}, nil)
	consumer.Start()
	defer consumer.Stop()

	payload := `{"messageId":"m2","timestamp":"2025-01-28T10:00:00Z","addedTools":[],"removedTools":["t1"],"source":"agent"}`
	if err := queue.Push(ctx, testQueueKey, payload); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "t1 removed", func() bool {
		return len(mirrorNames(t, mirror)) == 0
	})
}

func TestConsumerTriggersRecoveryOnInvalidThreshold(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	queue := memory.NewQueue()
	mirror := memory.NewMirrorStore()
	trigger := &stubTrigger{result: true}
	tracker := NewFailureTracker(100, 2, time.Minute)

	consumer, metrics := newTestConsumer(queue, mirror, trigger, tracker)
	consumer.Start()
	defer consumer.Stop()

	_ = queue.Push(ctx, testQueueKey, "garbage-1")
	_ = queue.Push(ctx, testQueueKey, "garbage-2")

	waitFor(t, 2*time.Second, "recovery triggered", func() bool {
		return trigger.calls.Load() == 1
	})
	if got := trigger.reason.Load(); got != ReasonInvalidMessages {
		t.Errorf("trigger reason = %v, want %v", got, ReasonInvalidMessages)
	}
	if metrics.deserializationErrors.Load() != 2 {
		t.Errorf("deserializationErrors = %d, want 2", metrics.deserializationErrors.Load())
	}
	// Resume reset the tracker, so the consumer is not paused afterwards.
	waitFor(t, time.Second, "processing resumed", func() bool {
		return !consumer.IsProcessingPaused()
	})
	if tracker.InterventionNeeded() {
		t.Error("tracker should be reset after recovery")
	}
}

func TestConsumerPauseRequeuesMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	queue := memory.NewQueue()
	mirror := memory.NewMirrorStore()
	consumer, _ := newTestConsumer(queue, mirror, &stubTrigger{result: true}, nil)
	consumer.Start()
	defer consumer.Stop()

	consumer.PauseProcessing()
	payload := `{"messageId":"m3","timestamp":"2025-01-28T10:00:00Z","addedTools":["t9"],"removedTools":[],"source":"agent"}`
	if err := queue.Push(ctx, testQueueKey, payload); err != nil {
		t.Fatal(err)
	}

	// While paused the message keeps cycling through the queue, unapplied.
	time.Sleep(200 * time.Millisecond)
	if names := mirrorNames(t, mirror); len(names) != 0 {
		t.Errorf("paused consumer applied a message: %v", names)
	}

	consumer.ResumeProcessing()
	waitFor(t, 3*time.Second, "message applied after resume", func() bool {
		names := mirrorNames(t, mirror)
		return len(names) == 1 && names[0] == "t9"
	})
}

func TestConsumerLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("disabled consumer does not start", func(t *testing.T) {
		opts := testConsumerOptions()
		opts.Enabled = false
		logger := slog.New(slog.DiscardHandler)
		c := NewConsumer(memory.NewQueue(), memory.NewMirrorStore(), &stubTrigger{}, NewMetricsService(logger, nil), NewFailureTracker(1, 1, time.Minute), opts, logger)
		c.Start()
		if c.IsRunning() {
			t.Error("disabled consumer should not run")
		}
		c.Stop() // no-op
	})

	t.Run("start and stop are idempotent", func(t *testing.T) {
		c, _ := newTestConsumer(memory.NewQueue(), memory.NewMirrorStore(), &stubTrigger{}, nil)
		c.Start()
		c.Start() // no-op
		if !c.IsRunning() {
			t.Fatal("consumer should be running")
		}
		c.Stop()
		c.Stop() // no-op
		if c.IsRunning() {
			t.Error("consumer should be stopped")
		}
	})
}
