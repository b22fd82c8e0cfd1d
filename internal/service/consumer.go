package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/domain/tool"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/port/outbound"
)

// ResyncTrigger is the recovery entry point the consumer invokes when the
// failure tracker trips. Satisfied by RecoveryManager.
type ResyncTrigger interface {
	TriggerResync(ctx context.Context, reason string) bool
}

// Recovery trigger reasons reported by the consumer.
const (
	ReasonConsecutiveFailures = "consecutive_failures"
	ReasonInvalidMessages     = "invalid_messages"
)

const (
	pollErrorBaseDelay = time.Second
	pollErrorMaxDelay  = 30 * time.Second
	pausedRetryDelay   = time.Second
)

// ConsumerOptions configures the consumer.
type ConsumerOptions struct {
	Enabled         bool
	QueueKey        string
	PollTimeout     time.Duration
	MaxMessageAge   time.Duration
	StopGracePeriod time.Duration
}

// Consumer continuously drains the shared update queue and applies validated
// incremental changes to the mirror. It runs one polling goroutine; every
// outcome is reported to the metrics service and the failure tracker, and the
// loop survives malformed payloads and application errors indefinitely.
type Consumer struct {
	queue    outbound.Queue
	mirror   outbound.MirrorStore
	recovery ResyncTrigger
	metrics  *MetricsService
	tracker  *FailureTracker
	logger   *slog.Logger
	opts     ConsumerOptions

	running atomic.Bool
	paused  atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewConsumer creates a consumer. It does not start polling; call Start.
func NewConsumer(
	queue outbound.Queue,
	mirror outbound.MirrorStore,
	recovery ResyncTrigger,
	metrics *MetricsService,
	tracker *FailureTracker,
	opts ConsumerOptions,
	logger *slog.Logger,
) *Consumer {
	return &Consumer{
		queue:    queue,
		mirror:   mirror,
		recovery: recovery,
		metrics:  metrics,
		tracker:  tracker,
		logger:   logger,
		opts:     opts,
	}
}

// Start spawns the polling goroutine. A disabled consumer starts into a
// not-running no-op state. Calling Start on a running consumer is a no-op.
func (c *Consumer) Start() {
	if !c.opts.Enabled {
		c.logger.Info("tool update consumer is disabled via configuration")
		return
	}
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Debug("tool update consumer already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	c.logger.Info("starting tool update consumer",
		"queue_key", c.opts.QueueKey, "poll_timeout", c.opts.PollTimeout)
	go c.consume(ctx)
}

// Stop signals cancellation and waits up to the configured grace period for
// the polling loop to finish its current iteration. Idempotent.
func (c *Consumer) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		c.logger.Debug("tool update consumer is not running, nothing to stop")
		return
	}

	start := time.Now()
	c.cancel()
	select {
	case <-c.done:
		c.logger.Info("tool update consumer stopped", "duration", time.Since(start))
	case <-time.After(c.opts.StopGracePeriod):
		// The blocking pop observes cancellation as soon as it returns;
		// past the grace period the goroutine is abandoned to finish on
		// its own rather than hanging shutdown.
		c.logger.Warn("tool update consumer did not stop within grace period",
			"grace_period", c.opts.StopGracePeriod)
	}
}

// IsRunning reports whether the polling loop is active.
func (c *Consumer) IsRunning() bool {
	return c.running.Load()
}

// PauseProcessing makes the loop requeue popped messages instead of applying
// them, so recovery can complete without interference. Idempotent.
func (c *Consumer) PauseProcessing() {
	if c.paused.CompareAndSwap(false, true) {
		c.logger.Info("tool update processing paused for sync recovery")
	}
}

// ResumeProcessing re-enables processing and resets the failure tracker so
// detection starts from a clean slate after recovery. Idempotent.
func (c *Consumer) ResumeProcessing() {
	if c.paused.CompareAndSwap(true, false) {
		c.tracker.Reset()
		c.logger.Info("tool update processing resumed after sync recovery")
	}
}

// IsProcessingPaused reports whether processing is currently paused.
func (c *Consumer) IsProcessingPaused() bool {
	return c.paused.Load()
}

// consume is the polling loop. Transport-level errors back off with a capped
// exponential delay; nothing here may terminate the loop except cancellation.
func (c *Consumer) consume(ctx context.Context) {
	defer close(c.done)
	c.logger.Info("tool update consumer polling", "queue_key", c.opts.QueueKey)

	var consecutivePollErrors int
	for {
		if ctx.Err() != nil {
			c.logger.Info("tool update consumer loop exiting")
			return
		}

		payload, ok, err := c.queue.Pop(ctx, c.opts.QueueKey, c.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("tool update consumer loop exiting")
				return
			}
			consecutivePollErrors++
			delay := pollErrorDelay(consecutivePollErrors)
			c.logger.Error("error polling update queue",
				"consecutive_errors", consecutivePollErrors, "retry_in", delay, "error", err)
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}
		if consecutivePollErrors > 0 {
			c.logger.Info("update queue polling recovered",
				"after_errors", consecutivePollErrors)
			consecutivePollErrors = 0
		}
		if !ok {
			// Timeout with no message is the normal idle outcome.
			continue
		}

		if c.paused.Load() {
			// Requeue and back off while recovery owns the mirror. The
			// requeued message lands at the tail; ordering does not matter
			// because the recovery's full replace supersedes it.
			if err := c.queue.Push(ctx, c.opts.QueueKey, payload); err != nil {
				c.logger.Warn("failed to requeue message while paused", "error", err)
			}
			if !sleepCtx(ctx, pausedRetryDelay) {
				return
			}
			continue
		}

		c.processMessage(ctx, payload)
	}
}

// processMessage parses, validates, and applies one queue payload. All
// failure modes are counted and reported; none propagate.
func (c *Consumer) processMessage(ctx context.Context, payload string) {
	start := time.Now()

	var msg tool.UpdateMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		c.metrics.RecordError("deserialization")
		c.metrics.RecordMessageProcessed(false, time.Since(start))
		count := c.tracker.RecordInvalid()
		c.logger.Error("failed to decode tool update message",
			"payload_length", len(payload), "invalid_in_window", count, "error", err)
		c.maybeRecover(ctx, ReasonInvalidMessages)
		return
	}

	if err := msg.Validate(time.Now(), c.opts.MaxMessageAge); err != nil {
		c.metrics.RecordError("validation")
		c.metrics.RecordMessageProcessed(false, time.Since(start))
		count := c.tracker.RecordInvalid()
		c.logger.Warn("dropping invalid tool update message",
			"message_id", msg.MessageID, "invalid_in_window", count, "error", err)
		c.maybeRecover(ctx, ReasonInvalidMessages)
		return
	}

	if err := c.apply(ctx, &msg); err != nil {
		c.metrics.RecordError("unexpected")
		c.metrics.RecordMessageProcessed(false, time.Since(start))
		failures := c.tracker.RecordFailure()
		c.logger.Error("failed to apply tool update message",
			"message_id", msg.MessageID, "consecutive_failures", failures, "error", err)
		c.maybeRecover(ctx, ReasonConsecutiveFailures)
		return
	}

	c.metrics.RecordMessageProcessed(true, time.Since(start))
	c.tracker.RecordSuccess()
	c.logger.Info("processed tool update message",
		"message_id", msg.MessageID, "source", msg.Source,
		"added", len(msg.AddedTools), "removed", len(msg.RemovedTools),
		"duration", time.Since(start))
}

// apply upserts added tools and deletes removed ones. Incremental messages
// carry names only, so additions default the provider to the built-in
// sentinel; the next full resync restores the authoritative provider.
func (c *Consumer) apply(ctx context.Context, msg *tool.UpdateMessage) error {
	for _, name := range msg.AddedTools {
		t := tool.Info{Name: name, McpServerName: tool.BuiltInServerName}
		if err := c.mirror.Upsert(ctx, t); err != nil {
			return err
		}
	}
	for _, name := range msg.RemovedTools {
		if err := c.mirror.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// maybeRecover pauses processing and runs one recovery episode when the
// failure tracker trips. Resume always happens, clearing the counters.
func (c *Consumer) maybeRecover(ctx context.Context, reason string) {
	if !c.tracker.InterventionNeeded() {
		return
	}
	c.logger.Warn("failure thresholds crossed, triggering sync recovery", "reason", reason)
	c.PauseProcessing()
	defer c.ResumeProcessing()

	if c.recovery.TriggerResync(ctx, reason) {
		c.logger.Info("sync recovery completed from consumer", "reason", reason)
	} else {
		c.logger.Error("sync recovery did not complete", "reason", reason)
	}
}

func pollErrorDelay(consecutive int) time.Duration {
	shift := consecutive - 1
	if shift > 5 {
		shift = 5
	}
	delay := pollErrorBaseDelay << shift
	if delay > pollErrorMaxDelay {
		delay = pollErrorMaxDelay
	}
	return delay
}

// sleepCtx waits for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
