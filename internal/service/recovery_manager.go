package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/port/outbound"
)

// RecoveryManager orchestrates full-resync recovery: single-flight guard,
// stale-queue clear, snapshot fetch, reconciliation, metrics. At most one
// recovery episode runs per process; losers of the guard race get an
// immediate false rather than queueing.
type RecoveryManager struct {
	queue      outbound.Queue
	client     outbound.ResyncClient
	reconciler *Reconciler
	metrics    *MetricsService
	logger     *slog.Logger
	tracer     trace.Tracer

	enabled  bool
	queueKey string

	inProgress atomic.Bool
}

// NewRecoveryManager creates a recovery manager.
func NewRecoveryManager(
	queue outbound.Queue,
	client outbound.ResyncClient,
	reconciler *Reconciler,
	metrics *MetricsService,
	enabled bool,
	queueKey string,
	logger *slog.Logger,
) *RecoveryManager {
	return &RecoveryManager{
		queue:      queue,
		client:     client,
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger,
		tracer:     otel.Tracer("toolsync/recovery"),
		enabled:    enabled,
		queueKey:   queueKey,
	}
}

// TriggerResync runs one recovery episode. Returns false without side
// effects when recovery is disabled or another episode is already in flight.
// The guard is always released before return, so a failed episode never
// blocks a later trigger.
func (m *RecoveryManager) TriggerResync(ctx context.Context, reason string) bool {
	if !m.enabled {
		m.logger.Warn("sync recovery is disabled, skipping", "reason", reason)
		return false
	}
	if !m.inProgress.CompareAndSwap(false, true) {
		m.logger.Warn("sync recovery already in progress, ignoring trigger", "reason", reason)
		return false
	}
	defer m.inProgress.Store(false)

	ctx, span := m.tracer.Start(ctx, "sync_recovery",
		trace.WithAttributes(attribute.String("reason", reason)))
	defer span.End()

	start := time.Now()
	m.logger.Info("starting sync recovery", "reason", reason)

	// Step 1: clear the stale queue. Failure is tolerated because the full
	// replace below supersedes any messages processed afterwards.
	if removed, err := m.queue.Clear(ctx, m.queueKey); err != nil {
		m.logger.Warn("failed to clear stale queue, continuing recovery",
			"key", m.queueKey, "error", err)
	} else if removed > 0 {
		m.logger.Info("cleared stale queue", "key", m.queueKey, "removed", removed)
	}

	// Step 2: fetch the authoritative snapshot with bounded retries.
	inventory, err := m.client.RequestInventory(ctx, reason)
	if err != nil {
		m.logger.Error("failed to obtain tool inventory from agent", "reason", reason, "error", err)
		span.SetStatus(codes.Error, "inventory fetch failed")
		m.metrics.RecordSyncRecovery(false, time.Since(start), reason, -1)
		return false
	}

	// Step 3: reconcile the snapshot into the mirror.
	size, err := m.reconciler.Apply(ctx, inventory.CurrentTools)
	if err != nil {
		m.logger.Error("failed to reconcile inventory snapshot",
			"request_id", inventory.RequestID, "error", err)
		span.SetStatus(codes.Error, "reconciliation failed")
		m.metrics.RecordSyncRecovery(false, time.Since(start), reason, -1)
		return false
	}

	duration := time.Since(start)
	span.SetAttributes(attribute.Int("tool_count", size))
	m.metrics.RecordSyncRecovery(true, duration, reason, size)
	m.logger.Info("sync recovery completed",
		"reason", reason, "tool_count", size, "duration", duration)
	return true
}

// IsRecoveryInProgress is a read-only probe of the single-flight guard.
func (m *RecoveryManager) IsRecoveryInProgress() bool {
	return m.inProgress.Load()
}

// Enabled reports the configured recovery toggle.
func (m *RecoveryManager) Enabled() bool {
	return m.enabled
}
