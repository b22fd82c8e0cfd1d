package service

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// HealthStatus classifies the sync engine for health reporting.
type HealthStatus string

const (
	HealthIdle      HealthStatus = "idle"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// frequentRecoveryCount is the recovery count within frequentRecoveryWindow
// above which recoveries are considered suspiciously frequent.
const (
	frequentRecoveryCount  = 3
	frequentRecoveryWindow = time.Hour
	recentErrorWindow      = 5 * time.Minute
)

// MetricsService aggregates process-lifetime sync metrics: message
// processing outcomes, error types, and recovery episodes. All counters are
// atomic; the service is shared by the consumer and the recovery manager and
// read by the admin surface. Not persisted.
type MetricsService struct {
	logger *slog.Logger
	prom   *PromMetrics
	now    func() time.Time

	messagesReceived   atomic.Int64
	messagesSucceeded  atomic.Int64
	messagesFailed     atomic.Int64
	totalProcessingMs  atomic.Int64

	validationErrors      atomic.Int64
	deserializationErrors atomic.Int64
	unexpectedErrors      atomic.Int64

	recoveryTriggered atomic.Int64
	recoverySucceeded atomic.Int64
	recoveryFailed    atomic.Int64
	totalRecoveryMs   atomic.Int64

	inventorySizeChanges atomic.Int64
	lastInventorySize    atomic.Int64

	mu                   sync.RWMutex
	lastMessageProcessed time.Time
	lastSuccess          time.Time
	lastError            time.Time
	lastRecovery         time.Time
	lastSuccessfulRecov  time.Time
	resetTime            time.Time
}

// NewMetricsService creates a metrics service. prom may be nil when no
// Prometheus registry is wired (tests).
func NewMetricsService(logger *slog.Logger, prom *PromMetrics) *MetricsService {
	return &MetricsService{
		logger:    logger,
		prom:      prom,
		now:       time.Now,
		resetTime: time.Now(),
	}
}

// RecordMessageProcessed records the outcome and latency of one message.
func (m *MetricsService) RecordMessageProcessed(success bool, latency time.Duration) {
	m.messagesReceived.Add(1)
	m.totalProcessingMs.Add(latency.Milliseconds())

	now := m.now()
	m.mu.Lock()
	m.lastMessageProcessed = now
	if success {
		m.lastSuccess = now
	} else {
		m.lastError = now
	}
	m.mu.Unlock()

	if success {
		m.messagesSucceeded.Add(1)
	} else {
		m.messagesFailed.Add(1)
	}
	if m.prom != nil {
		m.prom.MessagesProcessed.WithLabelValues(outcomeLabel(success)).Inc()
		m.prom.MessageLatency.Observe(latency.Seconds())
	}
}

// RecordError counts an error by type: validation, deserialization, or
// unexpected. Unknown types count as unexpected.
func (m *MetricsService) RecordError(errorType string) {
	m.mu.Lock()
	m.lastError = m.now()
	m.mu.Unlock()

	switch errorType {
	case "validation":
		m.validationErrors.Add(1)
	case "deserialization":
		m.deserializationErrors.Add(1)
	case "unexpected":
		m.unexpectedErrors.Add(1)
	default:
		m.unexpectedErrors.Add(1)
		m.logger.Warn("unknown error type recorded", "type", errorType)
	}
	if m.prom != nil {
		m.prom.SyncErrors.WithLabelValues(errorType).Inc()
	}
}

// RecordSyncRecovery records one recovery episode. toolCount is the
// resulting inventory size on success and ignored on failure (pass -1).
func (m *MetricsService) RecordSyncRecovery(success bool, duration time.Duration, reason string, toolCount int) {
	m.recoveryTriggered.Add(1)
	m.totalRecoveryMs.Add(duration.Milliseconds())

	now := m.now()
	m.mu.Lock()
	m.lastRecovery = now
	if success {
		m.lastSuccessfulRecov = now
	}
	m.mu.Unlock()

	if success {
		m.recoverySucceeded.Add(1)
		m.RecordInventorySize(toolCount)
		m.logger.Info("recorded successful sync recovery",
			"reason", reason, "duration", duration, "tool_count", toolCount,
			"total_recoveries", m.recoverySucceeded.Load())
	} else {
		m.recoveryFailed.Add(1)
		m.logger.Warn("recorded failed sync recovery",
			"reason", reason, "duration", duration,
			"total_failures", m.recoveryFailed.Load())
	}
	if m.prom != nil {
		m.prom.Recoveries.WithLabelValues(outcomeLabel(success), reason).Inc()
		m.prom.RecoveryDuration.Observe(duration.Seconds())
	}
}

// RecordInventorySize tracks the mirrored inventory size and counts
// transitions between distinct sizes.
func (m *MetricsService) RecordInventorySize(size int) {
	if size < 0 {
		return
	}
	previous := m.lastInventorySize.Swap(int64(size))
	if previous != int64(size) {
		m.inventorySizeChanges.Add(1)
		m.logger.Debug("tool inventory size changed",
			"previous", previous, "current", size)
	}
	if m.prom != nil {
		m.prom.InventorySize.Set(float64(size))
	}
}

// ResetMetrics zeroes all counters and restarts the metrics window.
func (m *MetricsService) ResetMetrics() {
	m.messagesReceived.Store(0)
	m.messagesSucceeded.Store(0)
	m.messagesFailed.Store(0)
	m.totalProcessingMs.Store(0)
	m.validationErrors.Store(0)
	m.deserializationErrors.Store(0)
	m.unexpectedErrors.Store(0)
	m.recoveryTriggered.Store(0)
	m.recoverySucceeded.Store(0)
	m.recoveryFailed.Store(0)
	m.totalRecoveryMs.Store(0)
	m.inventorySizeChanges.Store(0)

	m.mu.Lock()
	m.lastMessageProcessed = time.Time{}
	m.lastSuccess = time.Time{}
	m.lastError = time.Time{}
	m.lastRecovery = time.Time{}
	m.lastSuccessfulRecov = time.Time{}
	m.resetTime = m.now()
	m.mu.Unlock()

	m.logger.Info("sync metrics reset")
}

// SystemHealthStatus derives the engine's health classification:
// idle before any activity, degraded on frequent recoveries or a recent
// unrecovered error, unhealthy when recovery or message success rates
// collapse, healthy otherwise.
func (m *MetricsService) SystemHealthStatus() HealthStatus {
	m.mu.RLock()
	lastSuccess := m.lastSuccess
	lastError := m.lastError
	resetTime := m.resetTime
	m.mu.RUnlock()

	now := m.now()

	if lastSuccess.IsZero() && m.messagesReceived.Load() == 0 {
		return HealthIdle
	}

	if m.recoveryTriggered.Load() > frequentRecoveryCount &&
		now.Sub(resetTime) < frequentRecoveryWindow {
		return HealthDegraded
	}

	if m.recoveryTriggered.Load() > 0 && m.recoverySuccessRate() < 0.5 {
		return HealthUnhealthy
	}

	if m.messageErrorRate() > 0.5 {
		return HealthUnhealthy
	}

	if !lastError.IsZero() && (lastSuccess.IsZero() || lastError.After(lastSuccess)) {
		if now.Sub(lastError) < recentErrorWindow {
			return HealthDegraded
		}
	}

	return HealthHealthy
}

// IsSyncRecoveryFrequent reports whether recoveries exceed the alerting
// threshold within the current metrics window.
func (m *MetricsService) IsSyncRecoveryFrequent() bool {
	m.mu.RLock()
	resetTime := m.resetTime
	m.mu.RUnlock()
	return m.recoveryTriggered.Load() > frequentRecoveryCount &&
		m.now().Sub(resetTime) <= frequentRecoveryWindow
}

// MetricsSummary returns the full aggregate for the admin API.
func (m *MetricsService) MetricsSummary() map[string]any {
	m.mu.RLock()
	lastMessageProcessed := m.lastMessageProcessed
	lastSuccess := m.lastSuccess
	lastError := m.lastError
	lastRecovery := m.lastRecovery
	lastSuccessfulRecov := m.lastSuccessfulRecov
	resetTime := m.resetTime
	m.mu.RUnlock()

	return map[string]any{
		"messageProcessing": map[string]any{
			"messagesReceived":        m.messagesReceived.Load(),
			"messagesSucceeded":       m.messagesSucceeded.Load(),
			"messagesFailed":          m.messagesFailed.Load(),
			"averageProcessingTimeMs": m.averageProcessingMs(),
			"successRate":             m.messageSuccessRate(),
		},
		"errors": map[string]any{
			"validationErrors":      m.validationErrors.Load(),
			"deserializationErrors": m.deserializationErrors.Load(),
			"unexpectedErrors":      m.unexpectedErrors.Load(),
			"totalErrors":           m.totalErrors(),
		},
		"syncRecovery": map[string]any{
			"recoveryTriggered":        m.recoveryTriggered.Load(),
			"recoverySucceeded":        m.recoverySucceeded.Load(),
			"recoveryFailed":           m.recoveryFailed.Load(),
			"averageRecoveryTimeMs":    m.averageRecoveryMs(),
			"recoverySuccessRate":      m.recoverySuccessRate(),
			"toolInventorySizeChanges": m.inventorySizeChanges.Load(),
			"currentToolInventorySize": m.lastInventorySize.Load(),
			"lastRecovery":             timeOrNil(lastRecovery),
			"lastSuccessfulRecovery":   timeOrNil(lastSuccessfulRecov),
		},
		"systemHealth": map[string]any{
			"lastMessageProcessed": timeOrNil(lastMessageProcessed),
			"lastSuccess":          timeOrNil(lastSuccess),
			"lastError":            timeOrNil(lastError),
			"metricsResetTime":     resetTime,
			"status":               m.SystemHealthStatus(),
		},
	}
}

// SyncRecoveryHealthStatus returns the recovery-focused view for monitoring.
func (m *MetricsService) SyncRecoveryHealthStatus() map[string]any {
	m.mu.RLock()
	lastRecovery := m.lastRecovery
	lastSuccessfulRecov := m.lastSuccessfulRecov
	m.mu.RUnlock()

	return map[string]any{
		"isFrequent":               m.IsSyncRecoveryFrequent(),
		"successRate":              m.recoverySuccessRate(),
		"totalTriggered":           m.recoveryTriggered.Load(),
		"totalSucceeded":           m.recoverySucceeded.Load(),
		"totalFailed":              m.recoveryFailed.Load(),
		"averageRecoveryTimeMs":    m.averageRecoveryMs(),
		"lastRecovery":             timeOrNil(lastRecovery),
		"lastSuccessfulRecovery":   timeOrNil(lastSuccessfulRecov),
		"toolInventorySizeChanges": m.inventorySizeChanges.Load(),
		"currentToolInventorySize": m.lastInventorySize.Load(),
	}
}

func (m *MetricsService) averageProcessingMs() float64 {
	n := m.messagesReceived.Load()
	if n == 0 {
		return 0
	}
	return float64(m.totalProcessingMs.Load()) / float64(n)
}

func (m *MetricsService) averageRecoveryMs() float64 {
	n := m.recoveryTriggered.Load()
	if n == 0 {
		return 0
	}
	return float64(m.totalRecoveryMs.Load()) / float64(n)
}

func (m *MetricsService) messageSuccessRate() float64 {
	n := m.messagesReceived.Load()
	if n == 0 {
		return 0
	}
	return float64(m.messagesSucceeded.Load()) / float64(n)
}

func (m *MetricsService) messageErrorRate() float64 {
	n := m.messagesReceived.Load()
	if n == 0 {
		return 0
	}
	return float64(m.messagesFailed.Load()) / float64(n)
}

func (m *MetricsService) recoverySuccessRate() float64 {
	n := m.recoveryTriggered.Load()
	if n == 0 {
		return 0
	}
	return float64(m.recoverySucceeded.Load()) / float64(n)
}

func (m *MetricsService) totalErrors() int64 {
	return m.validationErrors.Load() + m.deserializationErrors.Load() + m.unexpectedErrors.Load()
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
