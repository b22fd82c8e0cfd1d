// Package resync defines the wire types and retry timing for the
// full-snapshot resync protocol between this service and the agent.
package resync

import (
	"time"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/domain/tool"
)

// Request asks the agent for a complete tool inventory.
type Request struct {
	// RequestID is a fresh unique value per HTTP attempt, logged for
	// traceability across both services.
	RequestID string `json:"requestId"`

	// Timestamp is the request creation time.
	Timestamp time.Time `json:"timestamp"`

	// Reason is a free-text diagnostic, e.g. "consecutive_failures".
	Reason string `json:"reason"`
}

// InventoryResponse is the agent's authoritative snapshot.
type InventoryResponse struct {
	// RequestID echoes the triggering request.
	RequestID string `json:"requestId"`

	// Timestamp is the response creation time.
	Timestamp time.Time `json:"timestamp"`

	// CurrentTools is the complete current tool set. An empty list is a
	// legitimate state; a null/absent list is a protocol error, which the
	// JSON decoder surfaces as a nil slice.
	CurrentTools []tool.Info `json:"currentTools"`

	// DiscoveryTimestamp is when the agent last refreshed its own view.
	DiscoveryTimestamp time.Time `json:"discoveryTimestamp"`
}

// Backoff returns the delay to wait before the given 1-based attempt.
// Attempt 1 is immediate; attempt k > 1 waits initial * 2^(k-2), so the
// sequence is 0, 1x, 2x, 4x, ... No jitter.
func Backoff(initial time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return initial << (attempt - 2)
}
