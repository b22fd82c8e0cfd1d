// Package tool contains domain types for the mirrored tool inventory and
// the incremental update messages announced by the agent.
package tool

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// BuiltInServerName is the sentinel provider name for intrinsic tools that
// are not supplied by an external MCP server.
const BuiltInServerName = "built-in"

// nameRe matches valid tool names: letters, digits, underscore, hyphen.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidName returns true if name is a well-formed tool name.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// Info identifies a single tool and the MCP server that provides it.
// Equality is by (Name, McpServerName). Immutable value object.
type Info struct {
	// Name is the unique tool identifier (required).
	Name string `json:"name"`

	// McpServerName identifies the providing MCP server, or
	// BuiltInServerName for intrinsic tools (required).
	McpServerName string `json:"mcpServerName"`
}

// Valid returns true if both identity fields are present and non-blank.
func (i Info) Valid() bool {
	return strings.TrimSpace(i.Name) != "" && strings.TrimSpace(i.McpServerName) != ""
}

func (i Info) String() string {
	return i.Name + "(" + i.McpServerName + ")"
}

// UpdateMessage is the queue payload describing an incremental change to the
// agent's tool set. Each message is processed at most once; a lost message is
// compensated by full-snapshot recovery, not redelivery.
type UpdateMessage struct {
	MessageID    string    `json:"messageId"`
	Timestamp    time.Time `json:"timestamp"`
	AddedTools   []string  `json:"addedTools"`
	RemovedTools []string  `json:"removedTools"`
	Source       string    `json:"source"`
}

// HasChanges reports whether the message carries at least one change.
// A message asserting zero changes is invalid.
func (m *UpdateMessage) HasChanges() bool {
	return len(m.AddedTools) > 0 || len(m.RemovedTools) > 0
}

// Validate checks the structural invariants of an update message: required
// fields, well-formed tool names, at least one change, and (when maxAge > 0)
// freshness within maxAge of now in either direction to tolerate clock skew.
func (m *UpdateMessage) Validate(now time.Time, maxAge time.Duration) error {
	if m == nil {
		return fmt.Errorf("message is nil")
	}
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("messageId is empty")
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is missing")
	}
	if strings.TrimSpace(m.Source) == "" {
		return fmt.Errorf("source is empty")
	}
	if m.AddedTools == nil {
		return fmt.Errorf("addedTools is absent")
	}
	if m.RemovedTools == nil {
		return fmt.Errorf("removedTools is absent")
	}
	for _, name := range m.AddedTools {
		if !ValidName(name) {
			return fmt.Errorf("invalid added tool name %q", name)
		}
	}
	for _, name := range m.RemovedTools {
		if !ValidName(name) {
			return fmt.Errorf("invalid removed tool name %q", name)
		}
	}
	if maxAge > 0 {
		age := now.Sub(m.Timestamp)
		if age > maxAge || age < -maxAge {
			return fmt.Errorf("message timestamp %s outside freshness window %s",
				m.Timestamp.Format(time.RFC3339), maxAge)
		}
	}
	if !m.HasChanges() {
		return fmt.Errorf("message carries no changes")
	}
	return nil
}

// IsValid is the boolean form of Validate without a freshness check.
func (m *UpdateMessage) IsValid() bool {
	return m != nil && m.Validate(time.Time{}, 0) == nil
}
