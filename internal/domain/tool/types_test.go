package tool

import (
	"testing"
	"time"
)

func TestValidName(t *testing.T) {
	valid := []string{"t1", "file_write", "geo-data", "A", "tool_2-b"}
	for _, name := range valid {
		if !ValidName(name) {
			t.Errorf("ValidName(%q) = false, want true", name)
		}
	}
	invalid := []string{"", "has space", "semi;colon", "dot.name", "tab\tname", "emoji🙂"}
	for _, name := range invalid {
		if ValidName(name) {
			t.Errorf("ValidName(%q) = true, want false", name)
		}
	}
}

func TestInfoValid(t *testing.T) {
	if !(Info{Name: "t1", McpServerName: "geo-data"}).Valid() {
		t.Error("complete Info should be valid")
	}
	if !(Info{Name: "t1", McpServerName: BuiltInServerName}).Valid() {
		t.Error("built-in Info should be valid")
	}
	for _, i := range []Info{
		{Name: "", McpServerName: "s"},
		{Name: "t", McpServerName: ""},
		{Name: "   ", McpServerName: "s"},
		{Name: "t", McpServerName: "  "},
	} {
		if i.Valid() {
			t.Errorf("Info %+v should be invalid", i)
		}
	}
}

func validMessage() UpdateMessage {
	return UpdateMessage{
		MessageID:    "m1",
		Timestamp:    time.Now(),
		AddedTools:   []string{"t1"},
		RemovedTools: []string{},
		Source:       "agent",
	}
}

func TestUpdateMessageIsValid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*UpdateMessage)
		want   bool
	}{
		{"valid with added tool", func(m *UpdateMessage) {}, true},
		{"valid with removed tool only", func(m *UpdateMessage) {
			m.AddedTools = []string{}
			m.RemovedTools = []string{"t2"}
		}, true},
		{"valid with both lists populated", func(m *UpdateMessage) {
			m.RemovedTools = []string{"t2"}
		}, true},
		{"empty messageId", func(m *UpdateMessage) { m.MessageID = "" }, false},
		{"whitespace messageId", func(m *UpdateMessage) { m.MessageID = "   " }, false},
		{"zero timestamp", func(m *UpdateMessage) { m.Timestamp = time.Time{} }, false},
		{"empty source", func(m *UpdateMessage) { m.Source = "" }, false},
		{"whitespace source", func(m *UpdateMessage) { m.Source = "\t " }, false},
		{"nil addedTools", func(m *UpdateMessage) { m.AddedTools = nil }, false},
		{"nil removedTools", func(m *UpdateMessage) { m.RemovedTools = nil }, false},
		{"both lists empty", func(m *UpdateMessage) {
			m.AddedTools = []string{}
			m.RemovedTools = []string{}
		}, false},
		{"added tool name with space", func(m *UpdateMessage) {
			m.AddedTools = []string{"bad name"}
		}, false},
		{"removed tool name with symbol", func(m *UpdateMessage) {
			m.RemovedTools = []string{"bad!name"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMessage()
			tt.mutate(&m)
			if got := m.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdateMessageNil(t *testing.T) {
	var m *UpdateMessage
	if m.IsValid() {
		t.Error("nil message should be invalid")
	}
}

func TestUpdateMessageFreshness(t *testing.T) {
	now := time.Now()
	maxAge := 30 * time.Minute

	m := validMessage()
	m.Timestamp = now.Add(-29 * time.Minute)
	if err := m.Validate(now, maxAge); err != nil {
		t.Errorf("message within window rejected: %v", err)
	}

	m.Timestamp = now.Add(-31 * time.Minute)
	if err := m.Validate(now, maxAge); err == nil {
		t.Error("stale message accepted")
	}

	m.Timestamp = now.Add(31 * time.Minute)
	if err := m.Validate(now, maxAge); err == nil {
		t.Error("far-future message accepted")
	}

	// Zero maxAge disables the check.
	m.Timestamp = now.Add(-24 * time.Hour)
	if err := m.Validate(now, 0); err != nil {
		t.Errorf("freshness check should be disabled with maxAge 0: %v", err)
	}
}
