package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/domain/tool"
)

// MirrorStore holds the tool mirror in a map. Safe for concurrent use.
type MirrorStore struct {
	mu    sync.RWMutex
	tools map[string]string // name -> mcp server name
}

// NewMirrorStore creates an empty in-memory mirror.
func NewMirrorStore() *MirrorStore {
	return &MirrorStore{tools: make(map[string]string)}
}

// Upsert inserts or updates the tool keyed by name.
func (s *MirrorStore) Upsert(_ context.Context, t tool.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.Name] = t.McpServerName
	return nil
}

// Delete removes the tool by name; deleting an absent name is a no-op.
func (s *MirrorStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tools, name)
	return nil
}

// List returns all mirrored tools ordered by name.
func (s *MirrorStore) List(_ context.Context) ([]tool.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tool.Info, 0, len(s.tools))
	for name, server := range s.tools {
		out = append(out, tool.Info{Name: name, McpServerName: server})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
