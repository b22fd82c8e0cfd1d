package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/domain/tool"
)

func openTestStore(t *testing.T) *MirrorStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMirrorStoreUpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Upsert(ctx, tool.Info{Name: "b", McpServerName: "s2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, tool.Info{Name: "a", McpServerName: "s1"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []tool.Info{
		{Name: "a", McpServerName: "s1"},
		{Name: "b", McpServerName: "s2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List = %v, want %v", got, want)
	}
}

func TestMirrorStoreUpsertUpdatesProvider(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_ = s.Upsert(ctx, tool.Info{Name: "t", McpServerName: tool.BuiltInServerName})
	if err := s.Upsert(ctx, tool.Info{Name: "t", McpServerName: "geo-data"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("List = %v, want one row", got)
	}
	if got[0].McpServerName != "geo-data" {
		t.Errorf("provider = %q, want geo-data", got[0].McpServerName)
	}
}

func TestMirrorStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_ = s.Upsert(ctx, tool.Info{Name: "t", McpServerName: "s"})
	if err := s.Delete(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "t"); err != nil {
		t.Errorf("deleting an absent name should be a no-op, got %v", err)
	}
	got, _ := s.List(ctx)
	if len(got) != 0 {
		t.Errorf("List = %v, want empty", got)
	}
}

func TestMirrorStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "mirror.db")

	s, err := Open(dsn)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Upsert(ctx, tool.Info{Name: "t", McpServerName: "s"})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s2.Close() }()

	got, err := s2.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "t" {
		t.Errorf("List after reopen = %v, want [t]", got)
	}
}
