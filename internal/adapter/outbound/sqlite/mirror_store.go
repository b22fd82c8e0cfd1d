// Package sqlite persists the tool mirror in an embedded sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/domain/tool"
)

const schema = `
CREATE TABLE IF NOT EXISTS tools (
	name            TEXT PRIMARY KEY,
	mcp_server_name TEXT NOT NULL
);`

// MirrorStore is the sqlite-backed tool mirror.
type MirrorStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the mirror database at the given DSN.
func Open(dsn string) (*MirrorStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// The mirror is written by the consumer and the reconciler concurrently;
	// a single connection avoids SQLITE_BUSY from the pure-Go driver.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &MirrorStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *MirrorStore) Close() error {
	return s.db.Close()
}

// Upsert inserts the tool or updates its provider if the name already exists.
func (s *MirrorStore) Upsert(ctx context.Context, t tool.Info) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tools (name, mcp_server_name) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET mcp_server_name = excluded.mcp_server_name`,
		t.Name, t.McpServerName)
	if err != nil {
		return fmt.Errorf("upsert tool %s: %w", t.Name, err)
	}
	return nil
}

// Delete removes the tool by name; deleting an absent name is a no-op.
func (s *MirrorStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete tool %s: %w", name, err)
	}
	return nil
}

// List returns all mirrored tools ordered by name.
func (s *MirrorStore) List(ctx context.Context) ([]tool.Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, mcp_server_name FROM tools ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var out []tool.Info
	for rows.Next() {
		var t tool.Info
		if err := rows.Scan(&t.Name, &t.McpServerName); err != nil {
			return nil, fmt.Errorf("scan tool row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool rows: %w", err)
	}
	return out, nil
}
