package outbound

import (
	"context"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/domain/tool"
)

// MirrorStore persists the local copy of the agent's tool inventory.
// Upsert is idempotent by tool name; Delete of an absent name is a no-op.
type MirrorStore interface {
	Upsert(ctx context.Context, t tool.Info) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]tool.Info, error)
}
