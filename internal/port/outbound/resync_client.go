package outbound

import (
	"context"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/domain/resync"
)

// ResyncClient obtains one authoritative inventory snapshot from the agent,
// tolerating transient failure internally. It returns an error only after its
// bounded retry budget is exhausted or the context is cancelled.
type ResyncClient interface {
	RequestInventory(ctx context.Context, reason string) (*resync.InventoryResponse, error)
}
