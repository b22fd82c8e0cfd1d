package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/domain/tool"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/port/outbound"
)

// Reconciler makes the persisted mirror equal to an authoritative snapshot.
// The operation is idempotent: applying the same snapshot twice yields the
// same end state. It is not atomic across large inventories; a partial
// failure leaves a valid state that a later recovery converges from.
type Reconciler struct {
	mirror outbound.MirrorStore
	logger *slog.Logger
}

// NewReconciler creates a reconciler over the given mirror store.
func NewReconciler(mirror outbound.MirrorStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{mirror: mirror, logger: logger}
}

// Apply replaces the mirror's contents with the snapshot: entries with a
// blank name or provider are filtered out first, snapshot tools are
// upserted, and local tools absent from the snapshot are removed. Returns
// the resulting inventory size.
func (r *Reconciler) Apply(ctx context.Context, snapshot []tool.Info) (int, error) {
	desired := make(map[string]tool.Info, len(snapshot))
	var filtered int
	for _, t := range snapshot {
		if !t.Valid() {
			filtered++
			continue
		}
		desired[t.Name] = t
	}
	if filtered > 0 {
		r.logger.Warn("filtered invalid entries from inventory snapshot",
			"filtered", filtered, "kept", len(desired))
	}

	existing, err := r.mirror.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list mirror: %w", err)
	}

	var inserted, removed int
	for _, t := range desired {
		if err := r.mirror.Upsert(ctx, t); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", t.Name, err)
		}
		inserted++
	}
	for _, t := range existing {
		if _, keep := desired[t.Name]; keep {
			continue
		}
		if err := r.mirror.Delete(ctx, t.Name); err != nil {
			return 0, fmt.Errorf("delete %s: %w", t.Name, err)
		}
		removed++
	}

	r.logger.Info("reconciled tool inventory",
		"snapshot", len(desired), "upserted", inserted, "removed", removed)
	return len(desired), nil
}
