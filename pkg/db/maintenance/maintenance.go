package maintenance

import (
	"context"
	"log/slog"
	"time"

	"mikanlink/pkg/db"
	"mikanlink/pkg/store"
)

// LastRunKey is the state key holding the time of the last completed run.
const LastRunKey = "maintenance_last_run"

// DefaultSnapshotRetention is how long an anchor that has not been seen stays
// in the snapshot table.
const DefaultSnapshotRetention = 30 * 24 * time.Hour

// Run prunes stale anchor snapshots and records the run. Failures are logged;
// startup is never blocked by maintenance.
func Run(ctx context.Context, s store.StateStore, d *db.DB, retention time.Duration) error {
	if retention <= 0 {
		retention = DefaultSnapshotRetention
	}
	slog.Info("Starting database maintenance...")

	n, err := d.PruneSnapshots(retention)
	if err != nil {
		slog.Error("Snapshot pruning failed", "error", err)
		return nil
	}
	slog.Info("Snapshot pruning completed", "removed", n)

	if err := s.SetState(ctx, LastRunKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("Failed to record maintenance run", "error", err)
	}
	return nil
}
