package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mikanlink/pkg/db"
	"mikanlink/pkg/store"
)

func TestMaintenance(t *testing.T) {
	tempDir := t.TempDir()
	d, err := db.Init(filepath.Join(tempDir, "maint_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	s := store.NewSQLiteStore(d)
	ctx := context.Background()

	oldStamp := time.Now().Add(-40 * 24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO anchor_snapshot (name, anchor_id, transform, updated_at) VALUES (?, ?, ?, ?)", "gone", 1, "{}", oldStamp); err != nil {
		t.Fatal(err)
	}
	newStamp := time.Now().Add(-24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO anchor_snapshot (name, anchor_id, transform, updated_at) VALUES (?, ?, ?, ?)", "table", 2, "{}", newStamp); err != nil {
		t.Fatal(err)
	}

	if err := Run(ctx, s, d, 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var count int
	if err := d.QueryRow("SELECT count(*) FROM anchor_snapshot WHERE name = ?", "gone").Scan(&count); err != nil {
		t.Errorf("Failed to query snapshot count: %v", err)
	}
	if count != 0 {
		t.Error("Old snapshot was not pruned")
	}
	if err := d.QueryRow("SELECT count(*) FROM anchor_snapshot WHERE name = ?", "table").Scan(&count); err != nil {
		t.Errorf("Failed to query snapshot count: %v", err)
	}
	if count != 1 {
		t.Error("Recent snapshot was incorrectly pruned")
	}

	if _, found := s.GetState(ctx, LastRunKey); !found {
		t.Error("State not updated after maintenance")
	}
}
