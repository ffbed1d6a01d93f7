package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"mikanlink/pkg/db"
	"mikanlink/pkg/xform"
)

func TestSQLiteStore(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	defer d.Close()

	store := NewSQLiteStore(d)
	ctx := context.Background()

	testState(t, ctx, store)
	testAnchors(t, ctx, store)
}

func testState(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("State", func(t *testing.T) {
		if _, hit := store.GetState(ctx, "my_key"); hit {
			t.Error("Expected miss before SetState")
		}
		if err := store.SetState(ctx, "my_key", "my_val"); err != nil {
			t.Errorf("SetState failed: %v", err)
		}
		sVal, sHit := store.GetState(ctx, "my_key")
		if !sHit {
			t.Error("Expected state hit")
		}
		if sVal != "my_val" {
			t.Errorf("Expected 'my_val', got '%s'", sVal)
		}

		if err := store.SetState(ctx, "my_key", "other"); err != nil {
			t.Errorf("SetState overwrite failed: %v", err)
		}
		if v, _ := store.GetState(ctx, "my_key"); v != "other" {
			t.Errorf("Expected 'other', got '%s'", v)
		}

		if err := store.DeleteState(ctx, "my_key"); err != nil {
			t.Errorf("DeleteState failed: %v", err)
		}
		if _, hit := store.GetState(ctx, "my_key"); hit {
			t.Error("Expected miss after DeleteState")
		}
	})
}

func testAnchors(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Anchors", func(t *testing.T) {
		table := xform.Transform{
			Position: mgl64.Vec3{100, -20, 75},
			Rotation: mgl64.QuatRotate(0.5, mgl64.Vec3{0, 0, 1}),
			Scale:    mgl64.Vec3{1, 1, 1},
		}
		snaps := []AnchorSnapshot{
			{Name: "table", ID: 3, Transform: table},
			{Name: "door", ID: 1, Transform: xform.Identity()},
		}
		if err := store.SaveAnchors(ctx, snaps); err != nil {
			t.Fatalf("SaveAnchors failed: %v", err)
		}

		got, err := store.ListAnchors(ctx)
		if err != nil {
			t.Fatalf("ListAnchors failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 anchors, got %d", len(got))
		}
		if got[0].Name != "door" || got[1].Name != "table" {
			t.Errorf("Expected name order [door table], got [%s %s]", got[0].Name, got[1].Name)
		}
		if got[1].ID != 3 {
			t.Errorf("Expected id 3, got %d", got[1].ID)
		}
		if !got[1].Transform.ApproxEqual(table, 1e-9) {
			t.Errorf("Transform mismatch: %+v", got[1].Transform)
		}
		if got[1].UpdatedAt.IsZero() {
			t.Error("Expected UpdatedAt to be set")
		}

		// Re-saving by name replaces the row.
		moved := table
		moved.Position = mgl64.Vec3{0, 0, 0}
		if err := store.SaveAnchors(ctx, []AnchorSnapshot{{Name: "table", ID: 9, Transform: moved}}); err != nil {
			t.Fatalf("SaveAnchors failed: %v", err)
		}
		got, _ = store.ListAnchors(ctx)
		if len(got) != 2 || got[1].ID != 9 {
			t.Errorf("Expected table to be replaced, got %+v", got)
		}
	})
}
