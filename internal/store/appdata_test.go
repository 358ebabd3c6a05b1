package store

import (
	"testing"
	"time"

	"github.com/tmorriss/larder/internal/database"
	"github.com/tmorriss/larder/internal/model"
)

func setupSnapshotTestDB(t *testing.T) *SnapshotStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSnapshotStore(db)
}

func TestInitSeedsDefaultSnapshot(t *testing.T) {
	s := setupSnapshotTestDB(t)
	now := time.Now().UTC()

	if err := s.Init(now); err != nil {
		t.Fatalf("init: %v", err)
	}

	data, updatedAt, err := s.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(data.Categories) != 10 {
		t.Errorf("seed categories = %d, want 10", len(data.Categories))
	}
	if len(data.Lists) != 0 || len(data.Recipes) != 0 {
		t.Errorf("seed snapshot should have no lists or recipes, got %d/%d", len(data.Lists), len(data.Recipes))
	}
	if !updatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", updatedAt, now)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	s := setupSnapshotTestDB(t)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Init(first); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := s.Init(first.Add(time.Hour)); err != nil {
		t.Fatalf("second init: %v", err)
	}

	_, updatedAt, err := s.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !updatedAt.Equal(first) {
		t.Errorf("second init must not overwrite, updated_at = %v", updatedAt)
	}
}

func TestGetBeforeInit(t *testing.T) {
	s := setupSnapshotTestDB(t)
	if _, _, err := s.Get(); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSyncPersistsMergedSnapshot(t *testing.T) {
	s := setupSnapshotTestDB(t)
	if err := s.Init(time.Now().UTC()); err != nil {
		t.Fatalf("init: %v", err)
	}

	now := time.Now().UTC()
	client := model.DefaultAppData()
	client.Lists = []model.ShoppingList{{
		ID: "l1", Name: "Groceries", Items: []model.GroceryItem{},
		CreatedAt: now, UpdatedAt: now,
	}}

	merged, updatedAt, err := s.Sync(client, nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(merged.Lists) != 1 || merged.Lists[0].ID != "l1" {
		t.Fatalf("merged lists = %+v", merged.Lists)
	}

	// The persisted state must be exactly what Sync returned.
	stored, storedAt, err := s.Get()
	if err != nil {
		t.Fatalf("get after sync: %v", err)
	}
	if len(stored.Lists) != 1 || stored.Lists[0].Name != "Groceries" {
		t.Errorf("stored lists = %+v", stored.Lists)
	}
	if !storedAt.Equal(updatedAt) {
		t.Errorf("stored updated_at = %v, want %v", storedAt, updatedAt)
	}
}

func TestSyncWithoutInitCreatesRow(t *testing.T) {
	s := setupSnapshotTestDB(t)

	client := model.DefaultAppData()
	merged, _, err := s.Sync(client, nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(merged.Categories) != 10 {
		t.Errorf("merged categories = %d", len(merged.Categories))
	}
	if _, _, err := s.Get(); err != nil {
		t.Errorf("get after first sync: %v", err)
	}
}

func TestStaleClientKeepsServerChanges(t *testing.T) {
	s := setupSnapshotTestDB(t)
	if err := s.Init(time.Now().UTC()); err != nil {
		t.Fatalf("init: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)

	// Client A pushes a list.
	clientA := model.DefaultAppData()
	clientA.Lists = []model.ShoppingList{{
		ID: "a", Name: "From A", CreatedAt: base, UpdatedAt: base,
	}}
	if _, _, err := s.Sync(clientA, nil); err != nil {
		t.Fatalf("sync A: %v", err)
	}

	// Client B syncs a stale snapshot that never saw A's list.
	staleCursor := base.Add(-time.Minute)
	clientB := model.DefaultAppData()
	clientB.Lists = []model.ShoppingList{{
		ID: "b", Name: "From B", CreatedAt: base, UpdatedAt: base,
	}}
	merged, _, err := s.Sync(clientB, &staleCursor)
	if err != nil {
		t.Fatalf("sync B: %v", err)
	}

	ids := map[string]bool{}
	for _, l := range merged.Lists {
		ids[l.ID] = true
	}
	if !ids["a"] || !ids["b"] {
		t.Errorf("merged lists = %v, want union of a and b", ids)
	}
}

func TestReplaceListPreservesID(t *testing.T) {
	s := setupSnapshotTestDB(t)
	now := time.Now().UTC()
	if err := s.Init(now); err != nil {
		t.Fatalf("init: %v", err)
	}

	client := model.DefaultAppData()
	client.Lists = []model.ShoppingList{{ID: "l1", Name: "Old", CreatedAt: now, UpdatedAt: now}}
	if _, _, err := s.Sync(client, nil); err != nil {
		t.Fatalf("seed sync: %v", err)
	}

	incoming := model.ShoppingList{ID: "spoofed", Name: "New", CreatedAt: now, UpdatedAt: now.Add(time.Minute)}
	if err := s.ReplaceList("l1", incoming); err != nil {
		t.Fatalf("replace: %v", err)
	}

	data, _, err := s.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if data.Lists[0].ID != "l1" || data.Lists[0].Name != "New" {
		t.Errorf("got %+v", data.Lists[0])
	}
}

func TestReplaceListUnknownID(t *testing.T) {
	s := setupSnapshotTestDB(t)
	if err := s.Init(time.Now().UTC()); err != nil {
		t.Fatalf("init: %v", err)
	}
	err := s.ReplaceList("nope", model.ShoppingList{ID: "nope", Name: "x"})
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReplaceRecipe(t *testing.T) {
	s := setupSnapshotTestDB(t)
	now := time.Now().UTC()
	if err := s.Init(now); err != nil {
		t.Fatalf("init: %v", err)
	}

	client := model.DefaultAppData()
	client.Recipes = []model.Recipe{{ID: "r1", Title: "Soup", Portions: 2, CreatedAt: now, UpdatedAt: now}}
	if _, _, err := s.Sync(client, nil); err != nil {
		t.Fatalf("seed sync: %v", err)
	}

	if err := s.ReplaceRecipe("r1", model.Recipe{Title: "Stew", Portions: 4, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	data, _, err := s.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if data.Recipes[0].ID != "r1" || data.Recipes[0].Title != "Stew" {
		t.Errorf("got %+v", data.Recipes[0])
	}
}

func TestExportJSONRoundTrips(t *testing.T) {
	s := setupSnapshotTestDB(t)
	if err := s.Init(time.Now().UTC()); err != nil {
		t.Fatalf("init: %v", err)
	}

	raw, _, err := s.ExportJSON()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("empty export")
	}
}
