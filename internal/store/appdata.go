package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tmorriss/larder/internal/merge"
	"github.com/tmorriss/larder/internal/model"
)

// casAttempts bounds the compare-and-swap retry loop on the persist step.
// The in-process mutex already serializes handlers; the CAS only matters
// when a second process (backup restore, migration tooling) writes the
// same database file.
const casAttempts = 3

// SnapshotStore owns the single authoritative AppData snapshot. Every
// mutation is a full read-modify-write of the whole snapshot under one
// mutex; callers never receive a mutable reference to shared state.
type SnapshotStore struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Init seeds the snapshot row with the default dataset if none exists.
func (s *SnapshotStore) Init(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM app_data WHERE id = 1`).Scan(&one)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check snapshot: %w", err)
	}

	data, err := json.Marshal(model.DefaultAppData())
	if err != nil {
		return fmt.Errorf("marshal default snapshot: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO app_data (id, data, updated_at) VALUES (1, ?, ?)`,
		string(data), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("seed snapshot: %w", err)
	}
	return nil
}

// Get returns the current snapshot and its updated_at. ErrNotFound if the
// store was never initialized.
func (s *SnapshotStore) Get() (*model.AppData, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load reads the snapshot row. Callers must hold s.mu.
func (s *SnapshotStore) load() (*model.AppData, time.Time, error) {
	var raw, updatedAt string
	err := s.db.QueryRow(`SELECT data, updated_at FROM app_data WHERE id = 1`).Scan(&raw, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load snapshot: %w", err)
	}

	var data model.AppData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode snapshot: %w", err)
	}
	at, err := parseTime(updatedAt)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse snapshot updated_at: %w", err)
	}
	return &data, at, nil
}

// persist writes the snapshot with a compare-and-swap on updated_at.
// Returns false when another writer got there first. Callers must hold
// s.mu.
func (s *SnapshotStore) persist(data *model.AppData, prev, now time.Time) (bool, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("marshal snapshot: %w", err)
	}
	res, err := s.db.Exec(
		`UPDATE app_data SET data = ?, updated_at = ? WHERE id = 1 AND updated_at = ?`,
		string(raw), formatTime(now), formatTime(prev),
	)
	if err != nil {
		return false, fmt.Errorf("persist snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// insert creates the snapshot row from scratch. Callers must hold s.mu.
func (s *SnapshotStore) insert(data *model.AppData, now time.Time) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO app_data (id, data, updated_at) VALUES (1, ?, ?)`,
		string(raw), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Sync runs one reconciliation round: load the authoritative snapshot,
// merge the client's snapshot into it, and persist the result as the new
// authoritative state. Returns the merged snapshot and its new updated_at.
func (s *SnapshotStore) Sync(client *model.AppData, clientLastSynced *time.Time) (*model.AppData, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < casAttempts; attempt++ {
		server, serverUpdatedAt, err := s.load()
		if err != nil && err != ErrNotFound {
			return nil, time.Time{}, err
		}

		now := time.Now().UTC()
		merged := merge.Merge(server, serverUpdatedAt, client, clientLastSynced, now)

		if server == nil {
			if err := s.insert(merged, now); err != nil {
				return nil, time.Time{}, err
			}
			return merged, now, nil
		}

		ok, err := s.persist(merged, serverUpdatedAt, now)
		if err != nil {
			return nil, time.Time{}, err
		}
		if ok {
			return merged, now, nil
		}
		// Lost the persist race to another process: reload and re-merge.
	}
	return nil, time.Time{}, ErrConflict
}

// ReplaceList swaps the full value of one list, preserving its id, and
// bumps the authoritative updated_at. ErrNotFound if the list is gone.
func (s *SnapshotStore) ReplaceList(id string, list model.ShoppingList) error {
	list.ID = id
	return s.replaceEntity(func(data *model.AppData) bool {
		for i := range data.Lists {
			if data.Lists[i].ID == id {
				data.Lists[i] = list
				return true
			}
		}
		return false
	})
}

// ReplaceRecipe swaps the full value of one recipe, preserving its id, and
// bumps the authoritative updated_at. ErrNotFound if the recipe is gone.
func (s *SnapshotStore) ReplaceRecipe(id string, recipe model.Recipe) error {
	recipe.ID = id
	return s.replaceEntity(func(data *model.AppData) bool {
		for i := range data.Recipes {
			if data.Recipes[i].ID == id {
				data.Recipes[i] = recipe
				return true
			}
		}
		return false
	})
}

func (s *SnapshotStore) replaceEntity(apply func(*model.AppData) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < casAttempts; attempt++ {
		data, updatedAt, err := s.load()
		if err != nil {
			return err
		}
		if !apply(data) {
			return ErrNotFound
		}
		ok, err := s.persist(data, updatedAt, time.Now().UTC())
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrConflict
}

// ExportJSON returns the raw snapshot document for backup.
func (s *SnapshotStore) ExportJSON() ([]byte, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw, updatedAt string
	err := s.db.QueryRow(`SELECT data, updated_at FROM app_data WHERE id = 1`).Scan(&raw, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("export snapshot: %w", err)
	}
	at, err := parseTime(updatedAt)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse snapshot updated_at: %w", err)
	}
	return []byte(raw), at, nil
}
