// Package localstore is the device-side durable snapshot. Pure storage:
// no merge logic, no networking.
package localstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tmorriss/larder/internal/model"
)

const timeLayout = time.RFC3339Nano

// Store holds one device's copy of the full dataset plus the lastSynced
// watermark the sync protocol revolves around.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Load returns the local snapshot and last-synced time. A device that has
// never saved anything gets the default dataset and a nil lastSynced.
func (s *Store) Load() (*model.AppData, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save replaces the local snapshot wholesale.
func (s *Store) Save(data *model.AppData, lastSynced *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(data, lastSynced)
}

// Mutate applies fn to a fresh copy of the snapshot and persists the
// result, all under the store lock. The current lastSynced is kept; local
// edits do not advance the sync watermark.
func (s *Store) Mutate(fn func(*model.AppData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, lastSynced, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(data); err != nil {
		return err
	}
	return s.save(data, lastSynced)
}

// load reads the snapshot row. Callers must hold s.mu.
func (s *Store) load() (*model.AppData, *time.Time, error) {
	var raw string
	var lastSynced sql.NullString
	err := s.db.QueryRow(`SELECT data, last_synced FROM local_snapshot WHERE id = 1`).Scan(&raw, &lastSynced)
	if err == sql.ErrNoRows {
		return model.DefaultAppData(), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load local snapshot: %w", err)
	}

	var data model.AppData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, nil, fmt.Errorf("decode local snapshot: %w", err)
	}

	if !lastSynced.Valid {
		return &data, nil, nil
	}
	at, err := time.Parse(timeLayout, lastSynced.String)
	if err != nil {
		return nil, nil, fmt.Errorf("parse last_synced: %w", err)
	}
	return &data, &at, nil
}

// save writes the snapshot row. Callers must hold s.mu.
func (s *Store) save(data *model.AppData, lastSynced *time.Time) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal local snapshot: %w", err)
	}

	var ls any
	if lastSynced != nil {
		ls = lastSynced.UTC().Format(timeLayout)
	}
	_, err = s.db.Exec(
		`INSERT INTO local_snapshot (id, data, last_synced) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data, last_synced = excluded.last_synced`,
		string(raw), ls,
	)
	if err != nil {
		return fmt.Errorf("save local snapshot: %w", err)
	}
	return nil
}
