// Package store persists the authoritative snapshot, share tokens, and
// push subscriptions in SQLite.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a row or an entity inside the snapshot
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when the optimistic concurrency check on the
// snapshot fails repeatedly (another writer keeps winning the persist
// race).
var ErrConflict = errors.New("snapshot write conflict")

// timeLayout is how timestamps are stored in TEXT columns.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
