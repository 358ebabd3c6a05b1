package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tmorriss/larder/internal/model"
)

// tokenBytes gives 128 bits of entropy; tokens are 32 hex characters.
const tokenBytes = 16

// ShareStore persists capability tokens for shared lists and recipes.
type ShareStore struct {
	db *sql.DB
}

func NewShareStore(db *sql.DB) *ShareStore {
	return &ShareStore{db: db}
}

// Issue returns the token for (shareType, itemID), minting one on first
// use. Issuance is idempotent: repeated calls return the same token.
func (s *ShareStore) Issue(shareType, itemID string) (string, error) {
	var token string
	err := s.db.QueryRow(
		`SELECT token FROM share_tokens WHERE type = ? AND item_id = ?`,
		shareType, itemID,
	).Scan(&token)
	if err == nil {
		return token, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("lookup share token: %w", err)
	}

	token, err = newToken()
	if err != nil {
		return "", err
	}
	_, err = s.db.Exec(
		`INSERT INTO share_tokens (token, type, item_id, created_at) VALUES (?, ?, ?, ?)`,
		token, shareType, itemID, formatTime(time.Now()),
	)
	if err != nil {
		// A concurrent Issue for the same entity can hit the UNIQUE
		// (type, item_id) constraint; the first writer's token wins.
		var existing string
		if selErr := s.db.QueryRow(
			`SELECT token FROM share_tokens WHERE type = ? AND item_id = ?`,
			shareType, itemID,
		).Scan(&existing); selErr == nil {
			return existing, nil
		}
		return "", fmt.Errorf("insert share token: %w", err)
	}
	return token, nil
}

// Resolve maps a token back to the entity id it was issued for.
// ErrNotFound if the token is unknown for the given type. Resolution
// never checks whether the entity still exists; dangling tokens stay on
// record and are rejected one layer up.
func (s *ShareStore) Resolve(shareType, token string) (string, error) {
	var itemID string
	err := s.db.QueryRow(
		`SELECT item_id FROM share_tokens WHERE token = ? AND type = ?`,
		token, shareType,
	).Scan(&itemID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve share token: %w", err)
	}
	return itemID, nil
}

// Get returns the full token record. ErrNotFound if unknown.
func (s *ShareStore) Get(shareType, token string) (*model.ShareToken, error) {
	var t model.ShareToken
	var createdAt string
	err := s.db.QueryRow(
		`SELECT token, type, item_id, created_at FROM share_tokens WHERE token = ? AND type = ?`,
		token, shareType,
	).Scan(&t.Token, &t.Type, &t.ItemID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get share token: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse share token created_at: %w", err)
	}
	return &t, nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
