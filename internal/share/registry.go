// Package share implements the capability-token registry that grants
// bearers of a link read/write access to exactly one list or recipe.
package share

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmorriss/larder/internal/model"
	"github.com/tmorriss/larder/internal/relay"
	"github.com/tmorriss/larder/internal/store"
)

// ErrInvalidEntity marks a write body that failed to decode or validate.
// Handlers map it to a 400 rather than a 500.
var ErrInvalidEntity = errors.New("invalid entity")

// Registry glues the token store, the authoritative snapshot, and the
// relay together. It never exposes a mutable reference to the snapshot.
type Registry struct {
	shares    *store.ShareStore
	snapshots *store.SnapshotStore
	hub       *relay.Hub
	logger    *slog.Logger
}

func NewRegistry(shares *store.ShareStore, snapshots *store.SnapshotStore, hub *relay.Hub, logger *slog.Logger) *Registry {
	return &Registry{shares: shares, snapshots: snapshots, hub: hub, logger: logger}
}

// Room returns the relay room name for a share.
func Room(shareType, token string) string {
	return shareType + ":" + token
}

// Issue mints (or returns the existing) token for an entity.
func (r *Registry) Issue(shareType, itemID string) (string, error) {
	if !model.ValidShareType(shareType) {
		return "", fmt.Errorf("unknown share type %q", shareType)
	}
	return r.shares.Issue(shareType, itemID)
}

// Read resolves a token and returns the live entity plus its id. A token
// whose entity was deleted fails closed with store.ErrNotFound: it is
// never reassigned to another entity.
func (r *Registry) Read(shareType, token string) (any, string, error) {
	itemID, err := r.shares.Resolve(shareType, token)
	if err != nil {
		return nil, "", err
	}

	data, _, err := r.snapshots.Get()
	if err != nil {
		return nil, "", err
	}

	switch shareType {
	case model.ShareTypeList:
		for i := range data.Lists {
			if data.Lists[i].ID == itemID {
				return data.Lists[i], itemID, nil
			}
		}
	case model.ShareTypeRecipe:
		for i := range data.Recipes {
			if data.Recipes[i].ID == itemID {
				return data.Recipes[i], itemID, nil
			}
		}
	}
	return nil, "", store.ErrNotFound
}

// updatePayload is the broadcast body sent after a server-applied write.
type updatePayload struct {
	Item any    `json:"item"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Write replaces the shared entity's full value (its id is preserved
// regardless of what the body claims), bumps the authoritative
// updated_at, and broadcasts the update to the share's room. The
// broadcast excludes no one: server-applied writes reach every
// subscriber, including the token's original creator.
func (r *Registry) Write(shareType, token string, body json.RawMessage) error {
	itemID, err := r.shares.Resolve(shareType, token)
	if err != nil {
		return err
	}

	var item any
	switch shareType {
	case model.ShareTypeList:
		var list model.ShoppingList
		if err := json.Unmarshal(body, &list); err != nil {
			return fmt.Errorf("%w: decode list: %v", ErrInvalidEntity, err)
		}
		list.ID = itemID
		if err := list.Validate(); err != nil {
			return fmt.Errorf("%w: list: %v", ErrInvalidEntity, err)
		}
		if err := r.snapshots.ReplaceList(itemID, list); err != nil {
			return err
		}
		item = list
	case model.ShareTypeRecipe:
		var recipe model.Recipe
		if err := json.Unmarshal(body, &recipe); err != nil {
			return fmt.Errorf("%w: decode recipe: %v", ErrInvalidEntity, err)
		}
		recipe.ID = itemID
		if err := recipe.Validate(); err != nil {
			return fmt.Errorf("%w: recipe: %v", ErrInvalidEntity, err)
		}
		if err := r.snapshots.ReplaceRecipe(itemID, recipe); err != nil {
			return err
		}
		item = recipe
	default:
		return store.ErrNotFound
	}

	r.hub.Publish(Room(shareType, token), relay.EventUpdate, updatePayload{
		Item: item,
		Type: shareType,
		ID:   itemID,
	}, nil)

	r.logger.Info("shared entity updated", "type", shareType, "id", itemID)
	return nil
}
