package syncagent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmorriss/larder/internal/merge"
	"github.com/tmorriss/larder/internal/model"
)

// CreateList adds a new empty shopping list to the local snapshot and
// returns its minted id.
func (a *Agent) CreateList(name string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	err := a.store.Mutate(func(data *model.AppData) error {
		data.Lists = append(data.Lists, model.ShoppingList{
			ID:        id,
			Name:      name,
			Items:     []model.GroceryItem{},
			CreatedAt: now,
			UpdatedAt: now,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddItem appends an item to a local list, refreshes the list's
// updatedAt (the merge tie-break field), and records the item in the
// autocomplete history.
func (a *Agent) AddItem(listID, name string, quantity float64, unit, categoryID string) (string, error) {
	if !model.ValidUnit(unit) {
		return "", fmt.Errorf("unknown unit %q", unit)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	err := a.store.Mutate(func(data *model.AppData) error {
		for i := range data.Lists {
			if data.Lists[i].ID != listID {
				continue
			}
			data.Lists[i].Items = append(data.Lists[i].Items, model.GroceryItem{
				ID:         id,
				Name:       name,
				Quantity:   quantity,
				Unit:       unit,
				CategoryID: categoryID,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			data.Lists[i].Touch(now)
			data.ItemHistory = merge.MergeHistory(data.ItemHistory, []model.ItemHistoryEntry{{
				Name:       model.NormalizeHistoryName(name),
				CategoryID: categoryID,
				Unit:       unit,
				Count:      historyCount(data.ItemHistory, name) + 1,
			}})
			return nil
		}
		return fmt.Errorf("list %q not found", listID)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ToggleBought flips an item's bought flag, refreshing both item and list
// updatedAt.
func (a *Agent) ToggleBought(listID, itemID string) error {
	now := time.Now().UTC()
	return a.store.Mutate(func(data *model.AppData) error {
		for i := range data.Lists {
			if data.Lists[i].ID != listID {
				continue
			}
			for j := range data.Lists[i].Items {
				if data.Lists[i].Items[j].ID == itemID {
					data.Lists[i].Items[j].Bought = !data.Lists[i].Items[j].Bought
					data.Lists[i].Items[j].UpdatedAt = now
					data.Lists[i].Touch(now)
					return nil
				}
			}
			return fmt.Errorf("item %q not found", itemID)
		}
		return fmt.Errorf("list %q not found", listID)
	})
}

func historyCount(history []model.ItemHistoryEntry, name string) int {
	key := model.NormalizeHistoryName(name)
	for _, e := range history {
		if e.Name == key {
			return e.Count
		}
	}
	return 0
}
