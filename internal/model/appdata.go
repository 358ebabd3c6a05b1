package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// HistoryLimit caps the autocomplete frequency table. Oldest-inserted
// entries are evicted first; the table is not reordered on use.
const HistoryLimit = 500

// Category is user-defined taxonomy. Items reference it by id as a soft
// reference: deleting a category never deletes items, it only breaks their
// color/icon lookup.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

// ItemHistoryEntry is one row of the autocomplete frequency table, keyed
// by normalized name. Count is a cumulative usage signal.
type ItemHistoryEntry struct {
	Name       string `json:"name"`
	CategoryID string `json:"categoryId,omitempty"`
	Unit       string `json:"unit,omitempty"`
	Count      int    `json:"count"`
}

// NormalizeHistoryName returns the canonical form of a history key.
func NormalizeHistoryName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// UnmarshalJSON accepts either the structured object form or a legacy bare
// string (older clients stored plain item names). The legacy form is
// normalized to a structured entry at the ingestion boundary and never
// carried further.
func (e *ItemHistoryEntry) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*e = ItemHistoryEntry{Name: NormalizeHistoryName(name), Count: 1}
		return nil
	}

	type structured ItemHistoryEntry
	var s structured
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s.Name = NormalizeHistoryName(s.Name)
	if s.Count < 1 {
		s.Count = 1
	}
	*e = ItemHistoryEntry(s)
	return nil
}

// AppData is the full per-device snapshot and the unit of reconciliation.
type AppData struct {
	Lists       []ShoppingList     `json:"lists"`
	Recipes     []Recipe           `json:"recipes"`
	Categories  []Category         `json:"categories"`
	ItemHistory []ItemHistoryEntry `json:"itemHistory"`
	LastSynced  *time.Time         `json:"lastSynced"`
}

// DefaultAppData returns the snapshot a fresh install starts from: empty
// collections plus the stock category taxonomy.
func DefaultAppData() *AppData {
	return &AppData{
		Lists:   []ShoppingList{},
		Recipes: []Recipe{},
		Categories: []Category{
			{ID: "fruit", Name: "Fruits", Color: "category-fruit"},
			{ID: "vegetables", Name: "Vegetables", Color: "category-vegetables"},
			{ID: "meat", Name: "Meat", Color: "category-meat"},
			{ID: "fish", Name: "Fish", Color: "category-fish"},
			{ID: "pasta", Name: "Pasta & Rice", Color: "category-pasta"},
			{ID: "sauce", Name: "Sauce", Color: "category-sauce"},
			{ID: "biscuit", Name: "Biscuits", Color: "category-biscuit"},
			{ID: "breakfast", Name: "Breakfast", Color: "category-breakfast"},
			{ID: "milk", Name: "Dairy", Color: "category-milk"},
			{ID: "cleaning", Name: "Cleaning", Color: "category-cleaning"},
		},
		ItemHistory: []ItemHistoryEntry{},
	}
}

// Validate checks the whole snapshot. A snapshot that fails validation is
// rejected in full; a sync is never partially applied.
func (d *AppData) Validate() error {
	if d == nil {
		return fmt.Errorf("snapshot is nil")
	}

	listIDs := make(map[string]struct{}, len(d.Lists))
	for i := range d.Lists {
		l := &d.Lists[i]
		if err := l.Validate(); err != nil {
			return fmt.Errorf("list %d: %w", i, err)
		}
		if _, dup := listIDs[l.ID]; dup {
			return fmt.Errorf("duplicate list id %q", l.ID)
		}
		listIDs[l.ID] = struct{}{}
	}

	recipeIDs := make(map[string]struct{}, len(d.Recipes))
	for i := range d.Recipes {
		r := &d.Recipes[i]
		if err := r.Validate(); err != nil {
			return fmt.Errorf("recipe %d: %w", i, err)
		}
		if _, dup := recipeIDs[r.ID]; dup {
			return fmt.Errorf("duplicate recipe id %q", r.ID)
		}
		recipeIDs[r.ID] = struct{}{}
	}

	for i, c := range d.Categories {
		if c.ID == "" {
			return fmt.Errorf("category %d: missing id", i)
		}
	}

	for i, e := range d.ItemHistory {
		if e.Name == "" {
			return fmt.Errorf("history entry %d: missing name", i)
		}
	}

	return nil
}
