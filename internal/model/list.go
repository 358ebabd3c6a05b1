package model

import (
	"fmt"
	"time"
)

// Units a grocery or recipe item may carry. The empty unit means "just a
// count of the thing itself".
const (
	UnitNone  = ""
	UnitKg    = "kg"
	UnitGram  = "g"
	UnitLiter = "l"
	UnitMl    = "ml"
	UnitPiece = "piece"
)

// ValidUnit reports whether u is a known quantity unit.
func ValidUnit(u string) bool {
	switch u {
	case UnitNone, UnitKg, UnitGram, UnitLiter, UnitMl, UnitPiece:
		return true
	}
	return false
}

// GroceryItem belongs to exactly one ShoppingList. Every mutation must
// refresh the parent list's UpdatedAt: conflict resolution happens at the
// whole-list level, never per item.
type GroceryItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Quantity   float64   `json:"quantity"`
	Unit       string    `json:"unit"`
	CategoryID string    `json:"categoryId,omitempty"`
	Bought     bool      `json:"bought"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ShoppingList is one shopping list. UpdatedAt is the authority for
// whole-list last-write-wins merging.
type ShoppingList struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Items     []GroceryItem `json:"items"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Touch refreshes the list's UpdatedAt to now.
func (l *ShoppingList) Touch(now time.Time) {
	l.UpdatedAt = now
}

// Validate checks required fields on the list and its items.
func (l *ShoppingList) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("missing id")
	}
	if l.Name == "" {
		return fmt.Errorf("missing name")
	}
	seen := make(map[string]struct{}, len(l.Items))
	for i, item := range l.Items {
		if item.ID == "" {
			return fmt.Errorf("item %d: missing id", i)
		}
		if item.Name == "" {
			return fmt.Errorf("item %d: missing name", i)
		}
		if !ValidUnit(item.Unit) {
			return fmt.Errorf("item %d: unknown unit %q", i, item.Unit)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("duplicate item id %q", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
