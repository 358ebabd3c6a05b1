package model

import (
	"fmt"
	"time"
)

// RecipeItem is an ingredient line. Unlike GroceryItem it carries no
// bought flag and no timestamps; quantities scale with portions on the
// client side.
type RecipeItem struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	CategoryID string  `json:"categoryId,omitempty"`
}

// Recipe is one recipe. UpdatedAt is the authority for whole-recipe
// last-write-wins merging.
type Recipe struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Portions    int          `json:"portions"`
	Duration    *int         `json:"duration,omitempty"` // minutes
	Items       []RecipeItem `json:"items"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Validate checks required fields on the recipe and its ingredient lines.
func (r *Recipe) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("missing id")
	}
	if r.Title == "" {
		return fmt.Errorf("missing title")
	}
	if r.Portions <= 0 {
		return fmt.Errorf("portions must be positive, got %d", r.Portions)
	}
	seen := make(map[string]struct{}, len(r.Items))
	for i, item := range r.Items {
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
