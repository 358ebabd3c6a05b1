package model

import "time"

// Share types. A token grants access to exactly one list or one recipe.
const (
	ShareTypeList   = "list"
	ShareTypeRecipe = "recipe"
)

// ValidShareType reports whether t names a shareable entity type.
func ValidShareType(t string) bool {
	return t == ShareTypeList || t == ShareTypeRecipe
}

// ShareToken maps an opaque capability token to one shared entity. Tokens
// are issued at most once per (type, item) pair and never expire. A token
// whose entity was deleted stays on record but fails closed on read.
type ShareToken struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	ItemID    string    `json:"itemId"`
	CreatedAt time.Time `json:"createdAt"`
}
