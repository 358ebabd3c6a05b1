// Package merge reconciles two divergent AppData snapshots with a
// last-write-wins policy. Everything here is pure: no I/O, no retries,
// no clock reads beyond the caller-supplied merge time.
package merge

import (
	"time"

	"github.com/tmorriss/larder/internal/model"
)

// Merge reconciles a server snapshot against a client snapshot.
//
// Fast path: if there is no server snapshot, or the client has never
// synced, or the server has not changed since the client's last sync, the
// client is authoritative and wins verbatim. Otherwise each collection is
// merged per its own policy.
//
// Lists and recipes merge by id with whole-entity last-write-wins; ties on
// updatedAt favor the client. Edits to individual items inside a list are
// NOT merged: if two devices touched the same list without syncing in
// between, the older device's in-list edits are discarded wholesale. That
// is a deliberate semantic that callers rely on.
//
// The result's LastSynced is set to now, which the caller persists as the
// new authoritative updatedAt.
func Merge(server *model.AppData, serverUpdatedAt time.Time, client *model.AppData, clientLastSynced *time.Time, now time.Time) *model.AppData {
	if server == nil {
		out := *client
		out.LastSynced = &now
		return &out
	}
	if clientLastSynced == nil || !serverUpdatedAt.After(*clientLastSynced) {
		// Client has seen everything the server has.
		out := *client
		out.LastSynced = &now
		return &out
	}

	return &model.AppData{
		Lists:       mergeLists(server.Lists, client.Lists),
		Recipes:     mergeRecipes(server.Recipes, client.Recipes),
		Categories:  mergeCategories(server.Categories, client.Categories),
		ItemHistory: MergeHistory(server.ItemHistory, client.ItemHistory),
		LastSynced:  &now,
	}
}

// mergeByID overlays client entities onto server entities, keeping the
// client's version whenever its updatedAt is greater than or equal to the
// server's. Output order is deterministic: server order first, then
// client-only entities in client order.
func mergeByID[T any](server, client []T, id func(T) string, updatedAt func(T) time.Time) []T {
	index := make(map[string]int, len(server))
	out := make([]T, 0, len(server)+len(client))

	for _, e := range server {
		index[id(e)] = len(out)
		out = append(out, e)
	}
	for _, e := range client {
		at, ok := index[id(e)]
		if !ok {
			index[id(e)] = len(out)
			out = append(out, e)
			continue
		}
		if !updatedAt(e).Before(updatedAt(out[at])) {
			out[at] = e
		}
	}
	return out
}

func mergeLists(server, client []model.ShoppingList) []model.ShoppingList {
	return mergeByID(server, client,
		func(l model.ShoppingList) string { return l.ID },
		func(l model.ShoppingList) time.Time { return l.UpdatedAt })
}

func mergeRecipes(server, client []model.Recipe) []model.Recipe {
	return mergeByID(server, client,
		func(r model.Recipe) string { return r.ID },
		func(r model.Recipe) time.Time { return r.UpdatedAt })
}

// mergeCategories is whole-collection last-writer-wins: the client's
// taxonomy replaces the server's whenever the client has one at all.
func mergeCategories(server, client []model.Category) []model.Category {
	if len(client) > 0 {
		return client
	}
	if len(server) > 0 {
		return server
	}
	return []model.Category{}
}

// MergeHistory merges two autocomplete frequency tables by normalized
// name. Counts take the max of both sides, since they are cumulative signals
// that must not be inflated by summation across repeated syncs. For
// entries present on both sides the client's categoryId and unit win when
// non-empty. The result keeps at most HistoryLimit entries, evicting from
// the front in insertion order.
func MergeHistory(server, client []model.ItemHistoryEntry) []model.ItemHistoryEntry {
	index := make(map[string]int, len(server))
	out := make([]model.ItemHistoryEntry, 0, len(server)+len(client))

	add := func(e model.ItemHistoryEntry) {
		e.Name = model.NormalizeHistoryName(e.Name)
		if e.Name == "" {
			return
		}
		if e.Count < 1 {
			e.Count = 1
		}
		at, ok := index[e.Name]
		if !ok {
			index[e.Name] = len(out)
			out = append(out, e)
			return
		}
		merged := out[at]
		if e.CategoryID != "" {
			merged.CategoryID = e.CategoryID
		}
		if e.Unit != "" {
			merged.Unit = e.Unit
		}
		if e.Count > merged.Count {
			merged.Count = e.Count
		}
		out[at] = merged
	}

	for _, e := range server {
		add(e)
	}
	for _, e := range client {
		add(e)
	}

	if len(out) > model.HistoryLimit {
		out = out[len(out)-model.HistoryLimit:]
	}
	return out
}
