package share

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/tmorriss/larder/internal/database"
	"github.com/tmorriss/larder/internal/model"
	"github.com/tmorriss/larder/internal/relay"
	"github.com/tmorriss/larder/internal/store"
)

func setupRegistry(t *testing.T) (*Registry, *store.SnapshotStore, *relay.Hub) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	snapshots := store.NewSnapshotStore(db)
	if err := snapshots.Init(time.Now().UTC()); err != nil {
		t.Fatalf("init snapshot: %v", err)
	}
	hub := relay.NewHub(logger)
	reg := NewRegistry(store.NewShareStore(db), snapshots, hub, logger)
	return reg, snapshots, hub
}

func seedList(t *testing.T, snapshots *store.SnapshotStore, id, name string) {
	t.Helper()
	now := time.Now().UTC()
	data := model.DefaultAppData()
	data.Lists = []model.ShoppingList{{
		ID: id, Name: name, Items: []model.GroceryItem{},
		CreatedAt: now, UpdatedAt: now,
	}}
	if _, _, err := snapshots.Sync(data, nil); err != nil {
		t.Fatalf("seed list: %v", err)
	}
}

func TestRoomName(t *testing.T) {
	if got := Room(model.ShareTypeList, "abc123"); got != "list:abc123" {
		t.Errorf("room = %q, want %q", got, "list:abc123")
	}
}

func TestIssueRejectsUnknownType(t *testing.T) {
	reg, _, _ := setupRegistry(t)
	if _, err := reg.Issue("pantry", "x"); err == nil {
		t.Error("expected error for unknown share type")
	}
}

func TestReadSharedList(t *testing.T) {
	reg, snapshots, _ := setupRegistry(t)
	seedList(t, snapshots, "l1", "Groceries")

	token, err := reg.Issue(model.ShareTypeList, "l1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	entity, id, err := reg.Read(model.ShareTypeList, token)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if id != "l1" {
		t.Errorf("id = %q, want %q", id, "l1")
	}
	list, ok := entity.(model.ShoppingList)
	if !ok {
		t.Fatalf("entity is %T, want ShoppingList", entity)
	}
	if list.Name != "Groceries" {
		t.Errorf("name = %q", list.Name)
	}
}

func TestReadUnknownToken(t *testing.T) {
	reg, _, _ := setupRegistry(t)
	if _, _, err := reg.Read(model.ShareTypeList, "deadbeefdeadbeefdeadbeefdeadbeef"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDanglingTokenFailsClosed(t *testing.T) {
	reg, snapshots, _ := setupRegistry(t)
	seedList(t, snapshots, "l1", "Groceries")

	token, err := reg.Issue(model.ShareTypeList, "l1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Delete the list out from under the token.
	empty := model.DefaultAppData()
	if _, _, err := snapshots.Sync(empty, nil); err != nil {
		t.Fatalf("delete list: %v", err)
	}

	if _, _, err := reg.Read(model.ShareTypeList, token); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("read err = %v, want ErrNotFound", err)
	}
	if err := reg.Write(model.ShareTypeList, token, json.RawMessage(`{"id":"l1","name":"x"}`)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("write err = %v, want ErrNotFound", err)
	}
}

func TestWriteReplacesAndBroadcasts(t *testing.T) {
	reg, snapshots, hub := setupRegistry(t)
	seedList(t, snapshots, "l1", "Old name")

	token, err := reg.Issue(model.ShareTypeList, "l1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	srv := httptest.NewServer(relay.HandleWebSocket(hub))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	room := Room(model.ShareTypeList, token)
	sub := `{"type":"subscribe","data":{"room":"` + room + `"}}`
	if err := conn.Write(ctx, ws.MessageText, []byte(sub)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitForRoom(t, hub, room)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	body := json.RawMessage(`{"id":"spoofed","name":"New name","items":[],"createdAt":"` + now + `","updatedAt":"` + now + `"}`)
	if err := reg.Write(model.ShareTypeList, token, body); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, _, err := snapshots.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if data.Lists[0].ID != "l1" || data.Lists[0].Name != "New name" {
		t.Errorf("stored list = %+v", data.Lists[0])
	}

	_, frame, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var env struct {
		Type string `json:"type"`
		Data struct {
			Type string          `json:"type"`
			ID   string          `json:"id"`
			Item json.RawMessage `json:"item"`
		} `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if env.Type != relay.EventUpdate || env.Data.ID != "l1" || env.Data.Type != model.ShareTypeList {
		t.Errorf("broadcast = %+v", env)
	}
}

// waitForRoom blocks until the hub has registered a subscriber for room.
// Subscribe frames are processed asynchronously by the read pump.
func waitForRoom(t *testing.T, hub *relay.Hub, room string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize(room) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriteRejectsInvalidBody(t *testing.T) {
	reg, snapshots, _ := setupRegistry(t)
	seedList(t, snapshots, "l1", "Groceries")

	token, err := reg.Issue(model.ShareTypeList, "l1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing name", `{"id":"l1"}`},
		{"bad unit", `{"id":"l1","name":"x","items":[{"id":"i1","name":"milk","unit":"gallon"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := reg.Write(model.ShareTypeList, token, json.RawMessage(tc.body))
			if !errors.Is(err, ErrInvalidEntity) {
				t.Errorf("err = %v, want ErrInvalidEntity", err)
			}
		})
	}
}
