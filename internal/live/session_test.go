package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tmorriss/larder/internal/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRelay(t *testing.T) (*relay.Hub, string) {
	t.Helper()
	hub := relay.NewHub(testLogger())
	srv := httptest.NewServer(relay.HandleWebSocket(hub))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func runSession(t *testing.T, s *Session) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("session did not stop")
		}
	})
	return cancel
}

func TestSessionSubscribesAndReceivesUpdates(t *testing.T) {
	hub, url := setupRelay(t)

	updates := make(chan json.RawMessage, 1)
	s := NewSession(url, Handlers{
		OnUpdate: func(payload json.RawMessage) { updates <- payload },
	}, testLogger())

	runSession(t, s)
	waitFor(t, s.Connected, "connection")

	if err := s.Subscribe(context.Background(), "list:tok1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, func() bool { return hub.RoomSize("list:tok1") == 1 }, "subscription")

	hub.Publish("list:tok1", relay.EventUpdate, map[string]string{"id": "l1"}, nil)

	select {
	case payload := <-updates:
		var got struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("decode update: %v", err)
		}
		if got.ID != "l1" {
			t.Errorf("id = %q", got.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("update never arrived")
	}
}

func TestSessionReceivesItemAdded(t *testing.T) {
	hub, url := setupRelay(t)

	events := make(chan ItemAddedEvent, 1)
	s := NewSession(url, Handlers{
		OnItemAdded: func(ev ItemAddedEvent) { events <- ev },
	}, testLogger())

	runSession(t, s)
	waitFor(t, s.Connected, "connection")

	if err := s.Subscribe(context.Background(), "list:tok1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, func() bool { return hub.RoomSize("list:tok1") == 1 }, "subscription")

	hub.Publish("list:tok1", relay.EventItemAdded, relay.ItemAdded{
		ListID: "l1", ListName: "Groceries", ItemName: "Milk", Timestamp: time.Now().UTC(),
	}, nil)

	select {
	case ev := <-events:
		if ev.ItemName != "Milk" || ev.ListID != "l1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("item_added never arrived")
	}
}

func TestTwoSessionsExchangeUpdates(t *testing.T) {
	hub, url := setupRelay(t)

	received := make(chan json.RawMessage, 1)
	alice := NewSession(url, Handlers{}, testLogger())
	bob := NewSession(url, Handlers{
		OnUpdate: func(payload json.RawMessage) { received <- payload },
	}, testLogger())

	runSession(t, alice)
	runSession(t, bob)
	waitFor(t, alice.Connected, "alice connection")
	waitFor(t, bob.Connected, "bob connection")

	ctx := context.Background()
	if err := alice.Subscribe(ctx, "list:tok1"); err != nil {
		t.Fatalf("alice subscribe: %v", err)
	}
	if err := bob.Subscribe(ctx, "list:tok1"); err != nil {
		t.Fatalf("bob subscribe: %v", err)
	}
	waitFor(t, func() bool { return hub.RoomSize("list:tok1") == 2 }, "both subscriptions")

	if err := alice.PublishUpdate(ctx, "list:tok1", map[string]string{"name": "from alice"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case payload := <-received:
		var got struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Name != "from alice" {
			t.Errorf("payload = %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("bob never received alice's update")
	}
}

func TestPublishWhileDisconnected(t *testing.T) {
	s := NewSession("ws://unused.invalid", Handlers{}, testLogger())
	err := s.PublishUpdate(context.Background(), "list:tok1", "x")
	if err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeWhileDisconnectedIsDeferred(t *testing.T) {
	hub, url := setupRelay(t)

	s := NewSession(url, Handlers{}, testLogger())
	// Subscribing before Run records the room for replay on connect.
	if err := s.Subscribe(context.Background(), "list:tok1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	runSession(t, s)
	waitFor(t, func() bool { return hub.RoomSize("list:tok1") == 1 }, "deferred subscription")
}
