// Package live maintains a device's real-time relay connection for one
// or more shared entities: it replays subscriptions after every
// reconnect, dispatches inbound events, and publishes local edits.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	ws "github.com/coder/websocket"
	"github.com/sethvargo/go-retry"
)

const (
	dialTimeout    = 10 * time.Second
	backoffBase    = time.Second
	backoffCap     = 30 * time.Second
	maxDialRetries = 6
)

// Handlers receive inbound relay events. Nil handlers are skipped.
type Handlers struct {
	// OnUpdate receives full-entity replace payloads.
	OnUpdate func(payload json.RawMessage)
	// OnItemAdded receives lightweight add notifications; callers
	// aggregate them over a rolling window before surfacing.
	OnItemAdded func(ev ItemAddedEvent)
}

// ItemAddedEvent mirrors the relay's item_added wire shape.
type ItemAddedEvent struct {
	ListID    string    `json:"listId"`
	ListName  string    `json:"listName"`
	ItemName  string    `json:"itemName"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one device's relay connection.
type Session struct {
	url      string
	handlers Handlers
	logger   *slog.Logger

	mu        sync.Mutex
	conn      *ws.Conn
	rooms     map[string]struct{}
	connected bool
}

func NewSession(url string, handlers Handlers, logger *slog.Logger) *Session {
	return &Session{
		url:      url,
		handlers: handlers,
		logger:   logger,
		rooms:    make(map[string]struct{}),
	}
}

// Connected reports whether the session currently has a live connection.
// The UI uses this for its offline indicator.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Subscribe joins a room now (if connected) and on every future
// reconnect.
func (s *Session) Subscribe(ctx context.Context, room string) error {
	s.mu.Lock()
	s.rooms[room] = struct{}{}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.send(ctx, map[string]any{
		"type": "subscribe",
		"data": map[string]any{"room": room},
	})
}

// Unsubscribe leaves a room and stops replaying it after reconnects.
func (s *Session) Unsubscribe(ctx context.Context, room string) error {
	s.mu.Lock()
	delete(s.rooms, room)
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.send(ctx, map[string]any{
		"type": "unsubscribe",
		"data": map[string]any{"room": room},
	})
}

// PublishUpdate pushes a full-entity replace to the room's other peers.
func (s *Session) PublishUpdate(ctx context.Context, room string, payload any) error {
	return s.send(ctx, map[string]any{
		"type": "update",
		"data": map[string]any{"room": room, "payload": payload},
	})
}

// NotifyItemAdded tells the room's other peers an item was added.
func (s *Session) NotifyItemAdded(ctx context.Context, room, listID, listName, itemName string) error {
	return s.send(ctx, map[string]any{
		"type": "item_added",
		"data": map[string]any{
			"room":     room,
			"listId":   listID,
			"listName": listName,
			"itemName": itemName,
		},
	})
}

// Run connects and serves the session until the context is cancelled or
// reconnection gives up. Each (re)connect replays every subscribed room.
// Exhausting the reconnect attempts ends the session silently; Connected
// turns false and the caller's UI shows the disconnected state.
func (s *Session) Run(ctx context.Context) error {
	for {
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("relay unreachable, giving up", "error", err)
			return nil
		}

		s.mu.Lock()
		s.conn = conn
		s.connected = true
		rooms := make([]string, 0, len(s.rooms))
		for room := range s.rooms {
			rooms = append(rooms, room)
		}
		s.mu.Unlock()

		for _, room := range rooms {
			if err := s.send(ctx, map[string]any{
				"type": "subscribe",
				"data": map[string]any{"room": room},
			}); err != nil {
				s.logger.Warn("resubscribe failed", "room", room, "error", err)
			}
		}

		s.readLoop(ctx, conn)

		s.mu.Lock()
		s.conn = nil
		s.connected = false
		s.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Info("relay connection lost, reconnecting")
	}
}

// dial attempts the websocket connection with capped exponential backoff
// and a bounded number of attempts.
func (s *Session) dial(ctx context.Context) (*ws.Conn, error) {
	backoff := retry.WithMaxRetries(maxDialRetries, retry.WithCappedDuration(backoffCap, retry.NewExponential(backoffBase)))

	var conn *ws.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()

		c, _, err := ws.Dial(dialCtx, s.url, nil)
		if err != nil {
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type inboundEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *Session) readLoop(ctx context.Context, conn *ws.Conn) {
	defer conn.Close(ws.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("bad relay event", "error", err)
			continue
		}

		switch env.Type {
		case "update":
			if s.handlers.OnUpdate != nil {
				s.handlers.OnUpdate(env.Data)
			}
		case "item_added":
			if s.handlers.OnItemAdded == nil {
				continue
			}
			var ev ItemAddedEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				s.logger.Warn("bad item_added event", "error", err)
				continue
			}
			s.handlers.OnItemAdded(ev)
		}
	}
}

func (s *Session) send(ctx context.Context, frame any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
