package relay

import (
	"context"
	"encoding/json"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// inboundFrame is the client-to-server wire frame. Data fields are a
// superset across message kinds; which are read depends on Type.
type inboundFrame struct {
	Type string `json:"type"`
	Data struct {
		Room     string          `json:"room"`
		Payload  json.RawMessage `json:"payload"`
		ListID   string          `json:"listId"`
		ListName string          `json:"listName"`
		ItemName string          `json:"itemName"`
	} `json:"data"`
}

// Client is a single relay connection.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte
}

// NewClient creates a Client tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Run starts the write pump and runs the read pump. It blocks until the
// connection closes, then removes the client from every room.
func (c *Client) Run(ctx context.Context) {
	defer c.hub.Remove(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump dispatches inbound frames until the connection errors.
// A frame that fails to parse is skipped, not fatal.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.hub.logger.Warn("bad relay frame", "error", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame inboundFrame) {
	switch frame.Type {
	case "subscribe":
		c.hub.Subscribe(c, frame.Data.Room)
	case "unsubscribe":
		c.hub.Unsubscribe(c, frame.Data.Room)
	case EventUpdate:
		// Peer-originated update: everyone in the room but the sender.
		c.hub.Publish(frame.Data.Room, EventUpdate, frame.Data.Payload, c)
	case EventItemAdded:
		ev := ItemAdded{
			ListID:    frame.Data.ListID,
			ListName:  frame.Data.ListName,
			ItemName:  frame.Data.ItemName,
			Timestamp: time.Now().UTC(),
		}
		c.hub.Publish(frame.Data.Room, EventItemAdded, ev, c)
	default:
		c.hub.logger.Warn("unknown relay frame type", "type", frame.Type)
	}
}

// writePump drains the send queue onto the socket in order and pings to
// detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
