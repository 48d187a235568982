package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"chatsync/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Client is the live connection of one identity. It satisfies
// presence.Conn so the hub can deliver to it through the registry.
type Client struct {
	ID   string // User ID
	Conn *websocket.Conn
	Hub  *Hub

	send   chan []byte
	done   chan struct{} // closed when the write pump exits
	mu     sync.Mutex
	closed bool
	log    zerolog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(userID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:   userID,
		Conn: conn,
		Hub:  hub,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
		log:  logger.L().With().Str(logger.FieldUserID, userID).Logger(),
	}
}

// Deliver queues a frame without blocking. It returns false if the client
// is closed or its buffer is full.
func (c *Client) Deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame and closes the
// socket. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Serve registers the client, runs both pumps and blocks until both have
// stopped. The conn belongs to the upgrade handler and is recycled once
// Serve returns, so the write pump must be done with it first.
func (c *Client) Serve(ctx context.Context) {
	ctx = logger.WithLogger(ctx, c.log)
	if err := c.Hub.Connect(ctx, c.ID, c); err != nil {
		c.log.Warn().Err(err).Msg("connected with degraded presence")
	}

	go c.WritePump()
	c.ReadPump(ctx) // This blocks until connection closes
	<-c.done
}

// ReadPump handles incoming frames from the client
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Disconnect(ctx, c.ID, c)
		// Stops the write pump, which closes the conn
		c.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		var incoming IncomingMessage
		if err := json.Unmarshal(message, &incoming); err != nil {
			c.log.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}

		// The push channel is server to client only; mutations go over HTTP
		c.log.Debug().Str(logger.FieldEvent, string(incoming.Type)).Msg("ignoring client frame")
	}
}

// WritePump handles outgoing frames to the client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
