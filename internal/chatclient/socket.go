package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/internal/logger"
)

// Push event names
const (
	EventNewMessage     = "newMessage"
	EventMessageUpdated = "messageUpdated"
	EventMessageDeleted = "messageDeleted"
	EventOnlineUsers    = "getOnlineUser"
)

// ErrNotConnected is returned by operations that need a live socket
var ErrNotConnected = errors.New("socket not connected")

// EventHandler receives the raw payload of one event
type EventHandler func(payload json.RawMessage)

type envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Socket is a push subscription. Handlers run on the read goroutine in
// the order events arrive.
type Socket struct {
	url    string
	header func() http.Header
	dialer *websocket.Dialer

	mu       sync.RWMutex
	handlers map[string]EventHandler
	conn     *websocket.Conn
	done     chan struct{}
}

// NewSocket creates a socket for url. header is called on every Connect
// so a refreshed session cookie is picked up.
func NewSocket(url string, header func() http.Header) *Socket {
	return &Socket{
		url:      url,
		header:   header,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handlers: make(map[string]EventHandler),
	}
}

// On sets the handler for event, replacing any previous one, so calling
// it twice never delivers an event twice.
func (s *Socket) On(event string, h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// Off removes the handler for event
func (s *Socket) Off(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// Connect dials the server and starts reading events
func (s *Socket) Connect(ctx context.Context) error {
	var header http.Header
	if s.header != nil {
		header = s.header()
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: "websocket handshake failed"}
		}
		return err
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go s.readLoop(conn, done)
	return nil
}

// Done is closed when the current connection ends
func (s *Socket) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Close sends a close frame and closes the connection
func (s *Socket) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (s *Socket) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	l := logger.L()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.Debug().Err(err).Msg("socket closed")
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			l.Debug().Err(err).Msg("ignoring malformed event")
			continue
		}

		s.mu.RLock()
		h := s.handlers[env.Type]
		s.mu.RUnlock()
		if h != nil {
			h(env.Payload)
		}
	}
}
