package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"chatsync/internal/logger"
	"chatsync/internal/models"
)

// DefaultHighlightWindow is how long a pushed message keeps IsNew
const DefaultHighlightWindow = 3 * time.Second

// ErrNoPeerSelected is returned by Send when no conversation is open
var ErrNoPeerSelected = errors.New("no conversation selected")

// Notifier receives failures of session operations, e.g. to show a toast
type Notifier func(op string, err error)

// Backend is the REST surface a Session needs. *API implements it.
type Backend interface {
	Users(ctx context.Context) ([]models.Peer, error)
	Conversation(ctx context.Context, peerID string) ([]models.Message, error)
	Send(ctx context.Context, peerID string, req SendRequest) (*models.Message, error)
	Edit(ctx context.Context, messageID, text string) (*models.Message, error)
	Delete(ctx context.Context, messageID string) error
}

// Session wraps a State with a mutex and drives it from REST calls and
// push events. The lock is never held across network I/O.
type Session struct {
	backend Backend
	socket  *Socket

	// HighlightWindow overrides DefaultHighlightWindow when positive
	HighlightWindow time.Duration
	notify          Notifier
	onChange        func(State)

	mu    sync.Mutex
	state State
}

// NewSession creates a session for user self
func NewSession(self string, backend Backend, socket *Socket) *Session {
	return &Session{
		backend: backend,
		socket:  socket,
		state:   NewState(self),
	}
}

// SetNotifier sets the failure callback
func (s *Session) SetNotifier(n Notifier) {
	s.notify = n
}

// OnChange sets a callback invoked with a snapshot after every change
func (s *Session) OnChange(fn func(State)) {
	s.onChange = fn
}

// Snapshot returns a deep copy of the current state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// update runs fn under the lock and publishes the result
func (s *Session) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	var snap State
	if s.onChange != nil {
		snap = s.state.Clone()
	}
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(snap)
	}
}

func (s *Session) fail(op string, err error) error {
	if s.notify != nil {
		s.notify(op, err)
	}
	l := logger.L()
	l.Debug().Err(err).Str("op", op).Msg("session operation failed")
	return err
}

// LoadPeers fetches the contact list
func (s *Session) LoadPeers(ctx context.Context) error {
	peers, err := s.backend.Users(ctx)
	if err != nil {
		return s.fail("loadPeers", err)
	}
	s.update(func(st *State) { st.SetPeers(peers) })
	return nil
}

// SelectPeer opens the conversation with peerID and fetches its history.
// A response that arrives after another SelectPeer is discarded.
func (s *Session) SelectPeer(ctx context.Context, peerID string) error {
	var token uint64
	s.update(func(st *State) { token = st.SelectPeer(peerID) })

	msgs, err := s.backend.Conversation(ctx, peerID)
	if err != nil {
		s.update(func(st *State) { st.AbortFetch(token) })
		return s.fail("selectPeer", err)
	}

	s.update(func(st *State) { st.ApplyConversation(peerID, token, msgs) })
	return nil
}

// Send sends text (and an optional image) to the selected peer
func (s *Session) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	s.mu.Lock()
	peer := s.state.SelectedPeer
	s.mu.Unlock()
	if peer == "" {
		return nil, s.fail("send", ErrNoPeerSelected)
	}
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.Image) == "" {
		return nil, s.fail("send", errors.New("message must have text or an image"))
	}

	msg, err := s.backend.Send(ctx, peer, req)
	if err != nil {
		return nil, s.fail("send", err)
	}
	s.update(func(st *State) { st.ApplySent(*msg) })
	return msg, nil
}

// Edit replaces the text of one of the user's messages
func (s *Session) Edit(ctx context.Context, messageID, text string) error {
	msg, err := s.backend.Edit(ctx, messageID, text)
	if err != nil {
		return s.fail("edit", err)
	}
	s.update(func(st *State) { st.ApplyMessageUpdated(*msg) })
	return nil
}

// Delete removes one of the user's messages
func (s *Session) Delete(ctx context.Context, messageID string) error {
	if err := s.backend.Delete(ctx, messageID); err != nil {
		return s.fail("delete", err)
	}
	s.update(func(st *State) { st.ApplyMessageDeleted(messageID) })
	return nil
}

// Subscribe registers the push handlers. Calling it again replaces the
// handlers rather than adding a second set.
func (s *Session) Subscribe() {
	s.socket.On(EventNewMessage, func(payload json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.fail(EventNewMessage, err)
			return
		}
		s.HandleNewMessage(msg)
	})

	s.socket.On(EventMessageUpdated, func(payload json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.fail(EventMessageUpdated, err)
			return
		}
		s.update(func(st *State) { st.ApplyMessageUpdated(msg) })
	})

	s.socket.On(EventMessageDeleted, func(payload json.RawMessage) {
		var id string
		if err := json.Unmarshal(payload, &id); err != nil {
			s.fail(EventMessageDeleted, err)
			return
		}
		s.update(func(st *State) { st.ApplyMessageDeleted(id) })
	})

	s.socket.On(EventOnlineUsers, func(payload json.RawMessage) {
		var ids []string
		if err := json.Unmarshal(payload, &ids); err != nil {
			s.fail(EventOnlineUsers, err)
			return
		}
		s.update(func(st *State) { st.SetOnline(ids) })
	})
}

// Unsubscribe removes the push handlers
func (s *Session) Unsubscribe() {
	for _, event := range []string{EventNewMessage, EventMessageUpdated, EventMessageDeleted, EventOnlineUsers} {
		s.socket.Off(event)
	}
}

// HandleNewMessage applies a pushed message and schedules the end of its
// highlight.
func (s *Session) HandleNewMessage(msg models.Message) {
	var highlighted bool
	s.update(func(st *State) { highlighted = st.ApplyNewMessage(msg) })
	if !highlighted {
		return
	}

	window := s.HighlightWindow
	if window <= 0 {
		window = DefaultHighlightWindow
	}
	time.AfterFunc(window, func() {
		s.update(func(st *State) { st.ClearNew(msg.SenderID, msg.ID) })
	})
}
