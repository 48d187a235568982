package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatsync/internal/models"
)

// MemoryStore is an in-process MessageStore and UserStore. Data is lost
// on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []*models.Message // insertion order
	byID     map[string]*models.Message
	users    map[string]*models.User
	byEmail  map[string]string

	// Now supplies timestamps; tests may replace it.
	Now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*models.Message),
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

func copyMessage(m *models.Message) models.Message {
	out := *m
	if m.ReplyTo != nil {
		id := *m.ReplyTo
		out.ReplyTo = &id
	}
	return out
}

// Create stores a new message.
func (s *MemoryStore) Create(ctx context.Context, draft models.MessageDraft) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	msg := &models.Message{
		ID:         NewMessageID(),
		SenderID:   draft.SenderID,
		ReceiverID: draft.ReceiverID,
		Text:       draft.Text,
		Image:      draft.Image,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if draft.ReplyTo != nil {
		id := *draft.ReplyTo
		msg.ReplyTo = &id
	}

	s.messages = append(s.messages, msg)
	s.byID[msg.ID] = msg

	out := copyMessage(msg)
	return &out, nil
}

// FindConversation returns the conversation between a and b.
func (s *MemoryStore) FindConversation(ctx context.Context, a, b string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Message{}
	for _, m := range s.messages {
		if m.Between(a, b) {
			out = append(out, copyMessage(m))
		}
	}

	// Stable keeps insertion order for equal timestamps
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// FindByID returns a message by id.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyMessage(m)
	return &out, nil
}

// Update sets a message's text and marks it edited.
func (s *MemoryStore) Update(ctx context.Context, id, text string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.Text = text
	m.IsEdited = true
	m.UpdatedAt = s.Now()

	out := copyMessage(m)
	return &out, nil
}

// Delete removes a message. Replies that reference it keep their replyTo.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)

	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
	return nil
}

// LastMessageTimes returns the newest message time per peer of userID.
func (s *MemoryStore) LastMessageTimes(ctx context.Context, userID string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time)
	for _, m := range s.messages {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		peer := m.PeerOf(userID)
		if last, ok := out[peer]; !ok || m.CreatedAt.After(last) {
			out[peer] = m.CreatedAt
		}
	}
	return out, nil
}

// createUser stores a new user; reached through Users().
func (s *MemoryStore) createUser(draft models.UserDraft) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(draft.Email))
	if _, taken := s.byEmail[email]; taken {
		return nil, ErrEmailTaken
	}

	now := s.Now()
	u := &models.User{
		ID:        uuid.New().String(),
		FullName:  draft.FullName,
		Email:     email,
		Password:  draft.PasswordHash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID

	out := *u
	return &out, nil
}

// Users returns a UserStore view over the same memory.
func (s *MemoryStore) Users() UserStore {
	return memoryUsers{s}
}

type memoryUsers struct {
	s *MemoryStore
}

func (m memoryUsers) Create(ctx context.Context, draft models.UserDraft) (*models.User, error) {
	return m.s.createUser(draft)
}

func (m memoryUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	u, ok := m.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m memoryUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	id, ok := m.s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	out := *m.s.users[id]
	return &out, nil
}

func (m memoryUsers) ListExcept(ctx context.Context, id string) ([]models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	out := make([]models.User, 0, len(m.s.users))
	for _, u := range m.s.users {
		if u.ID == id {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m memoryUsers) UpdateProfilePic(ctx context.Context, id, url string) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	u, ok := m.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.ProfilePic = url
	u.UpdatedAt = m.s.Now()

	out := *u
	return &out, nil
}
