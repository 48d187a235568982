package store

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"chatsync/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when creating a user with an existing email.
	ErrEmailTaken = errors.New("email already registered")
)

// MessageStore is the durable store of messages. It performs no
// ownership checks; callers authorize before mutating.
type MessageStore interface {
	Create(ctx context.Context, draft models.MessageDraft) (*models.Message, error)
	// FindConversation returns the messages exchanged between a and b in
	// either direction, oldest first. Ties on createdAt keep insertion order.
	FindConversation(ctx context.Context, a, b string) ([]models.Message, error)
	FindByID(ctx context.Context, id string) (*models.Message, error)
	// Update replaces the text and marks the message edited.
	Update(ctx context.Context, id, text string) (*models.Message, error)
	Delete(ctx context.Context, id string) error
	// LastMessageTimes maps every peer userID has exchanged messages with
	// to the createdAt of the newest message in that conversation.
	LastMessageTimes(ctx context.Context, userID string) (map[string]time.Time, error)
}

// UserStore holds user accounts.
type UserStore interface {
	Create(ctx context.Context, draft models.UserDraft) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// ListExcept returns every user other than id, ordered by full name.
	ListExcept(ctx context.Context, id string) ([]models.User, error)
	UpdateProfilePic(ctx context.Context, id, url string) (*models.User, error)
}

// NewMessageID returns a new lexicographically sortable message id.
func NewMessageID() string {
	return ulid.Make().String()
}
