package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"chatsync/internal/logger"
	"chatsync/internal/media"
	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/store"
	"chatsync/internal/websocket"
)

// Pusher delivers an event to the live connection of one identity.
// *websocket.Hub implements it.
type Pusher interface {
	PushToIdentity(ctx context.Context, identity string, event websocket.EventType, payload interface{}) bool
}

// SendInput is the caller-supplied part of a new message
type SendInput struct {
	Text    string  `json:"text"`
	Image   string  `json:"image"`
	ReplyTo *string `json:"replyTo"`
}

// MessageService validates and authorizes message mutations, persists
// them, and pushes the resulting event to the counterpart. The push
// outcome never changes the result: the store is the source of truth.
type MessageService struct {
	messages store.MessageStore
	users    store.UserStore
	pusher   Pusher
	uploader media.Uploader
}

// NewMessageService creates a message service
func NewMessageService(messages store.MessageStore, users store.UserStore, pusher Pusher, uploader media.Uploader) *MessageService {
	return &MessageService{
		messages: messages,
		users:    users,
		pusher:   pusher,
		uploader: uploader,
	}
}

// Send creates a message from callerID to receiverID and notifies the receiver.
func (s *MessageService) Send(ctx context.Context, callerID, receiverID string, in SendInput) (*models.Message, error) {
	text := strings.TrimSpace(in.Text)
	image := strings.TrimSpace(in.Image)

	// Validate input
	if text == "" && image == "" {
		return nil, validationError("Message must have text or an image")
	}
	if receiverID == callerID {
		return nil, validationError("Cannot send a message to yourself")
	}

	if _, err := s.users.FindByID(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("Receiver not found")
		}
		return nil, internalError("find receiver", err)
	}

	// A reply must point into this conversation
	var replyTo *string
	if in.ReplyTo != nil && *in.ReplyTo != "" {
		target, err := s.messages.FindByID(ctx, *in.ReplyTo)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, internalError("find reply target", err)
		}
		if target == nil || !target.Between(callerID, receiverID) {
			return nil, validationError("Reply target is not part of this conversation")
		}
		id := target.ID
		replyTo = &id
	}

	// Upload inline image data
	if media.IsDataURI(image) {
		url, err := s.uploader.Upload(ctx, image)
		if err != nil {
			if errors.Is(err, media.ErrInvalidImage) || errors.Is(err, media.ErrImageTooLarge) {
				return nil, validationError(err.Error())
			}
			return nil, internalError("upload image", err)
		}
		image = url
	}

	msg, err := s.messages.Create(ctx, models.MessageDraft{
		SenderID:   callerID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		ReplyTo:    replyTo,
	})
	if err != nil {
		return nil, internalError("create message", err)
	}
	metrics.MessageOps.WithLabelValues("send").Inc()

	delivered := s.pusher.PushToIdentity(ctx, receiverID, websocket.EventNewMessage, msg)

	l := logger.Ctx(ctx)
	l.Debug().
		Str(logger.FieldMessageID, msg.ID).
		Str(logger.FieldPeerID, receiverID).
		Bool("delivered", delivered).
		Msg("message sent")

	return msg, nil
}

// ListConversation returns the messages between callerID and peerID, oldest first.
func (s *MessageService) ListConversation(ctx context.Context, callerID, peerID string) ([]models.Message, error) {
	messages, err := s.messages.FindConversation(ctx, callerID, peerID)
	if err != nil {
		return nil, internalError("find conversation", err)
	}
	return messages, nil
}

// authorize loads a message and checks that callerID sent it.
func (s *MessageService) authorize(ctx context.Context, callerID, messageID, action string) (*models.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("Message not found")
		}
		return nil, internalError("find message", err)
	}
	if msg.SenderID != callerID {
		return nil, forbiddenError("You can only " + action + " your own messages")
	}
	return msg, nil
}

// Edit replaces the text of a message the caller sent and notifies the receiver.
func (s *MessageService) Edit(ctx context.Context, callerID, messageID, newText string) (*models.Message, error) {
	current, err := s.authorize(ctx, callerID, messageID, "edit")
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(newText)
	if text == "" && current.Image == "" {
		return nil, validationError("Message text cannot be empty")
	}

	updated, err := s.messages.Update(ctx, messageID, text)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("Message not found")
		}
		return nil, internalError("update message", err)
	}
	metrics.MessageOps.WithLabelValues("edit").Inc()

	s.pusher.PushToIdentity(ctx, updated.ReceiverID, websocket.EventMessageUpdated, updated)
	return updated, nil
}

// Delete removes a message the caller sent and notifies the receiver.
func (s *MessageService) Delete(ctx context.Context, callerID, messageID string) error {
	msg, err := s.authorize(ctx, callerID, messageID, "delete")
	if err != nil {
		return err
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("Message not found")
		}
		return internalError("delete message", err)
	}
	metrics.MessageOps.WithLabelValues("delete").Inc()

	s.pusher.PushToIdentity(ctx, msg.ReceiverID, websocket.EventMessageDeleted, messageID)
	return nil
}

// ListPeers returns every other user, most recent conversation first.
// Users without messages keep their name order at the end.
func (s *MessageService) ListPeers(ctx context.Context, callerID string) ([]models.Peer, error) {
	users, err := s.users.ListExcept(ctx, callerID)
	if err != nil {
		return nil, internalError("list users", err)
	}

	last, err := s.messages.LastMessageTimes(ctx, callerID)
	if err != nil {
		return nil, internalError("last message times", err)
	}

	peers := make([]models.Peer, len(users))
	for i, u := range users {
		peers[i] = models.Peer{User: u, LastMessageAt: last[u.ID]}
	}

	sort.SliceStable(peers, func(i, j int) bool {
		return peers[i].LastMessageAt.After(peers[j].LastMessageAt)
	})
	return peers, nil
}
