package models

import "time"

// Message represents a direct message between two users
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	IsEdited   bool      `json:"isEdited"`
	ReplyTo    *string   `json:"replyTo"` // Null when not a reply; never cascades on delete
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MessageDraft is the input for creating a message. The store assigns
// the id and timestamps.
type MessageDraft struct {
	SenderID   string
	ReceiverID string
	Text       string
	Image      string
	ReplyTo    *string
}

// PeerOf returns the other participant of the message relative to userID.
func (m *Message) PeerOf(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Between reports whether the message belongs to the conversation of a and b.
func (m *Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
