package models

import "time"

// User represents a user in the system
type User struct {
	ID         string    `json:"_id"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	Password   string    `json:"-"` // Never expose in JSON
	ProfilePic string    `json:"profilePic"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserDraft is the input for creating a user
type UserDraft struct {
	FullName     string
	Email        string
	PasswordHash string
}

// Peer is a contact list row: another user plus the time of the most
// recent message exchanged with the caller (zero when none).
type Peer struct {
	User
	LastMessageAt time.Time `json:"lastMessageAt"`
}
