package websocket

import "time"

// EventType is the name of a pushed event
type EventType string

const (
	// Message events, targeted at the counterpart of the change
	EventNewMessage     EventType = "newMessage"
	EventMessageUpdated EventType = "messageUpdated"
	EventMessageDeleted EventType = "messageDeleted"

	// Presence event, broadcast to every live connection
	EventOnlineUsers EventType = "getOnlineUser"
)

// WSMessage is the envelope of every frame pushed to a client
type WSMessage struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// IncomingMessage represents frames received from clients
type IncomingMessage struct {
	Type    EventType              `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}
