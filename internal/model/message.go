package model

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast is the recipient used for messages addressed to the whole room
const Broadcast = "Todos"

// TimeLayout is the HH:MM:SS layout stamped on every message
const TimeLayout = "15:04:05"

// Kind classifies a chat event
type Kind string

const (
	KindStatus         Kind = "status"
	KindMessage        Kind = "message"
	KindPrivateMessage Kind = "private_message"
)

// Message represents a chat event
type Message struct {
	ID   uuid.UUID `json:"id"`
	From string    `json:"from"`
	To   string    `json:"to"`
	Text string    `json:"text"`
	Kind Kind      `json:"type"`
	Time string    `json:"time"`
}

// StampTime formats t the way message times are shown to clients
func StampTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// Event is pushed to websocket clients
type Event struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}
