// Package storage defines the persistence contracts used by the chat core.
// Drivers live in sub-packages; callers only see these interfaces.
package storage

import (
	"context"
	"errors"
	"time"

	"batepapo/internal/model"
)

// ErrConflict is returned when inserting a participant whose name is taken.
var ErrConflict = errors.New("storage: conflict")

// ParticipantStore persists participants in insertion order.
type ParticipantStore interface {
	InsertParticipant(ctx context.Context, p model.Participant) error
	GetParticipant(ctx context.Context, name string) (model.Participant, bool, error)
	ListParticipants(ctx context.Context) ([]model.Participant, error)
	// TouchParticipant reports false when no participant has that name.
	TouchParticipant(ctx context.Context, name string, at time.Time) (bool, error)
	// DeleteParticipant reports false when no participant has that name.
	DeleteParticipant(ctx context.Context, name string) (bool, error)
	DeleteAllParticipants(ctx context.Context) error
}

// MessageStore persists messages in insertion order.
type MessageStore interface {
	InsertMessage(ctx context.Context, m model.Message) error
	ListMessages(ctx context.Context) ([]model.Message, error)
	// RecentMessages returns the last limit messages, oldest first.
	RecentMessages(ctx context.Context, limit int) ([]model.Message, error)
	DeleteAllMessages(ctx context.Context) error
}

// Store is a complete backend.
type Store interface {
	ParticipantStore
	MessageStore
	Close() error
}
