// Package chat implements the presence and message lifecycle of the room:
// participant registration and heartbeats, the append-only message log and
// the sweeper that evicts silent participants.
package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"batepapo/internal/clock"
	"batepapo/internal/model"
	"batepapo/internal/storage"
)

// Status texts appended when participants come and go.
const (
	JoinText  = "joined"
	LeaveText = "left"
)

// Publisher receives every message appended to the log.
type Publisher interface {
	Publish(m model.Message)
}

// Options carries the collaborators shared by the registry and the log.
type Options struct {
	Clock          clock.Clock
	Logger         *zap.Logger
	Metrics        *Metrics
	StorageTimeout time.Duration
	Publisher      Publisher
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = DefaultStorageTimeout
	}
	return o
}

// Room ties the participant registry to the message log.
type Room struct {
	Participants *Registry
	Messages     *MessageLog
}

// NewRoom builds a registry and a log over store. The registry records
// join/leave status through the log and the log checks senders through the
// registry.
func NewRoom(store storage.Store, opts Options) *Room {
	opts = opts.withDefaults()
	registry := NewRegistry(store, nil, opts)
	messages := NewMessageLog(store, registry, opts)
	registry.status = messages
	return &Room{Participants: registry, Messages: messages}
}

// Sync aligns the participant gauge with what the store already holds.
func (r *Room) Sync(ctx context.Context) error {
	participants, err := r.Participants.List(ctx)
	if err != nil {
		return err
	}
	r.Participants.metrics.setParticipants(len(participants))
	return nil
}

// NewSweeper returns a sweeper evicting participants of this room.
func (r *Room) NewSweeper(interval, threshold time.Duration) *Sweeper {
	return NewSweeper(r.Participants, interval, threshold)
}
