// Package memory is an in-process storage driver.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"batepapo/internal/model"
	"batepapo/internal/storage"
)

// Store keeps participants and messages in slices guarded by a mutex.
type Store struct {
	mu           sync.RWMutex
	participants []model.Participant
	messages     []model.Message
}

var _ storage.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func (s *Store) InsertParticipant(ctx context.Context, p model.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok := s.find(p.Name); ok {
		return storage.ErrConflict
	}
	s.participants = append(s.participants, p)
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, name string) (model.Participant, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Participant{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, _, ok := s.find(name)
	return p, ok, nil
}

func (s *Store) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.Participant{}, s.participants...), nil
}

func (s *Store) TouchParticipant(ctx context.Context, name string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, i, ok := s.find(name)
	if !ok {
		return false, nil
	}
	s.participants[i].LastHeartbeat = at
	return true, nil
}

func (s *Store) DeleteParticipant(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, i, ok := s.find(name)
	if !ok {
		return false, nil
	}
	s.participants = append(s.participants[:i], s.participants[i+1:]...)
	return true, nil
}

func (s *Store) DeleteAllParticipants(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.participants = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, m model.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	return nil
}

func (s *Store) ListMessages(ctx context.Context) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.Message{}, s.messages...), nil
}

func (s *Store) RecentMessages(ctx context.Context, limit int) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.Message{}, lo.Subset(s.messages, -limit, uint(limit))...), nil
}

func (s *Store) DeleteAllMessages(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

// find must be called with mu held.
func (s *Store) find(name string) (model.Participant, int, bool) {
	return lo.FindIndexOf(s.participants, func(p model.Participant) bool {
		return p.Name == name
	})
}
