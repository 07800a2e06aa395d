// Package storagetest holds the behaviour every storage driver must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"batepapo/internal/model"
	"batepapo/internal/storage"
)

// Factory returns an empty store; cleanup is registered on t.
type Factory func(t *testing.T) storage.Store

// Run exercises the driver returned by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ParticipantsKeepInsertionOrder", func(t *testing.T) { participantsKeepInsertionOrder(t, newStore(t)) })
	t.Run("DuplicateParticipantConflicts", func(t *testing.T) { duplicateParticipantConflicts(t, newStore(t)) })
	t.Run("TouchParticipant", func(t *testing.T) { touchParticipant(t, newStore(t)) })
	t.Run("DeleteParticipant", func(t *testing.T) { deleteParticipant(t, newStore(t)) })
	t.Run("DeleteAllParticipants", func(t *testing.T) { deleteAllParticipants(t, newStore(t)) })
	t.Run("MessagesKeepInsertionOrder", func(t *testing.T) { messagesKeepInsertionOrder(t, newStore(t)) })
	t.Run("RecentMessages", func(t *testing.T) { recentMessages(t, newStore(t)) })
	t.Run("DeleteAllMessages", func(t *testing.T) { deleteAllMessages(t, newStore(t)) })
	t.Run("ConcurrentInserts", func(t *testing.T) { concurrentInserts(t, newStore(t)) })
}

var base = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

func participant(name string, offset time.Duration) model.Participant {
	return model.Participant{Name: name, LastHeartbeat: base.Add(offset)}
}

func message(from, text string) model.Message {
	return model.Message{
		ID:   uuid.New(),
		From: from,
		To:   model.Broadcast,
		Text: text,
		Kind: model.KindMessage,
		Time: model.StampTime(base),
	}
}

func participantsKeepInsertionOrder(t *testing.T, s storage.Store) {
	req := require.New(t)
	ctx := context.Background()
	// reverse alphabetical so ordering by name would fail
	for i, name := range []string{"Zoe", "Maria", "Alice"} {
		req.NoError(s.InsertParticipant(ctx, participant(name, time.Duration(i)*time.Second)))
	}

	got, err := s.ListParticipants(ctx)
	req.NoError(err)
	req.Equal([]string{"Zoe", "Maria", "Alice"}, lo.Map(got, func(p model.Participant, _ int) string { return p.Name }))
	req.True(got[1].LastHeartbeat.Equal(base.Add(time.Second)))

	p, ok, err := s.GetParticipant(ctx, "Maria")
	req.NoError(err)
	req.True(ok)
	req.Equal("Maria", p.Name)

	_, ok, err = s.GetParticipant(ctx, "Nobody")
	req.NoError(err)
	req.False(ok)
}

func duplicateParticipantConflicts(t *testing.T, s storage.Store) {
	req := require.New(t)
	ctx := context.Background()
	req.NoError(s.InsertParticipant(ctx, participant("Alice", 0)))
	req.ErrorIs(s.InsertParticipant(ctx, participant("Alice", time.Minute)), storage.ErrConflict)

	got, err := s.ListParticipants(ctx)
	req.NoError(err)
	req.Len(got, 1)
	req.True(got[0].LastHeartbeat.Equal(base))
}

func touchParticipant(t *testing.T, s storage.Store) {
	req := require.New(t)
	ctx := context.Background()
	req.NoError(s.InsertParticipant(ctx, participant("Alice", 0)))

	ok, err := s.TouchParticipant(ctx, "Alice", base.Add(time.Minute))
	req.NoError(err)
	req.True(ok)

	p, _, err := s.GetParticipant(ctx, "Alice")
	req.NoError(err)
	req.True(p.LastHeartbeat.Equal(base.Add(time.Minute)), "got %s", p.LastHeartbeat)

	ok, err = s.TouchParticipant(ctx, "Bob", base)
	req.NoError(err)
	req.False(ok)
}

func deleteParticipant(t *testing.T, s storage.Store) {
	req := require.New(t)
	ctx := context.Background()
	req.NoError(s.InsertParticipant(ctx, participant("Alice", 0)))
	req.NoError(s.InsertParticipant(ctx, participant("Bob", 0)))

	ok, err := s.DeleteParticipant(ctx, "Alice")
	req.NoError(err)
	req.True(ok)

	ok, err = s.DeleteParticipant(ctx, "Alice")
	req.NoError(err)
	req.False(ok)

	got, err := s.ListParticipants(ctx)
	req.NoError(err)
	req.Len(got, 1)
	req.Equal("Bob", got[0].Name)

	// a freed name can be registered again
	req.NoError(s.InsertParticipant(ctx, participant("Alice", 0)))
}

func deleteAllParticipants(t *testing.T, s storage.Store) {
	req := require.New(t)
	ctx := context.Background()
	req.NoError(s.InsertParticipant(ctx, participant("Alice", 0)))
	req.NoError(s.InsertParticipant(ctx, participant("Bob", 0)))
	req.NoError(s.DeleteAllParticipants(ctx))

	got, err := s.ListParticipants(ctx)
	req.NoError(err)
	req.Empty(got)
}

func messagesKeepInsertionOrder(t *testing.T, s storage.Store) {
	req := require.New(t)
	ctx := context.Background()
	want := []model.Message{
		message("Alice", "oi"),
		{ID: uuid.New(), From: "Alice", To: "Bob", Text: "psst", Kind: model.KindPrivateMessage, Time: "09:30:01"},
		message("Bob", "olá"),
	}
	for _, m := range want {
		req.NoError(s.InsertMessage(ctx, m))
	}

	got, err := s.ListMessages(ctx)
	req.NoError(err)
	req.Equal(want, got)
}

func recentMessages(t *testing.T, s storage.Store) {
	req := require.New(t)
	ctx := context.Background()
	var all []model.Message
	for i := range 5 {
		m := message("Alice", fmt.Sprintf("msg %d", i))
		all = append(all, m)
		req.NoError(s.InsertMessage(ctx, m))
	}

	got, err := s.RecentMessages(ctx, 2)
	req.NoError(err)
	req.Equal(all[3:], got)

	got, err = s.RecentMessages(ctx, 50)
	req.NoError(err)
	req.Equal(all, got)
}

func deleteAllMessages(t *testing.T, s storage.Store) {
	req := require.New(t)
	ctx := context.Background()
	req.NoError(s.InsertMessage(ctx, message("Alice", "oi")))
	req.NoError(s.DeleteAllMessages(ctx))

	got, err := s.ListMessages(ctx)
	req.NoError(err)
	req.Empty(got)
}

func concurrentInserts(t *testing.T, s storage.Store) {
	req := require.New(t)
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.InsertParticipant(ctx, participant(fmt.Sprintf("user-%02d", i), 0))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	got, err := s.ListParticipants(ctx)
	req.NoError(err)
	req.Len(got, n)
}
