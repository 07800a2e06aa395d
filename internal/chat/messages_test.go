package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"batepapo/internal/model"
)

func TestAppendFromUnknownSender(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.room.Messages.Append(ctx, model.Message{From: "Ghost", To: model.Broadcast, Text: "boo", Kind: model.KindMessage})
	req.ErrorIs(err, ErrUnknownSender)

	messages, err := f.room.Messages.List(ctx)
	req.NoError(err)
	req.Empty(messages)
}

func TestAppendBroadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	mustRegister(t, f.room, "Alice")

	m, err := f.room.Messages.Append(ctx, model.Message{From: "Alice", To: model.Broadcast, Text: " bom dia ", Kind: model.KindMessage})
	req.NoError(err)
	req.NotEqual(uuid.Nil, m.ID)
	req.Equal("bom dia", m.Text)
	req.Equal("21:04:05", m.Time)

	messages, err := f.room.Messages.List(ctx)
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal(m, messages[1])
}

func TestAppendPrivateMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	mustRegister(t, f.room, "Alice", "Bob")

	m, err := f.room.Messages.Append(ctx, model.Message{From: "Alice", To: "Bob", Text: "psst", Kind: model.KindPrivateMessage})
	req.NoError(err)
	req.Equal(model.KindPrivateMessage, m.Kind)

	_, err = f.room.Messages.Append(ctx, model.Message{From: "Alice", To: "Ghost", Text: "psst", Kind: model.KindPrivateMessage})
	req.ErrorIs(err, ErrUnknownRecipient)

	_, err = f.room.Messages.Append(ctx, model.Message{From: "Alice", To: model.Broadcast, Text: "psst", Kind: model.KindPrivateMessage})
	req.True(IsValidation(err))
}

func TestAppendRejectsMalformedMessages(t *testing.T) {
	f := newFixture(t)
	mustRegister(t, f.room, "Alice")

	tests := []struct {
		name  string
		msg   model.Message
		field string
	}{
		{"empty text", model.Message{From: "Alice", To: model.Broadcast, Text: "  ", Kind: model.KindMessage}, "text"},
		{"empty to", model.Message{From: "Alice", Text: "oi", Kind: model.KindMessage}, "to"},
		{"status kind", model.Message{From: "Alice", To: model.Broadcast, Text: "oi", Kind: model.KindStatus}, "type"},
		{"unknown kind", model.Message{From: "Alice", To: model.Broadcast, Text: "oi", Kind: "shout"}, "type"},
		{"empty sender", model.Message{To: model.Broadcast, Text: "oi", Kind: model.KindMessage}, "from"},
		{"long sender", model.Message{From: strings.Repeat("a", MaxNameLength+1), To: model.Broadcast, Text: "oi", Kind: model.KindMessage}, "from"},
		{"long recipient", model.Message{From: "Alice", To: strings.Repeat("b", MaxNameLength+1), Text: "oi", Kind: model.KindMessage}, "to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.room.Messages.Append(context.Background(), tt.msg)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestRecent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	mustRegister(t, f.room, "Alice")
	for _, text := range []string{"um", "dois", "três"} {
		_, err := f.room.Messages.Append(ctx, model.Message{From: "Alice", To: model.Broadcast, Text: text, Kind: model.KindMessage})
		req.NoError(err)
	}

	recent, err := f.room.Messages.Recent(ctx, 2)
	req.NoError(err)
	req.Equal([]string{"Alice:dois", "Alice:três"}, messageTexts(recent))

	_, err = f.room.Messages.Recent(ctx, 0)
	req.True(IsValidation(err))
}

func TestClearAllMessages(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	mustRegister(t, f.room, "Alice")

	req.NoError(f.room.Messages.ClearAll(ctx))
	messages, err := f.room.Messages.List(ctx)
	req.NoError(err)
	req.Empty(messages)

	ok, err := f.room.Participants.Exists(ctx, "Alice")
	req.NoError(err)
	req.True(ok, "clearing messages keeps participants")
}
