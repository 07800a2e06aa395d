package chat

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"batepapo/internal/clock"
	"batepapo/internal/model"
	"batepapo/internal/storage/memory"
)

var start = time.Date(2024, 5, 10, 21, 4, 5, 0, time.UTC)

type fixture struct {
	room  *Room
	clock *clock.Fake
	store *memory.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	fake := clock.NewFake(start)
	store := memory.New()
	room := NewRoom(store, Options{
		Clock:   fake,
		Logger:  zaptest.NewLogger(t),
		Metrics: NewMetrics(prometheus.NewRegistry()),
	})
	return fixture{room: room, clock: fake, store: store}
}

type recordingPublisher struct {
	messages []model.Message
}

func (p *recordingPublisher) Publish(m model.Message) {
	p.messages = append(p.messages, m)
}

func mustRegister(t *testing.T, room *Room, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := room.Participants.Register(context.Background(), name)
		require.NoError(t, err)
	}
}

func messageTexts(messages []model.Message) []string {
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		texts = append(texts, m.From+":"+m.Text)
	}
	return texts
}

func TestRoomPublishesEveryAppend(t *testing.T) {
	req := require.New(t)
	pub := &recordingPublisher{}
	room := NewRoom(memory.New(), Options{Clock: clock.NewFake(start), Publisher: pub})
	ctx := context.Background()

	mustRegister(t, room, "Alice")
	_, err := room.Messages.Append(ctx, model.Message{From: "Alice", To: model.Broadcast, Text: "oi", Kind: model.KindMessage})
	req.NoError(err)
	req.NoError(room.Participants.Evict(ctx, "Alice"))

	req.Equal([]string{"Alice:joined", "Alice:oi", "Alice:left"}, messageTexts(pub.messages))
}

func TestRoomSync(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := memory.New()
	req.NoError(store.InsertParticipant(ctx, model.Participant{Name: "Alice", LastHeartbeat: start}))

	metrics := NewMetrics(prometheus.NewRegistry())
	room := NewRoom(store, Options{Metrics: metrics})
	req.NoError(room.Sync(ctx))
	req.Equal(1.0, testutil.ToFloat64(metrics.participants))
}
