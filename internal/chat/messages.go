package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"batepapo/internal/clock"
	"batepapo/internal/model"
	"batepapo/internal/storage"
)

// Directory answers whether a name belongs to a present participant.
type Directory interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// MessageLog is the append-only sequence of chat events.
type MessageLog struct {
	mu        sync.RWMutex
	store     storage.MessageStore
	directory Directory
	publisher Publisher
	clock     clock.Clock
	log       *zap.Logger
	metrics   *Metrics
	timeout   time.Duration
}

// NewMessageLog creates a log over store; senders are checked against directory.
func NewMessageLog(store storage.MessageStore, directory Directory, opts Options) *MessageLog {
	opts = opts.withDefaults()
	return &MessageLog{
		store:     store,
		directory: directory,
		publisher: opts.Publisher,
		clock:     opts.Clock,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		timeout:   opts.StorageTimeout,
	}
}

// Append stores a participant message. The sender must be registered; a
// private message also needs a registered recipient. ID and Time are
// assigned here.
func (l *MessageLog) Append(ctx context.Context, m model.Message) (model.Message, error) {
	m.From = strings.TrimSpace(m.From)
	m.To = strings.TrimSpace(m.To)
	m.Text = strings.TrimSpace(m.Text)
	if err := validateMessage(m); err != nil {
		l.metrics.recordRejection("validation")
		return model.Message{}, err
	}

	l.mu.Lock()
	m, err := l.appendChecked(ctx, m)
	l.mu.Unlock()
	if err != nil {
		return model.Message{}, err
	}

	l.published(m)
	return m, nil
}

// appendChecked must be called with mu held.
func (l *MessageLog) appendChecked(ctx context.Context, m model.Message) (model.Message, error) {
	ok, err := l.directory.Exists(ctx, m.From)
	if err != nil {
		return model.Message{}, err
	}
	if !ok {
		l.metrics.recordRejection("unknown_sender")
		return model.Message{}, fmt.Errorf("append from %q: %w", m.From, ErrUnknownSender)
	}

	if m.Kind == model.KindPrivateMessage {
		ok, err = l.directory.Exists(ctx, m.To)
		if err != nil {
			return model.Message{}, err
		}
		if !ok {
			l.metrics.recordRejection("unknown_recipient")
			return model.Message{}, fmt.Errorf("append to %q: %w", m.To, ErrUnknownRecipient)
		}
	}

	return l.insert(ctx, m)
}

// AppendStatus records a system join/leave message for name.
func (l *MessageLog) AppendStatus(ctx context.Context, name, text string) (model.Message, error) {
	m := model.Message{
		From: name,
		To:   model.Broadcast,
		Text: text,
		Kind: model.KindStatus,
	}

	l.mu.Lock()
	m, err := l.insert(ctx, m)
	l.mu.Unlock()
	if err != nil {
		return model.Message{}, err
	}

	l.published(m)
	return m, nil
}

// insert must be called with mu held.
func (l *MessageLog) insert(ctx context.Context, m model.Message) (model.Message, error) {
	m.ID = uuid.New()
	m.Time = model.StampTime(l.clock.Now())

	err := l.call(ctx, "insert message", false, func(ctx context.Context) error {
		return l.store.InsertMessage(ctx, m)
	})
	if err != nil {
		return model.Message{}, err
	}

	l.metrics.recordMessage(string(m.Kind))
	l.log.Debug("message appended",
		zap.String("id", m.ID.String()),
		zap.String("from", m.From),
		zap.String("to", m.To),
		zap.String("type", string(m.Kind)))
	return m, nil
}

// List returns the whole log in insertion order. Private messages are not
// filtered per viewer.
func (l *MessageLog) List(ctx context.Context) ([]model.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var messages []model.Message
	err := l.call(ctx, "list messages", true, func(ctx context.Context) error {
		var err error
		messages, err = l.store.ListMessages(ctx)
		return err
	})
	return orEmpty(messages), err
}

// Recent returns the last limit messages, oldest first.
func (l *MessageLog) Recent(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, invalid("limit", "must be a positive integer")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var messages []model.Message
	err := l.call(ctx, "recent messages", true, func(ctx context.Context) error {
		var err error
		messages, err = l.store.RecentMessages(ctx, limit)
		return err
	})
	return orEmpty(messages), err
}

// ClearAll empties the log.
func (l *MessageLog) ClearAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.call(ctx, "delete messages", false, func(ctx context.Context) error {
		return l.store.DeleteAllMessages(ctx)
	})
	if err != nil {
		return err
	}
	l.log.Info("messages cleared")
	return nil
}

func (l *MessageLog) published(m model.Message) {
	if l.publisher != nil {
		l.publisher.Publish(m)
	}
}

func (l *MessageLog) call(ctx context.Context, op string, retry bool, fn func(ctx context.Context) error) error {
	err := storageCall(ctx, l.timeout, op, retry, fn)
	observeStorageError(l.metrics, err)
	return err
}

func validateMessage(m model.Message) error {
	verr := &ValidationError{}
	switch {
	case m.From == "":
		verr.Fields = append(verr.Fields, FieldError{Field: "from", Message: "must not be empty"})
	case nameTooLong(m.From):
		verr.Fields = append(verr.Fields, FieldError{Field: "from", Message: tooLongMessage})
	}
	switch {
	case m.To == "":
		verr.Fields = append(verr.Fields, FieldError{Field: "to", Message: "must not be empty"})
	case nameTooLong(m.To):
		verr.Fields = append(verr.Fields, FieldError{Field: "to", Message: tooLongMessage})
	}
	if m.Text == "" {
		verr.Fields = append(verr.Fields, FieldError{Field: "text", Message: "must not be empty"})
	}
	switch m.Kind {
	case model.KindMessage:
	case model.KindPrivateMessage:
		if m.To == model.Broadcast {
			verr.Fields = append(verr.Fields, FieldError{Field: "to", Message: "private messages need a participant recipient"})
		}
	default:
		verr.Fields = append(verr.Fields, FieldError{Field: "type", Message: "must be message or private_message"})
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func orEmpty(messages []model.Message) []model.Message {
	if messages == nil {
		return []model.Message{}
	}
	return messages
}
