package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"batepapo/internal/clock"
	"batepapo/internal/model"
	"batepapo/internal/storage"
)

// Eviction reasons reported to metrics.
const (
	reasonManual = "manual"
	reasonSweep  = "sweep"
)

// MaxNameLength is the longest participant name, in characters, that every
// storage driver can hold.
const MaxNameLength = 255

func nameTooLong(name string) bool {
	return utf8.RuneCountInString(name) > MaxNameLength
}

var tooLongMessage = fmt.Sprintf("must be at most %d characters", MaxNameLength)

// StatusRecorder appends join/leave status messages.
type StatusRecorder interface {
	AppendStatus(ctx context.Context, name, text string) (model.Message, error)
}

// Registry owns the set of present participants.
type Registry struct {
	mu      sync.RWMutex
	store   storage.ParticipantStore
	status  StatusRecorder
	clock   clock.Clock
	log     *zap.Logger
	metrics *Metrics
	timeout time.Duration
}

// NewRegistry creates a registry over store. status may be nil, in which case
// no join/leave messages are recorded.
func NewRegistry(store storage.ParticipantStore, status StatusRecorder, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		store:   store,
		status:  status,
		clock:   opts.Clock,
		log:     opts.Logger,
		metrics: opts.Metrics,
		timeout: opts.StorageTimeout,
	}
}

// Register adds a participant named name (trimmed). The name is validated
// before the duplicate check, so a blank name is always a ValidationError.
func (r *Registry) Register(ctx context.Context, name string) (model.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		r.metrics.recordRejection("validation")
		return model.Participant{}, invalid("name", "must not be empty")
	}
	if nameTooLong(name) {
		r.metrics.recordRejection("validation")
		return model.Participant{}, invalid("name", tooLongMessage)
	}

	r.mu.Lock()
	p, err := r.insert(ctx, name)
	r.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrDuplicateName) {
			r.metrics.recordRejection("duplicate")
		}
		return model.Participant{}, err
	}

	r.metrics.recordRegistration()
	r.log.Info("participant registered", zap.String("name", name))
	r.recordStatus(ctx, name, JoinText)
	return p, nil
}

// insert must be called with mu held.
func (r *Registry) insert(ctx context.Context, name string) (model.Participant, error) {
	exists, err := r.exists(ctx, name)
	if err != nil {
		return model.Participant{}, err
	}
	if exists {
		return model.Participant{}, fmt.Errorf("register %q: %w", name, ErrDuplicateName)
	}

	p := model.Participant{Name: name, LastHeartbeat: r.clock.Now()}
	err = r.call(ctx, "insert participant", false, func(ctx context.Context) error {
		return r.store.InsertParticipant(ctx, p)
	})
	if errors.Is(err, storage.ErrConflict) {
		return model.Participant{}, fmt.Errorf("register %q: %w", name, ErrDuplicateName)
	}
	if err != nil {
		return model.Participant{}, err
	}
	return p, nil
}

// List returns participants in registration order.
func (r *Registry) List(ctx context.Context) ([]model.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list(ctx)
}

func (r *Registry) list(ctx context.Context) ([]model.Participant, error) {
	var participants []model.Participant
	err := r.call(ctx, "list participants", true, func(ctx context.Context) error {
		var err error
		participants, err = r.store.ListParticipants(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if participants == nil {
		participants = []model.Participant{}
	}
	return participants, nil
}

// Get returns the participant named name.
func (r *Registry) Get(ctx context.Context, name string) (model.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" || nameTooLong(name) {
		return model.Participant{}, fmt.Errorf("get: %w", ErrNotFound)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var p model.Participant
	var found bool
	err := r.call(ctx, "get participant", true, func(ctx context.Context) error {
		var err error
		p, found, err = r.store.GetParticipant(ctx, name)
		return err
	})
	if err != nil {
		return model.Participant{}, err
	}
	if !found {
		return model.Participant{}, fmt.Errorf("get %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// Exists reports whether name is currently registered.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" || nameTooLong(name) {
		return false, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exists(ctx, name)
}

func (r *Registry) exists(ctx context.Context, name string) (bool, error) {
	var found bool
	err := r.call(ctx, "get participant", true, func(ctx context.Context) error {
		var err error
		_, found, err = r.store.GetParticipant(ctx, name)
		return err
	})
	return found, err
}

// Touch refreshes the heartbeat of name.
func (r *Registry) Touch(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || nameTooLong(name) {
		r.metrics.recordRejection("not_found")
		return fmt.Errorf("touch: %w", ErrNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var found bool
	now := r.clock.Now()
	err := r.call(ctx, "touch participant", false, func(ctx context.Context) error {
		var err error
		found, err = r.store.TouchParticipant(ctx, name, now)
		return err
	})
	if err != nil {
		return err
	}
	if !found {
		r.metrics.recordRejection("not_found")
		return fmt.Errorf("touch %q: %w", name, ErrNotFound)
	}
	r.log.Debug("heartbeat", zap.String("name", name), zap.Time("at", now))
	return nil
}

// Evict removes name and records a leave message.
func (r *Registry) Evict(ctx context.Context, name string) error {
	return r.evict(ctx, name, reasonManual)
}

func (r *Registry) evict(ctx context.Context, name, reason string) error {
	name = strings.TrimSpace(name)
	if name == "" || nameTooLong(name) {
		return fmt.Errorf("evict: %w", ErrNotFound)
	}

	r.mu.Lock()
	var found bool
	err := r.call(ctx, "delete participant", false, func(ctx context.Context) error {
		var err error
		found, err = r.store.DeleteParticipant(ctx, name)
		return err
	})
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("evict %q: %w", name, ErrNotFound)
	}

	r.metrics.recordEviction(reason)
	r.log.Info("participant evicted", zap.String("name", name), zap.String("reason", reason))
	r.recordStatus(ctx, name, LeaveText)
	return nil
}

// Stale returns the names whose heartbeat is older than threshold at now.
// The result is a snapshot; no lock is held once it returns.
func (r *Registry) Stale(ctx context.Context, now time.Time, threshold time.Duration) ([]string, error) {
	participants, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(participants, func(p model.Participant, _ int) (string, bool) {
		return p.Name, p.IdleFor(now) > threshold
	}), nil
}

// ClearAll removes every participant without recording leave messages.
func (r *Registry) ClearAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.call(ctx, "delete participants", false, func(ctx context.Context) error {
		return r.store.DeleteAllParticipants(ctx)
	})
	if err != nil {
		return err
	}
	r.metrics.setParticipants(0)
	r.log.Info("participants cleared")
	return nil
}

// recordStatus appends a join/leave message. The membership change already
// happened, so a failure here is logged and not returned.
func (r *Registry) recordStatus(ctx context.Context, name, text string) {
	if r.status == nil {
		return
	}
	if _, err := r.status.AppendStatus(ctx, name, text); err != nil {
		r.log.Error("failed to record status message",
			zap.String("name", name), zap.String("text", text), zap.Error(err))
	}
}

func (r *Registry) call(ctx context.Context, op string, retry bool, fn func(ctx context.Context) error) error {
	err := storageCall(ctx, r.timeout, op, retry, fn)
	observeStorageError(r.metrics, err)
	return err
}

func observeStorageError(m *Metrics, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrStorageTimeout):
		m.recordStorageError("timeout")
	case errors.Is(err, ErrStorageUnavailable):
		m.recordStorageError("unavailable")
	}
}
