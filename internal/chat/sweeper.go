package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SweeperState is Idle between ticks and Scanning while evicting.
type SweeperState int32

const (
	Idle SweeperState = iota
	Scanning
)

func (s SweeperState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	}
	return "unknown"
}

// Sweeper periodically evicts participants whose heartbeat is older than
// the threshold.
type Sweeper struct {
	registry  *Registry
	interval  time.Duration
	threshold time.Duration
	log       *zap.Logger
	state     atomic.Int32
}

// NewSweeper ticks every interval and evicts participants silent for more
// than threshold.
func NewSweeper(registry *Registry, interval, threshold time.Duration) *Sweeper {
	return &Sweeper{
		registry:  registry,
		interval:  interval,
		threshold: threshold,
		log:       registry.log.Named("sweeper"),
	}
}

// State reports whether a sweep is in progress.
func (s *Sweeper) State() SweeperState {
	return SweeperState(s.state.Load())
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("Starting presence sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("threshold", s.threshold))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Presence sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one scan and returns the evicted names. The stale set is a
// snapshot taken before any eviction; names that vanished meanwhile are
// skipped, and other failures are logged without stopping the scan.
func (s *Sweeper) Sweep(ctx context.Context) []string {
	if !s.state.CompareAndSwap(int32(Idle), int32(Scanning)) {
		s.log.Warn("Previous sweep still running, skipping tick")
		return nil
	}
	defer s.state.Store(int32(Idle))

	start := time.Now()
	defer func() { s.registry.metrics.observeSweep(time.Since(start)) }()

	stale, err := s.registry.Stale(ctx, s.registry.clock.Now(), s.threshold)
	if err != nil {
		s.log.Error("Failed to snapshot participants", zap.Error(err))
		return nil
	}

	var evicted []string
	for i, name := range stale {
		if ctx.Err() != nil {
			s.log.Info("Sweep aborted", zap.Int("remaining", len(stale)-i))
			break
		}
		err := s.registry.evict(ctx, name, reasonSweep)
		switch {
		case err == nil:
			evicted = append(evicted, name)
		case errors.Is(err, ErrNotFound):
			s.log.Debug("Participant already gone", zap.String("name", name))
		default:
			s.log.Error("Failed to evict participant", zap.String("name", name), zap.Error(err))
		}
	}

	if len(evicted) > 0 {
		s.log.Info("Evicted inactive participants", zap.Strings("names", evicted))
	}
	return evicted
}
