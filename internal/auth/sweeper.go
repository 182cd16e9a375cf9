package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/accounts/internal/metrics"
)

// DefaultSweepInterval is how often expired sessions are purged.
const DefaultSweepInterval = time.Hour

type idleSessionDeleter interface {
	DeleteIdle(ctx context.Context, ttl time.Duration) (int64, error)
}

// Sweeper periodically deletes sessions that have been idle for the TTL.
type Sweeper struct {
	mu       sync.RWMutex
	sessions idleSessionDeleter
	ttl      time.Duration
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	hooks    []func()
	cancel   context.CancelFunc
	done     chan struct{}
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

func WithSweepClock(c clockwork.Clock) SweeperOption {
	return func(s *Sweeper) { s.clock = c }
}

func WithSweepLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = l }
}

func WithSweepMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

// WithSweepHook runs fn after every sweep, for other periodic housekeeping.
func WithSweepHook(fn func()) SweeperOption {
	return func(s *Sweeper) { s.hooks = append(s.hooks, fn) }
}

func NewSweeper(sessions idleSessionDeleter, ttl time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		sessions: sessions,
		ttl:      ttl,
		interval: DefaultSweepInterval,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.logger = s.logger.With("component", "session_sweeper")
	return s
}

// Start begins the sweep loop. The first sweep happens one interval after start.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	ticker := s.clock.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce performs a single sweep and returns the number of sessions removed.
func (s *Sweeper) RunOnce(ctx context.Context) int64 {
	n, err := s.sessions.DeleteIdle(ctx, s.ttl)
	if err != nil {
		s.logger.Error("delete idle sessions", "error", err)
	} else {
		s.metrics.SessionsSweptTotal.Add(float64(n))
		if n > 0 {
			s.logger.Info("swept idle sessions", "count", n)
		}
	}

	for _, hook := range s.hooks {
		hook()
	}
	return n
}
