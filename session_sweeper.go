package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired refresh sessions are purged
const DefaultSweepInterval = time.Hour

// SessionSweeper periodically deletes expired refresh sessions
type SessionSweeper struct {
	registry *SessionRegistry
	interval time.Duration
	logger   Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSessionSweeper(registry *SessionRegistry, interval time.Duration, logger Logger) *SessionSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &SessionSweeper{
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Start runs a sweep right away and then on every tick until Stop is
// called or ctx is done. Calling Start twice is a no-op.
func (s *SessionSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
}

// Stop halts the loop and waits for a running sweep to return
func (s *SessionSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce deletes the sessions that are already expired
func (s *SessionSweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.registry.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("swept expired refresh sessions", "count", n)
	}
	return n, nil
}

func (s *SessionSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("session sweeper started", "interval", s.interval)

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("session sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("session sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("session sweep failed", "error", err)
			}
		}
	}
}
