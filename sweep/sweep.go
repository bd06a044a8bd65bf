// Package sweep implements the idle-session sweeper: a recurring background
// process that finds accounts idle past a threshold and force-closes their
// active sessions through the lifecycle controller's single close path, which
// in turn schedules enrichment exactly as a user-driven close would.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/parleyhq/parley/logging"
)

const (
	// DefaultInterval is how often the sweeper scans for idle accounts.
	DefaultInterval = time.Minute
	// DefaultIdleTimeout is how long an account may sit without activity
	// before its active session is reclaimed.
	DefaultIdleTimeout = 30 * time.Minute
)

// Closer is the controller capability the sweeper drives. CloseIdle must
// tolerate concurrent user activity racing the scan.
type Closer interface {
	CloseIdle(ctx context.Context, threshold time.Duration) ([]string, error)
}

// Options configures a Sweeper.
type Options struct {
	// Interval between sweep passes. Defaults to DefaultInterval.
	Interval time.Duration

	// IdleTimeout before an account's session is reclaimed. Defaults to
	// DefaultIdleTimeout.
	IdleTimeout time.Duration

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Sweeper periodically reclaims idle sessions. Start/Stop are safe to call
// multiple times.
type Sweeper struct {
	closer      Closer
	interval    time.Duration
	idleTimeout time.Duration
	logger      logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Sweeper over the given closer.
func New(closer Closer, optFns ...func(o *Options)) *Sweeper {
	opts := Options{Interval: DefaultInterval, IdleTimeout: DefaultIdleTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Sweeper{
		closer:      closer,
		interval:    opts.Interval,
		idleTimeout: opts.IdleTimeout,
		logger:      opts.Logger,
	}
}

// Start begins periodic sweeping until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx)
}

// Stop halts sweeping and waits for the in-flight pass, if any, to finish.
// A slow enrichment run never blocks this: CloseIdle only schedules work.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		close(s.done)
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass. Exposed for tests and for callers
// that want a final pass during shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) {
	start := time.Now()
	closed, err := s.closer.CloseIdle(ctx, s.idleTimeout)
	if err != nil {
		s.logger.Error("error running sweep pass: %v", err)
		return
	}
	if len(closed) > 0 {
		s.logger.Info("idle sweep completed closed=%d duration=%s", len(closed), time.Since(start))
	}
}
