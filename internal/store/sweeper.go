package store

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/trailchat/pkg/log"
)

// Expirer physically removes expired messages.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically purges expired messages. Its lifetime is owned by
// whoever calls Start and Stop.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(expirer Expirer, interval time.Duration) *Sweeper {
	return &Sweeper{expirer: expirer, interval: interval, now: time.Now}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	l := log.L()
	l.Info().Dur("interval", s.interval).Msg("message sweeper started")
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
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

// SweepOnce purges expired messages immediately.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	return s.expirer.DeleteExpired(ctx, s.now())
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	l := log.L()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				l.Error().Err(err).Msg("failed to sweep expired messages")
				continue
			}
			if n > 0 {
				l.Info().Int64("deleted", n).Msg("swept expired messages")
			}
		}
	}
}
