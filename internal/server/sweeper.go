package server

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredTokenSweeper deletes expired tokens.
type ExpiredTokenSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper runs an ExpiredTokenSweeper on a fixed interval.
type Sweeper struct {
	target   ExpiredTokenSweeper
	interval time.Duration
	logger   *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewSweeper returns nil when interval is not positive.
func NewSweeper(target ExpiredTokenSweeper, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Sweeper{target: target, interval: interval, logger: logger}
}

// Start launches the loop. Calling Start on a nil Sweeper is a no-op.
func (s *Sweeper) Start() {
	if s == nil || s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop()
}

// Stop ends the loop and waits for an in-flight sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s == nil || s.stop == nil {
		return nil
	}
	close(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.done)
	for {
		select {
		case <-ticker.C:
			s.SweepOnce(context.Background())
		case <-s.stop:
			return
		}
	}
}

// SweepOnce runs a single pass and logs the outcome.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	n, err := s.target.SweepExpired(ctx)
	if err != nil {
		s.logger.Warn("token sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired tokens swept", zap.Int64("deleted", n))
	}
}
