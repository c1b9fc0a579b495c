// Package retention periodically deletes stored mail past its maximum age.
package retention

import (
	"context"
	"log/slog"
	"time"
)

type Deleter interface {
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

type Sweeper struct {
	store    Deleter
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(store Deleter, maxAge, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, maxAge: maxAge, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx, time.Now()); err != nil && ctx.Err() == nil {
			s.logger.Error("retention sweep", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.maxAge).Unix()
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("delete expired mail", "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}
