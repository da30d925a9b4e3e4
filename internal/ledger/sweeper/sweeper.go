// Package sweeper purges expired ledger rows on an interval.
package sweeper

import (
	"context"
	"log"
	"time"
)

// Purger deletes ledger records that expired at or before now.
type Purger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper runs Purger.DeleteExpired periodically until its context ends.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	now      func() time.Time
}

// New returns a Sweeper. interval <= 0 disables it.
func New(purger Purger, interval time.Duration) *Sweeper {
	return &Sweeper{purger: purger, interval: interval, now: time.Now}
}

// Start sweeps in a goroutine until ctx is done. The returned channel closes when it stops.
func (s *Sweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s == nil || s.purger == nil || s.interval <= 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
	return done
}

// SweepOnce runs one purge and returns the number of rows removed. Errors are logged.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.purger.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("ledger sweeper: %v", err)
		}
		return 0
	}
	if n > 0 {
		log.Printf("ledger sweeper: purged %d expired rows", n)
	}
	return n
}
