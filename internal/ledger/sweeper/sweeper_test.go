package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingPurger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPurger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 3, p.err
}

func (p *countingPurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestSweeper_RunsUntilCancelled(t *testing.T) {
	p := &countingPurger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := New(p, 5*time.Millisecond).Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for p.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
	if p.count() < 2 {
		t.Errorf("calls = %d, want >= 2", p.count())
	}
}

func TestSweeper_Disabled(t *testing.T) {
	p := &countingPurger{}
	done := New(p, 0).Start(context.Background())
	select {
	case <-done:
	default:
		t.Fatal("disabled sweeper should report done immediately")
	}
	if p.count() != 0 {
		t.Errorf("calls = %d, want 0", p.count())
	}
}

func TestSweepOnce_Error(t *testing.T) {
	p := &countingPurger{err: errors.New("db locked")}
	if n := New(p, time.Minute).SweepOnce(context.Background()); n != 0 {
		t.Errorf("n = %d, want 0 on error", n)
	}
}
