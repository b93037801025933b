package rate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter gates outbound API calls so we respect Gmail rate limits.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Interval spaces calls at least 1/rps apart. The zero value never waits,
// which is what tests and dry runs want.
type Interval struct {
	mu   sync.Mutex
	gap  time.Duration
	last time.Time
}

// NewInterval returns a limiter that allows at most rps calls per second.
func NewInterval(rps int) *Interval {
	if rps <= 0 {
		return &Interval{}
	}
	return &Interval{gap: time.Second / time.Duration(rps)}
}

// Wait blocks until the next call slot or the context is canceled.
func (l *Interval) Wait(ctx context.Context) error {
	if l.gap == 0 {
		return ctx.Err()
	}
	l.mu.Lock()
	now := time.Now()
	next := l.last.Add(l.gap)
	if next.Before(now) {
		next = now
	}
	l.last = next
	l.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

var _ Limiter = (*Interval)(nil)
