// Package quota tracks how many purge runs have executed per calendar day,
// so the purger can stop before the platform's daily execution allowance
// runs out.
package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/joshsymonds/threadpurge/internal/props"
)

const keyPrefix = "runs:"

// Counter is a day-keyed run counter over a property store. A missing key
// reads as zero. Keys for past days are left behind rather than pruned;
// props.Store.Keys exists for operators who care.
type Counter struct {
	Store props.Store
	Clock func() time.Time
}

func New(store props.Store) *Counter {
	return &Counter{Store: store, Clock: time.Now}
}

// DayKey returns the store key for today's counter, e.g. "runs:2026-08-24".
func (c *Counter) DayKey() string {
	return keyPrefix + c.Clock().Format("2006-01-02")
}

// Today returns the number of runs recorded for the current day.
func (c *Counter) Today(ctx context.Context) (int, error) {
	raw, ok, err := c.Store.Get(ctx, c.DayKey())
	if err != nil {
		return 0, fmt.Errorf("read run counter: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse run counter %q: %w", raw, err)
	}
	return n, nil
}

// Increment bumps today's counter by one and returns the new value. The
// read-then-write is not compare-and-swap protected; overlapping manual
// runs can under- or over-count, which is an accepted risk.
func (c *Counter) Increment(ctx context.Context) (int, error) {
	n, err := c.Today(ctx)
	if err != nil {
		return 0, err
	}
	n++
	if err := c.Store.Set(ctx, c.DayKey(), strconv.Itoa(n)); err != nil {
		return 0, fmt.Errorf("persist run counter: %w", err)
	}
	return n, nil
}
