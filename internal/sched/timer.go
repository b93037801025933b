// Package sched schedules named-handler timers: a recurring kickoff and
// one-shot continuations. Timer records are persisted through a property
// store so batch continuation survives process restarts; firing is driven
// by an in-process cron runner.
package sched

import (
	"context"
	"time"
)

// Kind distinguishes the daily kickoff from one-shot continuations.
type Kind string

const (
	KindRecurring Kind = "recurring"
	KindOneShot   Kind = "oneshot"
)

// Timer is a persisted invocation request for a named handler.
type Timer struct {
	ID      string    `json:"id"`
	Handler string    `json:"handler"`
	Kind    Kind      `json:"kind"`
	Every   Duration  `json:"every,omitempty"`   // recurring period
	FireAt  time.Time `json:"fire_at,omitempty"` // oneshot fire time
}

// Duration marshals as a Go duration string so the persisted timer file
// stays readable.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Handler is the body invoked when a timer fires.
type Handler func(ctx context.Context)

// Scheduler is the timer surface the purger and its admin depend on.
// Multiple timers for the same handler may coexist; callers that want a
// single continuation sweep first.
type Scheduler interface {
	ArmRecurring(ctx context.Context, handler string, every time.Duration) (Timer, error)
	ArmOneShot(ctx context.Context, handler string, at time.Time) (Timer, error)
	List(ctx context.Context) ([]Timer, error)
	RemoveByHandler(ctx context.Context, handler string) (int, error)
	RemoveAll(ctx context.Context) (int, error)
}
