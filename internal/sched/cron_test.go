package sched

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/joshsymonds/threadpurge/internal/props"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCron(store props.Store) *Cron {
	c := NewCron(store, discardLogger())
	c.Clock = func() time.Time { return time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestArmPersistsAndLists(t *testing.T) {
	store := props.NewMemory()
	c := testCron(store)
	ctx := context.Background()

	rec, err := c.ArmRecurring(ctx, "purge", 24*time.Hour)
	if err != nil {
		t.Fatalf("arm recurring: %v", err)
	}
	at := c.Clock().Add(2 * time.Minute)
	one, err := c.ArmOneShot(ctx, "purge-continue", at)
	if err != nil {
		t.Fatalf("arm oneshot: %v", err)
	}

	timers, err := c.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(timers) != 2 {
		t.Fatalf("timers = %d, want 2", len(timers))
	}
	byID := map[string]Timer{}
	for _, tm := range timers {
		byID[tm.ID] = tm
	}
	if got := byID[rec.ID]; got.Kind != KindRecurring || time.Duration(got.Every) != 24*time.Hour {
		t.Fatalf("recurring timer mangled: %+v", got)
	}
	if got := byID[one.ID]; got.Kind != KindOneShot || !got.FireAt.Equal(at) {
		t.Fatalf("oneshot timer mangled: %+v", got)
	}

	// a second scheduler over the same store sees the same timers
	other := testCron(store)
	timers, err = other.List(ctx)
	if err != nil {
		t.Fatalf("list from second scheduler: %v", err)
	}
	if len(timers) != 2 {
		t.Fatalf("second scheduler sees %d timers, want 2", len(timers))
	}
}

func TestRemoveByHandlerIsScoped(t *testing.T) {
	c := testCron(props.NewMemory())
	ctx := context.Background()
	if _, err := c.ArmRecurring(ctx, "purge", 24*time.Hour); err != nil {
		t.Fatalf("arm: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.ArmOneShot(ctx, "purge-continue", c.Clock().Add(time.Minute)); err != nil {
			t.Fatalf("arm: %v", err)
		}
	}

	removed, err := c.RemoveByHandler(ctx, "purge-continue")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	timers, err := c.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(timers) != 1 || timers[0].Handler != "purge" {
		t.Fatalf("remaining timers %+v", timers)
	}
}

func TestRemoveAll(t *testing.T) {
	c := testCron(props.NewMemory())
	ctx := context.Background()
	if _, err := c.ArmRecurring(ctx, "purge", 24*time.Hour); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if _, err := c.ArmOneShot(ctx, "purge-continue", c.Clock().Add(time.Minute)); err != nil {
		t.Fatalf("arm: %v", err)
	}

	removed, err := c.RemoveAll(ctx)
	if err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	timers, err := c.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(timers) != 0 {
		t.Fatalf("timers left after remove all: %+v", timers)
	}
}

func TestOnceAtFiresExactlyOnce(t *testing.T) {
	at := time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)
	s := onceAt{at: at}

	if next := s.Next(at.Add(-time.Hour)); !next.Equal(at) {
		t.Fatalf("next before fire time = %v, want %v", next, at)
	}
	if next := s.Next(at); !next.IsZero() {
		t.Fatalf("next at fire time = %v, want zero", next)
	}
	if next := s.Next(at.Add(time.Second)); !next.IsZero() {
		t.Fatalf("next after fire time = %v, want zero", next)
	}
}

func TestDurationJSONRoundTrip(t *testing.T) {
	in := Timer{ID: "x", Handler: "purge", Kind: KindRecurring, Every: Duration(36 * time.Hour)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Timer
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Every != in.Every {
		t.Fatalf("every = %v, want %v", time.Duration(out.Every), time.Duration(in.Every))
	}
}

func TestReconcilePicksUpForeignTimers(t *testing.T) {
	store := props.NewMemory()
	daemon := testCron(store)
	daemon.Register("purge-continue", func(context.Context) {})
	ctx := context.Background()

	// another process arms a continuation through the shared store
	other := testCron(store)
	armed, err := other.ArmOneShot(ctx, "purge-continue", daemon.Clock().Add(time.Hour))
	if err != nil {
		t.Fatalf("arm: %v", err)
	}

	if err := daemon.reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	daemon.mu.Lock()
	_, scheduled := daemon.entries[armed.ID]
	daemon.mu.Unlock()
	if !scheduled {
		t.Fatalf("foreign timer not scheduled after reconcile")
	}

	// and when it disappears from the store, the entry goes too
	if _, err := other.RemoveAll(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := daemon.reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	daemon.mu.Lock()
	_, scheduled = daemon.entries[armed.ID]
	daemon.mu.Unlock()
	if scheduled {
		t.Fatalf("removed timer still scheduled after reconcile")
	}
}
