package sched

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/joshsymonds/threadpurge/internal/props"
)

const timersKey = "sched:timers"

// overdueGrace delays one-shot timers whose fire time passed while the
// process was down, so a restart doesn't stampede straight into a run
// before the daemon finishes coming up.
const overdueGrace = 15 * time.Second

// Cron runs persisted timers on a robfig/cron runner. Arm/Remove write
// through to the property store first; the in-memory runner follows. A
// Cron that is never started (one-off CLI invocations) still persists
// timer mutations for the daemon to reconcile.
type Cron struct {
	Store props.Store
	Log   *slog.Logger
	Clock func() time.Time

	runner   *cron.Cron
	handlers map[string]Handler

	mu      sync.Mutex
	entries map[string]cron.EntryID // timer ID -> cron entry
}

func NewCron(store props.Store, log *slog.Logger) *Cron {
	return &Cron{
		Store:    store,
		Log:      log,
		Clock:    time.Now,
		runner:   cron.New(),
		handlers: make(map[string]Handler),
		entries:  make(map[string]cron.EntryID),
	}
}

// Register binds a handler name to its body. Timers naming an unregistered
// handler persist but do not fire until a process that knows the handler
// loads them.
func (s *Cron) Register(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Start loads persisted timers, starts the runner, and reconciles against
// the store every resync until ctx is done. Blocks until shutdown.
func (s *Cron) Start(ctx context.Context, resync time.Duration) error {
	if err := s.reconcile(ctx); err != nil {
		return fmt.Errorf("load timers: %w", err)
	}
	s.runner.Start()
	defer s.runner.Stop()

	if resync <= 0 {
		resync = 30 * time.Second
	}
	tick := time.NewTicker(resync)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if err := s.reconcile(ctx); err != nil {
				s.Log.Warn("timer reconcile failed", "error", err)
			}
		}
	}
}

func (s *Cron) ArmRecurring(ctx context.Context, handler string, every time.Duration) (Timer, error) {
	t := Timer{
		ID:      uuid.NewString(),
		Handler: handler,
		Kind:    KindRecurring,
		Every:   Duration(every),
	}
	if err := s.persist(ctx, t); err != nil {
		return Timer{}, err
	}
	s.mu.Lock()
	s.schedule(t)
	s.mu.Unlock()
	return t, nil
}

func (s *Cron) ArmOneShot(ctx context.Context, handler string, at time.Time) (Timer, error) {
	t := Timer{
		ID:      uuid.NewString(),
		Handler: handler,
		Kind:    KindOneShot,
		FireAt:  at,
	}
	if err := s.persist(ctx, t); err != nil {
		return Timer{}, err
	}
	s.mu.Lock()
	s.schedule(t)
	s.mu.Unlock()
	return t, nil
}

func (s *Cron) List(ctx context.Context) ([]Timer, error) {
	return s.load(ctx)
}

func (s *Cron) RemoveByHandler(ctx context.Context, handler string) (int, error) {
	return s.removeIf(ctx, func(t Timer) bool { return t.Handler == handler })
}

func (s *Cron) RemoveAll(ctx context.Context) (int, error) {
	return s.removeIf(ctx, func(Timer) bool { return true })
}

func (s *Cron) load(ctx context.Context) ([]Timer, error) {
	raw, ok, err := s.Store.Get(ctx, timersKey)
	if err != nil {
		return nil, fmt.Errorf("read timers: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var timers []Timer
	if err := json.Unmarshal([]byte(raw), &timers); err != nil {
		return nil, fmt.Errorf("decode timers: %w", err)
	}
	sort.Slice(timers, func(i, j int) bool { return timers[i].ID < timers[j].ID })
	return timers, nil
}

func (s *Cron) save(ctx context.Context, timers []Timer) error {
	data, err := json.Marshal(timers)
	if err != nil {
		return fmt.Errorf("encode timers: %w", err)
	}
	if err := s.Store.Set(ctx, timersKey, string(data)); err != nil {
		return fmt.Errorf("persist timers: %w", err)
	}
	return nil
}

func (s *Cron) persist(ctx context.Context, t Timer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	timers, err := s.load(ctx)
	if err != nil {
		return err
	}
	timers = append(timers, t)
	return s.save(ctx, timers)
}

func (s *Cron) removeIf(ctx context.Context, match func(Timer) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timers, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	kept := timers[:0]
	removed := 0
	for _, t := range timers {
		if !match(t) {
			kept = append(kept, t)
			continue
		}
		removed++
		if id, ok := s.entries[t.ID]; ok {
			s.runner.Remove(id)
			delete(s.entries, t.ID)
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save(ctx, kept)
}

// schedule adds a timer to the runner. Caller holds s.mu.
func (s *Cron) schedule(t Timer) {
	if _, ok := s.entries[t.ID]; ok {
		return
	}
	h, ok := s.handlers[t.Handler]
	if !ok {
		return
	}
	switch t.Kind {
	case KindRecurring:
		id := s.runner.Schedule(cron.Every(time.Duration(t.Every)), cron.FuncJob(func() {
			h(context.Background())
		}))
		s.entries[t.ID] = id
	case KindOneShot:
		at := t.FireAt
		if !at.After(s.Clock()) {
			at = s.Clock().Add(overdueGrace)
		}
		timerID := t.ID
		id := s.runner.Schedule(onceAt{at: at}, cron.FuncJob(func() {
			s.expire(timerID)
			h(context.Background())
		}))
		s.entries[t.ID] = id
	}
}

// expire drops a fired one-shot timer from the store and runner.
func (s *Cron) expire(timerID string) {
	if _, err := s.removeIf(context.Background(), func(t Timer) bool { return t.ID == timerID }); err != nil {
		s.Log.Warn("drop fired timer failed", "timer", timerID, "error", err)
	}
}

// reconcile aligns the in-memory runner with the persisted timer set, so
// timers armed by one-off CLI invocations get picked up by a running
// daemon, and timers removed elsewhere stop firing here.
func (s *Cron) reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	timers, err := s.load(ctx)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(timers))
	for _, t := range timers {
		want[t.ID] = true
		s.schedule(t)
	}
	for id, entry := range s.entries {
		if !want[id] {
			s.runner.Remove(entry)
			delete(s.entries, id)
		}
	}
	return nil
}

// onceAt fires exactly once at the given time. A zero Next tells the cron
// runner the entry is spent.
type onceAt struct{ at time.Time }

func (o onceAt) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

var _ Scheduler = (*Cron)(nil)
