// Package purge drains old inbox threads in bounded batches. A batch
// trashes threads that are old, unstarred, unimportant, and attachment-free,
// then re-arms itself through the scheduler when more work likely remains,
// so a large backlog spreads across many short runs and the daily run
// allowance is never blown in one day.
package purge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshsymonds/threadpurge/internal/gmail"
	"github.com/joshsymonds/threadpurge/internal/metrics"
	"github.com/joshsymonds/threadpurge/internal/quota"
	"github.com/joshsymonds/threadpurge/internal/rate"
	"github.com/joshsymonds/threadpurge/internal/sched"
)

// Handler names for the two scheduler entry points. The continuation
// handler has the same body as the main one; the distinct name exists so
// mid-batch continuation timers can be swept without touching the daily
// kickoff.
const (
	HandlerPurge    = "purge"
	HandlerContinue = "purge-continue"
)

const (
	// dayDefer is how far the main handler is pushed out when the daily
	// run allowance is exhausted or a quota error surfaces.
	dayDefer = 24 * time.Hour

	// deletePauseEvery / deletePause smooth load on the Gmail API during
	// long delete loops.
	deletePauseEvery = 100
	deletePause      = time.Second
)

// Config is the static knob set. Defaults mirror the deployed values.
type Config struct {
	RetentionDays int           // threads older than this are eligible
	PageSize      int           // threads fetched per batch
	MaxDailyRuns  int           // batches allowed per calendar day
	BatchDelay    time.Duration // gap between a full batch and its continuation
	DryRun        bool          // log eligible threads instead of trashing
}

func DefaultConfig() Config {
	return Config{
		RetentionDays: 90,
		PageSize:      500,
		MaxDailyRuns:  20,
		BatchDelay:    2 * time.Minute,
	}
}

// RunStats summarizes one batch.
type RunStats struct {
	Deferred          bool // quota gate fired; nothing was searched
	Deleted           int
	Skipped           int
	Total             int // unbounded match estimate, reporting only
	Remaining         int // Total - Deleted; approximate, see buildQuery
	ContinuationArmed bool
	Elapsed           time.Duration
}

// Service is the batch purger. Collaborators are injected; tests swap in
// fakes for all of them.
type Service struct {
	Client  gmail.Client
	Sched   sched.Scheduler
	Runs    *quota.Counter
	Limiter rate.Limiter
	Log     *slog.Logger
	Metrics *metrics.Recorder
	Clock   func() time.Time
	Sleep   func(time.Duration)
	Config  Config
}

func NewService(client gmail.Client, scheduler sched.Scheduler, runs *quota.Counter, limiter rate.Limiter, log *slog.Logger) *Service {
	if limiter == nil {
		limiter = &rate.Interval{}
	}
	return &Service{
		Client:  client,
		Sched:   scheduler,
		Runs:    runs,
		Limiter: limiter,
		Log:     log,
		Clock:   time.Now,
		Sleep:   time.Sleep,
		Config:  DefaultConfig(),
	}
}

// buildQuery forms the search predicate. older_than is evaluated by Gmail
// against last activity; the per-thread re-check in the delete loop is the
// authoritative gate, since search-time attachment matching is not.
func buildQuery(retentionDays int) gmail.Query {
	return gmail.Query{
		Raw: fmt.Sprintf("in:inbox -is:starred -is:important -has:attachment older_than:%dd", retentionDays),
	}
}

// Run executes one batch. Every failure path re-arms a timer: quota errors
// push the main handler out a full day, anything else retries the
// continuation handler after the batch delay. Deletions issued before a
// failure stand.
func (s *Service) Run(ctx context.Context) (RunStats, error) {
	start := s.Clock()
	stats, err := s.runBatch(ctx)
	stats.Elapsed = s.Clock().Sub(start)
	if err != nil {
		s.Metrics.Failure()
		if IsQuotaError(err) {
			if _, armErr := s.Sched.ArmOneShot(ctx, HandlerPurge, s.Clock().Add(dayDefer)); armErr != nil {
				s.Log.Error("arming quota deferral failed", "error", armErr)
			}
			s.Log.Error("purge hit quota, deferring a day", "error", err, "deleted", stats.Deleted)
		} else {
			if _, armErr := s.Sched.ArmOneShot(ctx, HandlerContinue, s.Clock().Add(s.Config.BatchDelay)); armErr != nil {
				s.Log.Error("arming retry failed", "error", armErr)
			}
			s.Log.Error("purge failed, retrying shortly", "error", err, "delay", s.Config.BatchDelay, "deleted", stats.Deleted)
		}
		return stats, err
	}
	if stats.Deferred {
		s.Metrics.Deferral()
		s.Log.Info("daily run limit reached, deferring until tomorrow", "limit", s.Config.MaxDailyRuns)
		return stats, nil
	}
	s.Metrics.Run()
	s.Metrics.Deleted(stats.Deleted)
	s.Metrics.Skipped(stats.Skipped)
	s.Log.Info("purge batch done",
		"deleted", stats.Deleted,
		"skipped", stats.Skipped,
		"remaining", stats.Remaining,
		"elapsed", stats.Elapsed,
		"continuation", stats.ContinuationArmed,
		"dry_run", s.Config.DryRun,
	)
	return stats, nil
}

// RunContinuation is the body behind the continuation handler name.
func (s *Service) RunContinuation(ctx context.Context) (RunStats, error) {
	return s.Run(ctx)
}

func (s *Service) runBatch(ctx context.Context) (RunStats, error) {
	var st RunStats

	used, err := s.Runs.Today(ctx)
	if err != nil {
		return st, err
	}
	if used >= s.Config.MaxDailyRuns {
		st.Deferred = true
		if _, err := s.Sched.ArmOneShot(ctx, HandlerPurge, s.Clock().Add(dayDefer)); err != nil {
			return st, fmt.Errorf("arm daily deferral: %w", err)
		}
		return st, nil
	}

	// One continuation at a time: sweep any pending ones before this batch
	// decides whether to arm a fresh one.
	if _, err := s.Sched.RemoveByHandler(ctx, HandlerContinue); err != nil {
		return st, fmt.Errorf("sweep continuation timers: %w", err)
	}
	if _, err := s.Runs.Increment(ctx); err != nil {
		return st, err
	}

	q := buildQuery(s.Config.RetentionDays)
	if err := s.Limiter.Wait(ctx); err != nil {
		return st, err
	}
	ids, err := s.Client.ListThreads(ctx, q, s.Config.PageSize)
	if err != nil {
		return st, fmt.Errorf("search threads: %w", err)
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return st, err
	}
	st.Total, err = s.Client.CountThreads(ctx, q)
	if err != nil {
		return st, fmt.Errorf("count threads: %w", err)
	}

	// A full page means more work likely remains.
	if len(ids) == s.Config.PageSize && !s.Config.DryRun {
		if _, err := s.Sched.ArmOneShot(ctx, HandlerContinue, s.Clock().Add(s.Config.BatchDelay)); err != nil {
			return st, fmt.Errorf("arm continuation: %w", err)
		}
		st.ContinuationArmed = true
	}

	cutoff := s.Clock().Add(-time.Duration(s.Config.RetentionDays) * 24 * time.Hour)
	for _, id := range ids {
		if err := s.Limiter.Wait(ctx); err != nil {
			return st, err
		}
		detail, err := s.Client.GetThread(ctx, id)
		if err != nil {
			return st, fmt.Errorf("recheck thread %s: %w", id, err)
		}
		// Strictly before the cutoff, zero attachments after a real
		// recount, and still unstarred and unimportant. Search-time
		// predicates lag; the re-fetch is authoritative. A thread exactly
		// at the cutoff survives.
		if !detail.LastMessage.Before(cutoff) || detail.Attachments > 0 || detail.Starred || detail.Important {
			st.Skipped++
			continue
		}
		if s.Config.DryRun {
			s.Log.Info("dry-run: would trash", "thread", id, "last_message", detail.LastMessage)
		} else {
			if err := s.Limiter.Wait(ctx); err != nil {
				return st, err
			}
			if err := s.Client.TrashThread(ctx, id); err != nil {
				return st, fmt.Errorf("trash thread %s: %w", id, err)
			}
		}
		st.Deleted++
		if st.Deleted%deletePauseEvery == 0 {
			s.Sleep(deletePause)
		}
	}

	st.Remaining = st.Total - st.Deleted
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	return st, nil
}
