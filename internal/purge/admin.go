package purge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshsymonds/threadpurge/internal/gmail"
	"github.com/joshsymonds/threadpurge/internal/quota"
	"github.com/joshsymonds/threadpurge/internal/rate"
	"github.com/joshsymonds/threadpurge/internal/sched"
)

// Admin manages the scheduling state around the purger: install/remove
// timers and report on backlog, quota, and timer status. It shares the
// purger's collaborators but never trashes anything itself.
type Admin struct {
	Client  gmail.Client
	Sched   sched.Scheduler
	Runs    *quota.Counter
	Limiter rate.Limiter
	Log     *slog.Logger
	Clock   func() time.Time
	Config  Config
}

func NewAdmin(client gmail.Client, scheduler sched.Scheduler, runs *quota.Counter, limiter rate.Limiter, log *slog.Logger) *Admin {
	if limiter == nil {
		limiter = &rate.Interval{}
	}
	return &Admin{
		Client:  client,
		Sched:   scheduler,
		Runs:    runs,
		Limiter: limiter,
		Log:     log,
		Clock:   time.Now,
		Config:  DefaultConfig(),
	}
}

// StatsReport estimates the backlog and how long draining it will take.
type StatsReport struct {
	Total            int
	Batches          int
	EstimatedRuntime time.Duration
}

// QuotaReport is today's run counter against the daily limit.
type QuotaReport struct {
	Day     string
	Used    int
	Limit   int
	Reached bool
}

// TimerReport describes one active timer. FiresPerDay assumes the current
// cadence holds for a full day.
type TimerReport struct {
	Handler     string
	Kind        sched.Kind
	FiresPerDay float64
}

// Install wipes all timers, arms the daily kickoff, and reports the
// current backlog.
func (a *Admin) Install(ctx context.Context) (StatsReport, error) {
	removed, err := a.Sched.RemoveAll(ctx)
	if err != nil {
		return StatsReport{}, fmt.Errorf("remove timers: %w", err)
	}
	if err := a.ArmDailyKickoff(ctx); err != nil {
		return StatsReport{}, err
	}
	a.Log.Info("installed", "timers_removed", removed, "kickoff_every", dayDefer)
	return a.ReportStats(ctx)
}

// ArmDailyKickoff arms the recurring main-handler timer.
func (a *Admin) ArmDailyKickoff(ctx context.Context) error {
	if _, err := a.Sched.ArmRecurring(ctx, HandlerPurge, dayDefer); err != nil {
		return fmt.Errorf("arm daily kickoff: %w", err)
	}
	return nil
}

// ArmContinuation arms a one-shot continuation after the batch delay.
func (a *Admin) ArmContinuation(ctx context.Context) error {
	if _, err := a.Sched.ArmOneShot(ctx, HandlerContinue, a.Clock().Add(a.Config.BatchDelay)); err != nil {
		return fmt.Errorf("arm continuation: %w", err)
	}
	return nil
}

// SweepContinuationTimers removes every continuation timer, leaving the
// daily kickoff untouched.
func (a *Admin) SweepContinuationTimers(ctx context.Context) (int, error) {
	return a.Sched.RemoveByHandler(ctx, HandlerContinue)
}

// RemoveAllTimers removes every timer this system owns.
func (a *Admin) RemoveAllTimers(ctx context.Context) (int, error) {
	n, err := a.Sched.RemoveAll(ctx)
	if err != nil {
		return 0, err
	}
	a.Log.Info("removed all timers", "count", n)
	return n, nil
}

// Stop is RemoveAllTimers under its operational name.
func (a *Admin) Stop(ctx context.Context) (int, error) {
	return a.RemoveAllTimers(ctx)
}

// ReportStats counts the full backlog and estimates batches and wall time
// to drain it at the configured cadence.
func (a *Admin) ReportStats(ctx context.Context) (StatsReport, error) {
	if err := a.Limiter.Wait(ctx); err != nil {
		return StatsReport{}, err
	}
	total, err := a.Client.CountThreads(ctx, buildQuery(a.Config.RetentionDays))
	if err != nil {
		return StatsReport{}, fmt.Errorf("count threads: %w", err)
	}
	batches := (total + a.Config.PageSize - 1) / a.Config.PageSize
	rep := StatsReport{
		Total:            total,
		Batches:          batches,
		EstimatedRuntime: time.Duration(batches) * a.Config.BatchDelay,
	}
	a.Log.Info("backlog",
		"matching_threads", rep.Total,
		"batches", rep.Batches,
		"estimated_runtime", rep.EstimatedRuntime,
	)
	return rep, nil
}

// ReportQuotaStatus reports today's run counter against the limit.
func (a *Admin) ReportQuotaStatus(ctx context.Context) (QuotaReport, error) {
	used, err := a.Runs.Today(ctx)
	if err != nil {
		return QuotaReport{}, err
	}
	rep := QuotaReport{
		Day:     a.Clock().Format("2006-01-02"),
		Used:    used,
		Limit:   a.Config.MaxDailyRuns,
		Reached: used >= a.Config.MaxDailyRuns,
	}
	a.Log.Info("quota status", "day", rep.Day, "used", rep.Used, "limit", rep.Limit, "reached", rep.Reached)
	return rep, nil
}

// ReportTimerStatus lists active timers with their assumed-daily firing
// frequency.
func (a *Admin) ReportTimerStatus(ctx context.Context) ([]TimerReport, error) {
	timers, err := a.Sched.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	reports := make([]TimerReport, 0, len(timers))
	for _, t := range timers {
		rep := TimerReport{Handler: t.Handler, Kind: t.Kind, FiresPerDay: 1}
		if t.Kind == sched.KindRecurring && t.Every > 0 {
			rep.FiresPerDay = float64(24*time.Hour) / float64(time.Duration(t.Every))
		}
		reports = append(reports, rep)
		a.Log.Info("timer", "handler", rep.Handler, "kind", rep.Kind, "fires_per_day", rep.FiresPerDay)
	}
	if len(reports) == 0 {
		a.Log.Info("no active timers")
	}
	return reports, nil
}
