package purge

import (
	"context"
	"testing"
	"time"

	"github.com/joshsymonds/threadpurge/internal/props"
	"github.com/joshsymonds/threadpurge/internal/quota"
	"github.com/joshsymonds/threadpurge/internal/sched"
)

func newTestAdmin(client *fakeClient, scheduler *fakeSched) (*Admin, *quota.Counter) {
	runs := quota.New(props.NewMemory())
	runs.Clock = func() time.Time { return testNow }
	adm := NewAdmin(client, scheduler, runs, nil, slogDiscard())
	adm.Clock = func() time.Time { return testNow }
	return adm, runs
}

func TestInstallResetsTimersAndArmsKickoff(t *testing.T) {
	client := &fakeClient{total: 750}
	scheduler := &fakeSched{}
	ctx := context.Background()
	// leftovers from a previous install
	if _, err := scheduler.ArmOneShot(ctx, HandlerContinue, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("seed timer: %v", err)
	}
	if _, err := scheduler.ArmRecurring(ctx, HandlerPurge, 24*time.Hour); err != nil {
		t.Fatalf("seed timer: %v", err)
	}
	adm, _ := newTestAdmin(client, scheduler)

	rep, err := adm.Install(ctx)
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if len(scheduler.timers) != 1 {
		t.Fatalf("timers after install = %d, want 1", len(scheduler.timers))
	}
	kick := scheduler.timers[0]
	if kick.Handler != HandlerPurge || kick.Kind != sched.KindRecurring {
		t.Fatalf("unexpected kickoff timer %+v", kick)
	}
	if time.Duration(kick.Every) != 24*time.Hour {
		t.Fatalf("kickoff period = %v", time.Duration(kick.Every))
	}
	if rep.Total != 750 {
		t.Fatalf("report total = %d, want 750", rep.Total)
	}
}

func TestReportStatsEstimatesBatches(t *testing.T) {
	client := &fakeClient{total: 1234}
	adm, _ := newTestAdmin(client, &fakeSched{})

	rep, err := adm.ReportStats(context.Background())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if rep.Total != 1234 {
		t.Fatalf("total = %d", rep.Total)
	}
	if rep.Batches != 3 {
		t.Fatalf("batches = %d, want ceil(1234/500)=3", rep.Batches)
	}
	if rep.EstimatedRuntime != 6*time.Minute {
		t.Fatalf("estimated runtime = %v, want 6m", rep.EstimatedRuntime)
	}
}

func TestReportQuotaStatus(t *testing.T) {
	adm, runs := newTestAdmin(&fakeClient{}, &fakeSched{})
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if _, err := runs.Increment(ctx); err != nil {
			t.Fatalf("seed counter: %v", err)
		}
	}

	rep, err := adm.ReportQuotaStatus(ctx)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if rep.Day != "2026-08-24" {
		t.Fatalf("day = %q", rep.Day)
	}
	if rep.Used != 20 || rep.Limit != 20 || !rep.Reached {
		t.Fatalf("unexpected quota report %+v", rep)
	}
}

func TestReportTimerStatus(t *testing.T) {
	scheduler := &fakeSched{}
	ctx := context.Background()
	if _, err := scheduler.ArmRecurring(ctx, HandlerPurge, 24*time.Hour); err != nil {
		t.Fatalf("seed timer: %v", err)
	}
	if _, err := scheduler.ArmOneShot(ctx, HandlerContinue, testNow.Add(2*time.Minute)); err != nil {
		t.Fatalf("seed timer: %v", err)
	}
	adm, _ := newTestAdmin(&fakeClient{}, scheduler)

	reports, err := adm.ReportTimerStatus(ctx)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	if reports[0].Handler != HandlerPurge || reports[0].FiresPerDay != 1 {
		t.Fatalf("unexpected kickoff report %+v", reports[0])
	}
	if reports[1].Handler != HandlerContinue || reports[1].Kind != sched.KindOneShot {
		t.Fatalf("unexpected continuation report %+v", reports[1])
	}
}

func TestSweepContinuationLeavesKickoff(t *testing.T) {
	scheduler := &fakeSched{}
	ctx := context.Background()
	if _, err := scheduler.ArmRecurring(ctx, HandlerPurge, 24*time.Hour); err != nil {
		t.Fatalf("seed timer: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := scheduler.ArmOneShot(ctx, HandlerContinue, testNow.Add(time.Minute)); err != nil {
			t.Fatalf("seed timer: %v", err)
		}
	}
	adm, _ := newTestAdmin(&fakeClient{}, scheduler)

	removed, err := adm.SweepContinuationTimers(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	if len(scheduler.timers) != 1 || scheduler.timers[0].Handler != HandlerPurge {
		t.Fatalf("kickoff timer not preserved: %+v", scheduler.timers)
	}
}

func TestStopRemovesEverything(t *testing.T) {
	scheduler := &fakeSched{}
	ctx := context.Background()
	if _, err := scheduler.ArmRecurring(ctx, HandlerPurge, 24*time.Hour); err != nil {
		t.Fatalf("seed timer: %v", err)
	}
	if _, err := scheduler.ArmOneShot(ctx, HandlerContinue, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("seed timer: %v", err)
	}
	adm, _ := newTestAdmin(&fakeClient{}, scheduler)

	removed, err := adm.Stop(ctx)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if removed != 2 || len(scheduler.timers) != 0 {
		t.Fatalf("stop removed %d, left %d", removed, len(scheduler.timers))
	}
}
