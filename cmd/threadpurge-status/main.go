package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joshsymonds/threadpurge/internal/props"
	"github.com/joshsymonds/threadpurge/internal/purge"
	"github.com/joshsymonds/threadpurge/internal/quota"
	"github.com/joshsymonds/threadpurge/internal/rate"
	"github.com/joshsymonds/threadpurge/internal/runtime"
	"github.com/joshsymonds/threadpurge/internal/sched"
)

type statusConfig struct {
	cfgDir        string
	storePath     string
	redisAddr     string
	redisPrefix   string
	retentionDays int
	pageSize      int
	maxDailyRuns  int
	batchDelay    time.Duration
	rps           int
	stats         bool
	quotaStatus   bool
	timers        bool
	stop          bool
}

func main() {
	cfg := parseStatusFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("threadpurge-status failed", "error", err)
		os.Exit(1)
	}
}

func parseStatusFlags() statusConfig {
	cfgDir := flag.String("config", os.ExpandEnv("$HOME/.gmailctl"), "gmailctl auth directory")
	storePath := flag.String("store", os.ExpandEnv("$HOME/.threadpurge/props.json"), "property store file")
	redisAddr := flag.String("redis-addr", "", "back the property store with Redis at this address instead of a file")
	redisPrefix := flag.String("redis-prefix", "threadpurge", "Redis key prefix")
	retention := flag.Int("retention-days", 90, "trash threads older than this many days")
	pageSize := flag.Int("page-size", 500, "threads per batch (<=500)")
	maxRuns := flag.Int("max-daily-runs", 20, "batches allowed per calendar day")
	batchDelay := flag.Duration("batch-delay", 2*time.Minute, "delay before a continuation batch")
	rps := flag.Int("rps", 4, "max Gmail requests per second")
	stats := flag.Bool("stats", false, "report backlog and batch estimates")
	quotaStatus := flag.Bool("quota", false, "report today's run counter")
	timers := flag.Bool("timers", false, "report active timers")
	stop := flag.Bool("stop", false, "remove every timer and exit")
	flag.Parse()

	return statusConfig{
		cfgDir:        *cfgDir,
		storePath:     *storePath,
		redisAddr:     *redisAddr,
		redisPrefix:   *redisPrefix,
		retentionDays: *retention,
		pageSize:      *pageSize,
		maxDailyRuns:  *maxRuns,
		batchDelay:    *batchDelay,
		rps:           *rps,
		stats:         *stats,
		quotaStatus:   *quotaStatus,
		timers:        *timers,
		stop:          *stop,
	}
}

func run(cfg statusConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := runtime.DefaultLogger()

	var store props.Store
	if cfg.redisAddr != "" {
		store = props.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.redisAddr}), cfg.redisPrefix)
	} else {
		store = props.NewFile(cfg.storePath)
	}
	scheduler := sched.NewCron(store, log)

	client, err := runtime.NewGmailClient(ctx, cfg.cfgDir, runtime.ScopeReadonly)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	adm := purge.NewAdmin(client, scheduler, quota.New(store), rate.NewInterval(cfg.rps), log)
	adm.Config = purge.Config{
		RetentionDays: cfg.retentionDays,
		PageSize:      cfg.pageSize,
		MaxDailyRuns:  cfg.maxDailyRuns,
		BatchDelay:    cfg.batchDelay,
	}

	if cfg.stop {
		if _, err := adm.Stop(ctx); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
		return nil
	}

	all := !cfg.stats && !cfg.quotaStatus && !cfg.timers
	if cfg.stats || all {
		if _, err := adm.ReportStats(ctx); err != nil {
			return fmt.Errorf("report stats: %w", err)
		}
	}
	if cfg.quotaStatus || all {
		if _, err := adm.ReportQuotaStatus(ctx); err != nil {
			return fmt.Errorf("report quota: %w", err)
		}
	}
	if cfg.timers || all {
		if _, err := adm.ReportTimerStatus(ctx); err != nil {
			return fmt.Errorf("report timers: %w", err)
		}
	}
	return nil
}
