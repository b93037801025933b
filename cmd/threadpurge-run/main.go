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

type runConfig struct {
	cfgDir        string
	storePath     string
	redisAddr     string
	redisPrefix   string
	retentionDays int
	pageSize      int
	maxDailyRuns  int
	batchDelay    time.Duration
	rps           int
	dryRun        bool
	continuation  bool
}

func main() {
	cfg := parseRunFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("threadpurge-run failed", "error", err)
		os.Exit(1)
	}
}

func parseRunFlags() runConfig {
	cfgDir := flag.String("config", os.ExpandEnv("$HOME/.gmailctl"), "gmailctl auth directory")
	storePath := flag.String("store", os.ExpandEnv("$HOME/.threadpurge/props.json"), "property store file")
	redisAddr := flag.String("redis-addr", "", "back the property store with Redis at this address instead of a file")
	redisPrefix := flag.String("redis-prefix", "threadpurge", "Redis key prefix")
	retention := flag.Int("retention-days", 90, "trash threads older than this many days")
	pageSize := flag.Int("page-size", 500, "threads per batch (<=500)")
	maxRuns := flag.Int("max-daily-runs", 20, "batches allowed per calendar day")
	batchDelay := flag.Duration("batch-delay", 2*time.Minute, "delay before a continuation batch")
	rps := flag.Int("rps", 4, "max Gmail requests per second")
	dryRun := flag.Bool("dry-run", false, "log only; trash nothing")
	continuation := flag.Bool("continuation", false, "invoke as the continuation handler")
	flag.Parse()

	return runConfig{
		cfgDir:        *cfgDir,
		storePath:     *storePath,
		redisAddr:     *redisAddr,
		redisPrefix:   *redisPrefix,
		retentionDays: *retention,
		pageSize:      *pageSize,
		maxDailyRuns:  *maxRuns,
		batchDelay:    *batchDelay,
		rps:           *rps,
		dryRun:        *dryRun,
		continuation:  *continuation,
	}
}

func run(cfg runConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := runtime.DefaultLogger()

	client, err := runtime.NewGmailClient(ctx, cfg.cfgDir, runtime.ScopeModify)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	var store props.Store
	if cfg.redisAddr != "" {
		store = props.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.redisAddr}), cfg.redisPrefix)
	} else {
		store = props.NewFile(cfg.storePath)
	}

	// Timers armed here land in the shared store; a running daemon picks
	// them up on its next reconcile.
	scheduler := sched.NewCron(store, log)

	svc := purge.NewService(client, scheduler, quota.New(store), rate.NewInterval(cfg.rps), log)
	svc.Config = purge.Config{
		RetentionDays: cfg.retentionDays,
		PageSize:      cfg.pageSize,
		MaxDailyRuns:  cfg.maxDailyRuns,
		BatchDelay:    cfg.batchDelay,
		DryRun:        cfg.dryRun,
	}

	if cfg.continuation {
		if _, err := svc.RunContinuation(ctx); err != nil {
			return fmt.Errorf("run continuation batch: %w", err)
		}
		return nil
	}
	if _, err := svc.Run(ctx); err != nil {
		return fmt.Errorf("run batch: %w", err)
	}
	return nil
}
