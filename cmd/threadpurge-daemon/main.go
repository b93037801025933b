package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/joshsymonds/threadpurge/internal/metrics"
	"github.com/joshsymonds/threadpurge/internal/props"
	"github.com/joshsymonds/threadpurge/internal/purge"
	"github.com/joshsymonds/threadpurge/internal/quota"
	"github.com/joshsymonds/threadpurge/internal/rate"
	"github.com/joshsymonds/threadpurge/internal/runtime"
	"github.com/joshsymonds/threadpurge/internal/sched"
)

type daemonConfig struct {
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
	install       bool
	resync        time.Duration
	metricsAddr   string
}

func main() {
	cfg := parseDaemonFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("threadpurge-daemon failed", "error", err)
		os.Exit(1)
	}
}

func parseDaemonFlags() daemonConfig {
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
	install := flag.Bool("install", false, "wipe timers and arm the daily kickoff before serving")
	resync := flag.Duration("resync", 30*time.Second, "timer store reconcile interval")
	metricsAddr := flag.String("metrics-addr", ":9464", "Prometheus metrics listen address (empty to disable)")
	flag.Parse()

	return daemonConfig{
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
		install:       *install,
		resync:        *resync,
		metricsAddr:   *metricsAddr,
	}
}

func newStore(cfg daemonConfig) props.Store {
	if cfg.redisAddr != "" {
		return props.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.redisAddr}), cfg.redisPrefix)
	}
	return props.NewFile(cfg.storePath)
}

func run(cfg daemonConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := runtime.DefaultLogger()

	client, err := runtime.NewGmailClient(ctx, cfg.cfgDir, runtime.ScopeModify)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	store := newStore(cfg)
	runs := quota.New(store)
	scheduler := sched.NewCron(store, log)
	limiter := rate.NewInterval(cfg.rps)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	svc := purge.NewService(client, scheduler, runs, limiter, log)
	svc.Metrics = metrics.New(reg)
	svc.Config = purge.Config{
		RetentionDays: cfg.retentionDays,
		PageSize:      cfg.pageSize,
		MaxDailyRuns:  cfg.maxDailyRuns,
		BatchDelay:    cfg.batchDelay,
		DryRun:        cfg.dryRun,
	}

	scheduler.Register(purge.HandlerPurge, func(ctx context.Context) {
		_, _ = svc.Run(ctx) // outcomes are logged and re-armed inside
	})
	scheduler.Register(purge.HandlerContinue, func(ctx context.Context) {
		_, _ = svc.RunContinuation(ctx)
	})

	if cfg.install {
		adm := purge.NewAdmin(client, scheduler, runs, limiter, log)
		adm.Config = svc.Config
		if _, err := adm.Install(ctx); err != nil {
			return fmt.Errorf("install: %w", err)
		}
	}

	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", serveErr)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("serving metrics", "addr", cfg.metricsAddr)
	}

	log.Info("threadpurge daemon up",
		"retention_days", cfg.retentionDays,
		"page_size", cfg.pageSize,
		"max_daily_runs", cfg.maxDailyRuns,
		"batch_delay", cfg.batchDelay,
		"dry_run", cfg.dryRun,
	)
	if err := scheduler.Start(ctx, cfg.resync); err != nil {
		return fmt.Errorf("run scheduler: %w", err)
	}
	return nil
}
