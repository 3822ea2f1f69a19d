// Package main wires together the job-postings crawl service.
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

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hireloop/jobharvester/internal/browser"
	"github.com/hireloop/jobharvester/internal/challenge"
	"github.com/hireloop/jobharvester/internal/config"
	"github.com/hireloop/jobharvester/internal/crawl"
	"github.com/hireloop/jobharvester/internal/extract"
	"github.com/hireloop/jobharvester/internal/filter"
	"github.com/hireloop/jobharvester/internal/interact"
	"github.com/hireloop/jobharvester/internal/logging"
	"github.com/hireloop/jobharvester/internal/metrics"
	"github.com/hireloop/jobharvester/internal/middleware"
	"github.com/hireloop/jobharvester/internal/proxy"
	"github.com/hireloop/jobharvester/internal/session"
	"github.com/hireloop/jobharvester/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	var proxies proxy.Provider
	if cfg.Proxy.Enabled {
		proxies = proxy.NewRoundRobin(cfg.Proxy.Servers)
	}

	pool := session.NewPool(session.Config{
		Capacity: cfg.Session.PoolSize,
		UsageCap: cfg.Session.UsageCap,
		ErrorCap: cfg.Session.ErrorCap,
	}, proxies, logger.Named("session"))

	browsers := browser.NewChromedp(browser.Config{
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: time.Duration(cfg.Crawler.NavTimeoutSeconds) * time.Second,
	}, logger.Named("browser"))
	defer browsers.Close()

	driver := interact.NewDriver(interact.Config{
		LandingURL:        cfg.Crawler.LandingURL,
		NavigationTimeout: time.Duration(cfg.Crawler.NavTimeoutSeconds) * time.Second,
		SettleDelay:       time.Duration(cfg.Crawler.SettleDelaySeconds) * time.Second,
		ResultsPerPage:    cfg.Crawler.ResultsPerPage,
		KeyDelay: crawl.DelayPolicy{
			Min: time.Duration(cfg.Crawler.KeyDelayMinMs) * time.Millisecond,
			Max: time.Duration(cfg.Crawler.KeyDelayMaxMs) * time.Millisecond,
		},
		FieldDelay: crawl.DelayPolicy{
			Min: time.Duration(cfg.Crawler.FieldDelayMinMs) * time.Millisecond,
			Max: time.Duration(cfg.Crawler.FieldDelayMaxMs) * time.Millisecond,
		},
	}, nil, logger.Named("interact"))

	resolver := challenge.New(challenge.Config{
		Rounds:   cfg.Challenge.Rounds,
		Interval: cfg.ChallengeInterval(),
	}, nil, logger.Named("challenge"))

	extractor := extract.NewEngine(extract.Config{}, nil, logger.Named("extract"))

	filters := []crawl.RecordFilter{
		filter.SalaryShapedCompany(),
	}
	if len(cfg.Filter.ExcludedCompanies) > 0 {
		filters = append(filters, filter.ExcludedCompanies(cfg.Filter.ExcludedCompanies))
	}

	orchestrator := worker.New(worker.Config{
		Concurrency: cfg.Crawler.Concurrency,
		MaxRetries:  cfg.Crawler.MaxRetries,
		TaskTimeout: cfg.TaskTimeout(),
		GlobalRPS:   cfg.Crawler.GlobalRPS,
		Pacing: crawl.DelayPolicy{
			Min: time.Duration(cfg.Crawler.PacingMinSec) * time.Second,
			Max: time.Duration(cfg.Crawler.PacingMaxSec) * time.Second,
		},
		RetryBackoff: crawl.DelayPolicy{
			Min: 2 * time.Second,
			Max: 5 * time.Second,
		},
	}, pool, browsers, driver, resolver, extractor, filters, nil, logger.Named("worker"))

	router := chi.NewRouter()
	router.Use(middleware.Recover(logger.Named("http")))
	router.Use(middleware.Metrics)
	router.Handle("/metrics", metrics.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	tasks := crawl.GenerateTasks(
		cfg.Search.Terms,
		cfg.Search.Location,
		cfg.Search.SalaryHint,
		cfg.Search.PagesPerTerm,
	)
	logger.Info("crawl run starting",
		zap.Int("tasks", len(tasks)),
		zap.Int("concurrency", cfg.Crawler.Concurrency),
	)

	result := orchestrator.Run(ctx, tasks)

	created, retired := pool.Stats()
	logger.Info("crawl run finished",
		zap.Int("records", len(result.Records)),
		zap.Int("tasks_processed", result.Counters.TasksProcessed),
		zap.Int("tasks_failed", result.Counters.TasksFailed),
		zap.Int("tasks_skipped", result.Counters.TasksSkipped),
		zap.Int("records_dropped", result.Counters.RecordsDropped),
		zap.Int("sessions_created", created),
		zap.Int("sessions_retired", retired),
	)

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
