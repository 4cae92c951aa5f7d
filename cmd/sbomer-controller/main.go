package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/project-ncl/sbomer-sub004/internal/amqputil"
	"github.com/project-ncl/sbomer-sub004/internal/apps3"
	"github.com/project-ncl/sbomer-sub004/internal/controller"
	"github.com/project-ncl/sbomer-sub004/internal/execution/docker"
	generationamqp "github.com/project-ncl/sbomer-sub004/internal/generation/amqp"
	generationpg "github.com/project-ncl/sbomer-sub004/internal/generation/pg"
	"github.com/project-ncl/sbomer-sub004/internal/generator"
	"github.com/project-ncl/sbomer-sub004/internal/leaderelection"
	"github.com/project-ncl/sbomer-sub004/internal/manifest"
	manifests3 "github.com/project-ncl/sbomer-sub004/internal/manifest/s3"
	"github.com/project-ncl/sbomer-sub004/internal/metrics"
	"github.com/project-ncl/sbomer-sub004/internal/postgresprovision"
	"github.com/project-ncl/sbomer-sub004/internal/postgresutil"
	"github.com/project-ncl/sbomer-sub004/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Environ()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run(environ []string) error {
	cfg, err := parseConfig(environ)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Development)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = postgresprovision.Setup(cfg.Postgres.DSN); err != nil {
		return err
	}
	pool, err := postgresutil.NewPool(ctx, &cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()
	db := generationpg.NewDatabase(pool)

	dockerClient, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer dockerClient.Close()
	store := docker.NewStore(dockerClient, log)

	var storage manifest.Storage
	if cfg.S3.URL != "" {
		s3Client, err := apps3.NewClient(cfg.S3.URL)
		if err != nil {
			return err
		}
		if err = apps3.Setup(ctx, s3Client, cfg.S3.Bucket); err != nil {
			return err
		}
		storage = manifests3.NewStorage(s3Client, cfg.S3.Bucket)
	} else {
		log.Warn("manifest uploads are disabled, SBOMER_S3_URL is empty")
	}

	var notifier controller.Notifier
	if cfg.AMQP.URL != "" {
		notifier = generationamqp.NewNotifier(amqputil.NewClient(cfg.AMQP.URL, cfg.AMQP.Queue))
	} else {
		log.Warn("notifications are disabled, SBOMER_AMQP_URL is empty")
	}

	policy, err := generator.NewPolicy(&cfg.Execution, cfg.Retry.MemoryMultiplier)
	if err != nil {
		return err
	}
	collector := manifest.NewCollector(policy.SBOMRootDir, db, storage, log)
	registry, err := generator.NewBuiltinRegistry(&cfg.Execution, policy, collector)
	if err != nil {
		return err
	}
	log.Info("registered generators", "target_types", registry.TargetTypes())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sink := metrics.NewPrometheusSink(reg, log)

	var leader interface{ IsLeader() bool }
	var wg sync.WaitGroup
	if cfg.LeaderElection {
		elector := leaderelection.New(pool, &cfg.Leader, log).WithMetrics(sink)
		leader = elector
		wg.Add(1)
		go func() {
			defer wg.Done()
			elector.Run(ctx)
		}()
	} else {
		log.Warn("leader election is disabled, acting as the only replica")
		leader = leaderelection.Static(true)
	}

	ctrl := controller.New(&cfg.Controller, &controller.Deps{
		Database: db,
		Store:    store,
		Registry: registry,
		Retry:    &cfg.Retry,
		Leader:   leader,
		Notifier: notifier,
		Metrics:  sink,
		Watchers: []controller.Watcher{generationpg.NewWatcher(pool, log)},
		Log:      log,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctrl.Run(ctx)
	}()

	srv := server.New(&cfg.Server, log, db, leader, reg)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		log.Error("server failed", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("didn't shut down server", "error", shutdownErr)
	}
	wg.Wait()

	log.Info("stopped")
	return err
}

func newLogger(development bool) *slog.Logger {
	if development {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
