package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"jobpipe/internal/adminrpc"
	"jobpipe/internal/capabilities"
	"jobpipe/internal/config"
	"jobpipe/internal/dedupe"
	"jobpipe/internal/jobs"
	"jobpipe/internal/migrate"
	"jobpipe/internal/observability"
	"jobpipe/internal/pipeline"
	"jobpipe/internal/rawstore"
	"jobpipe/internal/scheduler"
	"jobpipe/internal/searchsink"
	"jobpipe/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)

	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	st := store.New(db)

	caps, err := capabilities.Build(cfg)
	if err != nil {
		log.Fatalf("build capabilities failed: %v", err)
	}
	defer caps.Close()

	raw := rawStoreFromConfig(cfg)
	recorder := observability.NewRecorder(st)
	dedupeEngine := dedupe.NewEngine(st)

	var sink searchsink.Sink
	if httpSink, enabled := searchsink.NewHTTPSinkFromConfig(cfg.SearchSink); enabled {
		sink = httpSink
	}

	runner := pipeline.NewRunner(cfg, caps, recorder, dedupeEngine, st, raw, sink)

	sched := scheduler.New(cfg, st, runner.Run, logger)
	sched.OnTick(runner.ResetBudgetForTick)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Start(rootCtx)

	if cfg.Retention.Enabled {
		go runRetentionLoop(rootCtx, cfg, st, logger)
	}

	admin := adminrpc.NewServer(cfg, st, recorder, sched, caps, logger)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("admin server listening", "addr", addr)
		if err := admin.Listen(addr); err != nil {
			log.Fatalf("admin server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")
}

func rawStoreFromConfig(cfg *config.Config) rawstore.Store {
	root := cfg.RawStore.Root
	if root == "" {
		root = "data/raw_pages"
	}
	return rawstore.NewFSStore(root)
}

// runRetentionLoop runs the TTL cleanup sweep on its own ticker,
// independent of the scheduler's per-source tick, since retention is
// a cluster-wide sweep rather than a per-source operation.
func runRetentionLoop(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) {
	interval := time.Duration(cfg.Retention.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := jobs.CleanupExpiredData(ctx, cfg, st)
			logger.Info("retention cleanup", "raw_pages_deleted", stats.RawPagesDeleted, "extraction_logs_deleted", stats.ExtractionLogsDeleted)
		}
	}
}
