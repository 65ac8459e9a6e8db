package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stroymart/catalog-search/internal/backend"
	"github.com/stroymart/catalog-search/internal/backend/elastic"
	"github.com/stroymart/catalog-search/internal/backend/memory"
	"github.com/stroymart/catalog-search/internal/config"
	"github.com/stroymart/catalog-search/internal/event"
	"github.com/stroymart/catalog-search/internal/indexer"
	pgstore "github.com/stroymart/catalog-search/internal/store/postgres"
	"github.com/stroymart/catalog-search/pkg/database"
	pkgkafka "github.com/stroymart/catalog-search/pkg/kafka"
	"github.com/stroymart/catalog-search/pkg/logger"
)

func main() {
	daemon := flag.Bool("daemon", false, "run on a cron schedule and listen for catalog-change events")
	schemaPath := flag.String("schema", "", "path to an index schema file (default: embedded schema)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *schemaPath != "" {
		cfg.SchemaPath = *schemaPath
	}

	log := logger.New("catalog-indexer", cfg.LogLevel)

	// An interrupt must still let the pipeline clean up its partial index,
	// so cancellation flows through the context.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log, *daemon); err != nil {
		log.Error("indexer failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, daemonMode bool) error {
	var sb backend.SearchBackend
	switch cfg.SearchBackend {
	case "memory":
		sb = memory.New()
	default:
		esb, err := elastic.New(cfg.SearchURL, log)
		if err != nil {
			return fmt.Errorf("init search backend: %w", err)
		}
		sb = esb
	}

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN(), log)
	if err != nil {
		return fmt.Errorf("init postgres pool: %w", err)
	}
	defer pool.Close()

	st := pgstore.New(pool, log)

	pipeline := indexer.New(sb, st, indexer.Options{
		Alias:             cfg.SearchAlias,
		IndexPrefix:       cfg.IndexPrefix,
		BatchSize:         cfg.BatchSize,
		MaxOldIndices:     cfg.MaxOldIndices,
		DocCountTolerance: cfg.DocCountTolerance,
		SchemaPath:        cfg.SchemaPath,
	}, log)

	if !daemonMode {
		report, err := pipeline.Run(ctx)
		if err != nil {
			return err
		}
		log.Info("reindex finished",
			slog.String("index", report.IndexName),
			slog.Int("processed", report.Processed),
			slog.Int("skipped", report.Skipped),
			slog.Int("errors", report.Errors),
			slog.Duration("duration", report.Duration),
		)
		return nil
	}

	d := indexer.NewDaemon(pipeline, cfg.ReindexCron, log)

	// Catalog-change events mark the index dirty; the daemon coalesces them
	// into the next run. The pipeline remains the only index writer.
	eventConsumer := event.NewConsumer(d, log)
	var consumers []*pkgkafka.Consumer
	for _, topic := range event.Topics() {
		c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  "catalog-indexer",
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}, eventConsumer.Handle, log)
		consumers = append(consumers, c)

		go func() {
			if err := c.Start(ctx); err != nil {
				log.Error("kafka consumer failed", slog.String("error", err.Error()))
			}
		}()
	}
	defer func() {
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				log.Error("kafka consumer close error", slog.String("error", err.Error()))
			}
		}
	}()

	return d.Run(ctx)
}
