package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/stroymart/catalog-search/internal/backend"
	"github.com/stroymart/catalog-search/internal/document"
	"github.com/stroymart/catalog-search/internal/domain"
	"github.com/stroymart/catalog-search/internal/store"
)

// indexNameLayout renders timestamps into physical index names. The fixed
// width keeps lexicographic order equal to chronological order; timestamps
// are always UTC.
const indexNameLayout = "2006_01_02_15_04_05"

// Pipeline cadence and validation constants.
const (
	gcEveryBatches      = 10
	pauseEveryBatches   = 50
	pauseDuration       = 1 * time.Second
	connectTimeout      = 10 * time.Second
	readyWaitAttempts   = 15
	readyWaitDelay      = 2 * time.Second
	readyWaitTimeout    = 10 * time.Second
	probeSize           = 5
	maxLoggedItemErrors = 5
)

// Options configures a pipeline run.
type Options struct {
	Alias             string
	IndexPrefix       string
	BatchSize         int
	MaxOldIndices     int
	DocCountTolerance int
	SchemaPath        string
}

// Report summarizes a completed run.
type Report struct {
	IndexName string
	Processed int
	Skipped   int
	Errors    int
	Duration  time.Duration
}

// Pipeline orchestrates a full zero-downtime reindex: it builds a fresh
// timestamped index from the relational store, validates it, atomically
// rotates the serving alias onto it, and prunes old generations. The pipeline
// exclusively owns the in-progress index until cut-over.
type Pipeline struct {
	backend backend.SearchBackend
	store   store.Store
	builder *document.Builder
	opts    Options
	logger  *slog.Logger

	now   func() time.Time
	sleep func(time.Duration)
	gc    func()
}

// New creates a pipeline with production clock, sleep, and GC hooks.
func New(sb backend.SearchBackend, st store.Store, opts Options, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		backend: sb,
		store:   st,
		builder: document.New(),
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		sleep:   time.Sleep,
		gc:      runtime.GC,
	}
}

// Run executes the full reindex. On any failure after index creation and
// before a successful alias swap, the partial index is deleted (best effort)
// and the original error is returned.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := p.now()

	// PREFLIGHT: the schema must be present and structurally valid before
	// anything touches the cluster.
	schema, err := LoadSchema(p.opts.SchemaPath)
	if err != nil {
		return nil, p.fail(fmt.Errorf("preflight: %w", err))
	}

	// CONNECT
	if err := p.connect(ctx); err != nil {
		return nil, p.fail(err)
	}

	// ANALYZE
	total, err := p.analyze(ctx)
	if err != nil {
		return nil, p.fail(err)
	}

	// CREATE
	indexName, err := p.create(ctx, schema)
	if err != nil {
		return nil, p.fail(err)
	}

	report := &Report{IndexName: indexName}

	// POPULATE / VALIDATE / SWAP: any failure here abandons and deletes the
	// partial index; the previous alias target keeps serving.
	if err := p.populate(ctx, indexName, report); err != nil {
		return nil, p.cleanupPartial(ctx, indexName, err)
	}
	if err := p.validate(ctx, indexName, report.Processed); err != nil {
		return nil, p.cleanupPartial(ctx, indexName, err)
	}
	if err := p.swap(ctx, indexName); err != nil {
		return nil, p.cleanupPartial(ctx, indexName, err)
	}

	// RETENT: prune old generations; failures are logged, never fatal.
	p.retent(ctx, indexName)

	report.Duration = p.now().Sub(start)
	runsTotal.WithLabelValues("success").Inc()
	runDuration.Observe(report.Duration.Seconds())

	p.logger.Info("reindex complete",
		slog.String("index", indexName),
		slog.Int("processed", report.Processed),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", report.Errors),
		slog.Int64("source_total", total),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (p *Pipeline) fail(err error) error {
	runsTotal.WithLabelValues("failure").Inc()
	return err
}

// connect verifies both stores are reachable and the cluster is not red.
func (p *Pipeline) connect(ctx context.Context) error {
	health, err := p.backend.ClusterHealth(ctx, connectTimeout)
	if err != nil {
		return fmt.Errorf("connect: cluster health: %w", err)
	}
	if health.Status == "red" {
		return fmt.Errorf("connect: cluster status is red")
	}
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("connect: relational store: %w", err)
	}

	plugins, err := p.backend.PluginsInstalled(ctx)
	if err != nil {
		p.logger.Warn("connect: plugin survey failed", slog.String("error", err.Error()))
	} else {
		p.logger.Info("cluster plugins", slog.Any("installed", plugins))
	}
	return nil
}

// analyze surveys the current generations and confirms there is work to do.
func (p *Pipeline) analyze(ctx context.Context) (int64, error) {
	indices, err := p.backend.ListIndices(ctx, p.opts.IndexPrefix+"_*")
	if err != nil {
		return 0, fmt.Errorf("analyze: list indices: %w", err)
	}
	current, err := p.backend.GetAlias(ctx, p.opts.Alias)
	if err != nil {
		return 0, fmt.Errorf("analyze: resolve alias: %w", err)
	}
	total, err := p.store.TotalProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("analyze: count products: %w", err)
	}
	if total == 0 {
		return 0, fmt.Errorf("analyze: no indexable products in source")
	}

	p.logger.Info("reindex starting",
		slog.Int("existing_indices", len(indices)),
		slog.Any("alias_targets", current),
		slog.Int64("source_total", total),
	)
	return total, nil
}

// create makes the new physical index and waits for it to become usable.
func (p *Pipeline) create(ctx context.Context, schema map[string]any) (string, error) {
	name := p.newIndexName()

	exists, err := p.backend.IndexExists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create: check index: %w", err)
	}
	if exists {
		p.logger.Warn("index already exists, recreating", slog.String("index", name))
		if err := p.backend.DeleteIndex(ctx, name); err != nil {
			return "", fmt.Errorf("create: delete stale index: %w", err)
		}
		p.sleep(readyWaitDelay)
	}

	if err := p.backend.CreateIndex(ctx, name, schema); err != nil {
		return "", fmt.Errorf("create: %w", err)
	}

	if err := p.waitForReady(ctx); err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	return name, nil
}

// newIndexName renders the timestamped physical index name.
func (p *Pipeline) newIndexName() string {
	return p.opts.IndexPrefix + "_" + p.now().UTC().Format(indexNameLayout)
}

// waitForReady polls cluster health until it reports yellow or green.
func (p *Pipeline) waitForReady(ctx context.Context) error {
	var last string
	for attempt := 0; attempt < readyWaitAttempts; attempt++ {
		if attempt > 0 {
			p.sleep(readyWaitDelay)
		}
		health, err := p.backend.ClusterHealth(ctx, readyWaitTimeout)
		if err != nil {
			last = err.Error()
			continue
		}
		if health.Status == "yellow" || health.Status == "green" {
			return nil
		}
		last = health.Status
	}
	return fmt.Errorf("index not ready after %d attempts (last: %s)", readyWaitAttempts, last)
}

// populate streams source batches through the document builder into bulk
// uploads. Per-document problems are counted, never fatal; a bulk transport
// error aborts the run.
func (p *Pipeline) populate(ctx context.Context, indexName string, report *Report) error {
	batchNum := 0
	loggedErrors := 0

	err := p.store.StreamProducts(ctx, p.opts.BatchSize, func(batch []domain.ProductRow) error {
		batchNum++

		docs := make([]backend.Doc, 0, len(batch))
		for _, row := range batch {
			doc, err := p.builder.Build(row)
			if err != nil {
				report.Skipped++
				docsSkipped.Inc()
				if loggedErrors < maxLoggedItemErrors {
					p.logger.Warn("row skipped", slog.String("reason", err.Error()))
					loggedErrors++
				}
				continue
			}
			docs = append(docs, backend.Doc{
				ID:   fmt.Sprint(doc.ProductID),
				Body: doc.Source(),
			})
		}

		result, err := p.backend.Bulk(ctx, indexName, docs)
		if err != nil {
			return fmt.Errorf("populate: bulk batch %d: %w", batchNum, err)
		}

		report.Processed += result.Indexed
		report.Errors += len(result.ItemErrors)
		docsProcessed.Add(float64(result.Indexed))
		docsErrored.Add(float64(len(result.ItemErrors)))
		for _, itemErr := range result.ItemErrors {
			if loggedErrors < maxLoggedItemErrors {
				p.logger.Warn("document rejected",
					slog.String("id", itemErr.ID),
					slog.String("reason", itemErr.Reason),
				)
				loggedErrors++
			}
		}

		if batchNum%gcEveryBatches == 0 {
			p.gc()
		}
		if batchNum%pauseEveryBatches == 0 {
			p.sleep(pauseDuration)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("populate: %w", err)
	}

	p.logger.Info("population finished",
		slog.Int("batches", batchNum),
		slog.Int("processed", report.Processed),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", report.Errors),
	)
	return nil
}

// validate refreshes the new index and checks it holds roughly what was
// uploaded and answers queries.
func (p *Pipeline) validate(ctx context.Context, indexName string, processed int) error {
	if err := p.backend.Refresh(ctx, indexName); err != nil {
		return fmt.Errorf("validate: refresh: %w", err)
	}

	stats, err := p.backend.Stats(ctx, indexName)
	if err != nil {
		return fmt.Errorf("validate: stats: %w", err)
	}
	diff := stats.DocCount - int64(processed)
	if diff < 0 {
		diff = -diff
	}
	if diff > int64(p.opts.DocCountTolerance) {
		return fmt.Errorf("validate: doc count %d deviates from processed %d by more than %d",
			stats.DocCount, processed, p.opts.DocCountTolerance)
	}

	probe, err := p.backend.Search(ctx, indexName, map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  probeSize,
	})
	if err != nil {
		return fmt.Errorf("validate: probe: %w", err)
	}
	if probe.Total < 1 {
		return fmt.Errorf("validate: index is empty after population")
	}
	return nil
}

// swap atomically rotates the alias onto the new index.
func (p *Pipeline) swap(ctx context.Context, indexName string) error {
	current, err := p.backend.GetAlias(ctx, p.opts.Alias)
	if err != nil {
		return fmt.Errorf("swap: resolve alias: %w", err)
	}

	var actions []backend.AliasAction
	for _, target := range current {
		if target != indexName {
			actions = append(actions, backend.AliasAction{Index: target, Alias: p.opts.Alias})
		}
	}
	actions = append(actions, backend.AliasAction{Add: true, Index: indexName, Alias: p.opts.Alias})

	if err := p.backend.UpdateAliases(ctx, actions); err != nil {
		return fmt.Errorf("swap: %w", err)
	}

	p.logger.Info("alias rotated",
		slog.String("alias", p.opts.Alias),
		slog.Any("previous", current),
		slog.String("index", indexName),
	)
	return nil
}

// retent keeps the newest MaxOldIndices+1 generations and deletes the rest.
// Timestamped names sort lexicographically in chronological order.
func (p *Pipeline) retent(ctx context.Context, indexName string) {
	names, err := p.backend.ListIndices(ctx, p.opts.IndexPrefix+"_*")
	if err != nil {
		p.logger.Warn("retention: list indices failed", slog.String("error", err.Error()))
		return
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	keep := p.opts.MaxOldIndices + 1
	if len(names) <= keep {
		return
	}

	for _, name := range names[keep:] {
		if name == indexName {
			continue
		}
		if err := p.backend.DeleteIndex(ctx, name); err != nil {
			p.logger.Warn("retention: delete failed",
				slog.String("index", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.logger.Info("old index removed", slog.String("index", name))
	}
}

// cleanupPartial deletes the uncommitted index after a failed run and
// surfaces the original error.
func (p *Pipeline) cleanupPartial(ctx context.Context, indexName string, cause error) error {
	runsTotal.WithLabelValues("failure").Inc()

	p.logger.Error("reindex failed, cleaning up partial index",
		slog.String("index", indexName),
		slog.String("error", cause.Error()),
	)
	// Cleanup must still run when the cause is a canceled context.
	if err := p.backend.DeleteIndex(context.WithoutCancel(ctx), indexName); err != nil {
		p.logger.Warn("cleanup: delete partial index failed",
			slog.String("index", indexName),
			slog.String("error", err.Error()),
		)
	}
	return cause
}
