package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// debounceWindow coalesces bursts of catalog-change events into one run.
const debounceWindow = 5 * time.Minute

// Daemon runs the pipeline on a cron schedule and on demand when catalog
// changes mark the index dirty. Runs never overlap: the pipeline is a
// single-writer batch job.
type Daemon struct {
	pipeline *Pipeline
	cronSpec string
	logger   *slog.Logger

	runMu sync.Mutex
	dirty chan string
}

// NewDaemon creates a daemon around the pipeline.
func NewDaemon(p *Pipeline, cronSpec string, logger *slog.Logger) *Daemon {
	return &Daemon{
		pipeline: p,
		cronSpec: cronSpec,
		logger:   logger,
		dirty:    make(chan string, 1),
	}
}

// MarkDirty schedules a debounced reindex. Safe to call from any goroutine;
// redundant marks while one is pending are dropped.
func (d *Daemon) MarkDirty(reason string) {
	select {
	case d.dirty <- reason:
	default:
	}
}

// Run blocks until the context is canceled, executing scheduled and
// change-triggered reindex runs.
func (d *Daemon) Run(ctx context.Context) error {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(d.cronSpec, func() {
		d.runOnce(ctx, "schedule")
	})
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	d.logger.Info("indexer daemon started", slog.String("cron", d.cronSpec))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("indexer daemon stopping")
			return nil
		case reason := <-d.dirty:
			d.logger.Info("index marked dirty, reindex pending",
				slog.String("reason", reason),
				slog.Duration("debounce", debounceWindow),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(debounceWindow):
			}
			// Marks that arrived during the debounce wait are covered by this run.
			select {
			case <-d.dirty:
			default:
			}
			d.runOnce(ctx, reason)
		}
	}
}

// runOnce executes a single pipeline run, serialized against other runs.
func (d *Daemon) runOnce(ctx context.Context, reason string) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if ctx.Err() != nil {
		return
	}
	d.logger.Info("reindex run starting", slog.String("trigger", reason))
	if _, err := d.pipeline.Run(ctx); err != nil {
		d.logger.Error("reindex run failed",
			slog.String("trigger", reason),
			slog.String("error", err.Error()),
		)
	}
}
