package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stroymart/catalog-search/internal/backend"
	"github.com/stroymart/catalog-search/internal/backend/memory"
	"github.com/stroymart/catalog-search/internal/domain"
	"github.com/stroymart/catalog-search/internal/store"
)

// fakeStore serves a fixed row set to the pipeline.
type fakeStore struct {
	rows    []domain.ProductRow
	pingErr error
}

func (f *fakeStore) TotalProducts(_ context.Context) (int64, error) {
	return int64(len(f.rows)), nil
}

func (f *fakeStore) StreamProducts(_ context.Context, batchSize int, fn store.BatchFunc) error {
	for start := 0; start < len(f.rows); start += batchSize {
		end := start + batchSize
		if end > len(f.rows) {
			end = len(f.rows)
		}
		if err := fn(f.rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) FallbackSearch(_ context.Context, _ domain.SearchSpec) (*domain.SearchResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) FallbackAutocomplete(_ context.Context, _ string, _ int) ([]domain.Suggestion, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }

// flakyBackend wraps a real backend with injectable failures.
type flakyBackend struct {
	backend.SearchBackend
	bulkErr   error
	health    *backend.Health
	statsSkew int64
}

func (f *flakyBackend) Bulk(ctx context.Context, index string, docs []backend.Doc) (*backend.BulkResult, error) {
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	return f.SearchBackend.Bulk(ctx, index, docs)
}

func (f *flakyBackend) ClusterHealth(ctx context.Context, timeout time.Duration) (*backend.Health, error) {
	if f.health != nil {
		return f.health, nil
	}
	return f.SearchBackend.ClusterHealth(ctx, timeout)
}

func (f *flakyBackend) Stats(ctx context.Context, name string) (*backend.Stats, error) {
	stats, err := f.SearchBackend.Stats(ctx, name)
	if err != nil {
		return nil, err
	}
	stats.DocCount += f.statsSkew
	return stats, nil
}

func testRows(n int) []domain.ProductRow {
	rows := make([]domain.ProductRow, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, domain.ProductRow{
			ProductID:  int64(i),
			ExternalID: "EX-" + string(rune('0'+i%10)),
			Name:       "Product " + string(rune('A'+i%26)),
		})
	}
	return rows
}

func testOptions() Options {
	return Options{
		Alias:             "products_current",
		IndexPrefix:       "products",
		BatchSize:         2,
		MaxOldIndices:     2,
		DocCountTolerance: 10,
	}
}

// newTestPipeline wires a pipeline over the given backend and store with a
// deterministic clock and no-op sleep/GC hooks.
func newTestPipeline(sb backend.SearchBackend, st store.Store, opts Options, at time.Time) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(sb, st, opts, logger)
	p.now = func() time.Time { return at }
	p.sleep = func(time.Duration) {}
	p.gc = func() {}
	return p
}

func TestPipeline_SuccessfulRun(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	st := &fakeStore{rows: testRows(5)}
	at := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

	p := newTestPipeline(mem, st, testOptions(), at)
	report, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, "products_2025_06_01_03_00_00", report.IndexName)
	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Errors)

	targets, err := mem.GetAlias(ctx, "products_current")
	require.NoError(t, err)
	assert.Equal(t, []string{report.IndexName}, targets)

	stats, err := mem.Stats(ctx, "products_current")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.DocCount)
}

func TestPipeline_SkipsInvalidRows(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	rows := testRows(3)
	rows = append(rows, domain.ProductRow{ProductID: 99}) // no identity, skipped
	st := &fakeStore{rows: rows}

	p := newTestPipeline(mem, st, testOptions(), time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC))
	report, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 1, report.Skipped)
}

func TestPipeline_BulkFailureCleansUpAndPreservesAlias(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	// An older generation is live behind the alias.
	require.NoError(t, mem.CreateIndex(ctx, "products_2025_01_01_00_00_00", nil))
	require.NoError(t, mem.UpdateAliases(ctx, []backend.AliasAction{
		{Add: true, Index: "products_2025_01_01_00_00_00", Alias: "products_current"},
	}))

	flaky := &flakyBackend{SearchBackend: mem, bulkErr: errors.New("upstream 502")}
	st := &fakeStore{rows: testRows(10)}
	at := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

	p := newTestPipeline(flaky, st, testOptions(), at)
	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bulk")

	// The partial index is gone.
	exists, err := mem.IndexExists(ctx, "products_2025_06_01_03_00_00")
	require.NoError(t, err)
	assert.False(t, exists, "partial index must be deleted")

	// The alias still points at the previous generation.
	targets, err := mem.GetAlias(ctx, "products_current")
	require.NoError(t, err)
	assert.Equal(t, []string{"products_2025_01_01_00_00_00"}, targets)
}

func TestPipeline_ZeroSourceRowsIsFatal(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	st := &fakeStore{}

	p := newTestPipeline(mem, st, testOptions(), time.Now())
	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no indexable products")

	// Nothing was created.
	names, err := mem.ListIndices(ctx, "products_*")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPipeline_RedClusterIsFatal(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	flaky := &flakyBackend{SearchBackend: mem, health: &backend.Health{Status: "red"}}
	st := &fakeStore{rows: testRows(3)}

	p := newTestPipeline(flaky, st, testOptions(), time.Now())
	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "red")
}

func TestPipeline_StorePingFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	st := &fakeStore{rows: testRows(3), pingErr: errors.New("connection refused")}

	p := newTestPipeline(mem, st, testOptions(), time.Now())
	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relational store")
}

func TestPipeline_DocCountMismatchAborts(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	flaky := &flakyBackend{SearchBackend: mem, statsSkew: 20}
	st := &fakeStore{rows: testRows(5)}
	at := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

	p := newTestPipeline(flaky, st, testOptions(), at)
	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doc count")

	// No alias was created; the partial index was removed.
	targets, err := mem.GetAlias(ctx, "products_current")
	require.NoError(t, err)
	assert.Empty(t, targets)
	exists, err := mem.IndexExists(ctx, "products_2025_06_01_03_00_00")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPipeline_RetentionPrunesOldGenerations(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	// Four pre-existing generations.
	for _, name := range []string{
		"products_2025_01_01_00_00_00",
		"products_2025_02_01_00_00_00",
		"products_2025_03_01_00_00_00",
		"products_2025_04_01_00_00_00",
	} {
		require.NoError(t, mem.CreateIndex(ctx, name, nil))
	}

	st := &fakeStore{rows: testRows(4)}
	at := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

	p := newTestPipeline(mem, st, testOptions(), at)
	report, err := p.Run(ctx)
	require.NoError(t, err)

	names, err := mem.ListIndices(ctx, "products_*")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"products_2025_03_01_00_00_00",
		"products_2025_04_01_00_00_00",
		report.IndexName,
	}, names, "keep the new index plus the two newest older generations")
}

func TestPipeline_SecondRunMovesAlias(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	st := &fakeStore{rows: testRows(5)}

	first := newTestPipeline(mem, st, testOptions(), time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC))
	firstReport, err := first.Run(ctx)
	require.NoError(t, err)

	second := newTestPipeline(mem, st, testOptions(), time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC))
	secondReport, err := second.Run(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, firstReport.IndexName, secondReport.IndexName)
	assert.Equal(t, firstReport.Processed, secondReport.Processed)

	targets, err := mem.GetAlias(ctx, "products_current")
	require.NoError(t, err)
	assert.Equal(t, []string{secondReport.IndexName}, targets)

	// Both generations retained under the default policy.
	names, err := mem.ListIndices(ctx, "products_*")
	require.NoError(t, err)
	assert.Contains(t, names, firstReport.IndexName)
	assert.Contains(t, names, secondReport.IndexName)
}
