package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	docsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_documents_processed_total",
		Help: "Documents successfully uploaded to the search index",
	})

	docsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_documents_skipped_total",
		Help: "Source rows rejected by the document builder",
	})

	docsErrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_documents_errored_total",
		Help: "Documents rejected by the search backend during bulk upload",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_runs_total",
		Help: "Completed reindex runs by result",
	}, []string{"result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "indexer_run_duration_seconds",
		Help:    "Duration of successful reindex runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)
