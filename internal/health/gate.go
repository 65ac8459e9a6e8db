package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stroymart/catalog-search/internal/backend"
)

// Status is the gate's verdict on the search backend.
type Status int

const (
	StatusUnknown Status = iota
	StatusUp
	StatusDown
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "up"
	case StatusDown:
		return "down"
	default:
		return "unknown"
	}
}

// Probe and backoff parameters.
const (
	probeTimeout    = 5 * time.Second
	baseInterval    = 30 * time.Second
	intervalStep    = 10 * time.Second
	maxInterval     = 300 * time.Second
	maxProbeLatency = 5 * time.Second
)

var gateAvailable = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "search_backend_available",
	Help: "Whether the health gate currently considers the search backend available (1=up, 0=down)",
})

// Gate is a circuit breaker over the search backend's cluster health. It
// caches the last verdict and re-probes at linearly lengthening intervals
// (30s plus 10s per consecutive failure, capped at 300s) while the backend
// stays down. A single-flight guard keeps at
// most one probe in flight; concurrent callers read the cached verdict.
type Gate struct {
	backend backend.SearchBackend
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	status      Status
	lastCheckAt time.Time
	failures    int
	probing     bool
}

// NewGate creates a gate in the UNKNOWN state; the first IsAvailable call probes.
func NewGate(sb backend.SearchBackend, logger *slog.Logger) *Gate {
	return &Gate{backend: sb, logger: logger, now: time.Now}
}

// NewGateWithClock creates a gate with an injected clock.
func NewGateWithClock(sb backend.SearchBackend, logger *slog.Logger, now func() time.Time) *Gate {
	return &Gate{backend: sb, logger: logger, now: now}
}

// interval returns the current re-probe interval:
// min(300s, 30s + 10s per consecutive failure).
func (g *Gate) interval() time.Duration {
	d := baseInterval + time.Duration(g.failures)*intervalStep
	if d > maxInterval {
		d = maxInterval
	}
	return d
}

// IsAvailable returns the cached verdict, probing first when the verdict is
// stale or not yet established. Between probes no I/O happens.
func (g *Gate) IsAvailable(ctx context.Context) bool {
	g.mu.Lock()
	due := g.status == StatusUnknown || g.now().Sub(g.lastCheckAt) >= g.interval()
	if !due || g.probing {
		verdict := g.status == StatusUp
		g.mu.Unlock()
		return verdict
	}
	g.probing = true
	g.mu.Unlock()

	up := g.probe(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.probing = false
	g.lastCheckAt = g.now()
	if up {
		g.status = StatusUp
		g.failures = 0
		gateAvailable.Set(1)
	} else {
		g.status = StatusDown
		g.failures++
		gateAvailable.Set(0)
	}
	return g.status == StatusUp
}

// probe runs one cluster health check. UP requires green or yellow status
// observed in under maxProbeLatency.
func (g *Gate) probe(ctx context.Context) bool {
	health, err := g.backend.ClusterHealth(ctx, probeTimeout)
	if err != nil {
		g.logger.Warn("search backend health probe failed", slog.String("error", err.Error()))
		return false
	}
	if health.Status != "green" && health.Status != "yellow" {
		g.logger.Warn("search backend cluster degraded", slog.String("status", health.Status))
		return false
	}
	if health.Elapsed >= maxProbeLatency {
		g.logger.Warn("search backend health probe too slow",
			slog.Duration("elapsed", health.Elapsed))
		return false
	}
	return true
}

// ReportFailure records an observed backend failure from the query path:
// the backend is marked down and the re-probe interval restarts now, so
// IsAvailable returns false without probing until that interval elapses.
func (g *Gate) ReportFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	g.status = StatusDown
	g.lastCheckAt = g.now()
	gateAvailable.Set(0)
}

// State returns a snapshot of the gate's internals for diagnostics.
func (g *Gate) State() (status Status, lastCheckAt time.Time, consecutiveFailures int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, g.lastCheckAt, g.failures
}
