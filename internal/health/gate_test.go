package health

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
)

// fakeBackend implements only ClusterHealth; the gate touches nothing else.
type fakeBackend struct {
	backend.SearchBackend
	health *backend.Health
	err    error
	calls  int
}

func (f *fakeBackend) ClusterHealth(_ context.Context, _ time.Duration) (*backend.Health, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.health, nil
}

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGate(fb *fakeBackend, clock *testClock) *Gate {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGateWithClock(fb, logger, clock.now)
}

func TestGate_UpOnHealthyCluster(t *testing.T) {
	fb := &fakeBackend{health: &backend.Health{Status: "green", Elapsed: time.Millisecond}}
	clock := &testClock{t: time.Now()}
	g := newTestGate(fb, clock)

	assert.True(t, g.IsAvailable(context.Background()))
	assert.Equal(t, 1, fb.calls)

	status, _, failures := g.State()
	assert.Equal(t, StatusUp, status)
	assert.Equal(t, 0, failures)
}

func TestGate_YellowIsUp(t *testing.T) {
	fb := &fakeBackend{health: &backend.Health{Status: "yellow", Elapsed: time.Millisecond}}
	clock := &testClock{t: time.Now()}
	g := newTestGate(fb, clock)

	assert.True(t, g.IsAvailable(context.Background()))
}

func TestGate_RedIsDown(t *testing.T) {
	fb := &fakeBackend{health: &backend.Health{Status: "red", Elapsed: time.Millisecond}}
	clock := &testClock{t: time.Now()}
	g := newTestGate(fb, clock)

	assert.False(t, g.IsAvailable(context.Background()))

	status, _, failures := g.State()
	assert.Equal(t, StatusDown, status)
	assert.Equal(t, 1, failures)
}

func TestGate_SlowProbeIsDown(t *testing.T) {
	fb := &fakeBackend{health: &backend.Health{Status: "green", Elapsed: 6 * time.Second}}
	clock := &testClock{t: time.Now()}
	g := newTestGate(fb, clock)

	assert.False(t, g.IsAvailable(context.Background()))
}

func TestGate_CachesBetweenProbes(t *testing.T) {
	fb := &fakeBackend{health: &backend.Health{Status: "green", Elapsed: time.Millisecond}}
	clock := &testClock{t: time.Now()}
	g := newTestGate(fb, clock)

	require.True(t, g.IsAvailable(context.Background()))
	require.True(t, g.IsAvailable(context.Background()))
	require.True(t, g.IsAvailable(context.Background()))
	assert.Equal(t, 1, fb.calls, "verdict must be cached between probes")

	clock.advance(31 * time.Second)
	require.True(t, g.IsAvailable(context.Background()))
	assert.Equal(t, 2, fb.calls, "stale verdict triggers a new probe")
}

func TestGate_BackoffLengthensWithFailures(t *testing.T) {
	fb := &fakeBackend{err: errors.New("connection refused")}
	clock := &testClock{t: time.Now()}
	g := newTestGate(fb, clock)

	// First probe fails: 1 failure, next interval 40s.
	assert.False(t, g.IsAvailable(context.Background()))
	assert.Equal(t, 1, fb.calls)

	clock.advance(35 * time.Second)
	assert.False(t, g.IsAvailable(context.Background()))
	assert.Equal(t, 1, fb.calls, "35s < 40s interval, no probe")

	clock.advance(6 * time.Second)
	assert.False(t, g.IsAvailable(context.Background()))
	assert.Equal(t, 2, fb.calls, "41s >= 40s interval, probes again")

	_, _, failures := g.State()
	assert.Equal(t, 2, failures)
}

func TestGate_IntervalCapped(t *testing.T) {
	fb := &fakeBackend{err: errors.New("down")}
	clock := &testClock{t: time.Now()}
	g := newTestGate(fb, clock)

	g.failures = 100
	assert.Equal(t, 300*time.Second, g.interval())
}

func TestGate_RecoveryResetsFailures(t *testing.T) {
	fb := &fakeBackend{err: errors.New("down")}
	clock := &testClock{t: time.Now()}
	g := newTestGate(fb, clock)

	require.False(t, g.IsAvailable(context.Background()))

	// Backend recovers.
	fb.err = nil
	fb.health = &backend.Health{Status: "green", Elapsed: time.Millisecond}

	clock.advance(41 * time.Second)
	require.True(t, g.IsAvailable(context.Background()))

	_, _, failures := g.State()
	assert.Equal(t, 0, failures, "success resets consecutive failures")
}

func TestGate_ReportFailureForcesDown(t *testing.T) {
	fb := &fakeBackend{health: &backend.Health{Status: "green", Elapsed: time.Millisecond}}
	clock := &testClock{t: time.Now()}
	g := newTestGate(fb, clock)

	require.True(t, g.IsAvailable(context.Background()))

	g.ReportFailure()
	assert.False(t, g.IsAvailable(context.Background()), "reported failure flips the cached verdict")

	_, _, failures := g.State()
	assert.Equal(t, 1, failures)
}
