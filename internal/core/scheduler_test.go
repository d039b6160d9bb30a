package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/backbone/internal/clock"
	"github.com/3cpo-dev/backbone/internal/config"
	"github.com/3cpo-dev/backbone/internal/health"
)

func TestJobDue(t *testing.T) {
	j := &job{every: time.Minute, next: epoch.Add(time.Minute)}
	assert.False(t, j.due(epoch))
	assert.False(t, j.due(epoch.Add(59*time.Second)))
	assert.True(t, j.due(epoch.Add(time.Minute)))
	assert.Equal(t, epoch.Add(2*time.Minute), j.next)
	assert.False(t, j.due(epoch.Add(time.Minute)))
}

func startLoop(t *testing.T, o *Orchestrator, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- o.Start(ctx) }()
	return done
}

func TestStartRunsCyclesOnSchedule(t *testing.T) {
	fc := clock.NewFake(epoch)
	probe := newSwitchable(true)
	cfg := testConfig()
	o, err := New(cfg, WithClock(fc), WithTick(5*time.Millisecond), WithProbes(health.NewCheck("cpu", probe)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := startLoop(t, o, ctx)

	// Both cycles run immediately.
	require.Eventually(t, func() bool { return len(o.LastRecommendations()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return probe.runs.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, o.Running())

	before := probe.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, probe.runs.Load(), "health job ran before its interval")

	fc.Advance(60 * time.Second)
	require.Eventually(t, func() bool { return probe.runs.Load() == before+1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestStopEndsLoop(t *testing.T) {
	cfg := config.Default()
	cfg.Set("cost_optimization.enabled", false)
	probe := newSwitchable(true)
	o, err := New(cfg, WithTick(5*time.Millisecond), WithProbes(health.NewCheck("cpu", probe)))
	require.NoError(t, err)

	done := startLoop(t, o, context.Background())
	require.Eventually(t, o.Running, 2*time.Second, 5*time.Millisecond)

	o.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.False(t, o.Running())
	assert.Nil(t, o.LastRecommendations())
}

func TestStatusDuringLoop(t *testing.T) {
	fc := clock.NewFake(epoch)
	o, err := New(testConfig(), WithClock(fc), WithTick(time.Millisecond),
		WithProbes(health.NewCheck("cpu", newSwitchable(false))))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := startLoop(t, o, ctx)
	for i := 0; i < 20; i++ {
		fc.Advance(time.Minute)
		st := o.Status(ctx)
		assert.Equal(t, health.StatusDegraded, st.Health.OverallStatus)
	}
	cancel()
	assert.NoError(t, <-done)
}
