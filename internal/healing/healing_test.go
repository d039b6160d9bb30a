package healing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/backbone/internal/clock"
	"github.com/3cpo-dev/backbone/internal/health"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func always() Condition {
	return ConditionFunc(func(context.Context, health.Report) (bool, error) { return true, nil })
}

func never() Condition {
	return ConditionFunc(func(context.Context, health.Report) (bool, error) { return false, nil })
}

type countingAction struct {
	calls int
	ok    bool
	err   error
}

func (a *countingAction) Execute(context.Context, health.Report) (bool, error) {
	a.calls++
	return a.ok, a.err
}

func degraded() health.Report {
	return health.Report{
		OverallStatus:  health.StatusDegraded,
		UnhealthyCount: 1,
		Checks: []health.CheckResult{
			{Name: "cpu", Status: health.StatusUnhealthy},
			{Name: "memory", Status: health.StatusHealthy},
		},
	}
}

func TestRuleFiresWhenConditionHolds(t *testing.T) {
	fc := clock.NewFake(epoch)
	s := NewSystem(WithClock(fc))
	act := &countingAction{ok: true}
	s.RegisterRule(NewRule("test_rule", always(), act, time.Minute))

	results := s.EvaluateAndHeal(context.Background(), degraded())
	require.Len(t, results, 1)
	assert.Equal(t, "test_rule", results[0].Rule)
	assert.True(t, results[0].Success)
	assert.Equal(t, epoch, results[0].Timestamp)
	assert.Equal(t, 1, act.calls)
	assert.Len(t, s.History(0), 1)
	assert.Equal(t, epoch, s.Rules()[0].LastTriggered)
}

func TestRuleSkippedWhenConditionFalse(t *testing.T) {
	s := NewSystem()
	act := &countingAction{ok: true}
	s.RegisterRule(NewRule("quiet", never(), act, 0))

	assert.Empty(t, s.EvaluateAndHeal(context.Background(), degraded()))
	assert.Equal(t, 0, act.calls)
	assert.True(t, s.Rules()[0].LastTriggered.IsZero())
}

func TestCooldown(t *testing.T) {
	fc := clock.NewFake(epoch)
	s := NewSystem(WithClock(fc))
	act := &countingAction{ok: true}
	s.RegisterRule(NewRule("cooldown_rule", always(), act, time.Hour))

	ctx := context.Background()
	require.Len(t, s.EvaluateAndHeal(ctx, degraded()), 1)

	fc.Advance(30 * time.Minute)
	assert.Empty(t, s.EvaluateAndHeal(ctx, degraded()))

	// The window is inclusive at its end.
	fc.Advance(30 * time.Minute)
	assert.Empty(t, s.EvaluateAndHeal(ctx, degraded()))

	fc.Advance(time.Second)
	assert.Len(t, s.EvaluateAndHeal(ctx, degraded()), 1)
	assert.Equal(t, 2, act.calls)
}

func TestZeroCooldownFiresEveryPass(t *testing.T) {
	fc := clock.NewFake(epoch)
	s := NewSystem(WithClock(fc))
	act := &countingAction{ok: true}
	s.RegisterRule(NewRule("eager", always(), act, 0))

	for i := 0; i < 3; i++ {
		fc.Advance(time.Millisecond)
		s.EvaluateAndHeal(context.Background(), degraded())
	}
	assert.Equal(t, 3, act.calls)
}

func TestFailedActionStillStartsCooldown(t *testing.T) {
	fc := clock.NewFake(epoch)
	s := NewSystem(WithClock(fc))
	act := &countingAction{err: errors.New("restart failed")}
	s.RegisterRule(NewRule("flaky", always(), act, time.Minute))

	results := s.EvaluateAndHeal(context.Background(), degraded())
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "restart failed", results[0].Error)

	fc.Advance(10 * time.Second)
	assert.Empty(t, s.EvaluateAndHeal(context.Background(), degraded()))
	assert.Equal(t, 1, act.calls)
}

func TestActionPanicRecovered(t *testing.T) {
	s := NewSystem()
	s.RegisterRule(NewRule("panics", always(), ActionFunc(func(context.Context, health.Report) (bool, error) {
		panic("kaboom")
	}), 0))
	after := &countingAction{ok: true}
	s.RegisterRule(NewRule("after", always(), after, 0))

	results := s.EvaluateAndHeal(context.Background(), degraded())
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "kaboom")
	assert.True(t, results[1].Success)
}

func TestConditionErrorDoesNotTrigger(t *testing.T) {
	s := NewSystem()
	act := &countingAction{ok: true}
	s.RegisterRule(NewRule("bad_cond", ConditionFunc(func(context.Context, health.Report) (bool, error) {
		return false, errors.New("cannot evaluate")
	}), act, 0))
	s.RegisterRule(NewRule("panic_cond", ConditionFunc(func(context.Context, health.Report) (bool, error) {
		panic("nil map")
	}), act, 0))

	assert.Empty(t, s.EvaluateAndHeal(context.Background(), degraded()))
	assert.Equal(t, 0, act.calls)
}

func TestActionTimeout(t *testing.T) {
	s := NewSystem(WithActionTimeout(20 * time.Millisecond))
	s.RegisterRule(NewRule("slow", always(), ActionFunc(func(ctx context.Context, _ health.Report) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}), 0))

	results := s.EvaluateAndHeal(context.Background(), degraded())
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "deadline exceeded")
}

func TestDisabledSystemDoesNothing(t *testing.T) {
	s := NewSystem()
	act := &countingAction{ok: true}
	s.RegisterRule(NewRule("r", always(), act, 0))

	s.Disable()
	assert.False(t, s.Enabled())
	assert.Empty(t, s.EvaluateAndHeal(context.Background(), degraded()))

	s.Enable()
	assert.True(t, s.Enabled())
	assert.Len(t, s.EvaluateAndHeal(context.Background(), degraded()), 1)
}

func TestHistoryLimit(t *testing.T) {
	fc := clock.NewFake(epoch)
	s := NewSystem(WithClock(fc))
	s.RegisterRule(NewRule("r", always(), &countingAction{ok: true}, 0))

	for i := 0; i < 15; i++ {
		fc.Advance(time.Second)
		s.EvaluateAndHeal(context.Background(), degraded())
	}
	assert.Len(t, s.History(0), DefaultHistoryLimit)
	last := s.History(3)
	require.Len(t, last, 3)
	assert.Equal(t, epoch.Add(15*time.Second), last[2].Timestamp)
	assert.Equal(t, 15, s.HistoryTotal())
}

func TestConditionHelpers(t *testing.T) {
	ctx := context.Background()
	report := degraded()
	report.Checks = append(report.Checks, health.CheckResult{Name: "disk", Status: health.StatusError})
	report.UnhealthyCount = 2

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"cpu unhealthy", CheckUnhealthy("cpu"), true},
		{"memory unhealthy", CheckUnhealthy("memory"), false},
		{"disk unhealthy", CheckUnhealthy("disk"), false},
		{"disk failing", CheckFailing("disk"), true},
		{"missing check", CheckFailing("gpu"), false},
		{"any", AnyUnhealthy(), true},
		{"at least 2", UnhealthyAtLeast(2), true},
		{"at least 3", UnhealthyAtLeast(3), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Holds(ctx, report)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
