package healing

import (
	"context"

	"github.com/3cpo-dev/backbone/internal/health"
)

// CheckUnhealthy holds when the named check reported unhealthy.
func CheckUnhealthy(name string) Condition {
	return ConditionFunc(func(_ context.Context, report health.Report) (bool, error) {
		c, ok := report.Check(name)
		return ok && c.Status == health.StatusUnhealthy, nil
	})
}

// CheckFailing holds when the named check is unhealthy or errored.
func CheckFailing(name string) Condition {
	return ConditionFunc(func(_ context.Context, report health.Report) (bool, error) {
		c, ok := report.Check(name)
		return ok && (c.Status == health.StatusUnhealthy || c.Status == health.StatusError), nil
	})
}

// AnyUnhealthy holds when the report is degraded.
func AnyUnhealthy() Condition {
	return ConditionFunc(func(_ context.Context, report health.Report) (bool, error) {
		return report.UnhealthyCount > 0, nil
	})
}

// UnhealthyAtLeast holds when n or more checks are not healthy.
func UnhealthyAtLeast(n int) Condition {
	return ConditionFunc(func(_ context.Context, report health.Report) (bool, error) {
		return report.UnhealthyCount >= n, nil
	})
}
