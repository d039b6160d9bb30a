package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/backbone/internal/cost"
	"github.com/3cpo-dev/backbone/internal/healing"
	"github.com/3cpo-dev/backbone/internal/health"
)

func TestObserveReport(t *testing.T) {
	m := NewMetrics()
	m.ObserveReport(health.Report{
		OverallStatus:  health.StatusDegraded,
		UnhealthyCount: 1,
		Checks: []health.CheckResult{
			{Name: "cpu", Status: health.StatusUnhealthy, Duration: time.Second},
			{Name: "memory", Status: health.StatusHealthy},
		},
	})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.checkStatus.WithLabelValues("cpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkStatus.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkDuration.WithLabelValues("cpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unhealthy))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.healthCycles))
}

func TestObserveActions(t *testing.T) {
	m := NewMetrics()
	m.ObserveHealing(healing.Result{Rule: "high_cpu_healing", Success: true})
	m.ObserveHealing(healing.Result{Rule: "high_cpu_healing"})
	m.ObserveOptimization(cost.Result{Success: true, OptimizationType: cost.Terminate})
	m.ObserveOptimization(cost.Result{Error: "Resource not found"})
	m.ObserveCost(cost.Summary{Hourly: 1.5, Monthly: 1095.84, ResourcesCount: 2}, cost.SavingsReport{TotalSavings: 730.56})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.healingActions.WithLabelValues("high_cpu_healing", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.healingActions.WithLabelValues("high_cpu_healing", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.optimizations.WithLabelValues("terminate", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.optimizations.WithLabelValues("unknown", "failure")))
	assert.Equal(t, 1095.84, testutil.ToFloat64(m.monthlyCost))
	assert.Equal(t, 730.56, testutil.ToFloat64(m.savings))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.resources))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveHealing(healing.Result{Rule: "r", Success: true})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), `backbone_healing_actions_total{outcome="success",rule="r"} 1`))
}
