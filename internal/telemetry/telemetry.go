package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/3cpo-dev/backbone/internal/cost"
	"github.com/3cpo-dev/backbone/internal/healing"
	"github.com/3cpo-dev/backbone/internal/health"
)

const namespace = "backbone"

// Metrics holds the orchestrator's Prometheus collectors on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	checkStatus    *prometheus.GaugeVec
	checkDuration  *prometheus.GaugeVec
	unhealthy      prometheus.Gauge
	healthCycles   prometheus.Counter
	healingActions *prometheus.CounterVec
	optimizations  *prometheus.CounterVec
	hourlyCost     prometheus.Gauge
	monthlyCost    prometheus.Gauge
	resources      prometheus.Gauge
	savings        prometheus.Gauge
	costCycles     prometheus.Counter
}

// NewMetrics registers every collector plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checkStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "health", Name: "check_healthy",
			Help: "1 when the check last reported healthy, 0 otherwise.",
		}, []string{"check"}),
		checkDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "health", Name: "check_duration_seconds",
			Help: "Duration of the last probe run.",
		}, []string{"check"}),
		unhealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "health", Name: "unhealthy_checks",
			Help: "Checks not healthy in the last report.",
		}),
		healthCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "health", Name: "cycles_total",
			Help: "Health cycles run.",
		}),
		healingActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "healing", Name: "actions_total",
			Help: "Healing actions executed by rule and outcome.",
		}, []string{"rule", "outcome"}),
		optimizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cost", Name: "optimizations_total",
			Help: "Optimizations applied by type and outcome.",
		}, []string{"type", "outcome"}),
		hourlyCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cost", Name: "hourly_dollars",
			Help: "Current hourly cost of the fleet.",
		}),
		monthlyCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cost", Name: "monthly_dollars",
			Help: "Current monthly cost of the fleet.",
		}),
		resources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cost", Name: "resources",
			Help: "Registered resources.",
		}),
		savings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cost", Name: "savings_dollars",
			Help: "Cumulative estimated monthly savings.",
		}),
		costCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cost", Name: "cycles_total",
			Help: "Cost cycles run.",
		}),
	}
	m.registry.MustRegister(
		m.checkStatus, m.checkDuration, m.unhealthy, m.healthCycles,
		m.healingActions, m.optimizations,
		m.hourlyCost, m.monthlyCost, m.resources, m.savings, m.costCycles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveReport(report health.Report) {
	m.healthCycles.Inc()
	m.unhealthy.Set(float64(report.UnhealthyCount))
	for _, c := range report.Checks {
		v := 0.0
		if c.Status == health.StatusHealthy {
			v = 1
		}
		m.checkStatus.WithLabelValues(c.Name).Set(v)
		m.checkDuration.WithLabelValues(c.Name).Set(c.Duration.Seconds())
	}
}

func (m *Metrics) ObserveHealing(res healing.Result) {
	m.healingActions.WithLabelValues(res.Rule, outcome(res.Success)).Inc()
}

func (m *Metrics) ObserveOptimization(res cost.Result) {
	typ := string(res.OptimizationType)
	if typ == "" {
		typ = "unknown"
	}
	m.optimizations.WithLabelValues(typ, outcome(res.Success)).Inc()
}

func (m *Metrics) ObserveCost(summary cost.Summary, savings cost.SavingsReport) {
	m.costCycles.Inc()
	m.hourlyCost.Set(summary.Hourly)
	m.monthlyCost.Set(summary.Monthly)
	m.resources.Set(float64(summary.ResourcesCount))
	m.savings.Set(savings.TotalSavings)
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
