package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/backbone/internal/clock"
)

// Status is the state of a single check or of the whole report.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusError     Status = "error"
	StatusDegraded  Status = "degraded"
)

// ProbeResult is the verdict of one probe plus free-form details.
type ProbeResult struct {
	Healthy bool           `json:"healthy"`
	Details map[string]any `json:"details,omitempty"`
}

// Probe evaluates one aspect of system health. Implementations should
// return promptly once ctx is done.
type Probe interface {
	Check(ctx context.Context) (ProbeResult, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (ProbeResult, error)

func (f ProbeFunc) Check(ctx context.Context) (ProbeResult, error) { return f(ctx) }

// HealthCheck is a named probe and the outcome of its last run.
type HealthCheck struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	LastCheck time.Time `json:"last_check"`
	probe     Probe
}

// NewCheck creates a check in the unknown state.
func NewCheck(name string, probe Probe) *HealthCheck {
	return &HealthCheck{Name: name, Status: StatusUnknown, probe: probe}
}

// CheckResult is one entry of a Report.
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
}

// Report aggregates one pass over every registered check.
type Report struct {
	OverallStatus  Status        `json:"overall_status"`
	Checks         []CheckResult `json:"checks"`
	UnhealthyCount int           `json:"unhealthy_count"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool { return r.OverallStatus == StatusHealthy }

// Check finds the first result with the given name.
func (r Report) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

var errNoProbe = errors.New("no probe configured")

// execute runs the probe, converting errors and panics into an error status.
func (hc *HealthCheck) execute(ctx context.Context, now func() time.Time, timeout time.Duration) (res CheckResult) {
	start := time.Now()
	res.Name = hc.Name
	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusError
			res.Details = nil
			res.Error = fmt.Sprintf("probe panicked: %v", r)
		}
		hc.Status = res.Status
		hc.LastCheck = now()
		res.Timestamp = hc.LastCheck
		res.Duration = time.Since(start)
	}()

	if hc.probe == nil {
		res.Status = StatusError
		res.Error = errNoProbe.Error()
		return res
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := hc.probe.Check(ctx)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		return res
	}
	res.Details = out.Details
	if out.Healthy {
		res.Status = StatusHealthy
	} else {
		res.Status = StatusUnhealthy
	}
	return res
}

// Monitor owns the ordered registry of health checks.
type Monitor struct {
	checks  []*HealthCheck
	clock   clock.Clock
	timeout time.Duration
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the time source stamped on results.
func WithClock(c clock.Clock) Option { return func(m *Monitor) { m.clock = c } }

// WithProbeTimeout bounds each probe run; zero disables the bound.
func WithProbeTimeout(d time.Duration) Option { return func(m *Monitor) { m.timeout = d } }

// NewMonitor creates an empty monitor.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{clock: clock.Real{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterCheck appends a check. Names are not required to be unique.
func (m *Monitor) RegisterCheck(check *HealthCheck) {
	m.checks = append(m.checks, check)
	log.Info().Str("check", check.Name).Msg("Registered health check")
}

// Checks returns a snapshot of the registered checks.
func (m *Monitor) Checks() []HealthCheck {
	out := make([]HealthCheck, len(m.checks))
	for i, c := range m.checks {
		out[i] = *c
	}
	return out
}

// RunAllChecks runs every probe in registration order. A failing probe is
// recorded with status error and never stops the pass.
func (m *Monitor) RunAllChecks(ctx context.Context) Report {
	results := make([]CheckResult, 0, len(m.checks))
	unhealthy := 0
	for _, check := range m.checks {
		res := check.execute(ctx, m.clock.Now, m.timeout)
		if res.Status != StatusHealthy {
			unhealthy++
			log.Debug().Str("check", res.Name).Str("status", string(res.Status)).Str("error", res.Error).Msg("Health check not healthy")
		}
		results = append(results, res)
	}

	overall := StatusHealthy
	if unhealthy > 0 {
		overall = StatusDegraded
	}
	return Report{
		OverallStatus:  overall,
		Checks:         results,
		UnhealthyCount: unhealthy,
		Timestamp:      m.clock.Now(),
	}
}

// UnhealthyChecks re-runs all checks and returns the ones not healthy.
func (m *Monitor) UnhealthyChecks(ctx context.Context) []CheckResult {
	report := m.RunAllChecks(ctx)
	var out []CheckResult
	for _, c := range report.Checks {
		if c.Status != StatusHealthy {
			out = append(out, c)
		}
	}
	return out
}
