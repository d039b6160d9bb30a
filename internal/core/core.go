package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/backbone/internal/clock"
	"github.com/3cpo-dev/backbone/internal/config"
	"github.com/3cpo-dev/backbone/internal/cost"
	"github.com/3cpo-dev/backbone/internal/healing"
	"github.com/3cpo-dev/backbone/internal/health"
	"github.com/3cpo-dev/backbone/internal/store"
	"github.com/3cpo-dev/backbone/internal/telemetry"
)

const (
	defaultTick   = time.Second
	recentHealing = 10
)

// Orchestrator owns the monitor, the healing system and the optimizer, and
// drives their cycles. All engine access goes through one mutex so that
// Status can be served while the loop runs.
type Orchestrator struct {
	cfg *config.Config

	mu        sync.Mutex
	monitor   *health.Monitor
	healer    *healing.System
	optimizer *cost.Optimizer
	lastRecs  []cost.Recommendation

	clock       clock.Clock
	tick        time.Duration
	journal     store.Journal
	metrics     *telemetry.Metrics
	probes      []*health.HealthCheck
	utilization cost.UtilizationSource

	jobsMu  sync.Mutex
	jobs    []*job
	stopped atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock for every component.
func WithClock(c clock.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

// WithTick sets how often the loop looks for due jobs.
func WithTick(d time.Duration) Option { return func(o *Orchestrator) { o.tick = d } }

// WithJournal records every report and result to j.
func WithJournal(j store.Journal) Option { return func(o *Orchestrator) { o.journal = j } }

// WithMetrics publishes cycle outcomes to m.
func WithMetrics(m *telemetry.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithProbes installs checks in place of the default system probes.
func WithProbes(checks ...*health.HealthCheck) Option {
	return func(o *Orchestrator) { o.probes = append(o.probes, checks...) }
}

// WithUtilizationSource refreshes resource utilization before each cost cycle.
func WithUtilizationSource(src cost.UtilizationSource) Option {
	return func(o *Orchestrator) { o.utilization = src }
}

// New builds a fully wired orchestrator from cfg.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{cfg: cfg, clock: clock.Real{}, tick: defaultTick}
	for _, opt := range opts {
		opt(o)
	}
	if o.tick <= 0 {
		o.tick = defaultTick
	}

	o.monitor = health.NewMonitor(
		health.WithClock(o.clock),
		health.WithProbeTimeout(cfg.Seconds("health_monitoring.probe_timeout", 10*time.Second)),
	)
	o.healer = healing.NewSystem(
		healing.WithClock(o.clock),
		healing.WithActionTimeout(cfg.Seconds("self_healing.action_timeout", 30*time.Second)),
	)
	o.optimizer = cost.NewOptimizer(cost.WithClock(o.clock))

	o.setupHealthChecks()
	if err := o.setupHealingRules(); err != nil {
		return nil, err
	}
	if err := o.setupResources(); err != nil {
		return nil, err
	}
	if o.utilization == nil {
		if url := cfg.String("cost_optimization.prometheus_url", ""); url != "" {
			src, err := cost.NewPrometheusSource(url, cost.WithSourceClock(o.clock))
			if err != nil {
				return nil, err
			}
			o.utilization = src
		}
	}
	return o, nil
}

func (o *Orchestrator) setupHealthChecks() {
	if len(o.probes) > 0 {
		for _, c := range o.probes {
			o.monitor.RegisterCheck(c)
		}
		return
	}
	if !o.cfg.Bool("health_monitoring.enabled", true) {
		return
	}
	o.monitor.RegisterCheck(health.NewCheck("cpu",
		health.CPUProbe(o.cfg.Float("health_monitoring.cpu_threshold", 80))))
	o.monitor.RegisterCheck(health.NewCheck("memory",
		health.MemoryProbe(o.cfg.Float("health_monitoring.memory_threshold", 85))))
	o.monitor.RegisterCheck(health.NewCheck("disk",
		health.DiskProbe(o.cfg.String("health_monitoring.disk_path", "/"), o.cfg.Float("health_monitoring.disk_threshold", 90))))
}

func (o *Orchestrator) setupHealingRules() error {
	if !o.cfg.Bool("self_healing.enabled", true) {
		o.healer.Disable()
		return nil
	}
	cooldown := o.cfg.Seconds("self_healing.cooldown", 300*time.Second)
	o.healer.RegisterRule(healing.NewRule("high_cpu_healing",
		healing.CheckUnhealthy("cpu"),
		healing.ActionFunc(func(context.Context, health.Report) (bool, error) {
			log.Warn().Msg("High CPU detected, initiating healing action")
			return true, nil
		}),
		cooldown))

	var specs []RuleSpec
	if err := o.cfg.Decode("self_healing.rules", &specs); err != nil {
		return err
	}
	for _, spec := range specs {
		rule, err := spec.build(cooldown)
		if err != nil {
			log.Error().Err(err).Str("rule", spec.Name).Msg("Skipping healing rule")
			continue
		}
		o.healer.RegisterRule(rule)
	}
	return nil
}

func (o *Orchestrator) setupResources() error {
	var specs []ResourceSpec
	if err := o.cfg.Decode("cost_optimization.resources", &specs); err != nil {
		return err
	}
	for _, spec := range specs {
		r, err := spec.resource()
		if err != nil {
			log.Error().Err(err).Str("resource", spec.ID).Msg("Skipping resource")
			continue
		}
		if err := o.optimizer.RegisterResource(r); err != nil {
			log.Error().Err(err).Msg("Skipping resource")
		}
	}
	return nil
}

// Config is the effective configuration.
func (o *Orchestrator) Config() *config.Config { return o.cfg }

// RegisterResource adds r to the optimizer.
func (o *Orchestrator) RegisterResource(r cost.Resource) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.optimizer.RegisterResource(r)
}

// RegisterRule adds rule to the healing system.
func (o *Orchestrator) RegisterRule(rule *healing.Rule) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.healer.RegisterRule(rule)
}

// RunHealthCycle runs every check and, when degraded, lets the healing
// system react to the fresh report.
func (o *Orchestrator) RunHealthCycle(ctx context.Context) health.Report {
	o.mu.Lock()
	defer o.mu.Unlock()

	log.Debug().Msg("Running health check cycle")
	report := o.monitor.RunAllChecks(ctx)
	if o.metrics != nil {
		o.metrics.ObserveReport(report)
	}
	o.journalReport(ctx, report)

	if report.Healthy() {
		log.Debug().Msg("System health: healthy")
		return report
	}

	log.Warn().Str("status", string(report.OverallStatus)).Int("unhealthy", report.UnhealthyCount).Msg("System health degraded")
	if !o.healer.Enabled() {
		return report
	}
	results := o.healer.EvaluateAndHeal(ctx, report)
	for _, res := range results {
		if o.metrics != nil {
			o.metrics.ObserveHealing(res)
		}
		if o.journal != nil {
			if err := o.journal.RecordHealing(ctx, res); err != nil {
				log.Error().Err(err).Msg("Failed to journal healing result")
			}
		}
	}
	if len(results) > 0 {
		log.Info().Int("actions", len(results)).Msg("Executed healing actions")
	}
	return report
}

func (o *Orchestrator) journalReport(ctx context.Context, report health.Report) {
	if o.journal == nil {
		return
	}
	if err := o.journal.RecordReport(ctx, report); err != nil {
		log.Error().Err(err).Msg("Failed to journal health report")
	}
}

// RunCostCycle refreshes utilization, computes recommendations and applies
// them when auto-optimize is on.
func (o *Orchestrator) RunCostCycle(ctx context.Context) cost.Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	log.Debug().Msg("Running cost optimization cycle")
	if o.utilization != nil {
		o.optimizer.RefreshUtilization(ctx, o.utilization)
	}

	recs := o.optimizer.Recommendations()
	if len(recs) > 0 {
		log.Info().Int("count", len(recs)).Msg("Found cost optimization opportunities")
	}

	if o.cfg.Bool("cost_optimization.auto_optimize", false) {
		for _, rec := range recs {
			res := o.optimizer.Apply(rec)
			o.recordOptimization(ctx, res)
			if res.Success {
				log.Info().Str("type", string(rec.Type)).Str("resource", rec.ResourceID).Float64("savings", res.Savings).Msg("Applied optimization")
			} else {
				log.Warn().Str("type", string(rec.Type)).Str("resource", rec.ResourceID).Str("error", res.Error).Msg("Optimization failed")
			}
		}
		recs = o.optimizer.Recommendations()
	} else {
		for _, rec := range recs {
			log.Info().Str("type", string(rec.Type)).Str("resource", rec.ResourceID).
				Float64("potential_savings_monthly", rec.PotentialSavingsMonthly).Msg(rec.Reason)
		}
	}
	o.lastRecs = recs

	summary := o.optimizer.TotalCost()
	if o.metrics != nil {
		o.metrics.ObserveCost(summary, o.optimizer.SavingsReport())
	}
	return summary
}

func (o *Orchestrator) recordOptimization(ctx context.Context, res cost.Result) {
	if o.metrics != nil {
		o.metrics.ObserveOptimization(res)
	}
	if o.journal == nil {
		return
	}
	if err := o.journal.RecordOptimization(ctx, res); err != nil {
		log.Error().Err(err).Msg("Failed to journal optimization result")
	}
}

// Apply applies one recommendation outside the cost cycle.
func (o *Orchestrator) Apply(ctx context.Context, rec cost.Recommendation) cost.Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	res := o.optimizer.Apply(rec)
	o.recordOptimization(ctx, res)
	return res
}

// Recommend refreshes utilization and returns current recommendations
// without applying them.
func (o *Orchestrator) Recommend(ctx context.Context) []cost.Recommendation {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.utilization != nil {
		o.optimizer.RefreshUtilization(ctx, o.utilization)
	}
	o.lastRecs = o.optimizer.Recommendations()
	return append([]cost.Recommendation(nil), o.lastRecs...)
}

// LastRecommendations returns what the last cost cycle surfaced.
func (o *Orchestrator) LastRecommendations() []cost.Recommendation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]cost.Recommendation(nil), o.lastRecs...)
}

// Costs is the current cost summary.
func (o *Orchestrator) Costs() cost.Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.optimizer.TotalCost()
}

// Status is a consolidated snapshot of the engine.
type Status struct {
	Health             health.Report      `json:"health"`
	Costs              cost.Summary       `json:"costs"`
	Savings            cost.SavingsReport `json:"savings"`
	HealingHistory     []healing.Result   `json:"healing_history"`
	SelfHealingEnabled bool               `json:"self_healing_enabled"`
	Rules              []RuleStatus       `json:"rules"`
}

// RuleStatus is the cooldown state of a rule.
type RuleStatus struct {
	Name          string        `json:"name"`
	Cooldown      time.Duration `json:"cooldown"`
	LastTriggered *time.Time    `json:"last_triggered,omitempty"`
}

// Status re-runs the health checks and gathers the rest of the state. It
// does not trigger healing.
func (o *Orchestrator) Status(ctx context.Context) Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Health:             o.monitor.RunAllChecks(ctx),
		Costs:              o.optimizer.TotalCost(),
		Savings:            o.optimizer.SavingsReport(),
		HealingHistory:     o.healer.History(recentHealing),
		SelfHealingEnabled: o.healer.Enabled(),
	}
	for _, r := range o.healer.Rules() {
		rs := RuleStatus{Name: r.Name, Cooldown: r.Cooldown}
		if !r.LastTriggered.IsZero() {
			t := r.LastTriggered
			rs.LastTriggered = &t
		}
		st.Rules = append(st.Rules, rs)
	}
	return st
}

// Health runs the checks without healing.
func (o *Orchestrator) Health(ctx context.Context) health.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.monitor.RunAllChecks(ctx)
}

// Snapshot is Status for callers that only need JSON.
func (o *Orchestrator) Snapshot(ctx context.Context) any { return o.Status(ctx) }

// SetSelfHealing toggles rule evaluation at runtime.
func (o *Orchestrator) SetSelfHealing(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if enabled {
		o.healer.Enable()
	} else {
		o.healer.Disable()
	}
}

// Close releases the journal.
func (o *Orchestrator) Close() error {
	if o.journal == nil {
		return nil
	}
	if err := o.journal.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	return nil
}
