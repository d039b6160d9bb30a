package cost

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/backbone/internal/clock"
	"github.com/3cpo-dev/backbone/internal/ring"
)

// ErrResourceNotFound is reported when a recommendation names an unknown id.
var ErrResourceNotFound = errors.New("Resource not found")

// ErrDuplicateResource is returned when an id is registered twice.
var ErrDuplicateResource = errors.New("resource already registered")

const (
	// DownsizeThreshold is the utilization below which a busy resource is
	// recommended for downsizing.
	DownsizeThreshold = 0.3
	// DefaultUnderutilizedThreshold applies to standalone queries.
	DefaultUnderutilizedThreshold = 0.2

	downsizeFactor  = 0.5
	historyCapacity = 100
	reportHistory   = 10
)

// OptimizationType names a cost action.
type OptimizationType string

const (
	Terminate OptimizationType = "terminate"
	Downsize  OptimizationType = "downsize"
)

// Recommendation is a proposed, not yet applied, cost action.
type Recommendation struct {
	Type                    OptimizationType `json:"type"`
	ResourceID              string           `json:"resource_id"`
	ResourceType            ResourceType     `json:"resource_type"`
	Reason                  string           `json:"reason"`
	PotentialSavingsMonthly float64          `json:"potential_savings_monthly"`
	Utilization             *float64         `json:"utilization,omitempty"` // percent, downsize only
}

// Result is the outcome of Apply.
type Result struct {
	ID               string           `json:"id"`
	Success          bool             `json:"success"`
	ResourceID       string           `json:"resource_id,omitempty"`
	OptimizationType OptimizationType `json:"optimization_type,omitempty"`
	Savings          float64          `json:"savings"`
	Timestamp        time.Time        `json:"timestamp"`
	Error            string           `json:"error,omitempty"`
}

// Summary is the current price of the fleet.
type Summary struct {
	Hourly         float64 `json:"hourly"`
	Daily          float64 `json:"daily"`
	Monthly        float64 `json:"monthly"`
	ResourcesCount int     `json:"resources_count"`
}

// SavingsReport summarizes applied optimizations.
type SavingsReport struct {
	TotalSavings       float64  `json:"total_savings"`
	OptimizationsCount int      `json:"optimizations_count"`
	CurrentMonthlyCost float64  `json:"current_monthly_cost"`
	History            []Result `json:"history"`
}

// Optimizer tracks resources and applies cost actions to them. It is not
// safe for concurrent use.
type Optimizer struct {
	resources []*Resource
	history   *ring.Buffer[Result]
	savings   float64
	clock     clock.Clock
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithClock sets the time source for timestamps.
func WithClock(c clock.Clock) Option { return func(o *Optimizer) { o.clock = c } }

func NewOptimizer(opts ...Option) *Optimizer {
	o := &Optimizer{history: ring.New[Result](historyCapacity), clock: clock.Real{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterResource appends r to the collection.
func (o *Optimizer) RegisterResource(r Resource) error {
	if o.find(r.ID) != nil {
		return fmt.Errorf("register %s: %w", r.ID, ErrDuplicateResource)
	}
	r = r.clone()
	r.Utilization = clamp01(r.Utilization)
	if r.LastCheck.IsZero() {
		r.LastCheck = o.clock.Now()
	}
	o.resources = append(o.resources, &r)
	log.Info().Str("resource", r.ID).Str("type", string(r.Type)).Msg("Registered resource")
	return nil
}

// Resources returns a copy of the current collection.
func (o *Optimizer) Resources() []Resource {
	out := make([]Resource, len(o.resources))
	for i, r := range o.resources {
		out[i] = r.clone()
	}
	return out
}

func (o *Optimizer) find(id string) *Resource {
	for _, r := range o.resources {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (o *Optimizer) remove(id string) {
	for i, r := range o.resources {
		if r.ID == id {
			o.resources = append(o.resources[:i], o.resources[i+1:]...)
			return
		}
	}
}

// TotalCost sums the fleet; each figure is rounded to cents.
func (o *Optimizer) TotalCost() Summary {
	var hourly float64
	for _, r := range o.resources {
		hourly += r.CostPerHour
	}
	return Summary{
		Hourly:         round2(hourly),
		Daily:          round2(hourly * HoursPerDay),
		Monthly:        round2(hourly * hoursPerMonth),
		ResourcesCount: len(o.resources),
	}
}

// FindUnderutilized returns resources with utilization below threshold.
func (o *Optimizer) FindUnderutilized(threshold float64) []Resource {
	var out []Resource
	for _, r := range o.resources {
		if r.Underutilized(threshold) {
			out = append(out, r.clone())
		}
	}
	return out
}

// FindIdle returns resources with zero utilization.
func (o *Optimizer) FindIdle() []Resource {
	var out []Resource
	for _, r := range o.resources {
		if r.Idle() {
			out = append(out, r.clone())
		}
	}
	return out
}

// Recommendations proposes terminating idle resources, then downsizing the
// remaining underutilized ones.
func (o *Optimizer) Recommendations() []Recommendation {
	var recs []Recommendation
	for _, r := range o.resources {
		if !r.Idle() {
			continue
		}
		recs = append(recs, Recommendation{
			Type:                    Terminate,
			ResourceID:              r.ID,
			ResourceType:            r.Type,
			Reason:                  "Resource is idle (0% utilization)",
			PotentialSavingsMonthly: round2(r.MonthlyCost()),
		})
	}
	for _, r := range o.resources {
		if r.Idle() || !r.Underutilized(DownsizeThreshold) {
			continue
		}
		pct := round1(r.Utilization * 100)
		recs = append(recs, Recommendation{
			Type:                    Downsize,
			ResourceID:              r.ID,
			ResourceType:            r.Type,
			Utilization:             &pct,
			Reason:                  fmt.Sprintf("Resource underutilized (%.1f%%)", pct),
			PotentialSavingsMonthly: round2(r.MonthlyCost() * downsizeFactor),
		})
	}
	return recs
}

// Apply carries out rec against the collection. Failures are reported in
// the result, never returned or raised.
func (o *Optimizer) Apply(rec Recommendation) (res Result) {
	res = Result{ID: uuid.NewString(), Timestamp: o.clock.Now()}
	defer func() {
		if p := recover(); p != nil {
			res = Result{ID: res.ID, Timestamp: res.Timestamp, Error: fmt.Sprint(p)}
		}
	}()

	r := o.find(rec.ResourceID)
	if r == nil {
		res.Error = ErrResourceNotFound.Error()
		return res
	}

	var savings float64
	switch rec.Type {
	case Terminate:
		savings = r.MonthlyCost()
		o.remove(r.ID)
		log.Info().Str("resource", r.ID).Float64("savings", round2(savings)).Msg("Terminated resource")
	case Downsize:
		savings = r.MonthlyCost() * downsizeFactor
		r.CostPerHour *= downsizeFactor
		log.Info().Str("resource", r.ID).Float64("savings", round2(savings)).Msg("Downsized resource")
	default:
		log.Warn().Str("resource", r.ID).Str("type", string(rec.Type)).Msg("Unknown optimization type, nothing applied")
	}
	o.savings += savings

	res.Success = true
	res.ResourceID = r.ID
	res.OptimizationType = rec.Type
	res.Savings = round2(savings)
	o.history.Push(res)
	return res
}

// SavingsReport returns cumulative savings and the last few results.
func (o *Optimizer) SavingsReport() SavingsReport {
	return SavingsReport{
		TotalSavings:       round2(o.savings),
		OptimizationsCount: o.history.Total(),
		CurrentMonthlyCost: o.TotalCost().Monthly,
		History:            o.history.Last(reportHistory),
	}
}

// UpdateUtilization records a new observation for id, clamped to [0,1].
func (o *Optimizer) UpdateUtilization(id string, utilization float64) error {
	r := o.find(id)
	if r == nil {
		return fmt.Errorf("update %s: %w", id, ErrResourceNotFound)
	}
	r.Utilization = clamp01(utilization)
	r.LastCheck = o.clock.Now()
	return nil
}
