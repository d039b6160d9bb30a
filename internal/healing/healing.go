package healing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/backbone/internal/clock"
	"github.com/3cpo-dev/backbone/internal/health"
	"github.com/3cpo-dev/backbone/internal/ring"
)

// DefaultHistoryLimit is the number of entries History returns for limit <= 0.
const DefaultHistoryLimit = 10

const historyCapacity = 256

// Condition decides whether a rule should fire for a report.
type Condition interface {
	Holds(ctx context.Context, report health.Report) (bool, error)
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(ctx context.Context, report health.Report) (bool, error)

func (f ConditionFunc) Holds(ctx context.Context, report health.Report) (bool, error) {
	return f(ctx, report)
}

// Action performs a remediation and reports whether it succeeded.
type Action interface {
	Execute(ctx context.Context, report health.Report) (bool, error)
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, report health.Report) (bool, error)

func (f ActionFunc) Execute(ctx context.Context, report health.Report) (bool, error) {
	return f(ctx, report)
}

// Rule couples a condition with a remediation and a cooldown.
type Rule struct {
	Name          string
	Condition     Condition
	Action        Action
	Cooldown      time.Duration
	LastTriggered time.Time // zero until the first execution
}

// NewRule creates a rule that has never fired.
func NewRule(name string, cond Condition, action Action, cooldown time.Duration) *Rule {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Rule{Name: name, Condition: cond, Action: action, Cooldown: cooldown}
}

// coolingDown reports whether now is still inside the window opened by the
// last execution.
func (r *Rule) coolingDown(now time.Time) bool {
	if r.LastTriggered.IsZero() {
		return false
	}
	return now.Sub(r.LastTriggered) <= r.Cooldown
}

func (r *Rule) shouldTrigger(ctx context.Context, report health.Report) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("rule", r.Name).Interface("panic", p).Msg("Healing condition panicked")
			ok = false
		}
	}()
	if r.Condition == nil {
		return false
	}
	holds, err := r.Condition.Holds(ctx, report)
	if err != nil {
		log.Error().Err(err).Str("rule", r.Name).Msg("Error evaluating healing condition")
		return false
	}
	return holds
}

func (r *Rule) execute(ctx context.Context, report health.Report, now time.Time, timeout time.Duration) (res Result) {
	r.LastTriggered = now
	res = Result{Rule: r.Name, Timestamp: now}
	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Error = fmt.Sprintf("action panicked: %v", p)
		}
	}()
	if r.Action == nil {
		res.Error = "no action configured"
		return res
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ok, err := r.Action.Execute(ctx, report)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = ok
	return res
}

// Result records one execution of a rule.
type Result struct {
	Rule      string    `json:"rule"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// System evaluates registered rules against health reports.
type System struct {
	rules         []*Rule
	history       *ring.Buffer[Result]
	enabled       bool
	clock         clock.Clock
	actionTimeout time.Duration
}

// Option configures a System.
type Option func(*System)

// WithClock sets the time source used for cooldowns.
func WithClock(c clock.Clock) Option { return func(s *System) { s.clock = c } }

// WithActionTimeout bounds each action run; zero disables the bound.
func WithActionTimeout(d time.Duration) Option { return func(s *System) { s.actionTimeout = d } }

// NewSystem creates an enabled system with no rules.
func NewSystem(opts ...Option) *System {
	s := &System{
		history: ring.New[Result](historyCapacity),
		enabled: true,
		clock:   clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRule appends a rule; rules are evaluated in registration order.
func (s *System) RegisterRule(rule *Rule) {
	s.rules = append(s.rules, rule)
	log.Info().Str("rule", rule.Name).Dur("cooldown", rule.Cooldown).Msg("Registered healing rule")
}

// Rules returns a snapshot of the registered rules and their cooldown state.
func (s *System) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = *r
	}
	return out
}

// EvaluateAndHeal runs every eligible rule whose condition holds for report
// and returns the results of this pass. A rule enters cooldown as soon as it
// is attempted, whatever the outcome.
func (s *System) EvaluateAndHeal(ctx context.Context, report health.Report) []Result {
	if !s.enabled {
		return nil
	}

	var taken []Result
	for _, rule := range s.rules {
		now := s.clock.Now()
		if rule.coolingDown(now) {
			continue
		}
		if !rule.shouldTrigger(ctx, report) {
			continue
		}

		log.Warn().Str("rule", rule.Name).Msg("Triggering healing rule")
		res := rule.execute(ctx, report, now, s.actionTimeout)
		taken = append(taken, res)
		s.history.Push(res)

		if res.Success {
			log.Info().Str("rule", rule.Name).Msg("Successfully executed healing action")
		} else {
			log.Error().Str("rule", rule.Name).Str("error", res.Error).Msg("Failed to execute healing action")
		}
	}
	return taken
}

// History returns up to limit recent results, oldest first.
func (s *System) History(limit int) []Result {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.history.Last(limit)
}

// HistoryTotal is the number of executions since start.
func (s *System) HistoryTotal() int { return s.history.Total() }

// Enable turns evaluation on. Cooldowns and history are untouched.
func (s *System) Enable() {
	s.enabled = true
	log.Info().Msg("Self-healing enabled")
}

// Disable turns evaluation off. Cooldowns and history are untouched.
func (s *System) Disable() {
	s.enabled = false
	log.Info().Msg("Self-healing disabled")
}

// Enabled reports the evaluation gate.
func (s *System) Enabled() bool { return s.enabled }
