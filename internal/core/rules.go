package core

import (
	"fmt"
	"time"

	"github.com/3cpo-dev/backbone/internal/cost"
	"github.com/3cpo-dev/backbone/internal/healing"
	"github.com/3cpo-dev/backbone/internal/remote"
)

// RuleSpec is a healing rule as written under self_healing.rules.
type RuleSpec struct {
	Name       string   `yaml:"name"`
	Check      string   `yaml:"check"`
	When       string   `yaml:"when"`
	Action     string   `yaml:"action"`
	Service    string   `yaml:"service"`
	Factor     float64  `yaml:"factor"`
	Command    string   `yaml:"command"`
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	User       string   `yaml:"user"`
	KeyPath    string   `yaml:"key_path"`
	KnownHosts string   `yaml:"known_hosts"`
	Cooldown   *float64 `yaml:"cooldown"` // seconds
}

func (s RuleSpec) condition() (healing.Condition, error) {
	if s.Check == "" {
		return healing.AnyUnhealthy(), nil
	}
	switch s.When {
	case "", "unhealthy":
		return healing.CheckUnhealthy(s.Check), nil
	case "failing":
		return healing.CheckFailing(s.Check), nil
	}
	return nil, fmt.Errorf("unknown condition %q", s.When)
}

func (s RuleSpec) action() (healing.Action, error) {
	switch s.Action {
	case "restart_service":
		if s.Service == "" {
			return nil, fmt.Errorf("restart_service needs a service")
		}
		return healing.RestartService(s.Service), nil
	case "scale_resources":
		factor := s.Factor
		if factor == 0 {
			factor = 2
		}
		return healing.ScaleResources(factor), nil
	case "clean_cache":
		return healing.CleanCache(), nil
	case "remote_command":
		if s.Command == "" {
			return nil, fmt.Errorf("remote_command needs a command")
		}
		client, err := remote.NewClient(remote.Options{
			Host:       s.Host,
			Port:       s.Port,
			User:       s.User,
			KeyPath:    s.KeyPath,
			KnownHosts: s.KnownHosts,
			Timeout:    10 * time.Second,
			Retries:    2,
		})
		if err != nil {
			return nil, fmt.Errorf("remote_command: %w", err)
		}
		return healing.RemoteCommand(client, s.Command), nil
	}
	return nil, fmt.Errorf("unknown action %q", s.Action)
}

func (s RuleSpec) build(defaultCooldown time.Duration) (*healing.Rule, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("healing rule needs a name")
	}
	cond, err := s.condition()
	if err != nil {
		return nil, err
	}
	act, err := s.action()
	if err != nil {
		return nil, err
	}
	cooldown := defaultCooldown
	if s.Cooldown != nil {
		cooldown = time.Duration(*s.Cooldown * float64(time.Second))
	}
	return healing.NewRule(s.Name, cond, act, cooldown), nil
}

// ResourceSpec is a resource as written under cost_optimization.resources.
type ResourceSpec struct {
	ID               string            `yaml:"id"`
	Type             string            `yaml:"type"`
	CostPerHour      float64           `yaml:"cost_per_hour"`
	Utilization      float64           `yaml:"utilization"`
	Tags             map[string]string `yaml:"tags"`
	UtilizationQuery string            `yaml:"utilization_query"`
}

func (s ResourceSpec) resource() (cost.Resource, error) {
	if s.ID == "" {
		return cost.Resource{}, fmt.Errorf("resource needs an id")
	}
	typ, err := cost.ParseResourceType(s.Type)
	if err != nil {
		return cost.Resource{}, err
	}
	if s.CostPerHour < 0 {
		return cost.Resource{}, fmt.Errorf("negative cost_per_hour %v", s.CostPerHour)
	}
	return cost.Resource{
		ID:               s.ID,
		Type:             typ,
		CostPerHour:      s.CostPerHour,
		Utilization:      s.Utilization,
		Tags:             s.Tags,
		UtilizationQuery: s.UtilizationQuery,
	}, nil
}
