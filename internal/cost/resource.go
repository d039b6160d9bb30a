package cost

import (
	"fmt"
	"math"
	"time"
)

const (
	HoursPerDay   = 24
	DaysPerMonth  = 30.44
	hoursPerMonth = HoursPerDay * DaysPerMonth
)

// ResourceType classifies a priced resource.
type ResourceType string

const (
	Compute  ResourceType = "compute"
	Storage  ResourceType = "storage"
	Network  ResourceType = "network"
	Database ResourceType = "database"
)

// ParseResourceType validates s as a ResourceType.
func ParseResourceType(s string) (ResourceType, error) {
	switch t := ResourceType(s); t {
	case Compute, Storage, Network, Database:
		return t, nil
	}
	return "", fmt.Errorf("unknown resource type %q", s)
}

// Resource is a priced piece of infrastructure with an observed utilization.
type Resource struct {
	ID          string            `json:"resource_id"`
	Type        ResourceType      `json:"resource_type"`
	CostPerHour float64           `json:"cost_per_hour"`
	Utilization float64           `json:"utilization"`
	Tags        map[string]string `json:"tags,omitempty"`
	LastCheck   time.Time         `json:"last_check"`

	// UtilizationQuery is a PromQL expression refreshing Utilization.
	UtilizationQuery string `json:"utilization_query,omitempty"`
}

func (r Resource) DailyCost() float64   { return r.CostPerHour * HoursPerDay }
func (r Resource) MonthlyCost() float64 { return r.CostPerHour * hoursPerMonth }

// Underutilized reports utilization strictly below threshold.
func (r Resource) Underutilized(threshold float64) bool { return r.Utilization < threshold }

// Idle reports exactly zero utilization.
func (r Resource) Idle() bool { return r.Utilization == 0 }

func (r Resource) clone() Resource {
	if r.Tags != nil {
		tags := make(map[string]string, len(r.Tags))
		for k, v := range r.Tags {
			tags[k] = v
		}
		r.Tags = tags
	}
	return r
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
