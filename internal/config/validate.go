package config

import "fmt"

// ValidationError reports a config value that cannot drive the orchestrator.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s=%s: %s", e.Field, e.Value, e.Message)
}

// Validate checks the values the orchestrator depends on.
func (c *Config) Validate() error {
	for _, key := range []string{
		"health_monitoring.check_interval",
		"cost_optimization.check_interval",
	} {
		if d := c.Seconds(key, 0); d <= 0 {
			return ValidationError{Field: key, Value: c.String(key, ""), Message: "interval must be positive"}
		}
	}

	for _, key := range []string{
		"self_healing.cooldown",
		"health_monitoring.probe_timeout",
		"self_healing.action_timeout",
	} {
		if d := c.Seconds(key, 0); d < 0 {
			return ValidationError{Field: key, Value: c.String(key, ""), Message: "must not be negative"}
		}
	}

	for _, key := range []string{
		"health_monitoring.cpu_threshold",
		"health_monitoring.memory_threshold",
		"health_monitoring.disk_threshold",
	} {
		if v := c.Float(key, 0); v <= 0 || v > 100 {
			return ValidationError{Field: key, Value: c.String(key, ""), Message: "threshold must be in (0, 100]"}
		}
	}

	if v := c.Float("cost_optimization.underutilization_threshold", 0); v < 0 || v > 1 {
		return ValidationError{
			Field:   "cost_optimization.underutilization_threshold",
			Value:   c.String("cost_optimization.underutilization_threshold", ""),
			Message: "must be in [0, 1]",
		}
	}

	switch d := c.String("audit.driver", "sqlite"); d {
	case "sqlite", "postgres":
	default:
		return ValidationError{Field: "audit.driver", Value: d, Message: "must be sqlite or postgres"}
	}

	switch f := c.String("logging.format", "console"); f {
	case "console", "json":
	default:
		return ValidationError{Field: "logging.format", Value: f, Message: "must be console or json"}
	}
	return nil
}
