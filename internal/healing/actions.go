package healing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/backbone/internal/health"
)

// RestartService simulates restarting a service. Callers that manage real
// services inject their own Action.
func RestartService(service string) Action {
	return ActionFunc(func(_ context.Context, _ health.Report) (bool, error) {
		log.Info().Str("service", service).Msg("Simulating restart of service")
		return true, nil
	})
}

// ScaleResources simulates scaling capacity by factor.
func ScaleResources(factor float64) Action {
	return ActionFunc(func(_ context.Context, _ health.Report) (bool, error) {
		if factor <= 0 {
			return false, fmt.Errorf("invalid scale factor %v", factor)
		}
		log.Info().Float64("factor", factor).Msg("Simulating resource scaling")
		return true, nil
	})
}

// CleanCache simulates a cache cleanup.
func CleanCache() Action {
	return ActionFunc(func(_ context.Context, _ health.Report) (bool, error) {
		log.Info().Msg("Simulating cache cleanup")
		return true, nil
	})
}

// CommandRunner runs a shell command somewhere and returns stdout/stderr.
type CommandRunner interface {
	RunCommand(ctx context.Context, command string) (string, string, error)
}

// RemoteCommand runs command through runner; it succeeds when the command
// exits cleanly.
func RemoteCommand(runner CommandRunner, command string) Action {
	return ActionFunc(func(ctx context.Context, _ health.Report) (bool, error) {
		if runner == nil {
			return false, fmt.Errorf("remote command %q: no runner", command)
		}
		stdout, _, err := runner.RunCommand(ctx, command)
		if err != nil {
			return false, fmt.Errorf("remote command %q: %w", command, err)
		}
		log.Info().Str("command", command).Str("output", strings.TrimSpace(stdout)).Msg("Remote healing command finished")
		return true, nil
	})
}
