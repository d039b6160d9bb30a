package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/backbone/internal/config"
)

var (
	version   = "1.0.0"
	commit    = ""
	buildDate = ""
)

// app carries state shared by the subcommands once flags are parsed.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "backbone",
		Short: "Backbone: health monitoring, self-healing and cost optimization",
		Long:  "Backbone periodically checks system health, runs cooldown-gated healing rules when it degrades, and recommends or applies cost optimizations for a fleet of priced resources.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if st, _ := cmd.Flags().GetBool("status"); st {
				return a.printStatus(cmd, false)
			}
			return a.run(cmd.Context())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("log", "l", "", "Set log level. Available: trace, debug, info, warn, error, fatal (default from config)")
	cmd.PersistentFlags().StringP("config", "c", "", "config file (default $XDG_CONFIG_HOME/backbone/config.yaml)")
	cmd.Flags().Bool("status", false, "print one status snapshot and exit")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		cfgPath, _ := c.Flags().GetString("config")
		a.cfg = config.Load(cfgPath)

		levelStr, _ := c.Flags().GetString("log")
		if levelStr == "" {
			levelStr = a.cfg.String("logging.level", "info")
		}
		setupLogger(a.cfg.String("logging.format", "console"), parseLevel(levelStr))
		return nil
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newRecommendCmd(a))
	cmd.AddCommand(newAuditCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "backbone %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal", "critical":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func setupLogger(format string, level zerolog.Level) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	setupLogger("console", zerolog.InfoLevel)
	root := newRootCmd()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
