package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/3cpo-dev/backbone/internal/core"
	"github.com/3cpo-dev/backbone/internal/cost"
	"github.com/3cpo-dev/backbone/internal/health"
	"github.com/3cpo-dev/backbone/internal/store"
	"github.com/3cpo-dev/backbone/internal/telemetry"
)

// orchestrator builds the engine from the loaded config, opening the audit
// journal when enabled.
func (a *app) orchestrator(metrics *telemetry.Metrics) (*core.Orchestrator, error) {
	var opts []core.Option
	if metrics != nil {
		opts = append(opts, core.WithMetrics(metrics))
	}
	if a.cfg.Bool("audit.enabled", false) {
		j, err := a.openJournal()
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", j.Driver()).Msg("Audit journal enabled")
		opts = append(opts, core.WithJournal(j))
	}
	return core.New(a.cfg, opts...)
}

func (a *app) openJournal() (*store.SQLStore, error) {
	j, err := store.Open(a.cfg.String("audit.driver", store.DriverSQLite), a.cfg.String("audit.dsn", "backbone.db"))
	if err != nil {
		return nil, fmt.Errorf("open audit journal: %w", err)
	}
	return j, nil
}

func (a *app) run(ctx context.Context) error {
	metrics := telemetry.NewMetrics()
	o, err := a.orchestrator(metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := o.Close(); err != nil {
			log.Error().Err(err).Msg("Close failed")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.Start(gctx) })

	if a.cfg.Bool("monitoring.enabled", false) {
		srv := telemetry.NewMonitoringServer(a.cfg.String("monitoring.listen_addr", ":8090"), o, metrics)
		if a.cfg.Bool("monitoring.pprof", false) {
			srv.EnableProfiling()
		}
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	return g.Wait()
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring, healing and cost loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a status snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return a.printStatus(cmd, asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "print the snapshot as JSON")
	return cmd
}

func (a *app) printStatus(cmd *cobra.Command, asJSON bool) error {
	o, err := a.orchestrator(nil)
	if err != nil {
		return err
	}
	defer o.Close()

	st := o.Status(cmd.Context())
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	writeStatus(out, st)
	return nil
}

func writeStatus(out io.Writer, st core.Status) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	paint := func(s health.Status) string {
		switch s {
		case health.StatusHealthy:
			return green(string(s))
		case health.StatusError:
			return red(string(s))
		default:
			return yellow(string(s))
		}
	}

	fmt.Fprintf(out, "%s\n\n", cyan("=== Backbone Status ==="))
	overall := paint(st.Health.OverallStatus)
	if st.Health.OverallStatus == health.StatusDegraded {
		overall = red(string(st.Health.OverallStatus))
	}
	fmt.Fprintf(out, "Health: %s\n", overall)
	for _, c := range st.Health.Checks {
		detail := ""
		if c.Error != "" {
			detail = c.Error
		} else if msg, ok := c.Details["message"].(string); ok {
			detail = msg
		}
		fmt.Fprintf(out, "  %-10s %s %s\n", c.Name, paint(c.Status), gray(detail))
	}

	fmt.Fprintf(out, "\nMonthly Cost: $%.2f\n", st.Costs.Monthly)
	fmt.Fprintf(out, "Total Savings: $%.2f\n", st.Savings.TotalSavings)
	fmt.Fprintf(out, "Resources: %d\n", st.Costs.ResourcesCount)

	if len(st.HealingHistory) > 0 {
		fmt.Fprintf(out, "\nRecent healing:\n")
		for _, h := range st.HealingHistory {
			outcome := green("ok")
			if !h.Success {
				outcome = red("failed: " + h.Error)
			}
			fmt.Fprintf(out, "  %s %s %s\n", gray(h.Timestamp.Format(time.RFC3339)), h.Rule, outcome)
		}
	}
}

func newRecommendCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Print current cost optimization recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			o, err := a.orchestrator(nil)
			if err != nil {
				return err
			}
			defer o.Close()

			recs := o.Recommend(cmd.Context())
			out := cmd.OutOrStdout()
			switch format {
			case "csv":
				return cost.WriteCSV(out, recs, o.Costs())
			case "text", "":
				writeRecommendations(out, recs)
				return nil
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().String("format", "text", "output format: text or csv")
	return cmd
}

func writeRecommendations(out io.Writer, recs []cost.Recommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No cost optimization opportunities.")
		return
	}
	var total float64
	for _, rec := range recs {
		fmt.Fprintf(out, "%-9s %-20s %-9s $%9.2f/month  %s\n",
			rec.Type, rec.ResourceID, rec.ResourceType, rec.PotentialSavingsMonthly, rec.Reason)
		total += rec.PotentialSavingsMonthly
	}
	fmt.Fprintf(out, "\n%d recommendations, potential savings $%.2f/month\n", len(recs), total)
}

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print recent events from the audit journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			j, err := a.openJournal()
			if err != nil {
				return err
			}
			defer j.Close()
			return writeAudit(cmd.Context(), cmd.OutOrStdout(), j, limit)
		},
	}
	cmd.Flags().Int("limit", 20, "events to show per kind")
	return cmd
}

func writeAudit(ctx context.Context, out io.Writer, j *store.SQLStore, limit int) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	outcome := func(ok bool, msg string) string {
		if ok {
			return green("ok")
		}
		return red("failed: " + msg)
	}

	reports, err := j.ReportCount(ctx)
	if err != nil {
		return err
	}
	heals, err := j.HealingEvents(ctx, limit)
	if err != nil {
		return err
	}
	opts, err := j.OptimizationEvents(ctx, limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Health reports: %d\n", reports)
	fmt.Fprintf(out, "\nHealing events:\n")
	for _, h := range heals {
		fmt.Fprintf(out, "  %s %s %s\n", gray(h.Timestamp.Format(time.RFC3339)), h.Rule, outcome(h.Success, h.Error))
	}
	fmt.Fprintf(out, "\nOptimizations:\n")
	for _, r := range opts {
		fmt.Fprintf(out, "  %s %-9s %-20s $%.2f %s\n", gray(r.Timestamp.Format(time.RFC3339)),
			r.OptimizationType, r.ResourceID, r.Savings, outcome(r.Success, r.Error))
	}
	return nil
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or save the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := yaml.Marshal(a.cfg.All())
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "save <path>",
		Short: "Write the effective configuration to path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Save(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", args[0])
			return nil
		},
	})
	return cmd
}
