package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/virupakshb/TrialMonitor/pkg/cli"
	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/jobs"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/server"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/health"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/tracing"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	schedule      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TrialMonitor API server",
	Long: `Start the TrialMonitor API server with the specified configuration.

The server accepts evaluation jobs, reports their progress, and answers
violation and usage queries from the run ledger. When jobs.schedule is set,
study-wide sweeps are submitted on that cron schedule.

Examples:
  # Start with default config
  trialmonitor serve

  # Start with custom config
  trialmonitor serve --config /etc/trialmonitor/config.yaml

  # Override listen address
  trialmonitor serve --listen 0.0.0.0:8090

  # Validate config without starting server
  trialmonitor serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveFlags.schedule, "schedule", "", "override the sweep cron schedule")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServe(cmd *cobra.Command, args []string) error {
	logLevelOverride = serveFlags.logLevel
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.schedule != "" {
		cfg.Jobs.Schedule = serveFlags.schedule
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("config", err.Error())
	}

	out := cmd.OutOrStdout()
	if serveFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	fmt.Fprintf(out, "TrialMonitor %s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)

	ctx := cli.SetupSignalHandler()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	a, err := newApp(ctx, cfg, appOptions{metrics: true, notify: true})
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.close(shutdownCtx)
	}()
	fmt.Fprintf(out, "✓ Rules loaded (%d active)\n", len(a.source.Snapshot().ActiveRules()))
	fmt.Fprintf(out, "✓ Ledger opened (%s)\n", cfg.Ledger.Backend)

	if cfg.Rules.Watch {
		if err := startRulesWatcher(ctx, a.source); err != nil {
			slog.Warn("rules watcher not started", "error", err)
		}
	}

	sched := jobs.NewScheduler(a.manager, cfg.Jobs.Schedule, jobs.Request{})
	if err := sched.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer sched.Stop()
	if next := sched.NextRun(); next != nil {
		fmt.Fprintf(out, "✓ Sweep scheduled (next run %s)\n", next.Format(time.RFC3339))
	}

	checker := health.New(0)
	checker.RegisterCheck("clinical_store", health.PingCheck(a.store))
	checker.RegisterCheck("ledger", health.LedgerCheck(a.ledger))
	checker.RegisterCheck("rules", health.RulesCheck(a.source))

	opts := server.Options{
		Manager:     a.manager,
		Health:      checker,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	}
	if a.collector != nil {
		opts.Metrics = a.collector.Handler()
	}
	if tracer.Enabled() {
		opts.Tracer = tracer
	}
	srv := server.New(&cfg.Server, opts)

	fmt.Fprintf(out, "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// startRulesWatcher reloads the rule registry when rule files change.
func startRulesWatcher(ctx context.Context, source *rules.Source) error {
	w, err := rules.NewWatcher(source, 0)
	if err != nil {
		return err
	}
	go func() {
		err := w.Watch(ctx, func(reg *rules.Registry) {
			slog.Info("rules reloaded",
				"active", len(reg.ActiveRules()),
				"invalid", len(reg.ConfigErrors()),
			)
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("rules watcher stopped", "error", err)
		}
	}()
	return nil
}
