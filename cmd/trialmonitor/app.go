package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/jobs"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/notify"
	"github.com/virupakshb/TrialMonitor/pkg/providerfactory"
	"github.com/virupakshb/TrialMonitor/pkg/providers"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/metrics"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

// app holds the components shared by the commands. Fields a command does not
// ask for stay nil.
type app struct {
	cfg *config.Config

	store    *clinical.SQLStore
	ledger   *ledger.Ledger
	source   *rules.Source
	provider providers.Provider
	engine   *engine.Engine
	manager  *jobs.Manager

	collector *metrics.Collector
	notifier  *notify.Notifier

	closers []func() error
}

// openLedger opens the configured ledger backend and rebuilds its index.
func openLedger(ctx context.Context, cfg *config.LedgerConfig) (*ledger.Ledger, error) {
	var store ledger.Storage
	switch cfg.Backend {
	case "sqlite":
		s, err := ledger.NewSQLiteStorage(&ledger.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite ledger: %w", err)
		}
		store = s
	case "memory":
		store = ledger.NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Backend)
	}

	l, err := ledger.Open(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return l, nil
}

// newLedgerApp opens only the ledger, for read-side commands.
func newLedgerApp(ctx context.Context, cfg *config.Config) (*app, error) {
	l, err := openLedger(ctx, &cfg.Ledger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, ledger: l}
	a.closers = append(a.closers, l.Close)
	return a, nil
}

// appOptions selects the optional parts of a full app.
type appOptions struct {
	// metrics registers the Prometheus collector as engine observer and job
	// listener.
	metrics bool

	// notify connects the NATS notifier when enabled in the configuration.
	notify bool
}

// newApp wires the evaluation stack: clinical store, rule source, reasoning
// provider, engine, ledger, and job manager.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.store, err = clinical.OpenSQL(clinical.SQLConfig{
		Driver:       cfg.Clinical.Driver,
		DSN:          cfg.Clinical.DSN,
		MaxOpenConns: cfg.Clinical.MaxOpenConns,
	})
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.store.Close)
	slog.Info("clinical store opened", "driver", cfg.Clinical.Driver)

	a.source, err = rules.NewSource(cfg.Rules.Path, cfg.Rules.TemplatesPath)
	if err != nil {
		return a, fmt.Errorf("failed to load rules: %w", err)
	}
	reg := a.source.Snapshot()
	slog.Info("rules loaded",
		"rules", len(reg.Rules()),
		"active", len(reg.ActiveRules()),
		"invalid", len(reg.ConfigErrors()),
	)

	a.provider, err = providerfactory.FromConfig(cfg.Reasoning)
	if err != nil {
		var cfgErr *providers.ConfigError
		if !errors.As(err, &cfgErr) {
			return a, err
		}
		slog.Warn("reasoning service unavailable, LLM rules will report errors", "error", err)
		a.provider, err = nil, nil
	} else {
		a.closers = append(a.closers, a.provider.Close)
	}

	var observers []engine.Observer
	var listeners []jobs.Listener
	if opts.metrics && cfg.Telemetry.Metrics.Enabled {
		a.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
		observers = append(observers, a.collector)
		listeners = append(listeners, a.collector)
	}
	if opts.notify && cfg.Notify.Enabled {
		a.notifier, err = notify.Connect(cfg.Notify)
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, a.notifier.Close)
		listeners = append(listeners, a.notifier)
	}

	a.engine = engine.New(a.store, a.provider, engine.Config{
		RuleConcurrency: cfg.Engine.RuleConcurrency,
		LLM: engine.LLMConfig{
			Model:        cfg.Reasoning.Model,
			MaxTokens:    cfg.Reasoning.MaxTokens,
			MaxRounds:    cfg.Engine.MaxRounds,
			MaxToolCalls: cfg.Engine.MaxToolCalls,
			RoundTimeout: cfg.Engine.RoundTimeout,
			Protocol:     cfg.Engine.Protocol,
		},
	}, observers...)

	a.ledger, err = openLedger(ctx, &cfg.Ledger)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.ledger.Close)

	a.manager = jobs.NewManager(a.engine, a.source, a.ledger,
		usage.NewSession(usage.NewPricing(cfg.Reasoning)),
		jobs.Config{
			SubjectConcurrency: cfg.Jobs.SubjectConcurrency,
			MaxConcurrent:      cfg.Reasoning.MaxConcurrent,
		},
		listeners...,
	)
	if a.collector != nil {
		a.collector.TrackInFlight(a.manager.InFlight)
	}
	return a, nil
}

// close stops the job manager and releases resources in reverse order.
func (a *app) close(ctx context.Context) {
	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			slog.Warn("job manager shutdown incomplete", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
