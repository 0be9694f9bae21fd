package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/virupakshb/TrialMonitor/pkg/cli"
	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/logging"
)

const defaultEnvFile = ".env"

var (
	// Global flags
	cfgFile string
	envFile string
	verbose bool

	// logLevelOverride is set by commands with their own --log-level flag.
	logLevelOverride string
)

var rootCmd = &cobra.Command{
	Use:   "trialmonitor",
	Short: "TrialMonitor - protocol compliance monitoring for clinical trials",
	Long: `TrialMonitor checks clinical-trial subject data against protocol rules.

Rules are evaluated either deterministically or by a reasoning service that
gathers evidence through read-only clinical data tools. Every evaluation run
is recorded in an append-only ledger from which current violations are
derived.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, cli.ErrViolationsFound) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "configs/trialmonitor.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}

// loadConfig reads the env file, the configuration, and sets up logging.
// Commands call it first.
func loadConfig() (*config.Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, cli.NewConfigError("env-file", err.Error())
	}

	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("config", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	logCfg := logging.Config{
		Level:          cfg.Telemetry.Logging.Level,
		Format:         cfg.Telemetry.Logging.Format,
		AddSource:      cfg.Telemetry.Logging.AddSource,
		RedactSubjects: cfg.Telemetry.Logging.RedactSubjects,
		Writer:         os.Stderr,
	}
	if logLevelOverride != "" {
		logCfg.Level = logLevelOverride
	}
	if verbose {
		logCfg.Level = "debug"
	}
	if _, err := logging.Setup(logCfg); err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return cfg, nil
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing default file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == defaultEnvFile {
		return nil
	}
	return err
}
