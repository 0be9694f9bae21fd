package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/virupakshb/TrialMonitor/pkg/cli"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

var rulesFlags struct {
	rulesPath     string
	templatesPath string
	output        string
	activeOnly    bool
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rule definitions",
	Long: `Inspect and validate the protocol rule and template definitions.

Paths default to rules.path and rules.templates_path from the configuration.
When both --rules and --templates are given no configuration file is read.`,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate rule and template files",
	Long: `Load every rule and template and report configuration errors.

Invalid rules are still listed by the API and produce error results when
evaluated; this command fails so they are caught before deployment.

Examples:
  trialmonitor rules validate
  trialmonitor rules validate --rules configs/rules --templates configs/templates.yaml`,
	RunE: runRulesValidate,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded rules",
	Long: `List the loaded rules with their evaluation type, severity, and
validation state.

Examples:
  trialmonitor rules list
  trialmonitor rules list --active --output csv`,
	RunE: runRulesList,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd, rulesListCmd)

	rulesCmd.PersistentFlags().StringVar(&rulesFlags.rulesPath, "rules", "", "rule file or directory (overrides config)")
	rulesCmd.PersistentFlags().StringVar(&rulesFlags.templatesPath, "templates", "", "template definitions file (overrides config)")
	rulesListCmd.Flags().StringVarP(&rulesFlags.output, "output", "o", "text", "output format: text, json, csv")
	rulesListCmd.Flags().BoolVar(&rulesFlags.activeOnly, "active", false, "list active rules only")
}

// loadRegistry resolves the rule paths from flags and configuration.
func loadRegistry() (*rules.Registry, error) {
	rulesPath, templatesPath := rulesFlags.rulesPath, rulesFlags.templatesPath
	if rulesPath == "" || templatesPath == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if rulesPath == "" {
			rulesPath = cfg.Rules.Path
		}
		if templatesPath == "" {
			templatesPath = cfg.Rules.TemplatesPath
		}
	}
	reg, err := rules.Load(rulesPath, templatesPath)
	if err != nil {
		return nil, cli.NewCommandError("rules", err)
	}
	return reg, nil
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	return validateRegistry(cmd.OutOrStdout(), reg)
}

// validateRegistry prints the validation report of reg and returns an error
// when any definition is invalid.
func validateRegistry(w io.Writer, reg *rules.Registry) error {
	errs := reg.ConfigErrors()
	fmt.Fprintf(w, "Loaded %d rules (%d active) and %d templates\n",
		len(reg.Rules()), len(reg.ActiveRules()), len(reg.Templates()))
	if len(errs) == 0 {
		fmt.Fprintln(w, "✓ All rule definitions are valid")
		return nil
	}
	fmt.Fprintf(w, "✗ %d configuration errors:\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "  - %s\n", e.Error())
	}
	return cli.NewCommandError("rules validate", errs)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	if _, err := cli.ParseFormat(rulesFlags.output); err != nil {
		return err
	}
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), rulesFlags.output, newRuleList(reg, rulesFlags.activeOnly))
}

// ruleEntry is one rule of the rules list output.
type ruleEntry struct {
	*rules.Rule
	Valid       bool   `json:"valid"`
	ConfigError string `json:"config_error,omitempty"`
	SourceFile  string `json:"source_file,omitempty"`
}

type ruleList struct {
	Rules  []ruleEntry `json:"rules"`
	Total  int         `json:"total"`
	Active int         `json:"active"`
}

func newRuleList(reg *rules.Registry, activeOnly bool) ruleList {
	all := reg.Rules()
	if activeOnly {
		all = reg.ActiveRules()
	}
	out := ruleList{Rules: make([]ruleEntry, 0, len(all)), Active: len(reg.ActiveRules())}
	for _, r := range all {
		e := ruleEntry{Rule: r, Valid: true, SourceFile: r.Source}
		if cerr := reg.Invalid(r.ID); cerr != nil {
			e.Valid = false
			e.ConfigError = cerr.Error()
		}
		out.Rules = append(out.Rules, e)
	}
	out.Total = len(out.Rules)
	return out
}

func (l ruleList) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tCATEGORY\tTYPE\tSEVERITY\tSTATUS\tVALID\tNAME")
	for _, e := range l.Rules {
		valid := "yes"
		if !e.Valid {
			valid = "no"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Category, e.EvaluationType, e.Severity, e.Status, valid, e.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d rules, %d active\n", l.Total, l.Active)
	return err
}

func (l ruleList) Header() []string {
	return []string{"rule_id", "name", "category", "evaluation_type", "template_id", "severity", "status", "valid", "config_error", "source_file"}
}

func (l ruleList) Rows() [][]string {
	rows := make([][]string, 0, len(l.Rules))
	for _, e := range l.Rules {
		rows = append(rows, []string{
			e.ID, e.Name, string(e.Category), string(e.EvaluationType), e.TemplateID,
			string(e.Severity), string(e.Status), strconv.FormatBool(e.Valid), e.ConfigError, e.SourceFile,
		})
	}
	return rows
}
