package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

const systemPrompt = `You are a clinical trial protocol compliance reviewer. You evaluate one
protocol rule for one subject at a time using the data tools provided.

Work from recorded data only. Call tools to retrieve what you need, quote
the returned records verbatim as evidence, and never invent values. When data
needed for a decision is unavailable, say so in missing_data and lower your
confidence. When you have enough information, reply with a single JSON object
and nothing else.`

// buildSystemPrompt returns the system prompt for a rule evaluation.
func buildSystemPrompt(protocol string) string {
	if protocol == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\nStudy protocol: " + protocol
}

// buildUserPrompt renders the opening message for a rule evaluation.
func buildUserPrompt(protocol string, rule *rules.Rule, tmpl *rules.Template, subject *clinical.Subject, phase rules.Phase) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Protocol: %s\n", protocol)
	fmt.Fprintf(&b, "Criterion: %s - %s\n", rule.ID, rule.Name)
	fmt.Fprintf(&b, "Description: %s\n", rule.Description)
	if rule.ProtocolReference != "" {
		fmt.Fprintf(&b, "Protocol section: %s\n", rule.ProtocolReference)
	}
	fmt.Fprintf(&b, "Study phase: %s\n", phase)

	if rule.DomainKnowledge != "" {
		fmt.Fprintf(&b, "\nDomain knowledge:\n%s\n", strings.TrimSpace(rule.DomainKnowledge))
	}
	if rule.Parameters.EvaluationCriteria != "" {
		fmt.Fprintf(&b, "\nEvaluation criteria:\n%s\n", strings.TrimSpace(rule.Parameters.EvaluationCriteria))
	}
	if terms := rule.Parameters.SearchTerms; len(terms) > 0 {
		b.WriteString("\nSearch terms to consider:\n")
		keys := make([]string, 0, len(terms))
		for k := range terms {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, strings.Join(terms[k], ", "))
		}
	}

	b.WriteString("\nSubject:\n")
	fmt.Fprintf(&b, "- subject_id: %s\n", subject.ID)
	if age, ok := subject.Field("age"); ok {
		fmt.Fprintf(&b, "- age: %s\n", formatValue(age))
	}
	if sex, ok := subject.Field("sex"); ok {
		fmt.Fprintf(&b, "- sex: %v\n", sex)
	}
	if subject.StudyStatus != "" {
		fmt.Fprintf(&b, "- study_status: %s\n", subject.StudyStatus)
	}
	if subject.RandomizationDate != "" {
		fmt.Fprintf(&b, "- randomization_date: %s\n", subject.RandomizationDate)
	}

	if tmpl.Instructions != "" {
		fmt.Fprintf(&b, "\nTask:\n%s\n", strings.TrimSpace(tmpl.Instructions))
	}

	b.WriteString("\n")
	b.WriteString(outputInstructions(tmpl))
	return b.String()
}

// outputInstructions describes the required JSON object.
func outputInstructions(tmpl *rules.Template) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reply with one JSON object using only these fields (verdict field: %q, true means the rule is violated):\n", tmpl.Verdict())
	for _, f := range tmpl.OutputFields {
		line := fmt.Sprintf("- %s (%s", f.Name, f.Type)
		if f.Required {
			line += ", required"
		}
		if f.Nullable {
			line += ", may be null"
		}
		line += ")"
		if len(f.Enum) > 0 {
			line += " one of: " + strings.Join(f.Enum, ", ")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// correctivePrompt asks for a corrected final answer after a contract
// failure.
func correctivePrompt(tmpl *rules.Template, problems []string) string {
	var b strings.Builder
	b.WriteString("Your previous reply could not be accepted:\n")
	for _, p := range problems {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	b.WriteString("\nDo not call any more tools. ")
	b.WriteString(outputInstructions(tmpl))
	return b.String()
}
