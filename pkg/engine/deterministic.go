package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

const defaultMinGrade = 3

// DeterministicEvaluator runs threshold, boolean, adverse-event, and visit
// window checks directly against the clinical library. The same inputs
// always produce the same verdict.
type DeterministicEvaluator struct {
	lib    clinical.Library
	logger *slog.Logger
}

// NewDeterministicEvaluator creates an evaluator reading from lib.
func NewDeterministicEvaluator(lib clinical.Library) *DeterministicEvaluator {
	return &DeterministicEvaluator{
		lib:    lib,
		logger: slog.Default().With("component", "engine.deterministic"),
	}
}

// Evaluate checks rule against subject. It never returns nil; failures are
// reported as error results and unreadable data as inconclusive results.
func (d *DeterministicEvaluator) Evaluate(ctx context.Context, rule *rules.Rule, tmpl *rules.Template, subject *clinical.Subject, jobID string, phase rules.Phase) *RuleResult {
	start := time.Now()
	r := newResult(rule, subject.ID, jobID, phase)
	r.EvaluationMethod = MethodDeterministic

	var err error
	switch kind := rule.Parameters.CheckKind(); kind {
	case rules.CheckField:
		err = d.fieldCheck(r, rule, subject)
	case rules.CheckThreshold:
		err = d.thresholdCheck(ctx, r, rule, subject.ID, phase)
	case rules.CheckAdverse:
		err = d.adverseEventCheck(ctx, r, rule, subject.ID)
	case rules.CheckBoolean:
		err = d.booleanCheck(r, rule, subject)
	case rules.CheckVisitWindow:
		err = d.visitWindowCheck(ctx, r, subject.ID)
	default:
		err = &RuleConfigError{RuleID: rule.ID, Source: rule.Source, Field: "parameters", Message: "no deterministic check selected"}
	}

	var unavailable *DataUnavailableError
	switch {
	case errors.As(err, &unavailable):
		d.logger.Warn("clinical data unavailable", "rule_id", rule.ID, "subject_id", subject.ID, "source", unavailable.Source, "error", err)
		r.Violated = nil
		r.MissingData = append(r.MissingData, unavailable.Source)
		r.Reasoning = "Could not evaluate: " + err.Error()
	case err != nil:
		return errorResult(rule, subject.ID, jobID, phase, err).finish(start)
	}

	if r.Violated == nil {
		r.Confidence = ConfidenceLow
	} else {
		r.Confidence = ConfidenceHigh
	}
	r.ActualValue = normalizeValue(r.ActualValue)
	r.Threshold = normalizeValue(r.Threshold)
	applyAction(r, rule, phase, rules.ActionScreenFailure)

	if tmpl != nil {
		if err := checkResult(tmpl, r); err != nil {
			return errorResult(rule, subject.ID, jobID, phase, err).finish(start)
		}
	}
	return r.finish(start)
}

// missing marks r inconclusive for lack of data from source.
func missing(r *RuleResult, source, reasoning string) {
	r.Violated = nil
	r.MissingData = append(r.MissingData, source)
	r.Reasoning = reasoning
}

func recommend(r *RuleResult, rule *rules.Rule, detail string) {
	if r.IsViolation() {
		r.Recommendation = fmt.Sprintf("%s %s: %s", rule.ID, rule.Name, detail)
	}
}

func (d *DeterministicEvaluator) fieldCheck(r *RuleResult, rule *rules.Rule, subject *clinical.Subject) error {
	p := rule.Parameters
	value, present := subject.Field(p.FieldName)
	r.Operator = p.Operator
	r.Threshold = p.Threshold

	var met bool
	switch {
	case p.Threshold == nil && (p.Operator == "==" || p.Operator == "!="):
		// A null threshold tests whether the field is recorded at all.
		met = present == (p.Operator == "!=")
	case !present:
		missing(r, clinical.SourceDemographics, fmt.Sprintf("%s is not recorded for subject %s", p.FieldName, subject.ID))
		return nil
	default:
		var err error
		if met, err = clinical.Compare(p.Operator, value, p.Threshold); err != nil {
			return fmt.Errorf("compare %s: %w", p.FieldName, err)
		}
	}

	r.ActualValue = value
	shown := formatValue(value)
	thr := formatValue(p.Threshold)
	if p.Inclusion() {
		r.Violated = boolPtr(!met)
		if met {
			r.Evidence = append(r.Evidence, fmt.Sprintf("%s: %s (required %s %s) -> PASS", p.FieldName, shown, p.Operator, thr))
			r.Reasoning = fmt.Sprintf("%s %s meets the inclusion requirement %s %s", p.FieldName, shown, p.Operator, thr)
		} else {
			r.Evidence = append(r.Evidence, fmt.Sprintf("%s: %s (required %s %s) -> FAIL - criterion not met", p.FieldName, shown, p.Operator, thr))
			r.Reasoning = fmt.Sprintf("%s %s does not meet the inclusion requirement %s %s", p.FieldName, shown, p.Operator, thr)
		}
		recommend(r, rule, fmt.Sprintf("%s %s, required %s %s", p.FieldName, shown, p.Operator, thr))
		return nil
	}

	r.Violated = boolPtr(met)
	r.Evidence = append(r.Evidence, fmt.Sprintf("%s: %s %s %s -> %s", p.FieldName, shown, p.Operator, thr, verdictWord(met)))
	if met {
		r.Reasoning = fmt.Sprintf("%s %s %s %s: exclusion criterion met", p.FieldName, shown, p.Operator, thr)
	} else {
		r.Reasoning = fmt.Sprintf("%s %s does not satisfy %s %s: exclusion criterion not met", p.FieldName, shown, p.Operator, thr)
	}
	recommend(r, rule, fmt.Sprintf("%s %s %s %s", p.FieldName, shown, p.Operator, thr))
	return nil
}

// reading is one measured value a threshold check can select.
type reading struct {
	value float64
	unit  string
	date  string
	note  string
	ecg   bool
}

func (d *DeterministicEvaluator) readings(ctx context.Context, subjectID, testName string) ([]reading, string, error) {
	if clinical.IsECGParameter(testName) {
		ecgs, err := d.lib.ECGs(ctx, subjectID)
		if err != nil {
			return nil, clinical.SourceECG, err
		}
		var out []reading
		for _, e := range ecgs {
			v, _ := e.Measurement(testName)
			if v == nil {
				continue
			}
			out = append(out, reading{value: *v, date: e.ECGDate, note: e.Interpretation, ecg: true})
		}
		return out, clinical.SourceECG, nil
	}

	labs, err := d.lib.Labs(ctx, subjectID, clinical.LabFilter{TestNames: []string{testName}})
	if err != nil {
		return nil, clinical.SourceLabs, err
	}
	var out []reading
	for _, l := range labs {
		if l.Value == nil {
			continue
		}
		out = append(out, reading{value: *l.Value, unit: l.Unit, date: l.CollectionDate})
	}
	return out, clinical.SourceLabs, nil
}

func (d *DeterministicEvaluator) thresholdCheck(ctx context.Context, r *RuleResult, rule *rules.Rule, subjectID string, phase rules.Phase) error {
	p := rule.Parameters
	r.Operator = p.Operator
	r.Threshold = p.Threshold

	values, source, err := d.readings(ctx, subjectID, p.TestName)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		missing(r, source, fmt.Sprintf("No %s values recorded for subject %s", p.TestName, subjectID))
		return nil
	}

	violates := func(v reading) (bool, error) {
		met, err := clinical.Compare(p.Operator, v.value, p.Threshold)
		if err != nil {
			return false, fmt.Errorf("compare %s: %w", p.TestName, err)
		}
		return met != p.Inclusion(), nil
	}

	selection := p.Selection
	if selection == "" {
		selection = rules.SelectLatest
		if phase == rules.PhaseScreening && values[0].ecg {
			selection = rules.SelectEarliest
		}
	}

	if selection == rules.SelectAll {
		var first *reading
		for i := range values {
			v := values[i]
			bad, err := violates(v)
			if err != nil {
				return err
			}
			if bad && first == nil {
				first = &values[i]
			}
			r.Evidence = append(r.Evidence, thresholdEvidence(p, v, bad))
		}
		chosen := values[len(values)-1]
		if first != nil {
			chosen = *first
		}
		r.Violated = boolPtr(first != nil)
		r.ActualValue = chosen.value
		r.Reasoning = fmt.Sprintf("%d %s values checked against %s %s", len(values), p.TestName, p.Operator, formatValue(p.Threshold))
		recommend(r, rule, fmt.Sprintf("%s %s %s %s on %s", p.TestName, clinical.FormatNumber(chosen.value), p.Operator, formatValue(p.Threshold), chosen.date))
		return nil
	}

	chosen := selectReading(values, selection, p.Operator, p.Inclusion())
	bad, err := violates(chosen)
	if err != nil {
		return err
	}
	r.Violated = boolPtr(bad)
	r.ActualValue = chosen.value
	r.Evidence = append(r.Evidence, thresholdEvidence(p, chosen, bad))
	r.Reasoning = fmt.Sprintf("%s %s (%s of %d, %s) checked against %s %s",
		p.TestName, clinical.FormatNumber(chosen.value), selection, len(values), chosen.date, p.Operator, formatValue(p.Threshold))
	recommend(r, rule, fmt.Sprintf("%s %s %s %s on %s", p.TestName, clinical.FormatNumber(chosen.value), p.Operator, formatValue(p.Threshold), chosen.date))
	return nil
}

// selectReading applies a selection policy to values ordered oldest first.
// The worst value is the one furthest into the violating direction: the
// maximum for > and >= exclusions and the minimum for < and <=, inverted for
// inclusion criteria.
func selectReading(values []reading, selection rules.Selection, op string, inclusion bool) reading {
	switch selection {
	case rules.SelectEarliest:
		return values[0]
	case rules.SelectWorst:
		high := op == ">" || op == ">="
		if op != "<" && op != "<=" && !high {
			return values[len(values)-1]
		}
		if inclusion {
			high = !high
		}
		worst := values[0]
		for _, v := range values[1:] {
			if (high && v.value > worst.value) || (!high && v.value < worst.value) {
				worst = v
			}
		}
		return worst
	default:
		return values[len(values)-1]
	}
}

func thresholdEvidence(p rules.Parameters, v reading, violated bool) string {
	thr := formatValue(p.Threshold)
	if v.ecg {
		unit := p.Unit
		if unit == "" {
			unit = "msec"
		}
		note := v.note
		if note == "" {
			note = "no interpretation"
		}
		return fmt.Sprintf("%s: %s %s %s %s %s (ECG date: %s, %s) -> %s",
			p.TestName, clinical.FormatNumber(v.value), unit, p.Operator, thr, unit, v.date, note, verdictWord(violated))
	}
	unit := v.unit
	if unit == "" {
		unit = p.Unit
	}
	outcome := "PASS"
	if violated {
		outcome = "FAIL"
	}
	return strings.Join(strings.Fields(fmt.Sprintf("%s: %s %s %s %s -> %s (collected %s)",
		p.TestName, clinical.FormatNumber(v.value), unit, p.Operator, thr, outcome, v.date)), " ")
}

func (d *DeterministicEvaluator) adverseEventCheck(ctx context.Context, r *RuleResult, rule *rules.Rule, subjectID string) error {
	p := rule.Parameters
	events, err := d.lib.AdverseEvents(ctx, subjectID, clinical.AEFilter{})
	if err != nil {
		return err
	}

	var qualifying []clinical.AdverseEvent
	var what string
	switch p.CheckType {
	case "ae_grade":
		minGrade := p.MinGrade
		if minGrade == 0 {
			minGrade = defaultMinGrade
		}
		maxGrade := 0
		for _, ae := range events {
			maxGrade = max(maxGrade, ae.Grade)
			if ae.Grade >= minGrade {
				qualifying = append(qualifying, ae)
			}
		}
		r.ActualValue = maxGrade
		r.Threshold = minGrade
		r.Operator = ">="
		what = fmt.Sprintf("grade %d or higher", minGrade)
	case "sae_flag":
		seriousness := p.Seriousness
		if seriousness == "" {
			seriousness = "Yes"
		}
		for _, ae := range events {
			if strings.EqualFold(ae.Seriousness, seriousness) {
				qualifying = append(qualifying, ae)
			}
		}
		r.ActualValue = len(qualifying)
		r.Threshold = 0
		r.Operator = ">"
		what = "serious (seriousness=" + seriousness + ")"
	case "ae_ongoing":
		for _, ae := range events {
			if ae.Ongoing && ae.Grade >= p.MinGrade {
				qualifying = append(qualifying, ae)
			}
		}
		r.ActualValue = len(qualifying)
		r.Threshold = 0
		r.Operator = ">"
		what = "ongoing"
	default:
		return fmt.Errorf("unknown adverse event check %q", p.CheckType)
	}

	r.Violated = boolPtr(len(qualifying) > 0)
	if len(qualifying) == 0 {
		r.Evidence = append(r.Evidence, fmt.Sprintf("No %s adverse events among %d reported -> PASS", what, len(events)))
		r.Reasoning = fmt.Sprintf("No %s adverse events reported", what)
		return nil
	}
	for _, ae := range qualifying {
		r.Evidence = append(r.Evidence, ae.Evidence()+" -> VIOLATION")
	}
	r.Reasoning = fmt.Sprintf("%d %s adverse event(s) reported", len(qualifying), what)
	recommend(r, rule, fmt.Sprintf("%d %s adverse event(s), first: %s", len(qualifying), what, qualifying[0].Term))
	return nil
}

func (d *DeterministicEvaluator) booleanCheck(r *RuleResult, rule *rules.Rule, subject *clinical.Subject) error {
	p := rule.Parameters
	expected := p.Expected != nil && *p.Expected
	r.Operator = "=="
	r.Threshold = expected

	raw, ok := subject.Field(p.FieldName)
	if !ok {
		missing(r, clinical.SourceDemographics, fmt.Sprintf("%s is not recorded for subject %s", p.FieldName, subject.ID))
		return nil
	}
	value, err := clinical.ToBool(raw)
	if err != nil {
		missing(r, clinical.SourceDemographics, fmt.Sprintf("%s has an unreadable value: %v", p.FieldName, err))
		return nil
	}

	r.ActualValue = value
	violated := value != expected
	r.Violated = boolPtr(violated)
	r.Evidence = append(r.Evidence, fmt.Sprintf("%s: %t (expected %t) -> %s", p.FieldName, value, expected, verdictWord(violated)))
	r.Reasoning = fmt.Sprintf("%s is %t, expected %t", p.FieldName, value, expected)
	recommend(r, rule, fmt.Sprintf("%s is %t", p.FieldName, value))
	return nil
}

func (d *DeterministicEvaluator) visitWindowCheck(ctx context.Context, r *RuleResult, subjectID string) error {
	visits, err := d.lib.Visits(ctx, subjectID)
	if err != nil {
		return err
	}
	wc := clinical.CheckVisitWindows(visits)
	if len(visits) == 0 || wc.Checked == 0 {
		missing(r, clinical.SourceVisits, fmt.Sprintf("No completed windowed visits recorded for subject %s", subjectID))
		return nil
	}

	r.ActualValue = len(wc.Deviations)
	r.Violated = boolPtr(len(wc.Deviations) > 0)
	if len(wc.Deviations) == 0 {
		r.Evidence = append(r.Evidence, fmt.Sprintf("%d completed visits checked, all within window -> PASS", wc.Checked))
		r.Reasoning = fmt.Sprintf("All %d checked visits were within their protocol window", wc.Checked)
		return nil
	}
	for _, dev := range wc.Deviations {
		r.Evidence = append(r.Evidence, dev.Evidence())
	}
	r.Reasoning = fmt.Sprintf("%d of %d checked visits were outside their protocol window", len(wc.Deviations), wc.Checked)
	r.Recommendation = fmt.Sprintf("%d visit(s) outside window, first: %s", len(wc.Deviations), wc.Deviations[0].Visit.VisitName)
	return nil
}

func verdictWord(violated bool) string {
	if violated {
		return "VIOLATION"
	}
	return "PASS"
}

func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	if f, err := clinical.ToFloat(v); err == nil {
		if _, isString := v.(string); !isString {
			return clinical.FormatNumber(f)
		}
	}
	return fmt.Sprint(v)
}
