package clinical

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Tool names exposed to the reasoning service.
const (
	ToolCheckMedicalHistory = "check_medical_history"
	ToolCheckConMeds        = "check_conmeds"
	ToolCheckLabThreshold   = "check_lab_threshold"
	ToolGetECGResults       = "get_ecg_results"
	ToolGetTumorAssessments = "get_tumor_assessments"
	ToolGetAdverseEvents    = "get_adverse_events"
	ToolGetLabs             = "get_labs"
	ToolGetVisits           = "get_visits"
)

// ToolSpec describes a tool to the reasoning service. InputSchema is a JSON
// Schema object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolResult is the structured output of one tool call.
type ToolResult struct {
	Name string `json:"name"`

	// Content is marshalled to JSON and returned to the reasoning service.
	Content any `json:"content"`

	// Evidence holds citable lines for the returned records.
	Evidence []string `json:"evidence,omitempty"`
}

// UnknownToolError reports a tool name outside the catalogue.
type UnknownToolError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// Toolbox executes the tool catalogue against a Library.
type Toolbox struct {
	lib    Library
	now    func() time.Time
	logger *slog.Logger
}

// NewToolbox creates a toolbox over lib.
func NewToolbox(lib Library) *Toolbox {
	return &Toolbox{
		lib:    lib,
		now:    time.Now,
		logger: slog.Default().With("component", "clinical.tools"),
	}
}

// WithClock sets the clock used for relative time frames.
func (tb *Toolbox) WithClock(now func() time.Time) *Toolbox {
	tb.now = now
	return tb
}

// Library returns the underlying library.
func (tb *Toolbox) Library() Library {
	return tb.lib
}

var subjectProp = map[string]any{"type": "string", "description": "Subject ID (e.g. 101-001)"}

var catalogue = []ToolSpec{
	{
		Name:        ToolCheckMedicalHistory,
		Description: "Search the subject's medical history for conditions matching any of the search terms.",
		InputSchema: object(map[string]any{
			"subject_id":    subjectProp,
			"search_terms":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Condition names or keywords"},
			"status_filter": map[string]any{"type": "string", "enum": []string{StatusOngoing, StatusResolved, StatusAny}},
		}, "subject_id", "search_terms"),
	},
	{
		Name:        ToolCheckConMeds,
		Description: "Find the subject's ongoing concomitant medications by name or drug class.",
		InputSchema: object(map[string]any{
			"subject_id":         subjectProp,
			"medication_names":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"medication_classes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}, "subject_id"),
	},
	{
		Name:        ToolCheckLabThreshold,
		Description: "Compare one lab or ECG value against a threshold at a timepoint.",
		InputSchema: object(map[string]any{
			"subject_id": subjectProp,
			"test_name":  map[string]any{"type": "string"},
			"operator":   map[string]any{"type": "string", "enum": []string{">=", ">", "<=", "<", "=="}},
			"threshold":  map[string]any{"type": "number"},
			"timepoint":  map[string]any{"type": "string", "enum": []string{"latest", "screening", "baseline"}},
		}, "subject_id", "test_name", "operator", "threshold"),
	},
	{
		Name:        ToolGetECGResults,
		Description: "Return all ECG results for the subject.",
		InputSchema: object(map[string]any{"subject_id": subjectProp}, "subject_id"),
	},
	{
		Name:        ToolGetTumorAssessments,
		Description: "Return all tumor assessments for the subject.",
		InputSchema: object(map[string]any{"subject_id": subjectProp}, "subject_id"),
	},
	{
		Name:        ToolGetAdverseEvents,
		Description: "Return the subject's adverse events, optionally filtered by seriousness or ongoing status.",
		InputSchema: object(map[string]any{
			"subject_id":  subjectProp,
			"seriousness": map[string]any{"type": "string", "enum": []string{"Yes", "No"}},
			"ongoing":     map[string]any{"type": "boolean"},
		}, "subject_id"),
	},
	{
		Name:        ToolGetLabs,
		Description: "Return the subject's laboratory results, optionally for specific tests and a recent time frame.",
		InputSchema: object(map[string]any{
			"subject_id":     subjectProp,
			"test_names":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"timeframe_days": map[string]any{"type": "integer"},
		}, "subject_id"),
	},
	{
		Name:        ToolGetVisits,
		Description: "Return the subject's visits with protocol window compliance.",
		InputSchema: object(map[string]any{"subject_id": subjectProp}, "subject_id"),
	},
}

func object(props map[string]any, required ...string) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// Catalogue returns the names of every tool in catalogue order.
func Catalogue() []string {
	names := make([]string, len(catalogue))
	for i, spec := range catalogue {
		names[i] = spec.Name
	}
	return names
}

// Definitions returns the specs of the named tools in catalogue order.
// Unknown names are ignored.
func (tb *Toolbox) Definitions(names []string) []ToolSpec {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []ToolSpec
	for _, spec := range catalogue {
		if want[spec.Name] {
			out = append(out, spec)
		}
	}
	return out
}

type toolArgs struct {
	SubjectID         string   `json:"subject_id"`
	SearchTerms       []string `json:"search_terms"`
	StatusFilter      string   `json:"status_filter"`
	MedicationNames   []string `json:"medication_names"`
	MedicationClasses []string `json:"medication_classes"`
	TestName          string   `json:"test_name"`
	Operator          string   `json:"operator"`
	Threshold         *float64 `json:"threshold"`
	Timepoint         string   `json:"timepoint"`
	Seriousness       string   `json:"seriousness"`
	Ongoing           *bool    `json:"ongoing"`
	TestNames         []string `json:"test_names"`
	TimeframeDays     int      `json:"timeframe_days"`
}

// Execute runs a tool for the subject under evaluation. The subject_id
// argument is always replaced with subjectID so a tool call can never read
// another subject's records.
func (tb *Toolbox) Execute(ctx context.Context, subjectID, name string, input json.RawMessage) (*ToolResult, error) {
	var args toolArgs
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}
	if args.SubjectID != "" && args.SubjectID != subjectID {
		tb.logger.Warn("tool call named a different subject, using evaluated subject",
			"tool", name, "requested", args.SubjectID)
	}
	args.SubjectID = subjectID

	switch name {
	case ToolCheckMedicalHistory:
		return tb.checkMedicalHistory(ctx, args)
	case ToolCheckConMeds:
		return tb.checkConMeds(ctx, args)
	case ToolCheckLabThreshold:
		return tb.checkLabThreshold(ctx, args)
	case ToolGetECGResults:
		return tb.getECGResults(ctx, args)
	case ToolGetTumorAssessments:
		return tb.getTumorAssessments(ctx, args)
	case ToolGetAdverseEvents:
		return tb.getAdverseEvents(ctx, args)
	case ToolGetLabs:
		return tb.getLabs(ctx, args)
	case ToolGetVisits:
		return tb.getVisits(ctx, args)
	default:
		return nil, &UnknownToolError{Name: name}
	}
}

func (tb *Toolbox) checkMedicalHistory(ctx context.Context, args toolArgs) (*ToolResult, error) {
	status := args.StatusFilter
	if status == "" {
		status = StatusAny
	}
	conditions, err := tb.lib.MedicalHistory(ctx, args.SubjectID, HistoryFilter{Terms: args.SearchTerms, Status: status})
	if err != nil {
		return nil, err
	}
	evidence := evidenceOf(conditions)
	return &ToolResult{
		Name: ToolCheckMedicalHistory,
		Content: map[string]any{
			"found":        len(conditions) > 0,
			"conditions":   nonNil(conditions),
			"search_terms": args.SearchTerms,
			"evidence":     evidence,
		},
		Evidence: evidence,
	}, nil
}

func (tb *Toolbox) checkConMeds(ctx context.Context, args toolArgs) (*ToolResult, error) {
	meds, err := tb.lib.ConMeds(ctx, args.SubjectID, ConMedFilter{
		Names:       args.MedicationNames,
		Classes:     args.MedicationClasses,
		OngoingOnly: true,
	})
	if err != nil {
		return nil, err
	}
	evidence := evidenceOf(meds)
	return &ToolResult{
		Name: ToolCheckConMeds,
		Content: map[string]any{
			"found":       len(meds) > 0,
			"medications": nonNil(meds),
			"evidence":    evidence,
		},
		Evidence: evidence,
	}, nil
}

func (tb *Toolbox) checkLabThreshold(ctx context.Context, args toolArgs) (*ToolResult, error) {
	if args.TestName == "" || args.Threshold == nil {
		return nil, fmt.Errorf("check_lab_threshold requires test_name and threshold")
	}
	earliest := args.Timepoint == "screening" || args.Timepoint == "baseline"

	var (
		value    *float64
		date     string
		unit     string
		detail   string
		evidence string
	)
	if IsECGParameter(args.TestName) {
		ecgs, err := tb.lib.ECGs(ctx, args.SubjectID)
		if err != nil {
			return nil, err
		}
		if e, ok := pickECG(ecgs, args.TestName, earliest); ok {
			value, _ = e.Measurement(args.TestName)
			date, unit, detail = e.ECGDate, "msec", e.Interpretation
		}
	} else {
		labs, err := tb.lib.Labs(ctx, args.SubjectID, LabFilter{TestNames: []string{args.TestName}})
		if err != nil {
			return nil, err
		}
		if l, ok := pickLab(labs, earliest); ok {
			value, date, unit = l.Value, l.CollectionDate, l.Unit
		}
	}

	if value == nil {
		return &ToolResult{
			Name: ToolCheckLabThreshold,
			Content: map[string]any{
				"meets_criterion": nil,
				"actual_value":    nil,
				"missing_data":    true,
				"evidence":        fmt.Sprintf("No %s result found", args.TestName),
			},
		}, nil
	}

	meets, err := Compare(args.Operator, *value, *args.Threshold)
	if err != nil {
		return nil, err
	}
	evidence = fmt.Sprintf("%s: %s %s %s %s (date: %s", args.TestName, FormatNumber(*value), unit,
		args.Operator, FormatNumber(*args.Threshold), date)
	if detail != "" {
		evidence += ", " + detail
	}
	evidence += ")"

	return &ToolResult{
		Name: ToolCheckLabThreshold,
		Content: map[string]any{
			"meets_criterion": meets,
			"actual_value":    *value,
			"threshold":       *args.Threshold,
			"operator":        args.Operator,
			"unit":            unit,
			"test_date":       date,
			"missing_data":    false,
			"evidence":        evidence,
		},
		Evidence: []string{evidence},
	}, nil
}

func pickECG(ecgs []ECGResult, testName string, earliest bool) (ECGResult, bool) {
	var withValue []ECGResult
	for _, e := range ecgs {
		if v, _ := e.Measurement(testName); v != nil {
			withValue = append(withValue, e)
		}
	}
	if len(withValue) == 0 {
		return ECGResult{}, false
	}
	if earliest {
		return withValue[0], true
	}
	return withValue[len(withValue)-1], true
}

func pickLab(labs []LabResult, earliest bool) (LabResult, bool) {
	var withValue []LabResult
	for _, l := range labs {
		if l.Value != nil {
			withValue = append(withValue, l)
		}
	}
	if len(withValue) == 0 {
		return LabResult{}, false
	}
	if earliest {
		return withValue[0], true
	}
	return withValue[len(withValue)-1], true
}

func (tb *Toolbox) getECGResults(ctx context.Context, args toolArgs) (*ToolResult, error) {
	ecgs, err := tb.lib.ECGs(ctx, args.SubjectID)
	if err != nil {
		return nil, err
	}
	evidence := evidenceOf(ecgs)
	return &ToolResult{
		Name:     ToolGetECGResults,
		Content:  map[string]any{"ecg_results": nonNil(ecgs), "count": len(ecgs), "evidence": evidence},
		Evidence: evidence,
	}, nil
}

func (tb *Toolbox) getTumorAssessments(ctx context.Context, args toolArgs) (*ToolResult, error) {
	assessments, err := tb.lib.TumorAssessments(ctx, args.SubjectID)
	if err != nil {
		return nil, err
	}
	evidence := evidenceOf(assessments)
	return &ToolResult{
		Name:     ToolGetTumorAssessments,
		Content:  map[string]any{"tumor_assessments": nonNil(assessments), "count": len(assessments), "evidence": evidence},
		Evidence: evidence,
	}, nil
}

func (tb *Toolbox) getAdverseEvents(ctx context.Context, args toolArgs) (*ToolResult, error) {
	events, err := tb.lib.AdverseEvents(ctx, args.SubjectID, AEFilter{Seriousness: args.Seriousness, Ongoing: args.Ongoing})
	if err != nil {
		return nil, err
	}
	evidence := evidenceOf(events)
	return &ToolResult{
		Name:     ToolGetAdverseEvents,
		Content:  map[string]any{"adverse_events": nonNil(events), "count": len(events), "evidence": evidence},
		Evidence: evidence,
	}, nil
}

func (tb *Toolbox) getLabs(ctx context.Context, args toolArgs) (*ToolResult, error) {
	filter := LabFilter{TestNames: args.TestNames}
	if args.TimeframeDays > 0 {
		filter.Since = tb.now().AddDate(0, 0, -args.TimeframeDays).Format(time.DateOnly)
	}
	labs, err := tb.lib.Labs(ctx, args.SubjectID, filter)
	if err != nil {
		return nil, err
	}
	evidence := evidenceOf(labs)
	return &ToolResult{
		Name:     ToolGetLabs,
		Content:  map[string]any{"labs": nonNil(labs), "count": len(labs), "evidence": evidence},
		Evidence: evidence,
	}, nil
}

func (tb *Toolbox) getVisits(ctx context.Context, args toolArgs) (*ToolResult, error) {
	visits, err := tb.lib.Visits(ctx, args.SubjectID)
	if err != nil {
		return nil, err
	}
	check := CheckVisitWindows(visits)
	evidence := evidenceOf(check.Deviations)
	return &ToolResult{
		Name: ToolGetVisits,
		Content: map[string]any{
			"visits":       nonNil(visits),
			"window_check": check,
			"evidence":     evidence,
		},
		Evidence: evidence,
	}, nil
}

type evidencer interface {
	Evidence() string
}

func evidenceOf[T evidencer](records []T) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Evidence())
	}
	return out
}

func nonNil[T any](records []T) []T {
	if records == nil {
		return []T{}
	}
	return records
}
