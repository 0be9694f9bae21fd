package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
)

// CSVExporter exports violations to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Header returns the CSV column names.
func Header() []string {
	return []string{
		"subject_id", "rule_id", "rule_name", "severity", "violation_type",
		"violated", "confidence", "evaluation_method", "action_required",
		"actual_value", "operator", "threshold",
		"evidence", "reasoning", "recommendation", "missing_data", "tools_used",
		"requires_review", "job_id",
	}
}

// Export writes results to w in CSV format.
func (e *CSVExporter) Export(ctx context.Context, results []*engine.RuleResult, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header()); err != nil {
			return NewExportError("csv", 0, err)
		}
	}

	for i, r := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writer.Write(Row(r)); err != nil {
			return NewExportError("csv", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return NewExportError("csv", len(results), err)
	}
	return nil
}

// Row flattens one result into CSV cells in Header order.
func Row(r *engine.RuleResult) []string {
	violated := ""
	if r.Violated != nil {
		violated = strconv.FormatBool(*r.Violated)
	}
	return []string{
		r.SubjectID,
		r.RuleID,
		r.RuleName,
		string(r.Severity),
		string(r.ViolationType()),
		violated,
		string(r.Confidence),
		string(r.EvaluationMethod),
		r.ActionRequired,
		formatValue(r.ActualValue),
		r.Operator,
		formatValue(r.Threshold),
		strings.Join(r.Evidence, "; "),
		r.Reasoning,
		r.Recommendation,
		strings.Join(r.MissingData, "; "),
		strings.Join(r.ToolsUsed, "; "),
		strconv.FormatBool(r.RequiresReview),
		r.JobID,
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
