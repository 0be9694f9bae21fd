package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
)

// JSONExporter exports violations to JSON format.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes results to w as a JSON array.
func (e *JSONExporter) Export(ctx context.Context, results []*engine.RuleResult, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if results == nil {
		results = []*engine.RuleResult{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(results); err != nil {
		return NewExportError("json", len(results), err)
	}
	return nil
}
