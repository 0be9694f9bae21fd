package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

type sampleResult struct {
	Subject string `json:"subject_id"`
	Count   int    `json:"violations"`
}

func (s sampleResult) WriteText(w io.Writer) error {
	_, err := io.WriteString(w, "subject "+s.Subject+"\n")
	return err
}

func (s sampleResult) Header() []string { return []string{"subject_id", "violations"} }

func (s sampleResult) Rows() [][]string { return [][]string{{s.Subject, "2"}} }

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"junit", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			var ce *ConfigError
			if tt.wantErr && !errors.As(err, &ce) {
				t.Errorf("error %T is not a ConfigError", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatters(t *testing.T) {
	data := sampleResult{Subject: "101-001", Count: 2}

	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "subject 101-001\n"},
		{FormatCSV, "subject_id,violations\n101-001,2\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewFormatter(tt.format).FormatTo(&buf, data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}

	var buf bytes.Buffer
	if err := NewFormatter(FormatJSON).FormatTo(&buf, data); err != nil {
		t.Fatalf("JSON FormatTo() error = %v", err)
	}
	var decoded sampleResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded != data {
		t.Errorf("JSON round trip = %+v, %v", decoded, err)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("JSON output is not indented")
	}
}

func TestTextFormatterFallback(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextFormatter{}).FormatTo(&buf, "plain"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "plain\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestCSVFormatterRejectsNonTabular(t *testing.T) {
	err := (&CSVFormatter{}).FormatTo(io.Discard, map[string]int{"a": 1})
	if err == nil {
		t.Error("expected error for non-tabular data")
	}
}
