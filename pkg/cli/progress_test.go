package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSimpleProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)

	p.Start(4)
	p.Update(2, 1)
	p.Update(2, 1)
	p.Update(4, 1)
	p.Finish()

	out := buf.String()
	for _, want := range []string{"50.0% (2/4) violations: 1", "100.0% (4/4) violations: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if n := strings.Count(out, "(2/4)"); n != 1 {
		t.Errorf("unchanged update rendered %d times, want 1", n)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish() did not end the line")
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)
	p.Start(0)
	p.Update(0, 0)
	p.Finish()
	if strings.Contains(buf.String(), "Progress:") {
		t.Errorf("zero total rendered a bar: %q", buf.String())
	}
}

func TestSimpleProgressError(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)
	p.Start(1)
	p.Error(errors.New("clinical store unreachable"))
	if !strings.Contains(buf.String(), "Error: clinical store unreachable") {
		t.Errorf("output = %q", buf.String())
	}
}
