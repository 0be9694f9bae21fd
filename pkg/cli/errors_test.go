package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestCommandError(t *testing.T) {
	cause := errors.New("ledger locked")
	err := NewCommandError("evaluate", cause)
	if err.Error() != "command evaluate failed: ledger locked" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("CommandError does not unwrap to its cause")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain error", errors.New("boom"), ExitError},
		{"violations", ErrViolationsFound, ExitViolations},
		{"wrapped violations", NewCommandError("evaluate", fmt.Errorf("3 found: %w", ErrViolationsFound)), ExitViolations},
		{"config error", NewConfigError("output", "bad"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
