package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports the progress of a monitoring job.
type ProgressReporter interface {
	Start(total int)
	Update(completed, violations int)
	Finish()
	Error(err error)
}

// SimpleProgress renders a single-line progress bar.
type SimpleProgress struct {
	mu         sync.Mutex
	total      int
	completed  int
	violations int
	started    time.Time
	writer     io.Writer
}

// NewProgressReporter creates a progress reporter writing to w, or to
// os.Stderr when w is nil.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{writer: w}
}

// Start sets the number of evaluations in scope.
func (p *SimpleProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.completed = 0
	p.violations = 0
	p.started = time.Now()
	p.render()
}

// Update records completed evaluations and violations found so far.
func (p *SimpleProgress) Update(completed, violations int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if completed == p.completed && violations == p.violations {
		return
	}
	p.completed = completed
	p.violations = violations
	p.render()
}

// Finish renders the final state and ends the line.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.writer)
}

// Error reports an error during progress.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "\n✗ Error: %v\n", err)
}

func (p *SimpleProgress) render() {
	if p.total == 0 {
		return
	}

	percent := float64(p.completed) / float64(p.total) * 100
	barWidth := 40
	filled := min(int(float64(barWidth)*percent/100), barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\rProgress: [%s] %.1f%% (%d/%d) violations: %d elapsed: %s",
		bar, percent, p.completed, p.total, p.violations, time.Since(p.started).Round(time.Second))
}
