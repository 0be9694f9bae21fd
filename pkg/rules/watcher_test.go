package rules

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(120 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times, want 1", got)
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })

	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("callback ran %d times after Stop, want 0", got)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	tmplPath := writeFile(t, dir, "templates.yaml", testTemplates)
	rulesDir := filepath.Join(dir, "rules")
	if err := os.Mkdir(rulesDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, rulesDir, "rules.yaml", `
rules:
  - rule_id: SAFE-001
    category: safety_ae
    evaluation_type: deterministic
    template_id: SIMPLE_THRESHOLD_TEMPLATE
    parameters: {check_type: ae_grade}
`)

	source, err := NewSource(rulesDir, tmplPath)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	before := source.Snapshot()

	w, err := NewWatcher(source, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	reloaded := make(chan *Registry, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Watch(ctx, func(reg *Registry) {
			select {
			case reloaded <- reg:
			default:
			}
		})
	}()

	// Give the watcher time to register the directories.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, rulesDir, "more.yaml", `
rules:
  - rule_id: SAFE-002
    category: safety_ae
    evaluation_type: deterministic
    template_id: SIMPLE_THRESHOLD_TEMPLATE
    parameters: {check_type: sae_flag}
`)

	select {
	case reg := <-reloaded:
		if len(reg.Rules()) != 2 {
			t.Errorf("reloaded registry has %d rules, want 2", len(reg.Rules()))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if len(before.Rules()) != 1 {
		t.Error("earlier snapshot changed after reload")
	}
	_ = w.Stop()
}
