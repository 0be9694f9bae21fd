package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	mock "github.com/virupakshb/TrialMonitor/internal/providers"
	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/providers"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

const templatesPath = "../../configs/templates.yaml"

func qtcfRule() *rules.Rule {
	return &rules.Rule{
		ID:             "EXCL-008",
		Name:           "QTcF prolongation",
		Category:       rules.CategoryExclusion,
		EvaluationType: rules.EvaluationDeterministic,
		TemplateID:     "SIMPLE_THRESHOLD_TEMPLATE",
		Severity:       rules.SeverityCritical,
		Status:         rules.StatusActive,
		Parameters: rules.Parameters{
			TestName:  "QTcF",
			Operator:  ">",
			Threshold: 470,
			Unit:      "msec",
			RuleType:  "exclusion",
		},
		ApplicablePhases: map[rules.Phase]rules.PhaseRule{
			rules.PhaseScreening: {Check: true, ActionIfViolated: rules.ActionScreenFailure},
		},
	}
}

func pdOneRule() *rules.Rule {
	return &rules.Rule{
		ID:             "EXCL-001",
		Name:           "Prior PD-1/PD-L1 therapy",
		Category:       rules.CategoryExclusion,
		EvaluationType: rules.EvaluationLLMWithTools,
		TemplateID:     "COMPLEX_EXCLUSION_TEMPLATE",
		Severity:       rules.SeverityCritical,
		Status:         rules.StatusActive,
		ToolsNeeded:    []string{clinical.ToolCheckConMeds},
		ApplicablePhases: map[rules.Phase]rules.PhaseRule{
			rules.PhaseScreening: {Check: true, ActionIfViolated: rules.ActionScreenFailure},
		},
	}
}

func subject(id string, qtcf float64) clinical.SubjectRecord {
	v := qtcf
	return clinical.SubjectRecord{
		Subject: clinical.Subject{
			ID:           id,
			SiteID:       "101",
			StudyStatus:  "Screening",
			Demographics: map[string]any{"age": 52, "sex": "M"},
		},
		ECGs: []clinical.ECGResult{{ECGDate: "2024-01-10", QTcFInterval: &v, Interpretation: "Sinus rhythm"}},
	}
}

// gatedLibrary holds every subject lookup until the gate is closed.
type gatedLibrary struct {
	*clinical.MemoryLibrary
	gate    chan struct{}
	entered chan string
}

func newGatedLibrary(records ...clinical.SubjectRecord) *gatedLibrary {
	return &gatedLibrary{
		MemoryLibrary: clinical.NewMemoryLibrary(records...),
		gate:          make(chan struct{}),
		entered:       make(chan string, 64),
	}
}

func (g *gatedLibrary) Subject(ctx context.Context, id string) (*clinical.Subject, error) {
	g.entered <- id
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.MemoryLibrary.Subject(ctx, id)
}

func (g *gatedLibrary) open() { close(g.gate) }

func (g *gatedLibrary) waitEntered(t *testing.T) string {
	t.Helper()
	select {
	case id := <-g.entered:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("no subject evaluation started")
		return ""
	}
}

type fixture struct {
	manager *Manager
	ledger  *ledger.Ledger
	session *usage.Session
}

func newFixture(t *testing.T, lib clinical.Library, provider providers.Provider, cfg Config, rs ...*rules.Rule) *fixture {
	t.Helper()
	return newEngineFixture(t, lib, provider, engine.Config{LLM: engine.LLMConfig{Model: "scripted-model"}}, cfg, rs...)
}

func newEngineFixture(t *testing.T, lib clinical.Library, provider providers.Provider, ecfg engine.Config, cfg Config, rs ...*rules.Rule) *fixture {
	t.Helper()
	tmpls, err := rules.LoadTemplates(templatesPath)
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	if len(rs) == 0 {
		rs = []*rules.Rule{qtcfRule()}
	}
	source := rules.StaticSource(rules.NewRegistry(tmpls, rs))

	l, err := ledger.Open(context.Background(), ledger.NewMemoryStorage())
	if err != nil {
		t.Fatal(err)
	}
	session := usage.NewSession(nil)
	eng := engine.New(lib, provider, ecfg)
	m := NewManager(eng, source, l, session, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return &fixture{manager: m, ledger: l, session: session}
}

func (f *fixture) wait(t *testing.T, id string) *Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := f.manager.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return snap
}

// recordingListener collects recorded runs.
type recordingListener struct {
	runs chan *ledger.RunRecord
}

func (l *recordingListener) RunRecorded(ctx context.Context, rec *ledger.RunRecord) {
	l.runs <- rec
}

// countingProvider tracks the peak number of concurrent SendCompletion calls.
type countingProvider struct {
	*mock.ScriptedProvider
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *countingProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return p.ScriptedProvider.SendCompletion(ctx, req)
}
