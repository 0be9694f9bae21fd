package engine

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	mock "github.com/virupakshb/TrialMonitor/internal/providers"
	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/providers"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

func pdOneRecord() clinical.SubjectRecord {
	return clinical.SubjectRecord{
		Subject: screeningSubject("101-001"),
		ConMeds: []clinical.ConMed{{
			Name: "Pembrolizumab", Dose: "200", DoseUnit: "mg", Frequency: "Q3W",
			StartDate: "2023-03-01", Ongoing: true, Class: "PD-1 inhibitor", Indication: "NSCLC",
		}},
		MedicalHistory: []clinical.MedicalCondition{{Condition: "Hypertension", DiagnosisDate: "2019-05-01", Ongoing: true}},
	}
}

type llmFixture struct {
	eval     *LLMEvaluator
	provider *mock.ScriptedProvider
	rule     *rules.Rule
	tmpl     *rules.Template
	subject  *clinical.Subject
	meter    *usage.Meter
}

func newLLMFixture(t *testing.T, cfg LLMConfig, steps ...mock.Step) *llmFixture {
	t.Helper()
	lib := clinical.NewMemoryLibrary(pdOneRecord())
	reg, rs := newRegistry(t, pdOneRule())
	subject, err := lib.Subject(context.Background(), "101-001")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	provider := mock.NewScriptedProvider(steps...)
	return &llmFixture{
		eval:     NewLLMEvaluator(provider, clinical.NewToolbox(lib), cfg),
		provider: provider,
		rule:     rs[0],
		tmpl:     template(t, reg, "COMPLEX_EXCLUSION_TEMPLATE"),
		subject:  subject,
		meter:    usage.NewMeter(usage.DefaultPricing()),
	}
}

func (f *llmFixture) evaluate() *RuleResult {
	return f.eval.Evaluate(context.Background(), f.rule, f.tmpl, f.subject, "job-1", rules.PhaseScreening, f.meter)
}

var conmedCall = mock.Call{Name: clinical.ToolCheckConMeds, Input: map[string]any{"medication_names": []string{"pembrolizumab"}}}

func violationAnswer() mock.Step {
	return mock.JSON(map[string]any{
		"excluded":   true,
		"confidence": "high",
		"evidence": []string{
			"Pembrolizumab 200 mg Q3W (started 2023-03-01, ONGOING (no end date), indication: NSCLC)",
			"PD-1 inhibitor class recorded",
		},
		"reasoning":      "Prior pembrolizumab exposure is documented.",
		"recommendation": "Exclude subject: prior PD-1 therapy",
		"tools_used":     []string{"made_up_tool"},
	})
}

func TestLLMEvaluate_ToolRoundsThenViolation(t *testing.T) {
	f := newLLMFixture(t, LLMConfig{},
		mock.ToolCalls(conmedCall, mock.Call{Name: clinical.ToolCheckMedicalHistory, Input: map[string]any{"search_terms": []string{"PD-1"}}}),
		mock.ToolCalls(mock.Call{Name: clinical.ToolGetTumorAssessments}),
		violationAnswer(),
	)

	r := f.evaluate()

	if r.EvaluationMethod != MethodLLMWithTools {
		t.Fatalf("method = %s, error = %s", r.EvaluationMethod, r.Error)
	}
	if !r.IsViolation() {
		t.Fatalf("violated = %v, want true", r.Violated)
	}
	wantTools := []string{clinical.ToolCheckConMeds, clinical.ToolCheckMedicalHistory, clinical.ToolGetTumorAssessments}
	if !reflect.DeepEqual(r.ToolsUsed, wantTools) {
		t.Errorf("tools_used = %v, want %v", r.ToolsUsed, wantTools)
	}
	if len(r.Evidence) != 2 {
		t.Errorf("evidence = %v, want 2 entries", r.Evidence)
	}
	if r.ActionRequired != rules.ActionScreenFailure || !strings.HasPrefix(r.Recommendation, "SCREEN FAILURE - ") {
		t.Errorf("action = %q recommendation = %q", r.ActionRequired, r.Recommendation)
	}

	totals := f.meter.Totals()
	if totals.APICalls != 3 || totals.LLMRuleEvaluations != 1 {
		t.Errorf("meter = %+v, want 3 calls and 1 evaluation", totals)
	}
	if totals.InputTokens != 3*int64(mock.Usage.InputTokens) {
		t.Errorf("input tokens = %d", totals.InputTokens)
	}

	reqs := f.provider.Requests()
	if len(reqs) != 3 {
		t.Fatalf("provider saw %d requests, want 3", len(reqs))
	}
	// Both results of the first round travel in one user message.
	second := reqs[1].Messages
	if len(second) != 3 || second[2].Role != providers.RoleUser || len(second[2].Content) != 2 {
		t.Fatalf("second round messages = %+v", second)
	}
	for _, b := range second[2].Content {
		if b.Type != providers.BlockToolResult || b.IsError {
			t.Errorf("tool result block = %+v", b)
		}
	}
	if !strings.Contains(second[2].Content[0].Content, "Pembrolizumab") {
		t.Errorf("conmed result not returned to model: %s", second[2].Content[0].Content)
	}
}

func TestLLMEvaluate_MalformedTwiceIsError(t *testing.T) {
	f := newLLMFixture(t, LLMConfig{},
		mock.Text("The subject appears eligible."),
		mock.JSON(map[string]any{"excluded": "maybe"}),
	)

	r := f.evaluate()

	if r.EvaluationMethod != MethodError {
		t.Fatalf("method = %s, want error", r.EvaluationMethod)
	}
	if r.Violated != nil {
		t.Errorf("violated = %v, want nil", *r.Violated)
	}
	if f.provider.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2 (one corrective re-prompt)", f.provider.Calls())
	}
	if !strings.Contains(r.Error, "COMPLEX_EXCLUSION_TEMPLATE") {
		t.Errorf("error = %q", r.Error)
	}
	last := f.provider.Requests()[1].Messages
	if text := last[len(last)-1].Text(); !strings.Contains(text, "could not be accepted") {
		t.Errorf("corrective prompt = %q", text)
	}
}

func TestLLMEvaluate_CorrectiveRetrySucceeds(t *testing.T) {
	f := newLLMFixture(t, LLMConfig{},
		mock.JSON(map[string]any{"excluded": false, "confidence": "high", "evidence": []string{}, "reasoning": "ok", "score": 3}),
		mock.Text("```json\n{\"excluded\": false, \"evidence\": [\"No PD-1 therapy\"], \"reasoning\": \"none found\", \"confidence\": \"medium\"}\n```"),
	)

	r := f.evaluate()
	if r.EvaluationMethod != MethodLLMWithTools || r.Violated == nil || *r.Violated {
		t.Fatalf("result = %s violated=%v error=%s", r.EvaluationMethod, r.Violated, r.Error)
	}
	if r.ActionRequired != "" || r.Recommendation != "" {
		t.Errorf("pass carries action %q / %q", r.ActionRequired, r.Recommendation)
	}
}

func TestLLMEvaluate_CorrectiveRetryIsBounded(t *testing.T) {
	malformed := mock.Text("not an answer")
	tests := []struct {
		name      string
		cfg       LLMConfig
		steps     []mock.Step
		method    Method
		wantCalls int
	}{
		{
			name:      "zero config still retries once",
			cfg:       LLMConfig{},
			steps:     []mock.Step{malformed, violationAnswer()},
			method:    MethodLLMWithTools,
			wantCalls: 2,
		},
		{
			name:      "second malformed reply ends the evaluation",
			cfg:       LLMConfig{MaxRounds: 5},
			steps:     []mock.Step{malformed, malformed, malformed, violationAnswer()},
			method:    MethodError,
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLLMFixture(t, tt.cfg, tt.steps...)
			r := f.evaluate()
			if r.EvaluationMethod != tt.method {
				t.Fatalf("method = %s, want %s (error = %s)", r.EvaluationMethod, tt.method, r.Error)
			}
			if got := f.provider.Calls(); got != tt.wantCalls {
				t.Errorf("provider calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestLLMEvaluate_MalformedInLastRoundDegrades(t *testing.T) {
	f := newLLMFixture(t, LLMConfig{MaxRounds: 2},
		mock.ToolCalls(conmedCall),
		mock.Text("Probably excluded."),
		violationAnswer(),
	)

	r := f.evaluate()

	if r.EvaluationMethod != MethodLLMWithTools || r.Violated != nil {
		t.Fatalf("result = %s violated=%v error=%s", r.EvaluationMethod, r.Violated, r.Error)
	}
	if r.Confidence != ConfidenceLow || !r.RequiresReview {
		t.Errorf("confidence = %s requires_review = %v", r.Confidence, r.RequiresReview)
	}
	if !reflect.DeepEqual(r.MissingData, []string{"final_answer"}) {
		t.Errorf("missing_data = %v", r.MissingData)
	}
	if !strings.HasPrefix(r.Reasoning, "INCOMPLETE") || !strings.Contains(r.Reasoning, "Probably excluded.") {
		t.Errorf("reasoning = %q", r.Reasoning)
	}
	if f.provider.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", f.provider.Calls())
	}
}

func TestLLMEvaluate_RoundBudgetDegrades(t *testing.T) {
	f := newLLMFixture(t, LLMConfig{MaxRounds: 2},
		mock.ToolCalls(conmedCall),
	)

	r := f.evaluate()

	if r.EvaluationMethod != MethodLLMWithTools || r.Violated != nil {
		t.Fatalf("result = %s violated=%v", r.EvaluationMethod, r.Violated)
	}
	if r.Confidence != ConfidenceLow || !r.RequiresReview {
		t.Errorf("confidence = %s requires_review = %v", r.Confidence, r.RequiresReview)
	}
	if len(r.MissingData) == 0 {
		t.Error("missing_data is empty")
	}
	if !strings.HasPrefix(r.Reasoning, "INCOMPLETE") {
		t.Errorf("reasoning = %q", r.Reasoning)
	}
	if f.provider.Calls() != 2 {
		t.Errorf("provider calls = %d, want max rounds 2", f.provider.Calls())
	}
	if len(r.ToolsUsed) != 2 {
		t.Errorf("tools_used = %v", r.ToolsUsed)
	}
}

func TestLLMEvaluate_ToolCallBudgetDegrades(t *testing.T) {
	f := newLLMFixture(t, LLMConfig{MaxToolCalls: 2},
		mock.ToolCalls(conmedCall, conmedCall, conmedCall),
	)

	r := f.evaluate()
	if r.Violated != nil || r.Confidence != ConfidenceLow {
		t.Fatalf("result violated=%v confidence=%s", r.Violated, r.Confidence)
	}
	if !reflect.DeepEqual(r.MissingData, []string{clinical.ToolCheckConMeds}) {
		t.Errorf("missing_data = %v", r.MissingData)
	}
	if len(r.ToolsUsed) != 0 {
		t.Errorf("tools_used = %v, want none executed", r.ToolsUsed)
	}
}

func TestLLMEvaluate_ProviderFailure(t *testing.T) {
	f := newLLMFixture(t, LLMConfig{},
		mock.Fail(&providers.ProviderError{Provider: "anthropic", StatusCode: 500, Message: "overloaded"}),
	)

	r := f.evaluate()
	if r.EvaluationMethod != MethodError || r.Violated != nil {
		t.Fatalf("result = %s violated=%v", r.EvaluationMethod, r.Violated)
	}
	if !strings.Contains(r.Error, "reasoning service failed in round 1") {
		t.Errorf("error = %q", r.Error)
	}
	if f.meter.Totals().LLMRuleEvaluations != 1 {
		t.Errorf("evaluation not counted: %+v", f.meter.Totals())
	}
}

func TestLLMEvaluate_ToolErrorsReturnToModel(t *testing.T) {
	f := newLLMFixture(t, LLMConfig{},
		mock.ToolCalls(
			mock.Call{Name: clinical.ToolGetVisits},
			mock.Call{Name: "drop_tables"},
			mock.Call{Name: clinical.ToolCheckLabThreshold, Input: map[string]any{"operator": ">"}},
		),
		violationAnswer(),
	)

	r := f.evaluate()
	if r.EvaluationMethod != MethodLLMWithTools {
		t.Fatalf("method = %s error = %s", r.EvaluationMethod, r.Error)
	}
	// get_visits and drop_tables are outside the permitted set and
	// check_lab_threshold is not in tools_needed.
	if len(r.ToolsUsed) != 0 {
		t.Errorf("tools_used = %v, want none", r.ToolsUsed)
	}
	results := f.provider.Requests()[1].Messages[2].Content
	if len(results) != 3 {
		t.Fatalf("tool results = %d, want 3", len(results))
	}
	for _, b := range results {
		if !b.IsError {
			t.Errorf("block %s not flagged is_error", b.ToolUseID)
		}
	}
}

func TestLLMEvaluate_OffersPermittedTools(t *testing.T) {
	f := newLLMFixture(t, LLMConfig{Protocol: "NVX-1218.22"}, violationAnswer())
	f.evaluate()

	req := f.provider.Requests()[0]
	var names []string
	for _, tool := range req.Tools {
		names = append(names, tool.Name)
	}
	want := []string{clinical.ToolCheckMedicalHistory, clinical.ToolCheckConMeds, clinical.ToolGetTumorAssessments}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("tools offered = %v, want %v", names, want)
	}
	prompt := req.Messages[0].Text()
	for _, s := range []string{"EXCL-001", "NVX-1218.22", "brand name", "pembrolizumab", "101-001", `"excluded"`} {
		if !strings.Contains(prompt, s) {
			t.Errorf("prompt missing %q", s)
		}
	}
	if req.Metadata["job_id"] != "job-1" {
		t.Errorf("metadata = %v", req.Metadata)
	}
}

type blockingProvider struct{ *mock.ScriptedProvider }

func (b blockingProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLLMEvaluate_RoundTimeout(t *testing.T) {
	lib := clinical.NewMemoryLibrary(pdOneRecord())
	reg, rs := newRegistry(t, pdOneRule())
	subject, _ := lib.Subject(context.Background(), "101-001")
	eval := NewLLMEvaluator(blockingProvider{mock.NewScriptedProvider()}, clinical.NewToolbox(lib),
		LLMConfig{Model: "m", RoundTimeout: 20 * time.Millisecond})

	r := eval.Evaluate(context.Background(), rs[0], template(t, reg, "COMPLEX_EXCLUSION_TEMPLATE"), subject, "job-1", rules.PhaseScreening, nil)
	if r.EvaluationMethod != MethodError {
		t.Fatalf("method = %s", r.EvaluationMethod)
	}
	if !strings.Contains(r.Error, "deadline exceeded") {
		t.Errorf("error = %q", r.Error)
	}
}

func TestLLMState_String(t *testing.T) {
	if stateMaxRoundsExceeded.String() != "MAX_ROUNDS_EXCEEDED" || stateDoneDegraded.String() != "DONE_DEGRADED" {
		t.Error("unexpected state names")
	}
}
