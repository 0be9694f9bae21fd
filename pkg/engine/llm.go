package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/providers"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

// LLMConfig bounds one tool-orchestrated evaluation.
type LLMConfig struct {
	Model        string
	MaxTokens    int
	MaxRounds    int
	MaxToolCalls int
	RoundTimeout time.Duration
	Protocol     string
}

// correctiveRetries is the number of re-prompts sent after a final answer
// that does not meet its template. A second malformed answer is an error.
const correctiveRetries = 1

func (c *LLMConfig) applyDefaults() {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 5
	}
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = 12
	}
	if c.RoundTimeout <= 0 {
		c.RoundTimeout = 60 * time.Second
	}
}

// llmState is a step of the evaluation state machine.
type llmState int

const (
	stateInit llmState = iota
	stateAwaitingModel
	stateToolRequested
	stateToolExecuting
	stateFinalAnswer
	stateMaxRoundsExceeded
	stateError
	stateDone
	stateDoneDegraded
	stateDoneError
)

func (s llmState) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case stateAwaitingModel:
		return "AWAITING_MODEL"
	case stateToolRequested:
		return "TOOL_REQUESTED"
	case stateToolExecuting:
		return "TOOL_EXECUTING"
	case stateFinalAnswer:
		return "FINAL_ANSWER"
	case stateMaxRoundsExceeded:
		return "MAX_ROUNDS_EXCEEDED"
	case stateError:
		return "ERROR"
	case stateDone:
		return "DONE"
	case stateDoneDegraded:
		return "DONE_DEGRADED"
	case stateDoneError:
		return "DONE_ERROR"
	default:
		return fmt.Sprintf("llmState(%d)", int(s))
	}
}

// LLMEvaluator evaluates rules that need clinical judgment by letting the
// reasoning service call clinical data tools until it can answer.
type LLMEvaluator struct {
	provider providers.Provider
	tools    *clinical.Toolbox
	cfg      LLMConfig
	logger   *slog.Logger
}

// NewLLMEvaluator creates an evaluator using provider for reasoning and
// tools for data access.
func NewLLMEvaluator(provider providers.Provider, tools *clinical.Toolbox, cfg LLMConfig) *LLMEvaluator {
	cfg.applyDefaults()
	return &LLMEvaluator{
		provider: provider,
		tools:    tools,
		cfg:      cfg,
		logger:   slog.Default().With("component", "engine.llm"),
	}
}

// llmRun is the mutable state of one evaluation. It is owned by a single
// goroutine.
type llmRun struct {
	rule    *rules.Rule
	tmpl    *rules.Template
	subject *clinical.Subject
	meter   *usage.Meter

	req         *providers.CompletionRequest
	allowed     map[string]bool
	rounds      int
	toolCalls   int
	corrections int
	pending     []providers.ToolCall
	answer      string
	lastText    string
	output      map[string]any
	toolsUsed   []string
	budget      string
	err         error
}

// Evaluate runs the evaluation state machine for rule against subject.
// meter may be nil. The result is never nil.
func (e *LLMEvaluator) Evaluate(ctx context.Context, rule *rules.Rule, tmpl *rules.Template, subject *clinical.Subject, jobID string, phase rules.Phase, meter *usage.Meter) *RuleResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.MaxRounds)*e.cfg.RoundTimeout)
	defer cancel()

	run := &llmRun{rule: rule, tmpl: tmpl, subject: subject, meter: meter, toolsUsed: []string{}}
	logger := e.logger.With("rule_id", rule.ID, "subject_id", subject.ID, "job_id", jobID)

	state := stateInit
	for {
		next := e.step(ctx, run, state, jobID, phase)
		if next != state {
			logger.Debug("evaluation state transition", "from", state, "to", next, "round", run.rounds, "tool_calls", run.toolCalls)
		}
		state = next

		switch state {
		case stateDone:
			if meter != nil {
				meter.RecordEvaluation()
			}
			return e.finalResult(run, jobID, phase).finish(start)
		case stateDoneDegraded:
			if meter != nil {
				meter.RecordEvaluation()
			}
			logger.Warn("evaluation budget exhausted", "limit", run.budget, "rounds", run.rounds, "tool_calls", run.toolCalls)
			return e.degradedResult(run, jobID, phase).finish(start)
		case stateDoneError:
			if meter != nil {
				meter.RecordEvaluation()
			}
			logger.Error("evaluation failed", "error", run.err, "rounds", run.rounds)
			r := errorResult(rule, subject.ID, jobID, phase, run.err)
			r.ToolsUsed = run.toolsUsed
			return r.finish(start)
		}
	}
}

// step performs the work of one state and returns the next state.
func (e *LLMEvaluator) step(ctx context.Context, run *llmRun, state llmState, jobID string, phase rules.Phase) llmState {
	switch state {
	case stateInit:
		run.allowed = e.permittedTools(run.rule, run.tmpl)
		names := make([]string, 0, len(run.allowed))
		for _, name := range run.tmpl.ToolsAvailable {
			if run.allowed[name] {
				names = append(names, name)
			}
		}
		run.req = &providers.CompletionRequest{
			Model:     e.cfg.Model,
			System:    buildSystemPrompt(e.cfg.Protocol),
			MaxTokens: e.cfg.MaxTokens,
			Tools:     toProviderTools(e.tools.Definitions(names)),
			Messages: []providers.Message{
				providers.TextMessage(providers.RoleUser, buildUserPrompt(e.cfg.Protocol, run.rule, run.tmpl, run.subject, phase)),
			},
			Metadata: map[string]string{"job_id": jobID, "rule_id": run.rule.ID, "subject_id": run.subject.ID},
		}
		return stateAwaitingModel

	case stateAwaitingModel:
		if run.rounds >= e.cfg.MaxRounds {
			run.budget = "max rounds"
			return stateMaxRoundsExceeded
		}
		run.rounds++

		roundCtx, cancel := context.WithTimeout(ctx, e.cfg.RoundTimeout)
		resp, err := e.provider.SendCompletion(roundCtx, run.req)
		cancel()
		if err != nil {
			run.err = &ReasoningServiceError{RuleID: run.rule.ID, Round: run.rounds, Cause: err}
			return stateError
		}
		if run.meter != nil {
			model := resp.Model
			if model == "" {
				model = e.cfg.Model
			}
			run.meter.RecordCall(model, resp.Usage)
		}

		if text := resp.Text(); text != "" {
			run.lastText = text
		}
		if len(resp.Content) > 0 {
			run.req.Messages = append(run.req.Messages, resp.AssistantMessage())
		}
		if calls := resp.ToolCalls(); len(calls) > 0 {
			run.pending = calls
			return stateToolRequested
		}
		run.answer = resp.Text()
		return stateFinalAnswer

	case stateToolRequested:
		if run.toolCalls+len(run.pending) > e.cfg.MaxToolCalls {
			run.budget = "max tool calls"
			return stateMaxRoundsExceeded
		}
		return stateToolExecuting

	case stateToolExecuting:
		blocks := make([]providers.ContentBlock, 0, len(run.pending))
		for _, call := range run.pending {
			blocks = append(blocks, e.executeTool(ctx, run, call))
		}
		run.pending = nil
		run.req.Messages = append(run.req.Messages, providers.ToolResultMessage(blocks...))
		return stateAwaitingModel

	case stateFinalAnswer:
		obj, problems := parseAnswer(run.tmpl, run.answer)
		if len(problems) == 0 {
			run.output = obj
			return stateDone
		}
		if run.corrections < correctiveRetries {
			if run.rounds >= e.cfg.MaxRounds {
				run.budget = "max rounds"
				return stateMaxRoundsExceeded
			}
			run.corrections++
			e.logger.Info("final answer rejected, re-prompting",
				"rule_id", run.rule.ID, "subject_id", run.subject.ID, "problems", problems)
			msg := providers.TextMessage(providers.RoleUser, correctivePrompt(run.tmpl, problems))
			if last := len(run.req.Messages) - 1; run.req.Messages[last].Role == providers.RoleUser {
				run.req.Messages[last].Content = append(run.req.Messages[last].Content, msg.Content...)
			} else {
				run.req.Messages = append(run.req.Messages, msg)
			}
			return stateAwaitingModel
		}
		run.err = &MalformedOutputError{RuleID: run.rule.ID, TemplateID: run.tmpl.ID, Problems: problems}
		return stateError

	case stateMaxRoundsExceeded:
		return stateDoneDegraded

	case stateError:
		return stateDoneError
	}
	return stateDoneError
}

// permittedTools returns the template's tools, narrowed to the rule's
// tools_needed when the rule declares any.
func (e *LLMEvaluator) permittedTools(rule *rules.Rule, tmpl *rules.Template) map[string]bool {
	allowed := make(map[string]bool, len(tmpl.ToolsAvailable))
	for _, name := range tmpl.ToolsAvailable {
		if len(rule.ToolsNeeded) == 0 || slices.Contains(rule.ToolsNeeded, name) {
			allowed[name] = true
		}
	}
	return allowed
}

// executeTool runs one requested call. Failures are reported back to the
// model as an error tool result rather than ending the evaluation.
func (e *LLMEvaluator) executeTool(ctx context.Context, run *llmRun, call providers.ToolCall) providers.ContentBlock {
	if !run.allowed[call.Name] {
		return providers.ToolResultBlock(call.ID, fmt.Sprintf("tool %q is not available for this rule", call.Name), true)
	}
	run.toolCalls++
	run.toolsUsed = append(run.toolsUsed, call.Name)

	res, err := e.tools.Execute(ctx, run.subject.ID, call.Name, call.Input)
	if err != nil {
		var unknown *clinical.UnknownToolError
		if errors.As(err, &unknown) {
			run.toolsUsed = run.toolsUsed[:len(run.toolsUsed)-1]
			run.toolCalls--
		}
		e.logger.Warn("tool call failed", "rule_id", run.rule.ID, "subject_id", run.subject.ID, "tool", call.Name, "error", err)
		return providers.ToolResultBlock(call.ID, err.Error(), true)
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return providers.ToolResultBlock(call.ID, "could not encode tool result: "+err.Error(), true)
	}
	return providers.ToolResultBlock(call.ID, string(payload), false)
}

// parseAnswer extracts the final JSON object and checks it against the
// template contract.
func parseAnswer(tmpl *rules.Template, text string) (map[string]any, []string) {
	obj, err := extractJSON(text)
	if err != nil {
		return nil, []string{"reply is not a JSON object: " + err.Error()}
	}
	if problems := CheckOutput(tmpl, obj); len(problems) > 0 {
		return nil, problems
	}
	return obj, nil
}

func (e *LLMEvaluator) finalResult(run *llmRun, jobID string, phase rules.Phase) *RuleResult {
	r := newResult(run.rule, run.subject.ID, jobID, phase)
	r.EvaluationMethod = MethodLLMWithTools
	applyOutput(run.tmpl, run.output, r)
	r.ToolsUsed = run.toolsUsed
	r.ActualValue = normalizeValue(r.ActualValue)
	r.Threshold = normalizeValue(r.Threshold)

	if r.Confidence == "" {
		r.Confidence = ConfidenceMedium
	}
	if r.Violated == nil || r.Confidence == ConfidenceLow {
		r.RequiresReview = true
	}
	applyAction(r, run.rule, phase, rules.ActionRequiresReview)
	return r
}

// degradedResult reports an evaluation stopped by its budget. The verdict is
// left open and the data that was never retrieved is listed as missing.
func (e *LLMEvaluator) degradedResult(run *llmRun, jobID string, phase rules.Phase) *RuleResult {
	r := newResult(run.rule, run.subject.ID, jobID, phase)
	r.EvaluationMethod = MethodLLMWithTools
	r.Confidence = ConfidenceLow
	r.RequiresReview = true
	r.ToolsUsed = run.toolsUsed

	for _, call := range run.pending {
		if !slices.Contains(r.MissingData, call.Name) {
			r.MissingData = append(r.MissingData, call.Name)
		}
	}
	if len(r.MissingData) == 0 {
		r.MissingData = append(r.MissingData, "final_answer")
	}

	budgetErr := &RoundBudgetError{RuleID: run.rule.ID, Rounds: run.rounds, ToolCalls: run.toolCalls, Limit: run.budget}
	r.Reasoning = "INCOMPLETE: " + budgetErr.Error()
	if run.lastText != "" {
		r.Reasoning += ". Last model note: " + run.lastText
	}
	return r
}

func toProviderTools(specs []clinical.ToolSpec) []providers.Tool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]providers.Tool, len(specs))
	for i, s := range specs {
		out[i] = providers.Tool{Name: s.Name, Description: s.Description, InputSchema: s.InputSchema}
	}
	return out
}
