package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/jobs"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/ledger/export"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

const (
	defaultRunLimit       = 100
	defaultViolationLimit = 500
	maxViolationLimit     = 2000
)

type handlers struct {
	manager *jobs.Manager
	logger  *slog.Logger
}

// subjectScope accepts either a non-empty list of subject ids or the string
// "all". Omitting the field also means every subject.
type subjectScope []string

func (s *subjectScope) UnmarshalJSON(b []byte) error {
	var all string
	if err := json.Unmarshal(b, &all); err == nil {
		if all != "all" {
			return fmt.Errorf(`subject_ids must be a list or "all", got %q`, all)
		}
		*s = nil
		return nil
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New(`subject_ids is empty; omit it or pass "all" to evaluate every subject`)
	}
	*s = ids
	return nil
}

type evaluateRequest struct {
	SubjectIDs subjectScope `json:"subject_ids"`
	RuleIDs    []string     `json:"rule_ids"`
	Phase      rules.Phase  `json:"phase"`
}

func (h *handlers) submitBatch(w http.ResponseWriter, r *http.Request) {
	var body evaluateRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	snap, err := h.manager.Submit(r.Context(), jobs.Request{
		SubjectIDs: body.SubjectIDs,
		RuleIDs:    body.RuleIDs,
		Phase:      body.Phase,
		Trigger:    "api",
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/evaluate/batch/"+snap.JobID)
	writeJSON(w, http.StatusAccepted, snap)
}

// jobStatus reports a job the manager holds, falling back to the ledger for
// jobs pruned from memory or run by an earlier process.
func (h *handlers) jobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("job_id")
	snap, err := h.manager.Get(id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		rec, lerr := h.manager.Ledger().Get(r.Context(), id)
		if lerr != nil {
			writeError(w, r, h.logger, lerr)
			return
		}
		snap, err = jobs.RecordSnapshot(rec), nil
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Cancel(r.PathValue("job_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	snaps := h.manager.List()
	writeJSON(w, http.StatusOK, map[string]any{"jobs": snaps, "total": len(snaps)})
}

// runSync submits a single-subject job and waits for its run record.
func (h *handlers) runSync(r *http.Request, req jobs.Request) (*ledger.RunRecord, error) {
	req.Trigger = "api"
	snap, err := h.manager.Submit(r.Context(), req)
	if err != nil {
		return nil, err
	}
	snap, err = h.manager.Wait(r.Context(), snap.JobID)
	if err != nil {
		return nil, err
	}
	if snap.Status == jobs.StatusError {
		return nil, &evaluationFailed{jobID: snap.JobID, message: snap.Error}
	}
	return h.manager.Ledger().Get(r.Context(), snap.JobID)
}

type evaluationFailed struct {
	jobID   string
	message string
}

func (e *evaluationFailed) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.jobID, e.message)
}

func (h *handlers) evaluateSubject(w http.ResponseWriter, r *http.Request) {
	var body evaluateRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rec, err := h.runSync(r, jobs.Request{
		SubjectIDs: []string{r.PathValue("subject_id")},
		RuleIDs:    body.RuleIDs,
		Phase:      body.Phase,
	})
	if err != nil {
		h.writeEvalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) evaluateRule(w http.ResponseWriter, r *http.Request) {
	rec, err := h.runSync(r, jobs.Request{
		SubjectIDs: []string{r.PathValue("subject_id")},
		RuleIDs:    []string{r.PathValue("rule_id")},
		Phase:      rules.Phase(r.URL.Query().Get("phase")),
	})
	if err != nil {
		h.writeEvalError(w, r, err)
		return
	}
	if len(rec.Results) != 1 {
		writeError(w, r, h.logger, fmt.Errorf("job %s recorded %d results, want 1", rec.JobID, len(rec.Results)))
		return
	}
	writeJSON(w, http.StatusOK, rec.Results[0])
}

func (h *handlers) writeEvalError(w http.ResponseWriter, r *http.Request, err error) {
	var failed *evaluationFailed
	if errors.As(err, &failed) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: APIError{Code: "evaluation_failed", Message: failed.Error()},
		})
		return
	}
	writeError(w, r, h.logger, err)
}

// runSummary is the list view of a stored run.
type runSummary struct {
	JobID       string        `json:"job_id"`
	Status      string        `json:"status"`
	Scope       []string      `json:"scope"`
	RuleIDs     []string      `json:"rule_ids"`
	CreatedAt   string        `json:"created_at"`
	CompletedAt string        `json:"completed_at"`
	Counts      ledger.Counts `json:"counts"`
	CostUSD     float64       `json:"estimated_cost_usd"`
}

func (h *handlers) listResults(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultRunLimit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	recs, err := h.manager.Ledger().Runs(r.Context(), ledger.ListQuery{
		SubjectID: q.Get("subject_id"),
		RuleID:    q.Get("rule_id"),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]runSummary, len(recs))
	for i, rec := range recs {
		out[i] = runSummary{
			JobID:       rec.JobID,
			Status:      rec.Status,
			Scope:       rec.Scope,
			RuleIDs:     rec.RuleIDs,
			CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
			CompletedAt: rec.CompletedAt.Format(time.RFC3339),
			Counts:      rec.Counts,
			CostUSD:     rec.Usage.EstimatedCostUSD,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out, "total": len(out)})
}

func (h *handlers) getResult(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.Ledger().Get(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) resultViolations(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.Ledger().Get(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	violations := make([]*engine.RuleResult, 0, rec.Counts.Violations)
	for _, res := range rec.Results {
		if res.IsViolation() {
			violations = append(violations, res)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     rec.JobID,
		"violations": violations,
		"summary":    ledger.Summarize(violations),
	})
}

func (h *handlers) violations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.serveViolations(w, r, ledger.Filter{
		SubjectID: q.Get("subject_id"),
		RuleID:    q.Get("rule_id"),
		Severity:  rules.Severity(q.Get("severity")),
	})
}

func (h *handlers) subjectViolations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.serveViolations(w, r, ledger.Filter{
		SubjectID: r.PathValue("subject_id"),
		RuleID:    q.Get("rule_id"),
		Severity:  rules.Severity(q.Get("severity")),
	})
}

// serveViolations answers from the current violation index. The summary
// always covers every match; limit only truncates the list.
func (h *handlers) serveViolations(w http.ResponseWriter, r *http.Request, f ledger.Filter) {
	limit, err := queryInt(r, "limit", defaultViolationLimit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if limit > maxViolationLimit {
		writeError(w, r, h.logger, &badRequest{field: "limit", message: fmt.Sprintf("limit must be <= %d", maxViolationLimit)})
		return
	}

	violations, summary, err := h.manager.Ledger().Violations(f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if len(violations) > limit {
		violations = violations[:limit]
	}

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		writeJSON(w, http.StatusOK, map[string]any{
			"violations": violations,
			"summary":    summary,
		})
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="violations.csv"`)
		if err := export.NewCSVExporter(true).Export(r.Context(), violations, w); err != nil {
			h.logger.ErrorContext(r.Context(), "violation export failed", "error", err)
		}
	default:
		writeError(w, r, h.logger, &badRequest{field: "format", message: fmt.Sprintf("unsupported format %q (json, csv)", format)})
	}
}

type ruleView struct {
	*rules.Rule
	Valid       bool   `json:"valid"`
	ConfigError string `json:"config_error,omitempty"`
	SourceFile  string `json:"source_file,omitempty"`
}

func (h *handlers) listRules(w http.ResponseWriter, r *http.Request) {
	reg := h.manager.Rules()
	all := reg.Rules()
	out := make([]ruleView, len(all))
	for i, rule := range all {
		v := ruleView{Rule: rule, Valid: true, SourceFile: rule.Source}
		if cerr := reg.Invalid(rule.ID); cerr != nil {
			v.Valid = false
			v.ConfigError = cerr.Error()
		}
		out[i] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":     out,
		"total":     len(out),
		"active":    len(reg.ActiveRules()),
		"loaded_at": reg.LoadedAt().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) usage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Session().Stats())
}

func (h *handlers) resetUsage(w http.ResponseWriter, r *http.Request) {
	h.manager.Session().Reset()
	h.logger.InfoContext(r.Context(), "usage stats reset")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Usage stats reset"})
}
