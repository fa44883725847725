// Package ipc provides the HTTP API of the triage service.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/muzzaleeni/qwazi/internal/auth"
	"github.com/muzzaleeni/qwazi/internal/cases"
	"github.com/muzzaleeni/qwazi/internal/domain"
	"github.com/muzzaleeni/qwazi/internal/guard"
	"github.com/muzzaleeni/qwazi/internal/metrics"
	"github.com/muzzaleeni/qwazi/internal/rules"
	"github.com/muzzaleeni/qwazi/internal/triage"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Rules   *rules.RuleSet
	Cases   *cases.Store
	Guard   *guard.Guard
	Auth    *auth.Authenticator
	Log     zerolog.Logger
	Version string
}

// TriageRequest is the body for POST /api/v1/triage.
type TriageRequest struct {
	Input domain.TriageInput `json:"input"`
	Meta  domain.CaseMeta    `json:"meta"`
}

// RuleSetSummary is the response for GET /api/v1/rules.
type RuleSetSummary struct {
	Version         string           `json:"version"`
	UrgentThreshold int              `json:"urgent_threshold"`
	RedFlags        []RedFlagSummary `json:"red_flags"`
	CriticalInputs  []string         `json:"critical_inputs"`
}

// RedFlagSummary describes one enabled red flag.
type RedFlagSummary struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// LedgerStatus is the response for GET /api/v1/ledger/verify.
type LedgerStatus struct {
	Verified int  `json:"verified"`
	Intact   bool `json:"intact"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":           "ok",
		"version":          h.Version,
		"rule_set_version": h.Rules.Version,
	})
}

// GetRules handles GET /api/v1/rules.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	flags := make([]RedFlagSummary, len(h.Rules.RedFlags))
	for i, rf := range h.Rules.RedFlags {
		flags[i] = RedFlagSummary{ID: rf.ID, Label: rf.Label, Description: rf.Description}
	}
	writeJSON(w, http.StatusOK, RuleSetSummary{
		Version:         h.Rules.Version,
		UrgentThreshold: h.Rules.UrgentThreshold,
		RedFlags:        flags,
		CriticalInputs:  append([]string{}, h.Rules.CriticalInputs...),
	})
}

// Evaluate handles POST /api/v1/evaluate. Nothing is persisted.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var in domain.TriageInput
	if err := decodeBody(w, r, &in, false); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.evaluate(&in))
}

// Triage handles POST /api/v1/triage: evaluate and open a case.
func (h *Handler) Triage(w http.ResponseWriter, r *http.Request) {
	var req TriageRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	if actor, ok := auth.ActorFrom(r.Context()); ok && req.Meta.CreatedBy == "" {
		req.Meta.CreatedBy = actor
	}
	if req.Meta.Source == "" {
		req.Meta.Source = "api"
	}

	decision := h.evaluate(&req.Input)
	rec, err := h.Cases.CreateCase(r.Context(), decision, req.Meta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListCases handles GET /api/v1/cases?limit=N.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r)
	recs, err := h.Cases.GetRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetCase handles GET /api/v1/cases/{caseID}.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Cases.Get(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CaseChanges handles GET /api/v1/cases/{caseID}/changes.
func (h *Handler) CaseChanges(w http.ResponseWriter, r *http.Request) {
	events, err := h.Cases.ChangesForCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// PatchOutcome handles PATCH /api/v1/cases/{caseID}/outcome.
func (h *Handler) PatchOutcome(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	actor, ok := h.admit(w, r, "patch_outcome", caseID)
	if !ok {
		return
	}
	var patch domain.OutcomePatch
	if err := decodeBody(w, r, &patch, true); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Cases.PatchOutcome(r.Context(), caseID, patch, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PatchWorkflow handles PATCH /api/v1/cases/{caseID}/workflow.
func (h *Handler) PatchWorkflow(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	actor, ok := h.admit(w, r, "patch_workflow", caseID)
	if !ok {
		return
	}
	var patch domain.WorkflowPatch
	if err := decodeBody(w, r, &patch, true); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Cases.PatchWorkflow(r.Context(), caseID, patch, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListChanges handles GET /api/v1/changes?limit=N.
func (h *Handler) ListChanges(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r)
	events, err := h.Cases.RecentChanges(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// VerifyLedger handles GET /api/v1/ledger/verify.
func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	n, err := h.Cases.VerifyLedger(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LedgerStatus{Verified: n, Intact: true})
}

// ListAudit handles GET /api/v1/audit?limit=N.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r)
	recs, err := h.Guard.Recent(r.Context(), h.Cases.ClampLimit(limit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) evaluate(in *domain.TriageInput) domain.DecisionResult {
	d := triage.Evaluate(in, h.Rules)
	metrics.RecordDecision(string(d.Level), d.Uncertainty.EscalatedTo != nil, d.FiredRedFlags())
	return d
}

// admit applies the per-actor mutation rate limit. It writes the error
// response itself and reports whether the request may proceed.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, action, caseID string) (string, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated)
		return "", false
	}
	if err := h.Guard.CheckRateLimit(r.Context(), actor, action, caseID); err != nil {
		writeError(w, err)
		return "", false
	}
	return actor, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewError(domain.ErrInvalidInput, "request body is empty")
		}
		return domain.NewError(domain.ErrInvalidInput, fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// limitParam reads ?limit=N. A missing or non-integer value yields 0,
// which the store replaces with its default.
func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch de.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindAuth:
		status = http.StatusUnauthorized
	case domain.KindRateLimited:
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", "1")
	case domain.KindStorage:
		if errors.Is(de, domain.ErrLedgerTampered) {
			status = http.StatusConflict
		}
	}

	msg := de.Message
	if status == http.StatusInternalServerError {
		// Storage causes stay in the logs.
		msg = string(de.Kind) + " failure"
	}
	writeJSON(w, status, APIError{Code: de.Code, Message: msg})
}
