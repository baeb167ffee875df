package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/internal/logger"
	"github.com/liamcoop/crewrecovery/internal/metrics"
	"github.com/liamcoop/crewrecovery/recovery"
	"github.com/liamcoop/crewrecovery/rules"
	"github.com/liamcoop/crewrecovery/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Storage: "memory", Time: time.Now().UTC()}

	if s.db != nil {
		resp.Storage = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	active, err := s.policies.ActiveRules()
	if err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.ActivePolicies = len(active)

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuleSet(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RuleSetResponse{
		RuleSet: s.validator.Rules(),
		Tariff:  s.costs.Tariff(),
	})
}

// handleValidate checks one assignment and reports every rule it breaks
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !s.decode(w, r, &req) {
		return
	}

	flight := fdtl.ProposedFlight{DurationHours: *req.Flight.DurationHours, Label: req.Flight.Label}
	result, err := s.validator.ValidateAll(req.Duty.toDuty(), flight)
	if err != nil {
		respondError(w, statusFor(err), "invalid duty or flight", err)
		return
	}

	respondJSON(w, http.StatusOK, ValidateResponse{
		Compliant:  result.Compliant,
		Reason:     result.Reason,
		Violations: result.Violations,
	})
}

// handleSelect runs the selector over caller-supplied candidates
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !s.decode(w, r, &req) {
		return
	}

	set := recovery.CandidateSet{
		Disruption: req.Disruption.toDisruption(),
		Candidates: make([]recovery.ActionCandidate, len(req.Candidates)),
	}
	for i, c := range req.Candidates {
		set.Candidates[i] = c.toCandidate()
	}

	s.selectAndRespond(w, r, set)
}

// handleProposals generates candidates from the playbook and selects one
func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	var req ProposalRequest
	if !s.decode(w, r, &req) {
		return
	}

	dc := recovery.DisruptionContext{
		Disruption: req.Disruption.toDisruption(),
		FlightID:   req.FlightID,
		AircraftID: req.AircraftID,
		PilotID:    req.PilotID,
		BlockHours: *req.BlockHours,
	}

	switch {
	case req.Duty != nil:
		duty := req.Duty.toDuty()
		dc.Duty = &duty
	case req.PilotID != "":
		duty, err := s.duty.GetDuty(r.Context(), req.PilotID)
		switch {
		case err == nil:
			dc.Duty = &duty
		case errors.Is(err, store.ErrNotFound):
			logger.Warn("no duty on record, crew actions omitted", "pilotId", req.PilotID)
		default:
			respondError(w, http.StatusInternalServerError, "failed to read pilot duty", err)
			return
		}
	}

	candidates, err := s.generator.Generate(r.Context(), dc)
	if err != nil {
		respondError(w, statusFor(err), "failed to generate candidates", err)
		return
	}

	s.selectAndRespond(w, r, recovery.CandidateSet{Disruption: dc.Disruption, Candidates: candidates})
}

func (s *Server) selectAndRespond(w http.ResponseWriter, r *http.Request, set recovery.CandidateSet) {
	start := time.Now()
	outcome, err := s.selector.Select(set)
	if err != nil {
		respondError(w, statusFor(err), "selection failed", err)
		return
	}
	metrics.ObserveSelection(outcome, time.Since(start))

	resp := SelectionResponse{
		Status:      outcome.Status,
		Chosen:      outcome.Chosen,
		Evaluated:   outcome.Evaluated,
		Report:      recovery.NewReport(outcome),
		Explanation: recovery.Explain(outcome),
	}

	// the decision is still returned when the audit write fails
	rec, err := s.audit.Record(r.Context(), outcome)
	if err != nil {
		logger.Error("failed to record proposal", "error", err)
	} else {
		resp.ID = rec.ID.String()
	}

	args := []any{
		"proposalId", resp.ID,
		"status", outcome.Status,
		"disruption", outcome.Disruption.Type,
		"candidates", len(outcome.Evaluated),
	}
	if outcome.Chosen != nil {
		args = append(args,
			"chosenId", outcome.Chosen.Candidate.ID,
			"actionType", outcome.Chosen.Candidate.Type,
			"cost", outcome.Chosen.Cost)
	}
	logger.Audit("recovery proposal", args...)

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := s.audit.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list proposals", err)
		return
	}
	if records == nil {
		records = []store.AuditRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"proposals": records,
		"count":     len(records),
	})
}

// handleGetProposal returns a recorded outcome; ?format=text renders the explanation
func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "proposalId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid proposal id", err)
		return
	}

	rec, err := s.audit.Get(r.Context(), id)
	if err != nil {
		respondError(w, statusFor(err), "proposal not found", err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, recovery.Explain(rec.Outcome))
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	list, err := s.policies.Rules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list policies", err)
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"policies": list,
		"count":    len(list),
	})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	rule, err := s.policies.Rule(chi.URLParam(r, "policyId"))
	if err != nil {
		respondError(w, statusFor(err), "policy not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if !s.decode(w, r, &req) {
		return
	}

	rule := req.toRule(req.ID)
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := rules.ValidatePolicy(rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid policy", err)
		return
	}

	if err := s.policies.AddRule(rule); err != nil {
		respondError(w, statusFor(err), "failed to create policy", err)
		return
	}

	logger.Info("policy created", "policyId", rule.ID, "name", rule.Name)
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if !s.decode(w, r, &req) {
		return
	}

	rule := req.toRule(chi.URLParam(r, "policyId"))
	if err := rules.ValidatePolicy(rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid policy", err)
		return
	}
	if err := s.policies.UpdateRule(rule); err != nil {
		respondError(w, statusFor(err), "failed to update policy", err)
		return
	}

	logger.Info("policy updated", "policyId", rule.ID, "active", rule.Active)
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "policyId")
	if err := s.policies.DeleteRule(id); err != nil {
		respondError(w, statusFor(err), "failed to delete policy", err)
		return
	}

	logger.Info("policy deleted", "policyId", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetDuty(w http.ResponseWriter, r *http.Request) {
	pilotID := chi.URLParam(r, "pilotId")
	duty, err := s.duty.GetDuty(r.Context(), pilotID)
	if err != nil {
		respondError(w, statusFor(err), "duty not found", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"pilot_id": pilotID,
		"duty":     duty,
	})
}

func (s *Server) handlePutDuty(w http.ResponseWriter, r *http.Request) {
	var req DutyRequest
	if !s.decode(w, r, &req) {
		return
	}

	pilotID := chi.URLParam(r, "pilotId")
	duty := req.toDuty()
	if err := s.duty.PutDuty(r.Context(), pilotID, duty); err != nil {
		respondError(w, statusFor(err), "failed to store duty", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"pilot_id": pilotID,
		"duty":     duty,
	})
}

// decode reads and validates a JSON body, writing a 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", describeValidation(err))
		return false
	}
	return true
}

// describeValidation lists failing fields by their JSON path
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", jsonPath(fe.StructNamespace()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// jsonPath turns "SelectRequest.Candidates[0].DurationHours" into "candidates[0].durationhours"
func jsonPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	return strings.ToLower(namespace)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, fdtl.ErrValidationInput),
		errors.Is(err, rules.ErrInvalidExpression),
		errors.Is(err, rules.ErrInvalidPolicy),
		errors.Is(err, recovery.ErrUnknownDisruptionType):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrRuleNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
