package main

import (
	"time"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/recovery"
	"github.com/liamcoop/crewrecovery/rules"
	"github.com/liamcoop/crewrecovery/rules/generated"
)

// Request fields are pointers so a missing value is a 400, not a zero

// DutyRequest is a pilot duty snapshot in a request body
type DutyRequest struct {
	DailyFlightHours       *float64 `json:"daily_flight_hours" validate:"required"`
	WeeklyFlightHours      *float64 `json:"weekly_flight_hours" validate:"required"`
	ConsecutiveNightDuties *int     `json:"consecutive_night_duties" validate:"required"`
	HoursSinceLastRest     *float64 `json:"hours_since_last_rest" validate:"required"`
}

func (d *DutyRequest) toDuty() fdtl.PilotDutyState {
	return fdtl.PilotDutyState{
		DailyFlightHours:       *d.DailyFlightHours,
		WeeklyFlightHours:      *d.WeeklyFlightHours,
		ConsecutiveNightDuties: *d.ConsecutiveNightDuties,
		HoursSinceLastRest:     *d.HoursSinceLastRest,
	}
}

// FlightRequest is the assignment being checked
type FlightRequest struct {
	DurationHours *float64 `json:"duration_hours" validate:"required"`
	Label         string   `json:"label"`
}

// ValidateRequest is the body of POST /api/v1/validate
type ValidateRequest struct {
	Duty   *DutyRequest   `json:"duty" validate:"required"`
	Flight *FlightRequest `json:"flight" validate:"required"`
}

// ValidateResponse mirrors fdtl.ComplianceResult
type ValidateResponse struct {
	Compliant  bool             `json:"compliant"`
	Reason     string           `json:"reason"`
	Violations []fdtl.Violation `json:"violations,omitempty"`
}

// CandidateRequest is one action in POST /api/v1/select.
// duration_hours is required whenever duty is given.
type CandidateRequest struct {
	ID            string       `json:"id"`
	ActionType    string       `json:"action_type" validate:"required"`
	Label         string       `json:"label"`
	DurationHours *float64     `json:"duration_hours" validate:"required_with=Duty"`
	DelayMinutes  int          `json:"delay_minutes"`
	FlightID      string       `json:"flight_id"`
	AircraftID    string       `json:"aircraft_id"`
	PilotID       string       `json:"pilot_id"`
	Source        string       `json:"source"`
	Duty          *DutyRequest `json:"duty"`
}

func (c CandidateRequest) toCandidate() recovery.ActionCandidate {
	out := recovery.ActionCandidate{
		ID:           c.ID,
		Type:         recovery.ActionType(c.ActionType),
		Label:        c.Label,
		DelayMinutes: c.DelayMinutes,
		FlightID:     c.FlightID,
		AircraftID:   c.AircraftID,
		PilotID:      c.PilotID,
		Source:       c.Source,
	}
	// unknown types are kept verbatim so the selector marks them indeterminate
	if a, err := recovery.ParseActionType(c.ActionType); err == nil {
		out.Type = a
	}
	if c.DurationHours != nil {
		out.DurationHours = *c.DurationHours
	}
	if c.Duty != nil {
		d := c.Duty.toDuty()
		out.Duty = &d
	}
	return out
}

// DisruptionRequest describes the triggering event
type DisruptionRequest struct {
	Type        string `json:"type" validate:"required"`
	Severity    string `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Airport     string `json:"airport"`
	Description string `json:"description"`
}

func (d *DisruptionRequest) toDisruption() generated.Disruption {
	if d == nil {
		return generated.Disruption{}
	}
	return generated.Disruption{
		Type:        d.Type,
		Severity:    d.Severity,
		Airport:     d.Airport,
		Description: d.Description,
	}
}

// SelectRequest is the body of POST /api/v1/select
type SelectRequest struct {
	Disruption *DisruptionRequest `json:"disruption"`
	Candidates []CandidateRequest `json:"candidates" validate:"dive"`
}

// ProposalRequest is the body of POST /api/v1/disruptions/proposals.
// Without duty, the pilot's duty is read from the duty store.
type ProposalRequest struct {
	Disruption *DisruptionRequest `json:"disruption" validate:"required"`
	FlightID   string             `json:"flight_id"`
	AircraftID string             `json:"aircraft_id"`
	PilotID    string             `json:"pilot_id"`
	BlockHours *float64           `json:"block_hours" validate:"required,gte=0"`
	Duty       *DutyRequest       `json:"duty"`
}

// SelectionResponse is returned by both selection endpoints
type SelectionResponse struct {
	ID          string                 `json:"id"`
	Status      recovery.OutcomeStatus `json:"status"`
	Chosen      *recovery.Proposal     `json:"chosen,omitempty"`
	Evaluated   []recovery.Proposal    `json:"evaluated"`
	Report      recovery.Report        `json:"report"`
	Explanation string                 `json:"explanation"`
}

// PolicyRequest is the body of policy create and update calls
type PolicyRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name" validate:"required"`
	Expression string `json:"expression" validate:"required"`
	Reason     string `json:"reason"`
	Active     *bool  `json:"active"`
}

// RuleSetResponse is returned by GET /api/v1/ruleset
type RuleSetResponse struct {
	RuleSet fdtl.RuleSet    `json:"dgca_fdtl"`
	Tariff  recovery.Tariff `json:"cost_tariff"`
}

// HealthResponse is returned by GET /api/v1/health
type HealthResponse struct {
	Status         string    `json:"status"`
	Storage        string    `json:"storage"`
	ActivePolicies int       `json:"activePolicies"`
	Error          string    `json:"error,omitempty"`
	Time           time.Time `json:"time"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (p PolicyRequest) toRule(id string) *rules.Rule {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return &rules.Rule{
		ID:         id,
		Name:       p.Name,
		Expression: p.Expression,
		Reason:     p.Reason,
		Active:     active,
	}
}
