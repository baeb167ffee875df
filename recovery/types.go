// Package recovery selects the cheapest recovery action that keeps crew within
// flight duty time limits.
//
// Candidates come from an untrusted generator. Every candidate is checked by
// the FDTL validator and, optionally, by operator policies before cost is
// allowed to decide between the survivors.
package recovery

import (
	"fmt"
	"strings"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/rules/generated"
)

// ActionType is the kind of corrective action a candidate proposes
type ActionType string

const (
	ActionNoAction       ActionType = "NO_ACTION"
	ActionDelay          ActionType = "DELAY"
	ActionCancel         ActionType = "CANCEL"
	ActionSwapAircraft   ActionType = "SWAP_AIRCRAFT"
	ActionReassignCrew   ActionType = "REASSIGN_CREW"
	ActionGroundAircraft ActionType = "GROUND_AIRCRAFT"
)

// ActionTypes lists every action type in tariff order
func ActionTypes() []ActionType {
	return []ActionType{
		ActionNoAction,
		ActionDelay,
		ActionCancel,
		ActionSwapAircraft,
		ActionReassignCrew,
		ActionGroundAircraft,
	}
}

// ParseActionType accepts any case and surrounding whitespace
func ParseActionType(s string) (ActionType, error) {
	a := ActionType(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return a, nil
}

func (a ActionType) Valid() bool {
	switch a {
	case ActionNoAction, ActionDelay, ActionCancel, ActionSwapAircraft, ActionReassignCrew, ActionGroundAircraft:
		return true
	}
	return false
}

func (a ActionType) String() string { return string(a) }

// ActionCandidate is one proposed recovery action.
// Duty is set only when the action changes a pilot's duty; DurationHours is
// the flight time the action adds to that duty.
type ActionCandidate struct {
	ID            string               `json:"id" yaml:"id"`
	Type          ActionType           `json:"action_type" yaml:"action_type"`
	Label         string               `json:"label" yaml:"label"`
	DurationHours float64              `json:"duration_hours" yaml:"duration_hours"`
	DelayMinutes  int                  `json:"delay_minutes,omitempty" yaml:"delay_minutes,omitempty"`
	FlightID      string               `json:"flight_id,omitempty" yaml:"flight_id,omitempty"`
	AircraftID    string               `json:"aircraft_id,omitempty" yaml:"aircraft_id,omitempty"`
	PilotID       string               `json:"pilot_id,omitempty" yaml:"pilot_id,omitempty"`
	Source        string               `json:"source,omitempty" yaml:"source,omitempty"`
	Duty          *fdtl.PilotDutyState `json:"duty,omitempty" yaml:"duty,omitempty"`
}

// Flight is the assignment the validator checks for this candidate
func (c ActionCandidate) Flight() fdtl.ProposedFlight {
	return fdtl.ProposedFlight{DurationHours: c.DurationHours, Label: c.Label}
}

// Validate rejects candidates the engine cannot reason about
func (c ActionCandidate) Validate() error {
	if !c.Type.Valid() {
		return &fdtl.ValidationInputError{Field: "action_type", Reason: fmt.Sprintf("unknown action type %q", c.Type)}
	}
	if c.DelayMinutes < 0 {
		return &fdtl.ValidationInputError{Field: "delay_minutes", Reason: fmt.Sprintf("must be non-negative, got %d", c.DelayMinutes)}
	}
	if err := c.Flight().Validate(); err != nil {
		return err
	}
	if c.Duty != nil {
		return c.Duty.Validate()
	}
	return nil
}

// clone copies the candidate so a Proposal never shares duty state with its input
func (c ActionCandidate) clone() ActionCandidate {
	if c.Duty != nil {
		d := *c.Duty
		c.Duty = &d
	}
	return c
}

// facts is the policy engine's view of the candidate
func (c ActionCandidate) facts(d generated.Disruption) generated.Facts {
	f := generated.Facts{
		Candidate: generated.Candidate{
			ID:            c.ID,
			ActionType:    string(c.Type),
			Label:         c.Label,
			DurationHours: c.DurationHours,
			DelayMinutes:  c.DelayMinutes,
			FlightID:      c.FlightID,
			AircraftID:    c.AircraftID,
			PilotID:       c.PilotID,
			Source:        c.Source,
		},
		Disruption: d,
	}
	if c.Duty != nil {
		f.Duty = &generated.Duty{
			DailyFlightHours:       c.Duty.DailyFlightHours,
			WeeklyFlightHours:      c.Duty.WeeklyFlightHours,
			ConsecutiveNightDuties: c.Duty.ConsecutiveNightDuties,
			HoursSinceLastRest:     c.Duty.HoursSinceLastRest,
		}
	}
	return f
}

// CandidateSet is every competing action for one disruption, in enumeration order
type CandidateSet struct {
	Disruption generated.Disruption `json:"disruption" yaml:"disruption"`
	Candidates []ActionCandidate    `json:"candidates" yaml:"candidates"`
}

// Status is a candidate's standing after evaluation
type Status string

const (
	StatusCompliant     Status = "compliant"
	StatusNonCompliant  Status = "non_compliant"
	StatusIndeterminate Status = "indeterminate"
)

// OutcomeStatus says whether a selection produced a winner
type OutcomeStatus string

const (
	OutcomeSelected    OutcomeStatus = "selected"
	OutcomeNoCompliant OutcomeStatus = "no_compliant_candidate"
)

// Proposal is a candidate annotated with its compliance verdict and cost.
// Only the Selector builds proposals.
type Proposal struct {
	Index            int                   `json:"index"`
	Candidate        ActionCandidate       `json:"candidate"`
	Compliance       fdtl.ComplianceResult `json:"compliance"`
	Status           Status                `json:"status"`
	Cost             float64               `json:"cost"`
	Currency         string                `json:"currency"`
	Source           string                `json:"source,omitempty"`
	PolicyViolations []string              `json:"policy_violations,omitempty"`
}

// Eligible reports whether the proposal may be chosen
func (p Proposal) Eligible() bool {
	return p.Status == StatusCompliant && p.Compliance.Compliant
}

// SelectionOutcome is the chosen proposal, if any, plus every evaluated proposal
type SelectionOutcome struct {
	Status     OutcomeStatus        `json:"status"`
	Chosen     *Proposal            `json:"chosen,omitempty"`
	Evaluated  []Proposal           `json:"evaluated"`
	Disruption generated.Disruption `json:"disruption"`
}

// NoCompliantCandidate reports the outcome where every candidate was rejected
func (o *SelectionOutcome) NoCompliantCandidate() bool {
	return o.Status == OutcomeNoCompliant
}
