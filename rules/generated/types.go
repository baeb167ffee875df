// Package generated defines the fact document operating policies are evaluated against.
//
// Field names mirror the CEL variable paths, e.g. candidate.action_type or
// duty.hours_since_last_rest.
package generated

// Disruption describes the event the candidates respond to
type Disruption struct {
	Type        string `json:"type" yaml:"type"`
	Severity    string `json:"severity" yaml:"severity"`
	Airport     string `json:"airport,omitempty" yaml:"airport,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Candidate is the policy-visible view of a recovery action
type Candidate struct {
	ID            string  `json:"id"`
	ActionType    string  `json:"action_type"`
	Label         string  `json:"label"`
	DurationHours float64 `json:"duration_hours"`
	DelayMinutes  int     `json:"delay_minutes"`
	FlightID      string  `json:"flight_id"`
	AircraftID    string  `json:"aircraft_id"`
	PilotID       string  `json:"pilot_id"`
	Source        string  `json:"source"`
}

// Duty is the policy-visible pilot duty snapshot
type Duty struct {
	DailyFlightHours       float64 `json:"daily_flight_hours"`
	WeeklyFlightHours      float64 `json:"weekly_flight_hours"`
	ConsecutiveNightDuties int     `json:"consecutive_night_duties"`
	HoursSinceLastRest     float64 `json:"hours_since_last_rest"`
}

// Facts is the top-level container for one policy evaluation.
// Duty is nil when the candidate has no crew impact.
type Facts struct {
	Candidate  Candidate  `json:"candidate"`
	Duty       *Duty      `json:"duty,omitempty"`
	Disruption Disruption `json:"disruption"`
}

// Activation converts the facts to the map CEL programs evaluate.
// Integers are widened to int64 and the duty map always carries a "present" flag.
func (f Facts) Activation() map[string]any {
	duty := map[string]any{"present": false}
	if f.Duty != nil {
		duty = map[string]any{
			"present":                  true,
			"daily_flight_hours":       f.Duty.DailyFlightHours,
			"weekly_flight_hours":      f.Duty.WeeklyFlightHours,
			"consecutive_night_duties": int64(f.Duty.ConsecutiveNightDuties),
			"hours_since_last_rest":    f.Duty.HoursSinceLastRest,
		}
	}

	return map[string]any{
		"candidate": map[string]any{
			"id":             f.Candidate.ID,
			"action_type":    f.Candidate.ActionType,
			"label":          f.Candidate.Label,
			"duration_hours": f.Candidate.DurationHours,
			"delay_minutes":  int64(f.Candidate.DelayMinutes),
			"flight_id":      f.Candidate.FlightID,
			"aircraft_id":    f.Candidate.AircraftID,
			"pilot_id":       f.Candidate.PilotID,
			"source":         f.Candidate.Source,
		},
		"duty": duty,
		"disruption": map[string]any{
			"type":        f.Disruption.Type,
			"severity":    f.Disruption.Severity,
			"airport":     f.Disruption.Airport,
			"description": f.Disruption.Description,
		},
	}
}
