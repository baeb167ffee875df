// Package fdtl enforces Flight Duty Time Limitation rules on crew assignments.
//
// The validator is a pure function of a pilot's duty snapshot, the flight time
// a recovery action would add, and an immutable RuleSet. It is fail-closed:
// a missing rule set or an unreadable input is an error, never a pass.
package fdtl

import (
	"fmt"
	"math"
)

// RuleSet holds the regulatory limits loaded once per process
type RuleSet struct {
	MaxDailyFlightHours       float64 `json:"maxDailyFlightHours"`
	MaxWeeklyFlightHours      float64 `json:"maxWeeklyFlightHours"`
	MaxConsecutiveNightDuties int     `json:"maxConsecutiveNightDuties"`
	MandatoryNightRestHours   float64 `json:"mandatoryNightRestHours"`
}

// NewRuleSet builds a RuleSet and rejects any limit that is not strictly positive
func NewRuleSet(maxDaily, maxWeekly float64, maxNights int, nightRest float64) (*RuleSet, error) {
	rs := &RuleSet{
		MaxDailyFlightHours:       maxDaily,
		MaxWeeklyFlightHours:      maxWeekly,
		MaxConsecutiveNightDuties: maxNights,
		MandatoryNightRestHours:   nightRest,
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Validate checks that every limit is present and strictly positive.
// A nil receiver is a configuration error.
func (rs *RuleSet) Validate() error {
	if rs == nil {
		return &ConfigurationError{Reason: "rule set is not loaded"}
	}

	limits := []struct {
		field string
		value float64
	}{
		{"max_daily_flight_time", rs.MaxDailyFlightHours},
		{"weekly_flight_time_limit", rs.MaxWeeklyFlightHours},
		{"max_consecutive_night_duties", float64(rs.MaxConsecutiveNightDuties)},
		{"mandatory_night_rest_hours", rs.MandatoryNightRestHours},
	}
	for _, l := range limits {
		if math.IsNaN(l.value) || math.IsInf(l.value, 0) {
			return &ConfigurationError{Field: l.field, Reason: "must be a finite number"}
		}
		if l.value <= 0 {
			return &ConfigurationError{Field: l.field, Reason: fmt.Sprintf("must be greater than 0, got %v", l.value)}
		}
	}
	return nil
}

// PilotDutyState is a pilot's accumulated duty at evaluation time
type PilotDutyState struct {
	DailyFlightHours       float64 `json:"dailyFlightHours" yaml:"daily_flight_hours"`
	WeeklyFlightHours      float64 `json:"weeklyFlightHours" yaml:"weekly_flight_hours"`
	ConsecutiveNightDuties int     `json:"consecutiveNightDuties" yaml:"consecutive_night_duties"`
	HoursSinceLastRest     float64 `json:"hoursSinceLastRest" yaml:"hours_since_last_rest"`
}

// Validate rejects negative or non-finite duty figures
func (d PilotDutyState) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"daily_flight_hours", d.DailyFlightHours},
		{"weekly_flight_hours", d.WeeklyFlightHours},
		{"consecutive_night_duties", float64(d.ConsecutiveNightDuties)},
		{"hours_since_last_rest", d.HoursSinceLastRest},
	}
	for _, f := range fields {
		if err := checkNonNegative(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// ProposedFlight is the flight time a recovery action would add to a pilot's duty
type ProposedFlight struct {
	DurationHours float64 `json:"durationHours" yaml:"duration_hours"`
	Label         string  `json:"label,omitempty" yaml:"label,omitempty"`
}

// Validate rejects a negative or non-finite duration
func (f ProposedFlight) Validate() error {
	return checkNonNegative("duration_hours", f.DurationHours)
}

func checkNonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationInputError{Field: field, Reason: "must be a finite number"}
	}
	if v < 0 {
		return &ValidationInputError{Field: field, Reason: fmt.Sprintf("must be >= 0, got %v", v)}
	}
	return nil
}
