package fdtl

import "fmt"

// ReasonCompliant is the reason reported when no rule is violated
const ReasonCompliant = "Compliant"

// Check identifies one FDTL rule
type Check string

const (
	CheckDailyCap      Check = "max_daily_flight_time"
	CheckNightDutyRest Check = "night_duty_rest"
	CheckWeeklyCap     Check = "weekly_flight_time_limit"
)

// Violation is a single rule broken by an assignment
type Violation struct {
	Check  Check  `json:"check"`
	Reason string `json:"reason"`
}

// ComplianceResult is the verdict for one assignment.
// Reason is the first violation in check order, or ReasonCompliant.
type ComplianceResult struct {
	Compliant  bool        `json:"compliant"`
	Reason     string      `json:"reason"`
	Violations []Violation `json:"violations,omitempty"`
}

// Compliant builds a passing result with the given reason
func Compliant(reason string) ComplianceResult {
	return ComplianceResult{Compliant: true, Reason: reason}
}

// Validator evaluates assignments against a RuleSet fixed at construction.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	rules RuleSet
}

// NewValidator refuses to build a validator over a missing or malformed rule set
func NewValidator(rules *RuleSet) (*Validator, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Validator{rules: *rules}, nil
}

// Rules returns a copy of the validator's rule set
func (v *Validator) Rules() RuleSet {
	return v.rules
}

// Validate returns the verdict of the first violated check
func (v *Validator) Validate(duty PilotDutyState, flight ProposedFlight) (ComplianceResult, error) {
	return evaluate(duty, flight, &v.rules, false)
}

// ValidateAll returns the same verdict as Validate but lists every violated check
func (v *Validator) ValidateAll(duty PilotDutyState, flight ProposedFlight) (ComplianceResult, error) {
	return evaluate(duty, flight, &v.rules, true)
}

// Validate checks one assignment against rules without building a Validator
func Validate(duty PilotDutyState, flight ProposedFlight, rules *RuleSet) (ComplianceResult, error) {
	if err := rules.Validate(); err != nil {
		return ComplianceResult{}, err
	}
	return evaluate(duty, flight, rules, false)
}

// evaluate runs the checks in fixed order: daily cap, night-duty rest, weekly cap.
// Caps use strict greater-than, so a flight that lands exactly on a cap is legal.
func evaluate(duty PilotDutyState, flight ProposedFlight, rules *RuleSet, all bool) (ComplianceResult, error) {
	if err := flight.Validate(); err != nil {
		return ComplianceResult{}, err
	}
	if err := duty.Validate(); err != nil {
		return ComplianceResult{}, err
	}

	var violations []Violation

	if duty.DailyFlightHours+flight.DurationHours > rules.MaxDailyFlightHours {
		violations = append(violations, Violation{
			Check:  CheckDailyCap,
			Reason: fmt.Sprintf("Exceeds max daily flight time of %g hours.", rules.MaxDailyFlightHours),
		})
		if !all {
			return failed(violations), nil
		}
	}

	if duty.ConsecutiveNightDuties >= rules.MaxConsecutiveNightDuties &&
		duty.HoursSinceLastRest < rules.MandatoryNightRestHours {
		violations = append(violations, Violation{
			Check: CheckNightDutyRest,
			Reason: fmt.Sprintf("Rule violation: %d consecutive night duties require %gh rest.",
				duty.ConsecutiveNightDuties, rules.MandatoryNightRestHours),
		})
		if !all {
			return failed(violations), nil
		}
	}

	if duty.WeeklyFlightHours+flight.DurationHours > rules.MaxWeeklyFlightHours {
		violations = append(violations, Violation{
			Check:  CheckWeeklyCap,
			Reason: fmt.Sprintf("Exceeds %g-hour weekly flight limit.", rules.MaxWeeklyFlightHours),
		})
	}

	if len(violations) > 0 {
		return failed(violations), nil
	}
	return Compliant(ReasonCompliant), nil
}

func failed(violations []Violation) ComplianceResult {
	return ComplianceResult{
		Compliant:  false,
		Reason:     violations[0].Reason,
		Violations: violations,
	}
}
