package recovery

import (
	"fmt"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/rules"
	"github.com/liamcoop/crewrecovery/rules/generated"
)

// ReasonNoDutyImpact is the verdict for candidates that leave every pilot's duty unchanged
const ReasonNoDutyImpact = "Compliant (no crew duty impact)"

// PolicyGate vets candidates that already passed FDTL checks.
// *rules.Engine satisfies it.
type PolicyGate interface {
	Check(facts generated.Facts) ([]*rules.EvaluationResult, error)
}

// Option configures a Selector
type Option func(*Selector)

// WithPolicyGate adds operator policies after the FDTL checks
func WithPolicyGate(g PolicyGate) Option {
	return func(s *Selector) {
		s.gate = g
	}
}

// Selector filters candidates by compliance and then picks the cheapest survivor.
// Compliance is never traded against cost.
type Selector struct {
	validator *fdtl.Validator
	costs     *CostModel
	gate      PolicyGate
}

// NewSelector fails closed when the validator or cost model is missing
func NewSelector(validator *fdtl.Validator, costs *CostModel, opts ...Option) (*Selector, error) {
	if validator == nil {
		return nil, &fdtl.ConfigurationError{Field: "dgca_fdtl", Reason: "rule set is required"}
	}
	if costs == nil {
		return nil, &fdtl.ConfigurationError{Field: "cost_tariff", Reason: "cost model is required"}
	}

	s := &Selector{validator: validator, costs: costs}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Select validates ruleSet and costs, then runs a one-off Selector over set
func Select(set CandidateSet, ruleSet *fdtl.RuleSet, costs *CostModel) (*SelectionOutcome, error) {
	v, err := fdtl.NewValidator(ruleSet)
	if err != nil {
		return nil, err
	}
	s, err := NewSelector(v, costs)
	if err != nil {
		return nil, err
	}
	return s.Select(set)
}

// Select evaluates every candidate and chooses the minimum-cost compliant one.
// Ties go to the earliest candidate. An empty compliant set is reported through
// the outcome status, not as an error.
func (s *Selector) Select(set CandidateSet) (*SelectionOutcome, error) {
	if s == nil || s.validator == nil || s.costs == nil {
		return nil, &fdtl.ConfigurationError{Reason: "selector is not configured"}
	}

	outcome := &SelectionOutcome{
		Status:     OutcomeNoCompliant,
		Evaluated:  make([]Proposal, 0, len(set.Candidates)),
		Disruption: set.Disruption,
	}

	chosen := -1
	for i, c := range set.Candidates {
		p := s.evaluate(i, c, set.Disruption)
		outcome.Evaluated = append(outcome.Evaluated, p)

		if !p.Eligible() {
			continue
		}
		// strict less-than keeps the first-seen candidate on a tie
		if chosen < 0 || p.Cost < outcome.Evaluated[chosen].Cost {
			chosen = i
		}
	}

	if chosen >= 0 {
		winner := outcome.Evaluated[chosen]
		outcome.Chosen = &winner
		outcome.Status = OutcomeSelected
	}
	return outcome, nil
}

func (s *Selector) evaluate(i int, c ActionCandidate, d generated.Disruption) Proposal {
	p := Proposal{
		Index:     i,
		Candidate: c.clone(),
		Currency:  s.costs.Currency(),
		Source:    c.Source,
	}

	// Priced before validation so an indeterminate candidate still reports its cost.
	cost, costErr := s.costs.Cost(c)
	p.Cost = cost
	if err := c.Validate(); err != nil {
		return indeterminate(p, err)
	}
	if costErr != nil {
		return indeterminate(p, costErr)
	}

	if c.Duty == nil {
		p.Compliance = fdtl.Compliant(ReasonNoDutyImpact)
	} else {
		res, err := s.validator.ValidateAll(*c.Duty, c.Flight())
		if err != nil {
			return indeterminate(p, err)
		}
		p.Compliance = res
	}

	if !p.Compliance.Compliant {
		p.Status = StatusNonCompliant
		return p
	}

	if s.gate != nil {
		matched, err := s.gate.Check(c.facts(d))
		if err != nil {
			return indeterminate(p, err)
		}
		if len(matched) > 0 {
			return rejectedByPolicy(p, matched)
		}
	}

	p.Status = StatusCompliant
	return p
}

// indeterminate marks a candidate whose compliance could not be established
func indeterminate(p Proposal, err error) Proposal {
	p.Status = StatusIndeterminate
	p.Compliance = fdtl.ComplianceResult{
		Compliant: false,
		Reason:    fmt.Sprintf("Compliance indeterminate: %v", err),
	}
	return p
}

func rejectedByPolicy(p Proposal, matched []*rules.EvaluationResult) Proposal {
	violations := make([]fdtl.Violation, 0, len(matched))
	ids := make([]string, 0, len(matched))
	for _, m := range matched {
		reason := m.Reason
		if reason == "" {
			reason = fmt.Sprintf("Violates operating policy %s.", m.RuleName)
		}
		violations = append(violations, fdtl.Violation{Check: fdtl.Check("policy:" + m.RuleID), Reason: reason})
		ids = append(ids, m.RuleID)
	}

	p.Status = StatusNonCompliant
	p.PolicyViolations = ids
	p.Compliance = fdtl.ComplianceResult{
		Compliant:  false,
		Reason:     violations[0].Reason,
		Violations: violations,
	}
	return p
}
