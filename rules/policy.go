package rules

import (
	"errors"
	"fmt"

	"github.com/liamcoop/crewrecovery/rules/generated"
)

// Check evaluates every active policy against one candidate.
// It returns the policies that matched. If any policy fails to evaluate the
// error is returned alongside the matches and the candidate's standing is unknown.
func (en *Engine) Check(facts generated.Facts) ([]*EvaluationResult, error) {
	results, err := en.EvaluateAll(facts.Activation())
	if err != nil {
		return nil, err
	}

	var matched []*EvaluationResult
	var errs []error
	for _, r := range results {
		if r.Error != nil {
			errs = append(errs, r.Error)
			continue
		}
		if r.Matched {
			matched = append(matched, r)
		}
	}

	if len(errs) > 0 {
		return matched, fmt.Errorf("policy evaluation failed: %w", errors.Join(errs...))
	}
	return matched, nil
}

// DefaultPolicies are the operating policies every operator starts with
func DefaultPolicies() []*Rule {
	return []*Rule{
		{
			ID:         "security-requires-cancellation",
			Name:       "Security incidents require cancellation",
			Expression: `disruption.type == "security" && candidate.action_type != "CANCEL"`,
			Reason:     "Security incidents require flight cancellations.",
			Active:     true,
		},
		{
			ID:   "severe-weather-requires-ground-stop",
			Name: "Severe weather requires ground stop",
			Expression: `disruption.type == "weather" && disruption.severity in ["high", "critical"] && ` +
				`!(candidate.action_type in ["GROUND_AIRCRAFT", "CANCEL"])`,
			Reason: "Severe weather requires ground stop procedures.",
			Active: true,
		},
	}
}

// Seed adds each rule the store does not already hold
func Seed(en *Engine, policies []*Rule) error {
	for _, p := range policies {
		if _, err := en.store.Get(p.ID); err == nil {
			continue
		}
		r := *p
		if err := en.AddRule(&r); err != nil {
			return fmt.Errorf("failed to seed policy %s: %w", p.ID, err)
		}
	}
	return nil
}
