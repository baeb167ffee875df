package rules

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func validPolicy() *Rule {
	return &Rule{
		ID:         "no-long-delays",
		Name:       "No long delays",
		Expression: `candidate.action_type == "DELAY" && candidate.delay_minutes > 240`,
		Reason:     "Delays over four hours are not allowed.",
		Active:     true,
	}
}

func TestValidatePolicy_Valid(t *testing.T) {
	if err := ValidatePolicy(validPolicy()); err != nil {
		t.Errorf("ValidatePolicy() failed: %v", err)
	}
}

func TestValidatePolicy_DefaultPoliciesAreValid(t *testing.T) {
	for _, p := range DefaultPolicies() {
		if err := ValidatePolicy(p); err != nil {
			t.Errorf("default policy %s is invalid: %v", p.ID, err)
		}
	}
}

func TestValidatePolicy_IDFormats(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"security-requires-cancellation", true},
		{"p1", true},
		{"Ops.Night_Rule-2", true},
		{"0c6d1f6e-5b1a-4c1e-9a3f-2f5d8f1b7a10", true},
		{"", false},
		{"-leading-dash", false},
		{"has space", false},
		{"slash/id", false},
		{strings.Repeat("a", maxIDLength), true},
		{strings.Repeat("a", maxIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			r := validPolicy()
			r.ID = tt.id
			err := ValidatePolicy(r)
			if tt.valid && err != nil {
				t.Errorf("ValidatePolicy(%q) failed: %v", tt.id, err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatalf("ValidatePolicy(%q) should fail", tt.id)
				}
				if !errors.Is(err, ErrInvalidPolicy) {
					t.Errorf("error %v should match ErrInvalidPolicy", err)
				}
			}
		})
	}
}

func TestValidatePolicy_LengthLimits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Rule)
		want   error
	}{
		{"empty name", func(r *Rule) { r.Name = "  " }, ErrInvalidPolicy},
		{"long name", func(r *Rule) { r.Name = strings.Repeat("n", maxNameLength+1) }, ErrInvalidPolicy},
		{"long reason", func(r *Rule) { r.Reason = strings.Repeat("r", maxReasonLength+1) }, ErrInvalidPolicy},
		{"long expression", func(r *Rule) {
			r.Expression = "true" + strings.Repeat(" ", maxExpressionLength)
		}, ErrInvalidExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validPolicy()
			tt.mutate(r)
			if err := ValidatePolicy(r); !errors.Is(err, tt.want) {
				t.Errorf("ValidatePolicy() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidatePolicy_FieldReferences(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		unknown    string
	}{
		{"known candidate field", `candidate.delay_minutes > 60`, ""},
		{"duty presence flag", `duty.present && duty.consecutive_night_duties > 1`, ""},
		{"disruption fields", `disruption.type == "weather" && disruption.severity in ["high", "critical"]`, ""},
		{"has macro", `has(candidate.pilot_id) && candidate.pilot_id != ""`, ""},
		{"comprehension variable", `["DELAY", "CANCEL"].exists(a, a == candidate.action_type)`, ""},
		{"typo in candidate field", `candidate.acton_type == "DELAY"`, "candidate.acton_type"},
		{"unknown duty field", `duty.rest_hours < 10.0`, "duty.rest_hours"},
		{"unknown field inside has", `has(disruption.runway)`, "disruption.runway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validPolicy()
			r.Expression = tt.expression
			err := ValidatePolicy(r)
			if tt.unknown == "" {
				if err != nil {
					t.Errorf("ValidatePolicy() failed: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidExpression) {
				t.Fatalf("ValidatePolicy() = %v, want ErrInvalidExpression", err)
			}
			if !strings.Contains(err.Error(), tt.unknown) {
				t.Errorf("error %q should name %s", err, tt.unknown)
			}
		})
	}
}

func TestValidatePolicy_SyntaxError(t *testing.T) {
	r := validPolicy()
	r.Expression = `candidate.action_type ==`
	if err := ValidatePolicy(r); !errors.Is(err, ErrInvalidExpression) {
		t.Errorf("ValidatePolicy() = %v, want ErrInvalidExpression", err)
	}
}

func TestFields(t *testing.T) {
	duty := Fields(VarDuty)
	if !slices.Contains(duty, "present") || !slices.Contains(duty, "hours_since_last_rest") {
		t.Errorf("Fields(duty) = %v", duty)
	}
	if !slices.IsSorted(duty) {
		t.Errorf("Fields(duty) should be sorted: %v", duty)
	}
	if got := Fields("crew"); len(got) != 0 {
		t.Errorf("Fields(crew) = %v, want none", got)
	}
}
