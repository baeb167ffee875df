package rules

import (
	"errors"
	"time"
)

var (
	ErrRuleNotFound      = errors.New("rule not found")
	ErrRuleExists        = errors.New("rule already exists")
	ErrInvalidExpression = errors.New("invalid policy expression")
)

// Rule is an operating policy written as a CEL expression.
// The expression describes a forbidden situation: when it evaluates to true
// for a candidate, the candidate violates the policy and Reason explains why.
type Rule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	Reason     string    `json:"reason"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// EvaluationResult contains the outcome of evaluating a rule against one candidate
type EvaluationResult struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Reason   string `json:"reason,omitempty"`
	Matched  bool   `json:"matched"`
	Error    error  `json:"-"`
	Trace    any    `json:"-"` // CEL evaluation state (optional)
}

// Variables exposed to policy expressions
const (
	VarCandidate  = "candidate"
	VarDuty       = "duty"
	VarDisruption = "disruption"
)
