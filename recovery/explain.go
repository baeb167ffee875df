package recovery

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liamcoop/crewrecovery/rules/generated"
)

// Verdict says how a proposal fared in the selection
type Verdict string

const (
	VerdictChosen        Verdict = "chosen"
	VerdictRejected      Verdict = "rejected"
	VerdictLostOnCost    Verdict = "lost_on_cost"
	VerdictLostOnTie     Verdict = "lost_on_tie"
	VerdictIndeterminate Verdict = "indeterminate"
)

// verdict explains one proposal relative to the winner
func verdict(p Proposal, chosen *Proposal) (Verdict, string) {
	switch {
	case chosen != nil && p.Index == chosen.Index:
		return VerdictChosen, p.Compliance.Reason
	case p.Status == StatusIndeterminate:
		return VerdictIndeterminate, p.Compliance.Reason
	case !p.Eligible():
		return VerdictRejected, p.Compliance.Reason
	case chosen != nil && p.Cost == chosen.Cost:
		return VerdictLostOnTie, fmt.Sprintf("lost on enumeration order: tied at %s with candidate #%d",
			money(p.Cost, p.Currency), chosen.Index+1)
	case chosen != nil:
		return VerdictLostOnCost, fmt.Sprintf("lost on cost: %s > %s",
			money(p.Cost, p.Currency), money(chosen.Cost, chosen.Currency))
	}
	return VerdictRejected, p.Compliance.Reason
}

func money(v float64, currency string) string {
	return strings.TrimSpace(fmt.Sprintf("%.2f %s", v, currency))
}

func describe(p Proposal) string {
	s := fmt.Sprintf("#%d %s", p.Index+1, p.Candidate.Type)
	if p.Candidate.Label != "" {
		s += fmt.Sprintf(" %q", p.Candidate.Label)
	}
	if p.Candidate.ID != "" {
		s += " [" + p.Candidate.ID + "]"
	}
	return s
}

// Explain renders the outcome as a plain-text audit report.
// Every candidate appears with the reason it won or lost.
func Explain(o *SelectionOutcome) string {
	if o == nil {
		return "No selection outcome.\n"
	}

	var b strings.Builder

	b.WriteString("Recovery proposal")
	if o.Disruption.Type != "" {
		fmt.Fprintf(&b, " for %s disruption", o.Disruption.Type)
		if o.Disruption.Severity != "" {
			fmt.Fprintf(&b, " (%s)", o.Disruption.Severity)
		}
		if o.Disruption.Airport != "" {
			fmt.Fprintf(&b, " at %s", o.Disruption.Airport)
		}
	}
	fmt.Fprintf(&b, "\nCandidates evaluated: %d\n\n", len(o.Evaluated))

	if o.Chosen != nil {
		c := o.Chosen
		fmt.Fprintf(&b, "RECOMMENDED: %s\n", describe(*c))
		fmt.Fprintf(&b, "  Status: %s\n", c.Status)
		fmt.Fprintf(&b, "  Cost:   %s\n", money(c.Cost, c.Currency))
		fmt.Fprintf(&b, "  Reason: %s\n", c.Compliance.Reason)
		if c.Source != "" {
			fmt.Fprintf(&b, "  Source: %s\n", c.Source)
		}
	} else {
		fmt.Fprintf(&b, "NO COMPLIANT CANDIDATE: all %d candidates were rejected; no action is recommended.\n", len(o.Evaluated))
	}

	var others []Proposal
	for _, p := range o.Evaluated {
		if o.Chosen != nil && p.Index == o.Chosen.Index {
			continue
		}
		others = append(others, p)
	}
	if len(others) == 0 {
		return b.String()
	}

	b.WriteString("\nOther candidates:\n")
	for _, p := range others {
		_, why := verdict(p, o.Chosen)
		fmt.Fprintf(&b, "  %s - %s, cost %s: %s\n", describe(p), p.Status, money(p.Cost, p.Currency), why)
		for _, v := range p.Compliance.Violations[min(1, len(p.Compliance.Violations)):] {
			fmt.Fprintf(&b, "      also: %s\n", v.Reason)
		}
	}
	return b.String()
}

// ReportEntry is one candidate in the structured report
type ReportEntry struct {
	Index      int        `json:"index"`
	ID         string     `json:"id,omitempty"`
	ActionType ActionType `json:"action_type"`
	Label      string     `json:"label,omitempty"`
	Status     Status     `json:"status"`
	Cost       float64    `json:"cost"`
	Currency   string     `json:"currency"`
	Verdict    Verdict    `json:"verdict"`
	Reason     string     `json:"reason"`
	Violations []string   `json:"violations,omitempty"`
	Source     string     `json:"source,omitempty"`
}

// Report is the structured form of Explain
type Report struct {
	Status     OutcomeStatus         `json:"status"`
	Disruption *generated.Disruption `json:"disruption,omitempty"`
	Chosen     *ReportEntry          `json:"chosen,omitempty"`
	Candidates []ReportEntry         `json:"candidates"`
}

// NewReport builds the structured explanation of an outcome
func NewReport(o *SelectionOutcome) Report {
	r := Report{Status: o.Status, Candidates: make([]ReportEntry, 0, len(o.Evaluated))}
	if o.Disruption.Type != "" {
		d := o.Disruption
		r.Disruption = &d
	}

	for _, p := range o.Evaluated {
		v, why := verdict(p, o.Chosen)
		e := ReportEntry{
			Index:      p.Index,
			ID:         p.Candidate.ID,
			ActionType: p.Candidate.Type,
			Label:      p.Candidate.Label,
			Status:     p.Status,
			Cost:       p.Cost,
			Currency:   p.Currency,
			Verdict:    v,
			Reason:     why,
			Source:     p.Source,
		}
		for _, viol := range p.Compliance.Violations {
			e.Violations = append(e.Violations, viol.Reason)
		}
		if v == VerdictChosen {
			chosen := e
			r.Chosen = &chosen
		}
		r.Candidates = append(r.Candidates, e)
	}
	return r
}

// ExplainJSON is the structured report encoded as JSON
func ExplainJSON(o *SelectionOutcome) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("nil selection outcome")
	}
	return json.MarshalIndent(NewReport(o), "", "  ")
}
