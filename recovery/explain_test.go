package recovery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/crewrecovery/rules/generated"
)

func TestExplainChosenAndRejected(t *testing.T) {
	set := scenario(7.5)
	set.Disruption = generated.Disruption{Type: "weather", Severity: "medium", Airport: "DEL"}

	outcome, err := Select(set, dgcaRules(), defaultCosts(t))
	require.NoError(t, err)

	report := Explain(outcome)

	assert.Contains(t, report, "Recovery proposal for weather disruption (medium) at DEL")
	assert.Contains(t, report, `RECOMMENDED: #2 SWAP_AIRCRAFT "Swap with VT-ABC" [swap]`)
	assert.Contains(t, report, "Cost:   1200.00 INR")
	assert.Contains(t, report, "Reason: "+ReasonNoDutyImpact)
	assert.Contains(t, report, `#1 DELAY "Delay 2 Hours" [delay] - non_compliant, cost 500.00 INR: Exceeds max daily flight time of 8 hours.`)
	assert.Contains(t, report, "lost on cost: 5000.00 INR > 1200.00 INR")
}

func TestExplainNoCompliantCandidate(t *testing.T) {
	set := scenario(7.5)
	set.Candidates = set.Candidates[:1]

	outcome, err := Select(set, dgcaRules(), defaultCosts(t))
	require.NoError(t, err)

	report := Explain(outcome)
	assert.Contains(t, report, "NO COMPLIANT CANDIDATE: all 1 candidates were rejected")
	assert.NotContains(t, report, "RECOMMENDED")
	assert.Contains(t, report, "Exceeds max daily flight time of 8 hours.")
}

func TestExplainTie(t *testing.T) {
	set := CandidateSet{Candidates: []ActionCandidate{
		{ID: "first", Type: ActionReassignCrew},
		{ID: "second", Type: ActionReassignCrew},
	}}
	outcome, err := Select(set, dgcaRules(), defaultCosts(t))
	require.NoError(t, err)

	assert.Contains(t, Explain(outcome), "lost on enumeration order: tied at 250.00 INR with candidate #1")
}

func TestExplainNil(t *testing.T) {
	assert.Equal(t, "No selection outcome.\n", Explain(nil))
	_, err := ExplainJSON(nil)
	assert.Error(t, err)
}

func TestExplainJSON(t *testing.T) {
	outcome, err := Select(scenario(7.5), dgcaRules(), defaultCosts(t))
	require.NoError(t, err)

	raw, err := ExplainJSON(outcome)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(raw, &report))

	assert.Equal(t, OutcomeSelected, report.Status)
	assert.Nil(t, report.Disruption)
	require.NotNil(t, report.Chosen)
	assert.Equal(t, "swap", report.Chosen.ID)

	require.Len(t, report.Candidates, 3)
	assert.Equal(t, VerdictRejected, report.Candidates[0].Verdict)
	assert.Equal(t, []string{"Exceeds max daily flight time of 8 hours."}, report.Candidates[0].Violations)
	assert.Equal(t, VerdictChosen, report.Candidates[1].Verdict)
	assert.Equal(t, VerdictLostOnCost, report.Candidates[2].Verdict)
}
