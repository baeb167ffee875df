package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liamcoop/crewrecovery/fdtl"
)

func dgcaRules() *fdtl.RuleSet {
	return &fdtl.RuleSet{
		MaxDailyFlightHours:       8,
		MaxWeeklyFlightHours:      35,
		MaxConsecutiveNightDuties: 2,
		MandatoryNightRestHours:   56,
	}
}

func defaultCosts(t *testing.T) *CostModel {
	t.Helper()
	m, err := NewCostModel(DefaultTariff())
	require.NoError(t, err)
	return m
}

func newSelector(t *testing.T, opts ...Option) *Selector {
	t.Helper()
	v, err := fdtl.NewValidator(dgcaRules())
	require.NoError(t, err)
	s, err := NewSelector(v, defaultCosts(t), opts...)
	require.NoError(t, err)
	return s
}

// scenario is the three-branch delay/swap/cancel set with the given duty on the delay
func scenario(daily float64) CandidateSet {
	return CandidateSet{
		Candidates: []ActionCandidate{
			{
				ID:            "delay",
				Type:          ActionDelay,
				Label:         "Delay 2 Hours",
				DurationHours: 2,
				DelayMinutes:  120,
				Duty: &fdtl.PilotDutyState{
					DailyFlightHours:       daily,
					WeeklyFlightHours:      10,
					ConsecutiveNightDuties: 0,
					HoursSinceLastRest:     20,
				},
			},
			{ID: "swap", Type: ActionSwapAircraft, Label: "Swap with VT-ABC"},
			{ID: "cancel", Type: ActionCancel, Label: "Cancel Flight"},
		},
	}
}
