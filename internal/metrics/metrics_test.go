package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/recovery"
)

func TestObserveSelection(t *testing.T) {
	selectedBefore := testutil.ToFloat64(selections.WithLabelValues("selected"))
	rejectedBefore := testutil.ToFloat64(candidates.WithLabelValues("non_compliant"))
	dailyBefore := testutil.ToFloat64(violations.WithLabelValues(string(fdtl.CheckDailyCap)))

	chosen := recovery.Proposal{Status: recovery.StatusCompliant, Compliance: fdtl.Compliant(fdtl.ReasonCompliant)}
	o := &recovery.SelectionOutcome{
		Status: recovery.OutcomeSelected,
		Chosen: &chosen,
		Evaluated: []recovery.Proposal{
			{
				Status: recovery.StatusNonCompliant,
				Compliance: fdtl.ComplianceResult{Violations: []fdtl.Violation{
					{Check: fdtl.CheckDailyCap},
					{Check: fdtl.CheckWeeklyCap},
				}},
			},
			chosen,
		},
	}
	ObserveSelection(o, time.Millisecond)
	ObserveSelection(nil, time.Millisecond)

	assert.Equal(t, selectedBefore+1, testutil.ToFloat64(selections.WithLabelValues("selected")))
	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(candidates.WithLabelValues("non_compliant")))
	assert.Equal(t, dailyBefore+1, testutil.ToFloat64(violations.WithLabelValues(string(fdtl.CheckDailyCap))))
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/api/v1/select", "200"))
	ObserveRequest("POST", "/api/v1/select", 200, 5*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/api/v1/select", "200")))
}

func TestObserveSelectionFoldsPolicyChecks(t *testing.T) {
	policyBefore := testutil.ToFloat64(violations.WithLabelValues("policy"))

	o := &recovery.SelectionOutcome{
		Status: recovery.OutcomeNoCompliant,
		Evaluated: []recovery.Proposal{{
			Status: recovery.StatusNonCompliant,
			Compliance: fdtl.ComplianceResult{Violations: []fdtl.Violation{
				{Check: fdtl.Check("policy:security-requires-cancellation")},
				{Check: fdtl.Check("policy:operator-defined-42")},
			}},
		}},
	}
	ObserveSelection(o, time.Millisecond)

	assert.Equal(t, policyBefore+2, testutil.ToFloat64(violations.WithLabelValues("policy")))
	assert.Equal(t, "policy", checkLabel("policy:anything"))
	assert.Equal(t, string(fdtl.CheckNightDutyRest), checkLabel(fdtl.CheckNightDutyRest))
}
