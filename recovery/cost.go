package recovery

import (
	"fmt"
	"maps"
	"math"

	"github.com/liamcoop/crewrecovery/fdtl"
)

// Tariff prices each action type. Delays add a per-minute charge on top of
// the DELAY base price.
type Tariff struct {
	Currency       string                 `json:"currency" yaml:"currency"`
	DelayPerMinute float64                `json:"delay_per_minute" yaml:"delay_per_minute"`
	Base           map[ActionType]float64 `json:"base" yaml:"base"`
}

// DefaultTariff is the INR tariff operators start from
func DefaultTariff() Tariff {
	return Tariff{
		Currency:       "INR",
		DelayPerMinute: 2,
		Base: map[ActionType]float64{
			ActionCancel:         5000,
			ActionNoAction:       1500,
			ActionSwapAircraft:   1200,
			ActionGroundAircraft: 900,
			ActionDelay:          260,
			ActionReassignCrew:   250,
		},
	}
}

// Validate requires a currency and a finite, non-negative price for every action type
func (t Tariff) Validate() error {
	if t.Currency == "" {
		return &fdtl.ConfigurationError{Field: "cost_tariff.currency", Reason: "is required"}
	}
	if !nonNegative(t.DelayPerMinute) {
		return &fdtl.ConfigurationError{
			Field:  "cost_tariff.delay_per_minute",
			Reason: fmt.Sprintf("must be a non-negative number, got %v", t.DelayPerMinute),
		}
	}
	for a := range t.Base {
		if !a.Valid() {
			return &fdtl.ConfigurationError{Field: "cost_tariff.base", Reason: fmt.Sprintf("unknown action type %q", a)}
		}
	}
	for _, a := range ActionTypes() {
		price, ok := t.Base[a]
		if !ok {
			return &fdtl.ConfigurationError{Field: "cost_tariff.base." + string(a), Reason: "is required"}
		}
		if !nonNegative(price) {
			return &fdtl.ConfigurationError{
				Field:  "cost_tariff.base." + string(a),
				Reason: fmt.Sprintf("must be a non-negative number, got %v", price),
			}
		}
	}
	return nil
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// CostModel prices candidates from a validated tariff.
// It is immutable and safe for concurrent use.
type CostModel struct {
	tariff Tariff
}

// NewCostModel copies and validates the tariff
func NewCostModel(t Tariff) (*CostModel, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.Base = maps.Clone(t.Base)
	return &CostModel{tariff: t}, nil
}

// Tariff returns a copy of the model's tariff
func (m *CostModel) Tariff() Tariff {
	t := m.tariff
	t.Base = maps.Clone(t.Base)
	return t
}

func (m *CostModel) Currency() string { return m.tariff.Currency }

// Cost is the base price of the candidate's action plus, for delays, the per-minute charge
func (m *CostModel) Cost(c ActionCandidate) (float64, error) {
	price, ok := m.tariff.Base[c.Type]
	if !ok {
		return 0, &fdtl.ValidationInputError{Field: "action_type", Reason: fmt.Sprintf("no tariff for action type %q", c.Type)}
	}
	if c.Type != ActionDelay {
		return price, nil
	}
	if c.DelayMinutes < 0 {
		return 0, &fdtl.ValidationInputError{Field: "delay_minutes", Reason: fmt.Sprintf("must be non-negative, got %d", c.DelayMinutes)}
	}
	return price + m.tariff.DelayPerMinute*float64(c.DelayMinutes), nil
}
