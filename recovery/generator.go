package recovery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/rules/generated"
)

// ErrUnknownDisruptionType is returned when no playbook covers a disruption type
var ErrUnknownDisruptionType = errors.New("unknown disruption type")

// DisruptionContext is everything a generator knows about the affected flight.
// BlockHours is the flight time the assigned crew adds by operating it.
type DisruptionContext struct {
	Disruption generated.Disruption `json:"disruption" yaml:"disruption"`
	FlightID   string               `json:"flight_id,omitempty" yaml:"flight_id,omitempty"`
	AircraftID string               `json:"aircraft_id,omitempty" yaml:"aircraft_id,omitempty"`
	PilotID    string               `json:"pilot_id,omitempty" yaml:"pilot_id,omitempty"`
	BlockHours float64              `json:"block_hours" yaml:"block_hours"`
	Duty       *fdtl.PilotDutyState `json:"duty,omitempty" yaml:"duty,omitempty"`
}

// CandidateGenerator drafts recovery actions for a disruption.
// Its output is untrusted: every candidate still goes through the Selector.
type CandidateGenerator interface {
	Generate(ctx context.Context, dc DisruptionContext) ([]ActionCandidate, error)
}

// Play is one templated action in a playbook.
// Label may reference {flight}, {aircraft} and {airport}.
type Play struct {
	Type         ActionType
	Label        string
	DelayMinutes int
	// CrewOperates is set when the assigned crew still flies the flight
	CrewOperates bool
}

// DefaultPlaybook is the action catalogue per disruption type
func DefaultPlaybook() map[string][]Play {
	return map[string][]Play{
		"weather": {
			{Type: ActionDelay, Label: "Delay {flight} by 2 hours for visibility to improve", DelayMinutes: 120, CrewOperates: true},
			{Type: ActionGroundAircraft, Label: "Ground stop for {aircraft} at {airport}"},
			{Type: ActionCancel, Label: "Cancel {flight} and consolidate passenger loads"},
			{Type: ActionNoAction, Label: "Operate {flight} as scheduled under weather contingency", CrewOperates: true},
		},
		"technical": {
			{Type: ActionSwapAircraft, Label: "Swap {flight} to a standby aircraft", CrewOperates: true},
			{Type: ActionGroundAircraft, Label: "Ground {aircraft} for immediate inspection"},
			{Type: ActionDelay, Label: "Delay {flight} by 90 minutes for maintenance", DelayMinutes: 90, CrewOperates: true},
			{Type: ActionCancel, Label: "Cancel {flight}"},
		},
		"crew": {
			{Type: ActionReassignCrew, Label: "Reassign reserve crew to {flight}", CrewOperates: true},
			{Type: ActionDelay, Label: "Delay {flight} by 1 hour awaiting qualified crew", DelayMinutes: 60, CrewOperates: true},
			{Type: ActionCancel, Label: "Cancel {flight} and rebook passengers"},
		},
		"security": {
			{Type: ActionCancel, Label: "Cancel {flight} and rebook passengers"},
			{Type: ActionGroundAircraft, Label: "Ground {aircraft} at {airport} until security clearance"},
			{Type: ActionDelay, Label: "Delay {flight} by 3 hours for enhanced screening", DelayMinutes: 180, CrewOperates: true},
		},
		"air_traffic": {
			{Type: ActionDelay, Label: "Delay {flight} by 45 minutes for an ATC slot", DelayMinutes: 45, CrewOperates: true},
			{Type: ActionNoAction, Label: "Accept ATC sequencing for {flight}", CrewOperates: true},
			{Type: ActionCancel, Label: "Cancel {flight}"},
		},
	}
}

// PlaybookGenerator drafts candidates from a playbook. The plays chosen and
// their order depend only on the disruption; candidate IDs come from the
// generator's ID function, random UUIDs unless WithIDFunc overrides it.
// Plays the crew operates need the pilot's duty state; without it they are
// left out rather than proposed unchecked.
type PlaybookGenerator struct {
	plays  map[string][]Play
	newID  func() string
	source string
}

// PlaybookOption configures a PlaybookGenerator
type PlaybookOption func(*PlaybookGenerator)

// WithIDFunc sets how candidate IDs are minted, e.g. a counter for reproducible output
func WithIDFunc(newID func() string) PlaybookOption {
	return func(g *PlaybookGenerator) {
		if newID != nil {
			g.newID = newID
		}
	}
}

// NewPlaybookGenerator returns a generator over the default playbook
func NewPlaybookGenerator(opts ...PlaybookOption) *PlaybookGenerator {
	return NewPlaybookGeneratorFrom(DefaultPlaybook(), opts...)
}

// NewPlaybookGeneratorFrom returns a generator over a custom playbook
func NewPlaybookGeneratorFrom(plays map[string][]Play, opts ...PlaybookOption) *PlaybookGenerator {
	normalized := make(map[string][]Play, len(plays))
	for k, v := range plays {
		normalized[normalizeType(k)] = append([]Play(nil), v...)
	}
	g := &PlaybookGenerator{
		plays:  normalized,
		newID:  uuid.NewString,
		source: "playbook",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func normalizeType(t string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), " ", "_")
}

// Types lists the disruption types the playbook covers, sorted
func (g *PlaybookGenerator) Types() []string {
	return slices.Sorted(maps.Keys(g.plays))
}

func (g *PlaybookGenerator) Generate(ctx context.Context, dc DisruptionContext) ([]ActionCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plays, ok := g.plays[normalizeType(dc.Disruption.Type)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDisruptionType, dc.Disruption.Type)
	}

	r := strings.NewReplacer(
		"{flight}", orDefault(dc.FlightID, "the flight"),
		"{aircraft}", orDefault(dc.AircraftID, "the aircraft"),
		"{airport}", orDefault(dc.Disruption.Airport, "the airport"),
	)

	candidates := make([]ActionCandidate, 0, len(plays))
	for _, p := range plays {
		c := ActionCandidate{
			ID:           g.newID(),
			Type:         p.Type,
			Label:        r.Replace(p.Label),
			DelayMinutes: p.DelayMinutes,
			FlightID:     dc.FlightID,
			AircraftID:   dc.AircraftID,
			Source:       g.source,
		}
		if p.CrewOperates {
			if dc.Duty == nil {
				continue
			}
			duty := *dc.Duty
			c.Duty = &duty
			c.PilotID = dc.PilotID
			c.DurationHours = dc.BlockHours
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// StaticGenerator returns a fixed candidate list, e.g. one read from a file
type StaticGenerator struct {
	Candidates []ActionCandidate
}

func (g StaticGenerator) Generate(ctx context.Context, _ DisruptionContext) ([]ActionCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]ActionCandidate, len(g.Candidates))
	for i, c := range g.Candidates {
		out[i] = c.clone()
	}
	return out, nil
}
