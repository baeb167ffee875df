// Package store persists pilot duty state and the audit trail of selections.
//
// The engine never touches these stores: callers read duty state before
// a selection and record the outcome after it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/recovery"
)

// ErrNotFound is returned when a pilot or audit record does not exist
var ErrNotFound = errors.New("not found")

// DutyStore holds each pilot's current duty snapshot
type DutyStore interface {
	GetDuty(ctx context.Context, pilotID string) (fdtl.PilotDutyState, error)
	PutDuty(ctx context.Context, pilotID string, duty fdtl.PilotDutyState) error
}

// AuditRecord is one persisted selection outcome
type AuditRecord struct {
	ID                uuid.UUID                  `json:"id"`
	Status            recovery.OutcomeStatus     `json:"status"`
	ChosenCandidateID string                     `json:"chosenCandidateId,omitempty"`
	Outcome           *recovery.SelectionOutcome `json:"outcome"`
	CreatedAt         time.Time                  `json:"createdAt"`
}

// AuditLog records selection outcomes so they can be explained later
type AuditLog interface {
	Record(ctx context.Context, outcome *recovery.SelectionOutcome) (AuditRecord, error)
	Get(ctx context.Context, id uuid.UUID) (AuditRecord, error)
	// List returns the most recent records first
	List(ctx context.Context, limit int) ([]AuditRecord, error)
}

func newRecord(outcome *recovery.SelectionOutcome, now time.Time) AuditRecord {
	rec := AuditRecord{
		ID:        uuid.New(),
		Status:    outcome.Status,
		Outcome:   outcome,
		CreatedAt: now,
	}
	if outcome.Chosen != nil {
		rec.ChosenCandidateID = outcome.Chosen.Candidate.ID
	}
	return rec
}
