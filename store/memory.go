package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/recovery"
)

// InMemoryDutyStore implements DutyStore with a map
type InMemoryDutyStore struct {
	duty map[string]fdtl.PilotDutyState
	mu   sync.RWMutex
}

func NewInMemoryDutyStore() *InMemoryDutyStore {
	return &InMemoryDutyStore{duty: make(map[string]fdtl.PilotDutyState)}
}

func (s *InMemoryDutyStore) GetDuty(_ context.Context, pilotID string) (fdtl.PilotDutyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.duty[pilotID]
	if !ok {
		return fdtl.PilotDutyState{}, fmt.Errorf("pilot %s: %w", pilotID, ErrNotFound)
	}
	return d, nil
}

// PutDuty rejects snapshots the validator could not evaluate
func (s *InMemoryDutyStore) PutDuty(_ context.Context, pilotID string, duty fdtl.PilotDutyState) error {
	if err := duty.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.duty[pilotID] = duty
	return nil
}

// InMemoryAuditLog implements AuditLog with a map
type InMemoryAuditLog struct {
	records map[uuid.UUID]AuditRecord
	now     func() time.Time
	mu      sync.RWMutex
}

func NewInMemoryAuditLog() *InMemoryAuditLog {
	return &InMemoryAuditLog{
		records: make(map[uuid.UUID]AuditRecord),
		now:     time.Now,
	}
}

func (l *InMemoryAuditLog) Record(_ context.Context, outcome *recovery.SelectionOutcome) (AuditRecord, error) {
	if outcome == nil {
		return AuditRecord{}, fmt.Errorf("nil selection outcome")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := newRecord(outcome, l.now().UTC())
	l.records[rec.ID] = rec
	return rec, nil
}

func (l *InMemoryAuditLog) Get(_ context.Context, id uuid.UUID) (AuditRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[id]
	if !ok {
		return AuditRecord{}, fmt.Errorf("audit record %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (l *InMemoryAuditLog) List(_ context.Context, limit int) ([]AuditRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AuditRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
