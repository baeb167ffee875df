package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/recovery"
)

// PostgresDutyStore implements DutyStore on the pilot_duty table
type PostgresDutyStore struct {
	db *sql.DB
}

func NewPostgresDutyStore(db *sql.DB) *PostgresDutyStore {
	return &PostgresDutyStore{db: db}
}

func (s *PostgresDutyStore) GetDuty(ctx context.Context, pilotID string) (fdtl.PilotDutyState, error) {
	var d fdtl.PilotDutyState
	err := s.db.QueryRowContext(ctx, `
		SELECT daily_flight_hours, weekly_flight_hours, consecutive_night_duties, hours_since_last_rest
		FROM pilot_duty
		WHERE pilot_id = $1
	`, pilotID).Scan(&d.DailyFlightHours, &d.WeeklyFlightHours, &d.ConsecutiveNightDuties, &d.HoursSinceLastRest)
	if errors.Is(err, sql.ErrNoRows) {
		return fdtl.PilotDutyState{}, fmt.Errorf("pilot %s: %w", pilotID, ErrNotFound)
	}
	if err != nil {
		return fdtl.PilotDutyState{}, fmt.Errorf("failed to get duty state: %w", err)
	}
	return d, nil
}

// PutDuty upserts the pilot's snapshot
func (s *PostgresDutyStore) PutDuty(ctx context.Context, pilotID string, duty fdtl.PilotDutyState) error {
	if err := duty.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pilot_duty (pilot_id, daily_flight_hours, weekly_flight_hours, consecutive_night_duties, hours_since_last_rest, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pilot_id) DO UPDATE SET
			daily_flight_hours = EXCLUDED.daily_flight_hours,
			weekly_flight_hours = EXCLUDED.weekly_flight_hours,
			consecutive_night_duties = EXCLUDED.consecutive_night_duties,
			hours_since_last_rest = EXCLUDED.hours_since_last_rest,
			updated_at = EXCLUDED.updated_at
	`, pilotID, duty.DailyFlightHours, duty.WeeklyFlightHours, duty.ConsecutiveNightDuties,
		duty.HoursSinceLastRest, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store duty state: %w", err)
	}
	return nil
}

// PostgresAuditLog implements AuditLog on the proposal_audit table
type PostgresAuditLog struct {
	db *sql.DB
}

func NewPostgresAuditLog(db *sql.DB) *PostgresAuditLog {
	return &PostgresAuditLog{db: db}
}

func (l *PostgresAuditLog) Record(ctx context.Context, outcome *recovery.SelectionOutcome) (AuditRecord, error) {
	if outcome == nil {
		return AuditRecord{}, fmt.Errorf("nil selection outcome")
	}

	rec := newRecord(outcome, time.Now().UTC())

	disruption, err := json.Marshal(outcome.Disruption)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("failed to encode disruption: %w", err)
	}
	body, err := json.Marshal(outcome)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("failed to encode outcome: %w", err)
	}

	var chosen sql.NullString
	if rec.ChosenCandidateID != "" {
		chosen = sql.NullString{String: rec.ChosenCandidateID, Valid: true}
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO proposal_audit (id, disruption, outcome, chosen_candidate_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, string(disruption), string(body), chosen, string(rec.Status), rec.CreatedAt)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("failed to record outcome: %w", err)
	}
	return rec, nil
}

func (l *PostgresAuditLog) Get(ctx context.Context, id uuid.UUID) (AuditRecord, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, status, chosen_candidate_id, outcome, created_at
		FROM proposal_audit
		WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AuditRecord{}, fmt.Errorf("audit record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return AuditRecord{}, fmt.Errorf("failed to get audit record: %w", err)
	}
	return rec, nil
}

func (l *PostgresAuditLog) List(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, status, chosen_candidate_id, outcome, created_at
		FROM proposal_audit
		ORDER BY created_at DESC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (AuditRecord, error) {
	var (
		rec    AuditRecord
		status string
		chosen sql.NullString
		body   []byte
	)
	if err := s.Scan(&rec.ID, &status, &chosen, &body, &rec.CreatedAt); err != nil {
		return AuditRecord{}, err
	}

	rec.Status = recovery.OutcomeStatus(status)
	rec.ChosenCandidateID = chosen.String

	var outcome recovery.SelectionOutcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		return AuditRecord{}, fmt.Errorf("failed to decode outcome: %w", err)
	}
	rec.Outcome = &outcome
	return rec, nil
}
