package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
// Policies are scoped to one airline operator.
type PostgresRuleStore struct {
	db         *sql.DB
	operatorID string
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore for an operator
func NewPostgresRuleStore(db *sql.DB, operatorID string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:         db,
		operatorID: operatorID,
	}
}

// EnsureOperator registers the store's operator if it is not already present.
// Policies reference operators by foreign key, so this runs before any Add.
func (s *PostgresRuleStore) EnsureOperator() error {
	_, err := s.db.Exec(`
		INSERT INTO operators (id, name) VALUES ($1, $1)
		ON CONFLICT (id) DO NOTHING
	`, s.operatorID)
	if err != nil {
		return fmt.Errorf("failed to register operator %s: %w", s.operatorID, err)
	}
	return nil
}

// Add inserts a new policy
func (s *PostgresRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM operating_policies WHERE id = $1 AND operator_id = $2)
	`, rule.ID, s.operatorID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check policy existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleExists)
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO operating_policies (id, operator_id, name, expression, reason, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rule.ID, s.operatorID, rule.Name, rule.Expression, rule.Reason, rule.Active,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}

	return nil
}

// Get retrieves a policy by ID
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	var rule Rule
	err := s.db.QueryRow(`
		SELECT id, name, expression, reason, active, created_at, updated_at
		FROM operating_policies
		WHERE id = $1 AND operator_id = $2
	`, id, s.operatorID).Scan(
		&rule.ID,
		&rule.Name,
		&rule.Expression,
		&rule.Reason,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	return &rule, nil
}

// ListActive returns the operator's active policies, oldest first
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	return s.query(`
		SELECT id, name, expression, reason, active, created_at, updated_at
		FROM operating_policies
		WHERE operator_id = $1 AND active = true
		ORDER BY created_at ASC, id ASC
	`)
}

// List returns every policy for the operator, oldest first
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	return s.query(`
		SELECT id, name, expression, reason, active, created_at, updated_at
		FROM operating_policies
		WHERE operator_id = $1
		ORDER BY created_at ASC, id ASC
	`)
}

func (s *PostgresRuleStore) query(q string) ([]*Rule, error) {
	rows, err := s.db.Query(q, s.operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.Name, &r.Expression, &r.Reason, &r.Active,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		rulesList = append(rulesList, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policies: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing policy
func (s *PostgresRuleStore) Update(rule *Rule) error {
	rule.UpdatedAt = time.Now().UTC()

	result, err := s.db.Exec(`
		UPDATE operating_policies
		SET name = $1, expression = $2, reason = $3, active = $4, updated_at = $5
		WHERE id = $6 AND operator_id = $7
	`, rule.Name, rule.Expression, rule.Reason, rule.Active, rule.UpdatedAt, rule.ID, s.operatorID)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleNotFound)
	}

	return nil
}

// Delete removes a policy
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM operating_policies
		WHERE id = $1 AND operator_id = $2
	`, id, s.operatorID)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}

	return nil
}
