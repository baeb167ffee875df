package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

const testOperator = "00000000-0000-0000-0000-000000000001"

var ruleColumns = []string{"id", "name", "expression", "reason", "active", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*PostgresRuleStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRuleStore(db, testOperator), mock
}

func TestPostgresRuleStore_AddScopesToOperator(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("p1", testOperator).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO operating_policies").
		WithArgs("p1", testOperator, "P1", "true", "", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rule := &Rule{ID: "p1", Name: "P1", Expression: "true", Active: true}
	if err := store.Add(rule); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if rule.CreatedAt.IsZero() || !rule.CreatedAt.Equal(rule.UpdatedAt) {
		t.Errorf("Add() should stamp CreatedAt = UpdatedAt, got %v / %v", rule.CreatedAt, rule.UpdatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresRuleStore_AddDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("p1", testOperator).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := store.Add(&Rule{ID: "p1", Expression: "true"})
	if !errors.Is(err, ErrRuleExists) {
		t.Errorf("Add() = %v, want ErrRuleExists", err)
	}
}

func TestPostgresRuleStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM operating_policies").
		WithArgs("missing", testOperator).
		WillReturnRows(sqlmock.NewRows(ruleColumns))

	if _, err := store.Get("missing"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Get() = %v, want ErrRuleNotFound", err)
	}
}

func TestPostgresRuleStore_ListActive(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("active = true").
		WithArgs(testOperator).
		WillReturnRows(sqlmock.NewRows(ruleColumns).
			AddRow("a", "A", "true", "", true, at, at).
			AddRow("b", "B", "false", "why", true, at.Add(time.Second), at))

	rules, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(rules) != 2 || rules[0].ID != "a" || rules[1].Reason != "why" {
		t.Errorf("ListActive() = %+v", rules)
	}
}

func TestPostgresRuleStore_UpdateAndDeleteMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE operating_policies").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Update(&Rule{ID: "missing", Expression: "true"}); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Update() = %v, want ErrRuleNotFound", err)
	}

	mock.ExpectExec("DELETE FROM operating_policies").
		WithArgs("missing", testOperator).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Delete("missing"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Delete() = %v, want ErrRuleNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresRuleStore_EnsureOperator(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO operators").
		WithArgs(testOperator).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.EnsureOperator(); err != nil {
		t.Fatalf("EnsureOperator() on existing operator failed: %v", err)
	}

	mock.ExpectExec("INSERT INTO operators").
		WithArgs(testOperator).
		WillReturnError(errors.New("invalid input syntax for type uuid"))
	if err := store.EnsureOperator(); err == nil {
		t.Error("EnsureOperator() should surface insert errors")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
