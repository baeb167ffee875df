//go:build integration

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/crewrecovery/config"
	"github.com/liamcoop/crewrecovery/recovery"
)

// setupTestDB starts PostgreSQL, applies the schema and returns its URL
func setupTestDB(t *testing.T) (*sql.DB, string) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { postgres.Terminate(ctx) })

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.Eventually(t, func() bool { return db.Ping() == nil }, 10*time.Second, 100*time.Millisecond)

	migrationSQL, err := os.ReadFile("../../migrations/000001_initial_schema.up.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(migrationSQL))
	require.NoError(t, err)

	return db, connStr
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEndToEnd_PostgresProposalFlow(t *testing.T) {
	db, connStr := setupTestDB(t)

	var operatorID string
	require.NoError(t, db.QueryRow(`INSERT INTO operators (name) VALUES ('Test Air') RETURNING id`).Scan(&operatorID))

	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	cfg.Server.DatabaseURL = connStr
	cfg.Server.OperatorID = operatorID

	server, err := NewServer(cfg)
	require.NoError(t, err)
	defer server.Close()

	ts := httptest.NewServer(server)
	defer ts.Close()
	baseURL := ts.URL + "/api/v1"

	t.Log("Step 1: health reports postgres storage")
	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "postgres", health.Storage)
	assert.Equal(t, 2, health.ActivePolicies)

	t.Log("Step 2: store the pilot's duty")
	data, _ := json.Marshal(duty(7))
	putReq, err := http.NewRequest(http.MethodPut, baseURL+"/pilots/P-1/duty", bytes.NewReader(data))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(putReq)
	require.NoError(t, err)
	putResp.Body.Close()
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	t.Log("Step 3: request a proposal that reads the stored duty")
	resp = post(t, baseURL+"/disruptions/proposals", map[string]any{
		"disruption":  map[string]any{"type": "weather", "severity": "low", "airport": "DEL"},
		"flight_id":   "AI101",
		"pilot_id":    "P-1",
		"block_hours": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var selection SelectionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&selection))
	require.NotNil(t, selection.Chosen)
	assert.Equal(t, recovery.ActionGroundAircraft, selection.Chosen.Candidate.Type)

	t.Log("Step 4: the outcome is in the audit table")
	resp, err = http.Get(baseURL + "/proposals/" + selection.ID + "?format=text")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM proposal_audit`).Scan(&count))
	assert.Equal(t, 1, count)

	t.Log("Step 5: a policy added over HTTP persists for the operator")
	resp = post(t, baseURL+"/policies", map[string]any{
		"id":         "no-ground-stops",
		"name":       "No ground stops",
		"expression": `candidate.action_type == "GROUND_AIRCRAFT"`,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM operating_policies WHERE operator_id = $1`, operatorID).Scan(&count))
	assert.Equal(t, 3, count)

	resp = post(t, baseURL+"/disruptions/proposals", map[string]any{
		"disruption":  map[string]any{"type": "weather", "severity": "low"},
		"pilot_id":    "P-1",
		"block_hours": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	selection = SelectionResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&selection))
	require.NotNil(t, selection.Chosen)
	assert.Equal(t, recovery.ActionCancel, selection.Chosen.Candidate.Type)

	t.Log("Step 6: a restarted server keeps its policies and does not reseed")
	restarted, err := NewServer(cfg)
	require.NoError(t, err)
	defer restarted.Close()
	active, err := restarted.policies.ActiveRules()
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestNewServer_RegistersConfiguredOperator(t *testing.T) {
	db, connStr := setupTestDB(t)

	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	cfg.Server.DatabaseURL = connStr
	cfg.Server.OperatorID = "00000000-0000-0000-0000-0000000000aa"

	server, err := NewServer(cfg)
	require.NoError(t, err, "startup on a freshly migrated database must not need a manual operator insert")
	defer server.Close()

	var operators, policies int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM operators WHERE id = $1`, cfg.Server.OperatorID).Scan(&operators))
	assert.Equal(t, 1, operators)
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM operating_policies WHERE operator_id = $1`, cfg.Server.OperatorID).Scan(&policies))
	assert.Equal(t, 2, policies)

	restarted, err := NewServer(cfg)
	require.NoError(t, err, "registering an existing operator is a no-op")
	defer restarted.Close()
}
