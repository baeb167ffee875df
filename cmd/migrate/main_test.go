package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls   []string
	steps   int
	forced  int
	upErr   error
	version uint
	verErr  error
}

func (f *fakeMigrator) Up() error { f.calls = append(f.calls, "up"); return f.upErr }
func (f *fakeMigrator) Down() error { f.calls = append(f.calls, "down"); return nil }
func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return nil
}
func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return f.version, false, f.verErr
}
func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.forced = v
	return nil
}

func TestRunCommands(t *testing.T) {
	t.Run("up", func(t *testing.T) {
		m := &fakeMigrator{}
		require.NoError(t, run(m, "up", nil))
		assert.Equal(t, []string{"up"}, m.calls)
	})

	t.Run("up with no change", func(t *testing.T) {
		m := &fakeMigrator{upErr: migrate.ErrNoChange}
		assert.NoError(t, run(m, "up", nil))
	})

	t.Run("up failure", func(t *testing.T) {
		m := &fakeMigrator{upErr: errors.New("boom")}
		assert.ErrorContains(t, run(m, "up", nil), "boom")
	})

	t.Run("steps", func(t *testing.T) {
		m := &fakeMigrator{}
		require.NoError(t, run(m, "steps", []string{"-1"}))
		assert.Equal(t, -1, m.steps)
	})

	t.Run("force requires a version", func(t *testing.T) {
		m := &fakeMigrator{}
		assert.Error(t, run(m, "force", nil))
		assert.Error(t, run(m, "force", []string{"x"}))
		require.NoError(t, run(m, "force", []string{"1"}))
		assert.Equal(t, 1, m.forced)
	})

	t.Run("version on an empty database", func(t *testing.T) {
		m := &fakeMigrator{verErr: migrate.ErrNilVersion}
		assert.NoError(t, run(m, "version", nil))
	})

	t.Run("unknown command", func(t *testing.T) {
		assert.ErrorContains(t, run(&fakeMigrator{}, "sideways", nil), "unknown command")
	})
}

func TestResolveDatabaseURL(t *testing.T) {
	noEnv := func(string) string { return "" }

	url, err := resolveDatabaseURL("postgres://flag", "", func(string) string { return "postgres://env" })
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag", url)

	url, err = resolveDatabaseURL("", "", func(k string) string {
		if k == "DATABASE_URL" {
			return "postgres://env"
		}
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", url)

	_, err = resolveDatabaseURL("", "", noEnv)
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dgca_fdtl:
  max_daily_flight_time: 8
  weekly_flight_time_limit: 35
  max_consecutive_night_duties: 2
  mandatory_night_rest_hours: 56
server:
  database_url: postgres://file
`), 0o600))
	url, err = resolveDatabaseURL("", path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "postgres://file", url)
}
