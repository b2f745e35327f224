package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/funcprov/internal/retry"
)

func openSqlite(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(context.Background(), Config{Driver: DriverSqlite, DriverConfig: &SqliteConfig{Path: path}, Retry: retry.Disabled()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleRun(app, status string, started time.Time) Run {
	return Run{
		RunID:          "run-" + app + "-" + status,
		AppName:        app,
		ResourceID:     "/subscriptions/x/resourceGroups/y/providers/Microsoft.Web/sites/" + app,
		Container:      "go",
		ProjectPath:    "/work/" + app,
		Status:         status,
		BundleChecksum: "abc123",
		StartedAt:      started,
		FinishedAt:     started.Add(1500 * time.Millisecond),
	}
}

func TestSqliteStore_RecordAndList(t *testing.T) {
	st := openSqlite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 123456000, time.UTC)

	id1, err := st.RecordRun(ctx, sampleRun("alpha", StatusSucceeded, base))
	require.NoError(t, err)
	failed := sampleRun("beta", StatusFailed, base.Add(time.Minute))
	failed.Step = "download"
	failed.Error = "download: GET https://beta.scm.azurewebsites.net returned 401 Unauthorized"
	id2, err := st.RecordRun(ctx, failed)
	require.NoError(t, err)
	_, err = st.RecordRun(ctx, sampleRun("alpha", StatusFailed, base.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	all, err := st.ListRuns(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].AppName, "newest first")
	assert.Equal(t, StatusFailed, all[0].Status)

	b := all[1]
	assert.Equal(t, "beta", b.AppName)
	assert.Equal(t, "download", b.Step)
	assert.Contains(t, b.Error, "401")
	assert.True(t, b.StartedAt.Equal(base.Add(time.Minute)))
	assert.Equal(t, 1500*time.Millisecond, b.Duration())

	alpha, err := st.ListRuns(ctx, ListOptions{AppName: "alpha"})
	require.NoError(t, err)
	assert.Len(t, alpha, 2)

	okRuns, err := st.ListRuns(ctx, ListOptions{Status: StatusSucceeded})
	require.NoError(t, err)
	require.Len(t, okRuns, 1)
	assert.True(t, okRuns[0].Succeeded())

	limited, err := st.ListRuns(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSqliteStore_LastRun(t *testing.T) {
	st := openSqlite(t)
	ctx := context.Background()
	base := time.Now().UTC()

	_, err := st.LastRun(ctx, "nobody")
	assert.True(t, IsNotFound(err), "got %v", err)

	_, err = st.RecordRun(ctx, sampleRun("gamma", StatusFailed, base))
	require.NoError(t, err)
	_, err = st.RecordRun(ctx, sampleRun("gamma", StatusSucceeded, base.Add(time.Second)))
	require.NoError(t, err)

	last, err := st.LastRun(ctx, "gamma")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, last.Status)
	assert.Equal(t, "/work/gamma", last.ProjectPath)
}

func TestOpen_EnsureIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	cfg := Config{DriverConfig: &SqliteConfig{Path: path}, Retry: retry.Disabled()}
	for i := 0; i < 2; i++ {
		st, err := Open(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, DriverSqlite, st.Driver())
		require.NoError(t, st.Close())
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, Config{Driver: "mysql"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{TableName: "runs; DROP TABLE x"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: "postgres", DriverConfig: &PostgresConfig{}, Retry: retry.Disabled()})
	assert.Error(t, err, "postgres without dsn must fail validation")
}

func TestOpen_InMemoryDefault(t *testing.T) {
	st, err := Open(context.Background(), Config{TableName: "custom_runs", Retry: retry.Disabled()})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	_, err = st.RecordRun(context.Background(), sampleRun("mem", StatusSucceeded, time.Now()))
	require.NoError(t, err)
	runs, err := st.ListRuns(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStore_CloseNil(t *testing.T) {
	var st *Store
	assert.NoError(t, st.Close())
}
