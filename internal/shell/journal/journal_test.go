package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	runID := uuid.New()

	require.NoError(t, store.BeginRun(ctx, runID, "deploy", "forum"))
	require.NoError(t, store.RecordPhase(ctx, runID, 0, "validate", "success", "", 120*time.Millisecond))
	require.NoError(t, store.RecordPhase(ctx, runID, 1, "configure", "warning", "corrected POSTGRES_PASWORD", 5*time.Millisecond))
	require.NoError(t, store.FinishRun(ctx, runID, "success", 1))

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID.String(), runs[0].ID)
	assert.Equal(t, "deploy", runs[0].Command)
	assert.Equal(t, "success", runs[0].Outcome)
	assert.Equal(t, 1, runs[0].Warnings)
	require.NotNil(t, runs[0].FinishedAt)

	phases, err := store.RunPhases(ctx, runID)
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, "validate", phases[0].Phase)
	assert.Equal(t, "configure", phases[1].Phase)
	assert.Equal(t, "corrected POSTGRES_PASWORD", phases[1].Detail)
	assert.Equal(t, 5*time.Millisecond, phases[1].Duration)
}

func TestRecentRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := uuid.New()
	require.NoError(t, store.BeginRun(ctx, first, "deploy", "forum"))
	time.Sleep(5 * time.Millisecond)
	second := uuid.New()
	require.NoError(t, store.BeginRun(ctx, second, "backup", "forum"))

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.String(), runs[0].ID)
	assert.Equal(t, first.String(), runs[1].ID)
}

func TestRecentRunsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.BeginRun(ctx, uuid.New(), "deploy", "forum"))
	}

	runs, err := store.RecentRuns(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRecordArtifact(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	runID := uuid.New()

	require.NoError(t, store.BeginRun(ctx, runID, "backup", "forum"))
	require.NoError(t, store.RecordArtifact(ctx, runID, "db", "/var/backups/db-20260831T120000Z.dump", 1<<20))

	artifacts, err := store.RunArtifacts(ctx, runID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "db", artifacts[0].Scope)
	assert.Equal(t, int64(1<<20), artifacts[0].SizeBytes)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.BeginRun(context.Background(), uuid.New(), "deploy", "forum"))
	require.NoError(t, store.Close())

	// Reopening the same file must not fail on already-applied migrations.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
