// Package journal keeps a local SQLite record of every deployment run: which
// phases ran, what they concluded, and what artifacts a backup produced. The
// journal is a write-only audit trail; the pipeline never reads its own state
// back from it.
package journal

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Records
// =============================================================================

// Run is one recorded pipeline run.
type Run struct {
	ID         string     `db:"id"`
	Command    string     `db:"command"`
	Stack      string     `db:"stack"`
	Outcome    string     `db:"outcome"`
	Warnings   int        `db:"warnings"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

// PhaseRecord is one phase of a recorded run.
type PhaseRecord struct {
	RunID      string        `db:"run_id"`
	Seq        int           `db:"seq"`
	Phase      string        `db:"phase"`
	Outcome    string        `db:"outcome"`
	Detail     string        `db:"detail"`
	Duration   time.Duration `db:"duration_ns"`
	RecordedAt time.Time     `db:"recorded_at"`
}

// ArtifactRecord is one backup artifact referenced by a run.
type ArtifactRecord struct {
	RunID     string    `db:"run_id"`
	Scope     string    `db:"scope"`
	Path      string    `db:"path"`
	SizeBytes int64     `db:"size_bytes"`
	CreatedAt time.Time `db:"created_at"`
}

// =============================================================================
// Store
// =============================================================================

// Store persists runs to SQLite.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the journal database at dsn and applies
// schema migrations.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sqlx.DB) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{NoTxWrap: true})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Writes
// =============================================================================

// BeginRun records the start of a pipeline run.
func (s *Store) BeginRun(ctx context.Context, runID uuid.UUID, command, stack string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, command, stack, outcome, warnings, started_at)
		VALUES (?, ?, ?, 'running', 0, ?)`,
		runID.String(), command, stack, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// FinishRun records the final outcome of a run.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, outcome string, warnings int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET outcome = ?, warnings = ?, finished_at = ? WHERE id = ?`,
		outcome, warnings, time.Now().UTC(), runID.String())
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// RecordPhase appends one phase result to a run.
func (s *Store) RecordPhase(ctx context.Context, runID uuid.UUID, seq int, phase, outcome, detail string, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_phases (run_id, seq, phase, outcome, detail, duration_ns, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), seq, phase, outcome, detail, int64(duration), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record phase: %w", err)
	}
	return nil
}

// RecordArtifact links a backup artifact to a run.
func (s *Store) RecordArtifact(ctx context.Context, runID uuid.UUID, scope, path string, sizeBytes int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_artifacts (run_id, scope, path, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		runID.String(), scope, path, sizeBytes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	return nil
}

// =============================================================================
// Reads
// =============================================================================

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, command, stack, outcome, warnings, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// RunPhases returns the phase records of one run in sequence order.
func (s *Store) RunPhases(ctx context.Context, runID uuid.UUID) ([]PhaseRecord, error) {
	var phases []PhaseRecord
	err := s.db.SelectContext(ctx, &phases, `
		SELECT run_id, seq, phase, outcome, detail, duration_ns, recorded_at
		FROM run_phases WHERE run_id = ? ORDER BY seq`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list run phases: %w", err)
	}
	return phases, nil
}

// RunArtifacts returns the artifacts a run produced, newest first.
func (s *Store) RunArtifacts(ctx context.Context, runID uuid.UUID) ([]ArtifactRecord, error) {
	var artifacts []ArtifactRecord
	err := s.db.SelectContext(ctx, &artifacts, `
		SELECT run_id, scope, path, size_bytes, created_at
		FROM run_artifacts WHERE run_id = ? ORDER BY created_at DESC`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list run artifacts: %w", err)
	}
	return artifacts, nil
}
