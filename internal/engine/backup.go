package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forumops/forumctl/internal/core/backup"
	"github.com/forumops/forumctl/internal/shell/docker"
)

// =============================================================================
// Backup Manager
// =============================================================================

// Backup captures the database and the media volume into immutable artifacts
// sharing one timestamp ID. Each artifact is streamed to a temp name, synced,
// and renamed into place only on success; an interrupted or failed backup
// leaves nothing but a dot-prefixed temp file behind.
func (e *Engine) Backup(ctx context.Context, scopes ...backup.Scope) ([]backup.Artifact, error) {
	if len(scopes) == 0 {
		scopes = []backup.Scope{backup.ScopeDatabase, backup.ScopeMedia}
	}

	if err := os.MkdirAll(e.cfg.BackupDir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w: %v", ErrBackupFailed, err)
	}

	runID := e.beginCommandRun(ctx, "backup")
	id := backup.Stamp(time.Now())
	var artifacts []backup.Artifact

	for _, scope := range scopes {
		artifact, err := e.backupScope(ctx, scope, id)
		if err != nil {
			e.finishCommandRun(ctx, runID, "fatal")
			return artifacts, err
		}
		artifacts = append(artifacts, artifact)
		e.recordJournalArtifact(ctx, runID, artifact)
		e.logger.Info("backup artifact written",
			"scope", string(scope), "path", artifact.Path, "size_bytes", artifact.Size)
	}
	e.finishCommandRun(ctx, runID, "success")
	return artifacts, nil
}

func (e *Engine) backupScope(ctx context.Context, scope backup.Scope, id string) (backup.Artifact, error) {
	var container string
	var cmd []string
	switch scope {
	case backup.ScopeDatabase:
		container = e.orch.ContainerName(e.cfg.DBService)
		cmd = []string{"pg_dump", "-Fc", "-U", e.cfg.DBUser, e.cfg.DBName}
	case backup.ScopeMedia:
		container = e.orch.ContainerName(e.cfg.MediaService)
		cmd = []string{"tar", "-czf", "-", "-C", e.cfg.MediaDir, "."}
	default:
		return backup.Artifact{}, fmt.Errorf("unknown backup scope %q: %w", scope, ErrBackupFailed)
	}

	tempPath := filepath.Join(e.cfg.BackupDir, backup.TempName(scope, id))
	finalPath := filepath.Join(e.cfg.BackupDir, backup.FileName(scope, id))

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return backup.Artifact{}, fmt.Errorf("create temp artifact: %w: %v", ErrBackupFailed, err)
	}

	exitCode, execErr := e.cli.ExecStream(ctx, container, docker.ExecSpec{Cmd: cmd}, f)
	if execErr == nil && exitCode != 0 {
		execErr = fmt.Errorf("%s exited %d", cmd[0], exitCode)
	}
	if execErr != nil {
		f.Close()
		os.Remove(tempPath)
		return backup.Artifact{}, fmt.Errorf("%s backup: %w: %v", scope, ErrBackupFailed, execErr)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return backup.Artifact{}, fmt.Errorf("sync artifact: %w: %v", ErrBackupFailed, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		os.Remove(tempPath)
		return backup.Artifact{}, fmt.Errorf("stat artifact: %w: %v", ErrBackupFailed, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return backup.Artifact{}, fmt.Errorf("close artifact: %w: %v", ErrBackupFailed, err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return backup.Artifact{}, fmt.Errorf("finalize artifact: %w: %v", ErrBackupFailed, err)
	}

	return backup.Artifact{ID: id, Scope: scope, Path: finalPath, Size: info.Size()}, nil
}

// ListArtifacts returns finalized artifacts in the backup directory, newest
// first. Temp files never parse as artifacts and are skipped.
func (e *Engine) ListArtifacts() ([]backup.Artifact, error) {
	entries, err := os.ReadDir(e.cfg.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var artifacts []backup.Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		scope, id, err := backup.ParseFileName(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, backup.Artifact{
			ID:    id,
			Scope: scope,
			Path:  filepath.Join(e.cfg.BackupDir, entry.Name()),
			Size:  info.Size(),
		})
	}
	backup.SortNewestFirst(artifacts)
	return artifacts, nil
}

// =============================================================================
// Restore
// =============================================================================

// Restore replays a database dump into the running database. It is the one
// destructive operation in the tool, so it is gated on the operator typing
// the artifact ID back exactly; any other token is a clean no-op reported as
// ErrRestoreDeclined.
func (e *Engine) Restore(ctx context.Context, artifact backup.Artifact, confirmToken string) error {
	if artifact.Scope != backup.ScopeDatabase {
		return fmt.Errorf("restore supports database artifacts only, got %q", artifact.Scope)
	}
	if confirmToken != artifact.ID {
		e.logger.Info("restore declined", "artifact", artifact.ID)
		return ErrRestoreDeclined
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	runID := e.beginCommandRun(ctx, "restore")

	container := e.orch.ContainerName(e.cfg.DBService)
	result, err := e.cli.Exec(ctx, container, docker.ExecSpec{
		Cmd:   []string{"pg_restore", "--clean", "--if-exists", "-U", e.cfg.DBUser, "-d", e.cfg.DBName},
		Stdin: f,
	})
	if err != nil {
		e.finishCommandRun(ctx, runID, "fatal")
		return fmt.Errorf("restore %s: %w", artifact.ID, err)
	}
	if result.ExitCode != 0 {
		e.finishCommandRun(ctx, runID, "fatal")
		return fmt.Errorf("pg_restore exited %d: %s", result.ExitCode, tail(result.Stderr, 400))
	}

	e.finishCommandRun(ctx, runID, "success")
	e.logger.Info("database restored", "artifact", artifact.ID)
	return nil
}

// FindArtifact resolves a restorable artifact by ID or file name. Only
// database dumps can be restored; a reference that matches nothing but a
// media archive gets an error saying so rather than a bare not-found.
func (e *Engine) FindArtifact(ref string) (backup.Artifact, error) {
	artifacts, err := e.ListArtifacts()
	if err != nil {
		return backup.Artifact{}, err
	}

	var mediaOnly bool
	for _, a := range artifacts {
		if a.ID != ref && filepath.Base(a.Path) != ref {
			continue
		}
		if a.Scope == backup.ScopeDatabase {
			return a, nil
		}
		mediaOnly = true
	}
	if mediaOnly {
		return backup.Artifact{}, fmt.Errorf(
			"%q is a media archive; only database dumps can be restored - extract it manually from %s", ref, e.cfg.BackupDir)
	}
	return backup.Artifact{}, fmt.Errorf("no database artifact %q in %s", ref, e.cfg.BackupDir)
}
