package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/forumops/forumctl/internal/core/pipeline"
	"github.com/forumops/forumctl/internal/shell/docker"
)

// =============================================================================
// Migration Runner
// =============================================================================

// Migrate applies database schema migrations inside the app container. A
// failed attempt gets exactly one retry after RetryDelay; a second failure
// is fatal for the phase, but the pipeline still proceeds to health so the
// operator sees what state the stack actually reached. Static asset
// collection follows migrations and can only ever warn.
func (e *Engine) Migrate(ctx context.Context) (pipeline.Outcome, string, error) {
	name := e.orch.ContainerName(e.cfg.AppService)

	if err := e.runMigrateOnce(ctx, name); err != nil {
		e.logger.Warn("migration attempt failed, retrying once",
			"delay", e.cfg.RetryDelay, "error", err)
		e.sleep(e.cfg.RetryDelay)

		if err := e.runMigrateOnce(ctx, name); err != nil {
			detail := "schema migration failed twice"
			return pipeline.OutcomeFatal, detail,
				fmt.Errorf("%s: %w: %v", detail, ErrMigrationFailed, err)
		}
	}
	e.logger.Info("schema migrations applied")

	if err := e.collectStatic(ctx, name); err != nil {
		detail := "static asset preparation failed; stale assets may be served"
		e.logger.Warn("collectstatic failed", "error", err)
		return pipeline.OutcomeWarning, detail, nil
	}

	return pipeline.OutcomeSuccess, "", nil
}

func (e *Engine) runMigrateOnce(ctx context.Context, containerName string) error {
	result, err := e.cli.Exec(ctx, containerName, docker.ExecSpec{
		Cmd: []string{"python", "manage.py", "migrate", "--noinput"},
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("migrate exited %d: %s", result.ExitCode, tail(result.Stderr, 400))
	}
	return nil
}

func (e *Engine) collectStatic(ctx context.Context, containerName string) error {
	result, err := e.cli.Exec(ctx, containerName, docker.ExecSpec{
		Cmd: []string{"python", "manage.py", "collectstatic", "--noinput"},
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("collectstatic exited %d: %s", result.ExitCode, tail(result.Stderr, 400))
	}
	return nil
}

// tail returns the last n bytes of output as a trimmed string.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
