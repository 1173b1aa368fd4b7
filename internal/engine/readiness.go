package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/forumops/forumctl/internal/shell/docker"
)

// =============================================================================
// Readiness Waiter
// =============================================================================

// Probe reports whether a dependency is ready. A false return with nil error
// means "not yet"; errors are treated the same way and retried.
type Probe func(ctx context.Context) (bool, error)

// AwaitReady polls probe at a fixed interval until it reports ready, the
// attempt budget runs out, or ctx is cancelled. The first attempt fires
// immediately.
func AwaitReady(ctx context.Context, probe Probe, maxAttempts int, interval time.Duration) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ready, err := probe(ctx)
		if ready {
			return nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	if lastErr != nil {
		return fmt.Errorf("after %d attempts: %w: %v", maxAttempts, ErrReadinessTimeout, lastErr)
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, ErrReadinessTimeout)
}

// DatabaseProbe returns a probe that execs pg_isready inside the database
// container.
func (e *Engine) DatabaseProbe() Probe {
	name := e.orch.ContainerName(e.cfg.DBService)
	return func(ctx context.Context) (bool, error) {
		result, err := e.cli.Exec(ctx, name, docker.ExecSpec{
			Cmd: []string{"pg_isready", "-U", e.cfg.DBUser},
		})
		if err != nil {
			return false, err
		}
		return result.ExitCode == 0, nil
	}
}
