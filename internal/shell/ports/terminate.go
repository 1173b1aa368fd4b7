package ports

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"
)

// ErrOccupantSurvived reports a process that outlived both the polite and
// the forceful termination attempt.
var ErrOccupantSurvived = errors.New("occupant survived termination")

// Terminator frees ports by stopping the processes that hold them.
type Terminator struct {
	// GraceDelay is how long a process gets to exit after SIGTERM before
	// SIGKILL is sent.
	GraceDelay time.Duration
	// PollInterval is how often exit is checked during the grace window.
	PollInterval time.Duration
}

// NewTerminator creates a terminator with a 5s grace window.
func NewTerminator() *Terminator {
	return &Terminator{
		GraceDelay:   5 * time.Second,
		PollInterval: 200 * time.Millisecond,
	}
}

// Terminate stops the occupant's process: SIGTERM first, SIGKILL if it is
// still alive after the grace window. Returns nil once the process is gone.
func (t *Terminator) Terminate(ctx context.Context, occ Occupant) error {
	if occ.PID == 0 {
		return fmt.Errorf("%s: %w", occ.Describe(), ErrOccupantSurvived)
	}

	if err := syscall.Kill(occ.PID, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil // already gone
		}
		return fmt.Errorf("signal pid %d: %w", occ.PID, err)
	}

	if t.awaitExit(ctx, occ.PID, t.GraceDelay) {
		return nil
	}

	if err := syscall.Kill(occ.PID, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("kill pid %d: %w", occ.PID, err)
	}

	if t.awaitExit(ctx, occ.PID, t.GraceDelay) {
		return nil
	}
	return fmt.Errorf("%s: %w", occ.Describe(), ErrOccupantSurvived)
}

// awaitExit polls until the PID disappears or the window elapses.
func (t *Terminator) awaitExit(ctx context.Context, pid int, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		// Signal 0 probes existence without delivering anything.
		if err := syscall.Kill(pid, 0); err != nil {
			return errors.Is(err, syscall.ESRCH)
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(t.PollInterval):
		}
	}
	return syscall.Kill(pid, 0) != nil
}
