package engine

import (
	"context"
	"fmt"

	"github.com/forumops/forumctl/internal/core/pipeline"
)

// =============================================================================
// Environment Validator
// =============================================================================

// Validate checks that the host can carry a deployment: reachable container
// runtime, enough disk for images and backups, enough memory for the stack.
// It observes only; nothing is mutated. The first fatal finding aborts the
// pipeline before any other phase runs.
func (e *Engine) Validate(ctx context.Context) (pipeline.Outcome, string, error) {
	if err := e.cli.Ping(ctx); err != nil {
		return pipeline.OutcomeFatal,
			"container runtime unreachable; is the docker daemon running?",
			fmt.Errorf("ping daemon: %w: %v", ErrPrerequisiteMissing, err)
	}

	version, err := e.cli.ServerVersion(ctx)
	if err != nil {
		return pipeline.OutcomeFatal,
			"container runtime version unreadable",
			fmt.Errorf("server version: %w: %v", ErrPrerequisiteMissing, err)
	}
	e.logger.Info("container runtime reachable", "version", version)

	snap := e.probe()
	e.logger.Info("host resources",
		"os", snap.OS,
		"arch", snap.Arch,
		"cpu_cores", snap.CPUCores,
		"memory_free_mb", snap.MemoryFreeMB,
		"disk_free_mb", snap.DiskFreeMB)

	if snap.DiskFreeMB > 0 && snap.DiskFreeMB < e.cfg.MinDiskMB {
		detail := fmt.Sprintf("free disk %d MB below required %d MB", snap.DiskFreeMB, e.cfg.MinDiskMB)
		return pipeline.OutcomeFatal, detail, fmt.Errorf("%s: %w", detail, ErrPrerequisiteMissing)
	}

	if snap.MemoryFreeMB > 0 && snap.MemoryFreeMB < e.cfg.MinMemoryMB {
		detail := fmt.Sprintf("free memory %d MB below required %d MB", snap.MemoryFreeMB, e.cfg.MinMemoryMB)
		return pipeline.OutcomeFatal, detail, fmt.Errorf("%s: %w", detail, ErrPrerequisiteMissing)
	}

	if snap.MemoryFreeMB > 0 && snap.MemoryFreeMB < e.cfg.RecommendedMemoryMB {
		detail := fmt.Sprintf("free memory %d MB below recommended %d MB; expect degraded performance",
			snap.MemoryFreeMB, e.cfg.RecommendedMemoryMB)
		e.logger.Warn("memory below recommendation",
			"free_mb", snap.MemoryFreeMB, "recommended_mb", e.cfg.RecommendedMemoryMB)
		return pipeline.OutcomeWarning, detail, nil
	}

	return pipeline.OutcomeSuccess, "", nil
}
