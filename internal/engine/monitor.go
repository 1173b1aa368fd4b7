package engine

import (
	"context"

	"github.com/forumops/forumctl/internal/shell/docker"
	"github.com/forumops/forumctl/internal/shell/sysinfo"
)

// =============================================================================
// Monitor
// =============================================================================

// ServiceSnapshot pairs a service's runtime status with its resource usage.
type ServiceSnapshot struct {
	Status docker.ServiceStatus
	Stats  *docker.ContainerResourceStats
}

// MonitorSnapshot is a one-shot view of the host and every managed service.
type MonitorSnapshot struct {
	Host     sysinfo.Snapshot
	Services []ServiceSnapshot
}

// Monitor collects one snapshot: host CPU/memory/disk plus per-container
// resource stats. Stats for a container that disappears mid-collection are
// simply absent, not an error.
func (e *Engine) Monitor(ctx context.Context) (*MonitorSnapshot, error) {
	snapshot := &MonitorSnapshot{Host: e.probe()}

	statuses, err := e.orch.Status(ctx)
	if err != nil {
		return nil, err
	}

	for _, status := range statuses {
		svc := ServiceSnapshot{Status: status}
		if status.State == "running" {
			stats, err := e.orch.Stats(ctx, status.Name)
			if err != nil {
				e.logger.Debug("stats unavailable", "service", status.Name, "error", err)
			} else {
				svc.Stats = stats
			}
		}
		snapshot.Services = append(snapshot.Services, svc)
	}

	return snapshot, nil
}

// =============================================================================
// Cleanup
// =============================================================================

// Cleanup prunes stopped containers, dangling images, and unused networks.
func (e *Engine) Cleanup(ctx context.Context) (*docker.PruneReport, error) {
	report, err := e.cli.Prune(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.Info("cleanup complete",
		"containers_deleted", report.ContainersDeleted,
		"images_deleted", report.ImagesDeleted,
		"networks_deleted", report.NetworksDeleted,
		"space_reclaimed_bytes", report.SpaceReclaimed)
	return report, nil
}
