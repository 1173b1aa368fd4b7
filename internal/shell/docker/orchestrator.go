package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/forumops/forumctl/internal/core/manifest"
)

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator drives the container runtime for one named stack: it turns
// service descriptors into running containers, in rank order, and tears them
// down in reverse.
type Orchestrator struct {
	cli       Client
	logger    *slog.Logger
	stackName string
}

// NewOrchestrator creates an orchestrator for the given stack name.
func NewOrchestrator(cli Client, logger *slog.Logger, stackName string) *Orchestrator {
	return &Orchestrator{
		cli:       cli,
		logger:    logger.With("stack", stackName),
		stackName: stackName,
	}
}

// UpOptions control a stack bring-up.
type UpOptions struct {
	Profile     manifest.Profile
	CleanBuild  bool // rebuild images without cache and re-pull bases
	StopTimeout time.Duration
}

// ServiceStatus is the observed runtime state of one declared service.
type ServiceStatus struct {
	Name        string
	Rank        int
	ContainerID string
	State       string
	Health      string
	Ports       []PortBinding
	StartedAt   *time.Time
}

// ContainerName returns the container name used for a service.
func (o *Orchestrator) ContainerName(service string) string {
	return fmt.Sprintf("%s-%s", o.stackName, service)
}

func (o *Orchestrator) networkName() string {
	return o.stackName + "-net"
}

func (o *Orchestrator) labels(service string, rank int) map[string]string {
	return map[string]string{
		LabelManaged: "true",
		LabelStack:   o.stackName,
		LabelService: service,
		LabelRank:    strconv.Itoa(rank),
	}
}

func (o *Orchestrator) stackFilter() ListOptions {
	return ListOptions{
		All:     true,
		Filters: map[string]string{"label": LabelStack + "=" + o.stackName},
	}
}

// =============================================================================
// Bring-up
// =============================================================================

// Up creates and starts every service in the stack in ascending rank order.
// Existing containers for the stack are replaced. Images are built or pulled
// as declared before any container is touched, so a build failure leaves the
// previous deployment running.
func (o *Orchestrator) Up(ctx context.Context, stack *manifest.Stack, opts UpOptions) error {
	if err := o.EnsureImages(ctx, stack, opts.CleanBuild); err != nil {
		return err
	}

	if _, err := o.cli.CreateNetwork(ctx, o.networkName(), map[string]string{
		LabelManaged: "true",
		LabelStack:   o.stackName,
	}); err != nil {
		return err
	}

	for _, vol := range stack.Volumes {
		if vol.External {
			continue
		}
		if _, err := o.cli.CreateVolume(ctx, vol.Name, map[string]string{
			LabelManaged: "true",
			LabelStack:   o.stackName,
		}); err != nil {
			return err
		}
	}

	services := make([]manifest.ServiceDescriptor, len(stack.Services))
	copy(services, stack.Services)
	manifest.SortByRank(services)

	for _, svc := range services {
		svc = opts.Profile.ApplyToService(svc)
		if err := o.upService(ctx, svc, opts.StopTimeout); err != nil {
			return err
		}
	}

	return nil
}

// EnsureImages builds or pulls every image the stack declares.
func (o *Orchestrator) EnsureImages(ctx context.Context, stack *manifest.Stack, cleanBuild bool) error {
	for _, svc := range stack.Services {
		if svc.Build != nil {
			tag := o.imageTag(svc)
			o.logger.Info("building image", "service", svc.Name, "tag", tag, "no_cache", cleanBuild)
			err := o.cli.BuildImage(ctx, BuildSpec{
				ContextDir: svc.Build.Context,
				Dockerfile: svc.Build.Dockerfile,
				Tag:        tag,
				NoCache:    cleanBuild,
				Labels:     o.labels(svc.Name, svc.Rank),
			})
			if err != nil {
				return err
			}
			continue
		}

		exists, err := o.cli.ImageExists(ctx, svc.Image)
		if err != nil {
			return err
		}
		if exists && !cleanBuild {
			continue
		}
		o.logger.Info("pulling image", "service", svc.Name, "image", svc.Image)
		if err := o.cli.PullImage(ctx, svc.Image); err != nil {
			return err
		}
	}
	return nil
}

// imageTag returns the tag used for a service built from source.
func (o *Orchestrator) imageTag(svc manifest.ServiceDescriptor) string {
	if svc.Image != "" {
		return svc.Image
	}
	return fmt.Sprintf("%s-%s:latest", o.stackName, svc.Name)
}

func (o *Orchestrator) upService(ctx context.Context, svc manifest.ServiceDescriptor, stopTimeout time.Duration) error {
	name := o.ContainerName(svc.Name)

	// Replace any previous container for this service.
	if existing, err := o.cli.InspectContainer(ctx, name); err == nil {
		o.logger.Debug("removing previous container", "service", svc.Name, "container", existing.ID[:12])
		if existing.Status == ContainerStatusRunning {
			t := stopTimeout
			if err := o.cli.StopContainer(ctx, existing.ID, &t); err != nil {
				return err
			}
		}
		if err := o.cli.RemoveContainer(ctx, existing.ID, RemoveOptions{Force: true}); err != nil {
			return err
		}
	}

	spec, err := o.containerSpec(svc)
	if err != nil {
		return err
	}

	id, err := o.cli.CreateContainer(ctx, spec)
	if err != nil {
		return err
	}

	o.logger.Info("starting service", "service", svc.Name, "rank", svc.Rank, "container", id[:12])
	return o.cli.StartContainer(ctx, id)
}

// containerSpec translates a service descriptor into a runtime container spec.
func (o *Orchestrator) containerSpec(svc manifest.ServiceDescriptor) (ContainerSpec, error) {
	spec := ContainerSpec{
		Name:       o.ContainerName(svc.Name),
		Image:      o.imageTag(svc),
		Command:    svc.Command,
		Entrypoint: svc.Entrypoint,
		Env:        svc.Environment,
		Labels:     mergeLabels(svc.Labels, o.labels(svc.Name, svc.Rank)),
		Networks:   []string{o.networkName()},
		RestartPolicy: RestartPolicy{
			Name: string(svc.Restart),
		},
	}

	for _, p := range svc.Ports {
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: int(p.Target),
			HostPort:      int(p.Published),
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range svc.Volumes {
		spec.Volumes = append(spec.Volumes, VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if svc.HealthCheck != nil {
		hc := &HealthCheck{
			Test:    svc.HealthCheck.Test,
			Retries: svc.HealthCheck.Retries,
		}
		var err error
		if hc.Interval, err = parseOptionalDuration(svc.HealthCheck.Interval); err != nil {
			return ContainerSpec{}, NewError("containerSpec", "container", spec.Name, "invalid healthcheck interval", err)
		}
		if hc.Timeout, err = parseOptionalDuration(svc.HealthCheck.Timeout); err != nil {
			return ContainerSpec{}, NewError("containerSpec", "container", spec.Name, "invalid healthcheck timeout", err)
		}
		if hc.StartPeriod, err = parseOptionalDuration(svc.HealthCheck.StartPeriod); err != nil {
			return ContainerSpec{}, NewError("containerSpec", "container", spec.Name, "invalid healthcheck start period", err)
		}
		spec.HealthCheck = hc
	}

	return spec, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func mergeLabels(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start starts every stopped container of the stack in ascending rank order.
func (o *Orchestrator) Start(ctx context.Context) error {
	containers, err := o.managedContainers(ctx)
	if err != nil {
		return err
	}

	for _, c := range containers {
		if c.Status == ContainerStatusRunning {
			continue
		}
		o.logger.Info("starting container", "container", c.Name)
		if err := o.cli.StartContainer(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every running container of the stack in descending rank order,
// so dependents go down before their dependencies.
func (o *Orchestrator) Stop(ctx context.Context, timeout time.Duration) error {
	containers, err := o.managedContainers(ctx)
	if err != nil {
		return err
	}

	for i := len(containers) - 1; i >= 0; i-- {
		c := containers[i]
		if c.Status != ContainerStatusRunning {
			continue
		}
		o.logger.Info("stopping container", "container", c.Name)
		t := timeout
		if err := o.cli.StopContainer(ctx, c.ID, &t); err != nil {
			return err
		}
	}
	return nil
}

// Restart restarts every container of the stack in ascending rank order.
func (o *Orchestrator) Restart(ctx context.Context, timeout time.Duration) error {
	containers, err := o.managedContainers(ctx)
	if err != nil {
		return err
	}

	for _, c := range containers {
		o.logger.Info("restarting container", "container", c.Name)
		t := timeout
		if err := o.cli.RestartContainer(ctx, c.ID, &t); err != nil {
			return err
		}
	}
	return nil
}

// Down stops and removes every container of the stack in descending rank
// order. Volumes are left in place.
func (o *Orchestrator) Down(ctx context.Context, timeout time.Duration) error {
	containers, err := o.managedContainers(ctx)
	if err != nil {
		return err
	}

	for i := len(containers) - 1; i >= 0; i-- {
		c := containers[i]
		if c.Status == ContainerStatusRunning {
			t := timeout
			if err := o.cli.StopContainer(ctx, c.ID, &t); err != nil {
				return err
			}
		}
		o.logger.Info("removing container", "container", c.Name)
		if err := o.cli.RemoveContainer(ctx, c.ID, RemoveOptions{Force: true}); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Observation
// =============================================================================

// Status reports the runtime state of every managed container, in rank order.
func (o *Orchestrator) Status(ctx context.Context) ([]ServiceStatus, error) {
	containers, err := o.managedContainers(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]ServiceStatus, 0, len(containers))
	for _, c := range containers {
		info, err := o.cli.InspectContainer(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, ServiceStatus{
			Name:        c.Labels[LabelService],
			Rank:        rankLabel(c.Labels),
			ContainerID: c.ID,
			State:       info.State,
			Health:      info.Health,
			Ports:       info.Ports,
			StartedAt:   info.StartedAt,
		})
	}
	return statuses, nil
}

// PublishedHostPorts reports the host ports currently bound by the stack's
// own running containers. Conflict detection uses this to tell a previous
// deployment of this stack apart from a foreign occupant.
func (o *Orchestrator) PublishedHostPorts(ctx context.Context) (map[int]bool, error) {
	containers, err := o.cli.ListContainers(ctx, o.stackFilter())
	if err != nil {
		return nil, err
	}

	bound := make(map[int]bool)
	for _, c := range containers {
		if c.Status != ContainerStatusRunning {
			continue
		}
		for _, p := range c.Ports {
			if p.HostPort != 0 {
				bound[p.HostPort] = true
			}
		}
	}
	return bound, nil
}

// Logs streams logs for one service of the stack.
func (o *Orchestrator) Logs(ctx context.Context, service string, opts LogOptions) (io.ReadCloser, error) {
	return o.cli.ContainerLogs(ctx, o.ContainerName(service), opts)
}

// Stats returns a resource snapshot for one service of the stack.
func (o *Orchestrator) Stats(ctx context.Context, service string) (*ContainerResourceStats, error) {
	return o.cli.ContainerStats(ctx, o.ContainerName(service))
}

// Container returns the runtime info for one service of the stack.
func (o *Orchestrator) Container(ctx context.Context, service string) (*ContainerInfo, error) {
	return o.cli.InspectContainer(ctx, o.ContainerName(service))
}

// managedContainers lists the stack's containers sorted by rank label, then
// name for a stable order within a rank.
func (o *Orchestrator) managedContainers(ctx context.Context) ([]ContainerInfo, error) {
	containers, err := o.cli.ListContainers(ctx, o.stackFilter())
	if err != nil {
		return nil, err
	}

	sort.SliceStable(containers, func(i, j int) bool {
		ri, rj := rankLabel(containers[i].Labels), rankLabel(containers[j].Labels)
		if ri != rj {
			return ri < rj
		}
		return containers[i].Name < containers[j].Name
	})
	return containers, nil
}

func rankLabel(labels map[string]string) int {
	rank, err := strconv.Atoi(labels[LabelRank])
	if err != nil {
		return 0
	}
	return rank
}
