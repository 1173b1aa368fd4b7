package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/moby/go-archive"
)

// =============================================================================
// SDK Client Implementation
// =============================================================================

// SDKClient implements the Client interface using the Docker SDK.
type SDKClient struct {
	cli *client.Client
}

// NewSDKClient creates a client against the given host, or the environment
// default when host is empty.
func NewSDKClient(host string) (*SDKClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewError("NewSDKClient", "", "", "failed to create client", ErrConnectionFailed)
	}
	return &SDKClient{cli: cli}, nil
}

// Ping checks if the Docker daemon is reachable.
func (d *SDKClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// ServerVersion returns the daemon version string.
func (d *SDKClient) ServerVersion(ctx context.Context) (string, error) {
	v, err := d.cli.ServerVersion(ctx)
	if err != nil {
		return "", NewError("ServerVersion", "", "", err.Error(), ErrConnectionFailed)
	}
	return v.Version, nil
}

// Close closes the client connection.
func (d *SDKClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Container Operations
// =============================================================================

// CreateContainer creates a new container from the given spec.
func (d *SDKClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	config := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Command,
		Entrypoint: spec.Entrypoint,
		Labels:     spec.Labels,
	}

	for k, v := range spec.Env {
		config.Env = append(config.Env, fmt.Sprintf("%s=%s", k, v))
	}

	hostConfig := &container.HostConfig{}

	if len(spec.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}

		for _, p := range spec.Ports {
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			containerPort := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
			exposedPorts[containerPort] = struct{}{}

			hostPort := ""
			if p.HostPort != 0 {
				hostPort = fmt.Sprintf("%d", p.HostPort)
			}

			portBindings[containerPort] = []nat.PortBinding{
				{
					HostIP:   p.HostIP,
					HostPort: hostPort,
				},
			}
		}

		config.ExposedPorts = exposedPorts
		hostConfig.PortBindings = portBindings
	}

	for _, v := range spec.Volumes {
		mountType := mount.TypeVolume
		if strings.HasPrefix(v.Source, "/") {
			mountType = mount.TypeBind
		}
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mountType,
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if spec.RestartPolicy.Name != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name:              container.RestartPolicyMode(spec.RestartPolicy.Name),
			MaximumRetryCount: spec.RestartPolicy.MaximumRetryCount,
		}
	}

	if spec.HealthCheck != nil {
		config.Healthcheck = &container.HealthConfig{
			Test:        spec.HealthCheck.Test,
			Interval:    spec.HealthCheck.Interval,
			Timeout:     spec.HealthCheck.Timeout,
			Retries:     spec.HealthCheck.Retries,
			StartPeriod: spec.HealthCheck.StartPeriod,
		}
	}

	var networkConfig *network.NetworkingConfig
	if len(spec.Networks) > 0 {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{},
		}
		for _, n := range spec.Networks {
			networkConfig.EndpointsConfig[n] = &network.EndpointSettings{}
		}
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, spec.Name)
	if err != nil {
		if strings.Contains(err.Error(), "Conflict") {
			return "", NewError("CreateContainer", "container", spec.Name, "container already exists", ErrContainerAlreadyExists)
		}
		if strings.Contains(err.Error(), "port is already allocated") {
			return "", NewError("CreateContainer", "container", spec.Name, err.Error(), ErrPortAlreadyAllocated)
		}
		return "", NewError("CreateContainer", "container", spec.Name, err.Error(), err)
	}

	return resp.ID, nil
}

// StartContainer starts a stopped container.
func (d *SDKClient) StartContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewError("StartContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "is already running") {
			return NewError("StartContainer", "container", containerID, "container is already running", ErrContainerAlreadyRunning)
		}
		return NewError("StartContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// StopContainer stops a running container.
func (d *SDKClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	stopOptions := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		stopOptions.Timeout = &seconds
	}

	err := d.cli.ContainerStop(ctx, containerID, stopOptions)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewError("StopContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "is not running") {
			return NewError("StopContainer", "container", containerID, "container is not running", ErrContainerNotRunning)
		}
		return NewError("StopContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// RestartContainer restarts a container.
func (d *SDKClient) RestartContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	stopOptions := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		stopOptions.Timeout = &seconds
	}

	err := d.cli.ContainerRestart(ctx, containerID, stopOptions)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewError("RestartContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewError("RestartContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// RemoveContainer removes a container.
func (d *SDKClient) RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.RemoveVolumes,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewError("RemoveContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewError("RemoveContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// InspectContainer returns detailed information about a container.
func (d *SDKClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	resp, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewError("InspectContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewError("InspectContainer", "container", containerID, err.Error(), err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, resp.Created)

	var startedAt, finishedAt *time.Time
	if resp.State.StartedAt != "" && resp.State.StartedAt != "0001-01-01T00:00:00Z" {
		t, _ := time.Parse(time.RFC3339Nano, resp.State.StartedAt)
		startedAt = &t
	}
	if resp.State.FinishedAt != "" && resp.State.FinishedAt != "0001-01-01T00:00:00Z" {
		t, _ := time.Parse(time.RFC3339Nano, resp.State.FinishedAt)
		finishedAt = &t
	}

	var ports []PortBinding
	for containerPort, bindings := range resp.NetworkSettings.Ports {
		port, proto := nat.Port(containerPort).Port(), nat.Port(containerPort).Proto()
		for _, binding := range bindings {
			var hostPort int
			if binding.HostPort != "" {
				fmt.Sscanf(binding.HostPort, "%d", &hostPort)
			}
			var containerPortInt int
			fmt.Sscanf(port, "%d", &containerPortInt)
			ports = append(ports, PortBinding{
				ContainerPort: containerPortInt,
				HostPort:      hostPort,
				Protocol:      proto,
				HostIP:        binding.HostIP,
			})
		}
	}

	health := ""
	if resp.State.Health != nil {
		health = resp.State.Health.Status
	}

	return &ContainerInfo{
		ID:         resp.ID,
		Name:       strings.TrimPrefix(resp.Name, "/"),
		Image:      resp.Config.Image,
		Status:     ContainerStatus(resp.State.Status),
		State:      resp.State.Status,
		Health:     health,
		CreatedAt:  createdAt,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Ports:      ports,
		Labels:     resp.Config.Labels,
		ExitCode:   resp.State.ExitCode,
	}, nil
}

// ListContainers returns a list of containers matching the given options.
func (d *SDKClient) ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error) {
	listOpts := container.ListOptions{All: opts.All}

	if len(opts.Filters) > 0 {
		f := filters.NewArgs()
		for k, v := range opts.Filters {
			f.Add(k, v)
		}
		listOpts.Filters = f
	}

	containers, err := d.cli.ContainerList(ctx, listOpts)
	if err != nil {
		return nil, NewError("ListContainers", "container", "", err.Error(), err)
	}

	var result []ContainerInfo
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		var ports []PortBinding
		for _, p := range c.Ports {
			ports = append(ports, PortBinding{
				ContainerPort: int(p.PrivatePort),
				HostPort:      int(p.PublicPort),
				Protocol:      p.Type,
				HostIP:        p.IP,
			})
		}

		result = append(result, ContainerInfo{
			ID:        c.ID,
			Name:      name,
			Image:     c.Image,
			Status:    ContainerStatus(c.State),
			State:     c.State,
			CreatedAt: time.Unix(c.Created, 0),
			Ports:     ports,
			Labels:    c.Labels,
		})
	}

	return result, nil
}

// ContainerLogs returns logs from a container.
func (d *SDKClient) ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error) {
	reader, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       opts.Tail,
		Timestamps: opts.Timestamps,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewError("ContainerLogs", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewError("ContainerLogs", "container", containerID, err.Error(), err)
	}
	return reader, nil
}

// ContainerStats returns a one-shot resource snapshot for a container.
func (d *SDKClient) ContainerStats(ctx context.Context, containerID string) (*ContainerResourceStats, error) {
	statsResp, err := d.cli.ContainerStats(ctx, containerID, false)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewError("ContainerStats", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewError("ContainerStats", "container", containerID, err.Error(), err)
	}
	defer statsResp.Body.Close()

	var statsJSON container.StatsResponse
	if err := json.NewDecoder(statsResp.Body).Decode(&statsJSON); err != nil {
		return nil, NewError("ContainerStats", "container", containerID, "failed to parse stats: "+err.Error(), err)
	}

	return calculateStats(&statsJSON), nil
}

// calculateStats converts a raw stats response into resource percentages.
func calculateStats(stats *container.StatsResponse) *ContainerResourceStats {
	result := &ContainerResourceStats{}

	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage - stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage - stats.PreCPUStats.SystemUsage)
	cpuCount := float64(stats.CPUStats.OnlineCPUs)
	if cpuCount == 0 {
		cpuCount = 1
	}
	if systemDelta > 0 && cpuDelta > 0 {
		result.CPUPercent = (cpuDelta / systemDelta) * cpuCount * 100.0
	}

	result.MemoryUsageBytes = int64(stats.MemoryStats.Usage)
	result.MemoryLimitBytes = int64(stats.MemoryStats.Limit)
	if result.MemoryLimitBytes > 0 {
		result.MemoryPercent = float64(result.MemoryUsageBytes) / float64(result.MemoryLimitBytes) * 100.0
	}

	for _, netStats := range stats.Networks {
		result.NetworkRxBytes += int64(netStats.RxBytes)
		result.NetworkTxBytes += int64(netStats.TxBytes)
	}

	for _, bioEntry := range stats.BlkioStats.IoServiceBytesRecursive {
		switch bioEntry.Op {
		case "Read", "read":
			result.BlockReadBytes += int64(bioEntry.Value)
		case "Write", "write":
			result.BlockWriteBytes += int64(bioEntry.Value)
		}
	}

	result.PIDs = int(stats.PidsStats.Current)

	return result
}

// =============================================================================
// Exec Operations
// =============================================================================

// Exec runs a command inside a running container and captures its output.
func (d *SDKClient) Exec(ctx context.Context, containerID string, spec ExecSpec) (*ExecResult, error) {
	var stdout, stderr bytes.Buffer
	exitCode, err := d.exec(ctx, containerID, spec, &stdout, &stderr)
	if err != nil {
		return nil, err
	}
	return &ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}

// ExecStream runs a command and streams its stdout to w. Stderr is captured
// separately so a dump piped to disk is never interleaved with diagnostics.
func (d *SDKClient) ExecStream(ctx context.Context, containerID string, spec ExecSpec, w io.Writer) (int, error) {
	var stderr bytes.Buffer
	exitCode, err := d.exec(ctx, containerID, spec, w, &stderr)
	if err != nil {
		return 0, err
	}
	if exitCode != 0 && stderr.Len() > 0 {
		return exitCode, NewError("ExecStream", "container", containerID, strings.TrimSpace(stderr.String()), ErrExecFailed)
	}
	return exitCode, nil
}

func (d *SDKClient) exec(ctx context.Context, containerID string, spec ExecSpec, stdout, stderr io.Writer) (int, error) {
	created, err := d.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          spec.Cmd,
		Env:          spec.Env,
		User:         spec.User,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  spec.Stdin != nil,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return 0, NewError("Exec", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return 0, NewError("Exec", "container", containerID, err.Error(), err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return 0, NewError("Exec", "container", containerID, err.Error(), err)
	}
	defer attach.Close()

	if spec.Stdin != nil {
		go func() {
			_, _ = io.Copy(attach.Conn, spec.Stdin)
			_ = attach.CloseWrite()
		}()
	}

	// Demultiplex the runtime's stream framing into stdout/stderr.
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(stdout, stderr, attach.Reader)
		copyDone <- copyErr
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case copyErr := <-copyDone:
		if copyErr != nil {
			return 0, NewError("Exec", "container", containerID, copyErr.Error(), copyErr)
		}
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return 0, NewError("Exec", "container", containerID, err.Error(), err)
	}
	return inspect.ExitCode, nil
}

// =============================================================================
// Image Operations
// =============================================================================

// BuildImage builds an image from a local build context directory.
func (d *SDKClient) BuildImage(ctx context.Context, spec BuildSpec) error {
	buildContext, err := archive.TarWithOptions(spec.ContextDir, &archive.TarOptions{})
	if err != nil {
		return NewError("BuildImage", "image", spec.Tag, "failed to tar build context: "+err.Error(), ErrImageBuildFailed)
	}
	defer buildContext.Close()

	dockerfile := spec.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	resp, err := d.cli.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:       []string{spec.Tag},
		Dockerfile: dockerfile,
		Labels:     spec.Labels,
		Remove:     true,
		NoCache:    spec.NoCache,
		PullParent: spec.NoCache,
	})
	if err != nil {
		return NewError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuildFailed)
	}
	defer resp.Body.Close()

	// Drain the build stream; a failed step arrives as an error message in
	// the stream, not as an error from ImageBuild itself.
	dec := json.NewDecoder(resp.Body)
	for {
		var jm jsonmessage.JSONMessage
		if err := dec.Decode(&jm); err != nil {
			if err == io.EOF {
				break
			}
			return NewError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuildFailed)
		}
		if jm.Error != nil {
			return NewError("BuildImage", "image", spec.Tag, jm.Error.Message, ErrImageBuildFailed)
		}
	}

	return nil
}

// PullImage pulls an image from the registry.
func (d *SDKClient) PullImage(ctx context.Context, imageName string) error {
	reader, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "not found") ||
			strings.Contains(errStr, "manifest unknown") ||
			strings.Contains(errStr, "repository does not exist") ||
			strings.Contains(errStr, "pull access denied") {
			return NewError("PullImage", "image", imageName, "image not found", ErrImageNotFound)
		}
		return NewError("PullImage", "image", imageName, err.Error(), ErrImagePullFailed)
	}
	defer reader.Close()

	// Drain the reader to complete the pull.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return NewError("PullImage", "image", imageName, err.Error(), ErrImagePullFailed)
	}

	return nil
}

// ImageExists checks if an image exists locally.
func (d *SDKClient) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, imageName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, NewError("ImageExists", "image", imageName, err.Error(), err)
	}
	return true, nil
}

// =============================================================================
// Network and Volume Operations
// =============================================================================

// CreateNetwork creates a bridge network, reusing an existing one by name.
func (d *SDKClient) CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	resp, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: labels,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return name, nil
		}
		return "", NewError("CreateNetwork", "network", name, err.Error(), err)
	}
	return resp.ID, nil
}

// CreateVolume creates a named volume, reusing an existing one by name.
func (d *SDKClient) CreateVolume(ctx context.Context, name string, labels map[string]string) (string, error) {
	resp, err := d.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: labels,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return name, nil
		}
		return "", NewError("CreateVolume", "volume", name, err.Error(), err)
	}
	return resp.Name, nil
}

// =============================================================================
// Housekeeping
// =============================================================================

// Prune removes stopped containers, dangling images, and unused networks.
func (d *SDKClient) Prune(ctx context.Context) (*PruneReport, error) {
	report := &PruneReport{}

	cp, err := d.cli.ContainersPrune(ctx, filters.Args{})
	if err != nil {
		return nil, NewError("Prune", "container", "", err.Error(), err)
	}
	report.ContainersDeleted = len(cp.ContainersDeleted)
	report.SpaceReclaimed += cp.SpaceReclaimed

	ip, err := d.cli.ImagesPrune(ctx, filters.Args{})
	if err != nil {
		return nil, NewError("Prune", "image", "", err.Error(), err)
	}
	report.ImagesDeleted = len(ip.ImagesDeleted)
	report.SpaceReclaimed += ip.SpaceReclaimed

	np, err := d.cli.NetworksPrune(ctx, filters.Args{})
	if err != nil {
		return nil, NewError("Prune", "network", "", err.Error(), err)
	}
	report.NetworksDeleted = len(np.NetworksDeleted)

	return report, nil
}
