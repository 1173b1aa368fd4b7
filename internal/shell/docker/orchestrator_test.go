package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumops/forumctl/internal/core/manifest"
)

// =============================================================================
// Fake Client
// =============================================================================

type fakeContainer struct {
	info    ContainerInfo
	spec    ContainerSpec
	running bool
}

// fakeClient is an in-memory Client that records the order of operations.
type fakeClient struct {
	containers map[string]*fakeContainer // keyed by name
	images     map[string]bool
	calls      []string
	nextID     int
	buildErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		containers: map[string]*fakeContainer{},
		images:     map[string]bool{},
	}
}

func (f *fakeClient) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeClient) byID(id string) (*fakeContainer, bool) {
	for _, c := range f.containers {
		if c.info.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (f *fakeClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	if _, exists := f.containers[spec.Name]; exists {
		return "", NewError("CreateContainer", "container", spec.Name, "exists", ErrContainerAlreadyExists)
	}
	f.nextID++
	id := fmt.Sprintf("container-%012d", f.nextID)
	f.containers[spec.Name] = &fakeContainer{
		info: ContainerInfo{
			ID:     id,
			Name:   spec.Name,
			Image:  spec.Image,
			Status: ContainerStatusCreated,
			State:  "created",
			Ports:  spec.Ports,
			Labels: spec.Labels,
		},
		spec: spec,
	}
	f.record("create %s", spec.Name)
	return id, nil
}

func (f *fakeClient) StartContainer(ctx context.Context, id string) error {
	c, ok := f.byID(id)
	if !ok {
		return NewError("StartContainer", "container", id, "not found", ErrContainerNotFound)
	}
	c.running = true
	c.info.Status = ContainerStatusRunning
	c.info.State = "running"
	f.record("start %s", c.info.Name)
	return nil
}

func (f *fakeClient) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	c, ok := f.byID(id)
	if !ok {
		return NewError("StopContainer", "container", id, "not found", ErrContainerNotFound)
	}
	c.running = false
	c.info.Status = ContainerStatusExited
	c.info.State = "exited"
	f.record("stop %s", c.info.Name)
	return nil
}

func (f *fakeClient) RestartContainer(ctx context.Context, id string, timeout *time.Duration) error {
	c, ok := f.byID(id)
	if !ok {
		return NewError("RestartContainer", "container", id, "not found", ErrContainerNotFound)
	}
	c.running = true
	c.info.Status = ContainerStatusRunning
	c.info.State = "running"
	f.record("restart %s", c.info.Name)
	return nil
}

func (f *fakeClient) RemoveContainer(ctx context.Context, id string, opts RemoveOptions) error {
	c, ok := f.byID(id)
	if !ok {
		return NewError("RemoveContainer", "container", id, "not found", ErrContainerNotFound)
	}
	delete(f.containers, c.info.Name)
	f.record("remove %s", c.info.Name)
	return nil
}

func (f *fakeClient) InspectContainer(ctx context.Context, idOrName string) (*ContainerInfo, error) {
	if c, ok := f.containers[idOrName]; ok {
		info := c.info
		return &info, nil
	}
	if c, ok := f.byID(idOrName); ok {
		info := c.info
		return &info, nil
	}
	return nil, NewError("InspectContainer", "container", idOrName, "not found", ErrContainerNotFound)
}

func (f *fakeClient) ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error) {
	var result []ContainerInfo
	for _, c := range f.containers {
		if !opts.All && !c.running {
			continue
		}
		result = append(result, c.info)
	}
	return result, nil
}

func (f *fakeClient) ContainerLogs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error) {
	if _, ok := f.containers[id]; !ok {
		if _, ok := f.byID(id); !ok {
			return nil, NewError("ContainerLogs", "container", id, "not found", ErrContainerNotFound)
		}
	}
	return io.NopCloser(bytes.NewBufferString("log line\n")), nil
}

func (f *fakeClient) ContainerStats(ctx context.Context, id string) (*ContainerResourceStats, error) {
	return &ContainerResourceStats{CPUPercent: 1.5, MemoryUsageBytes: 1 << 20}, nil
}

func (f *fakeClient) Exec(ctx context.Context, id string, spec ExecSpec) (*ExecResult, error) {
	return &ExecResult{ExitCode: 0}, nil
}

func (f *fakeClient) ExecStream(ctx context.Context, id string, spec ExecSpec, w io.Writer) (int, error) {
	return 0, nil
}

func (f *fakeClient) BuildImage(ctx context.Context, spec BuildSpec) error {
	if f.buildErr != nil {
		return f.buildErr
	}
	f.images[spec.Tag] = true
	f.record("build %s no_cache=%v", spec.Tag, spec.NoCache)
	return nil
}

func (f *fakeClient) PullImage(ctx context.Context, imageName string) error {
	f.images[imageName] = true
	f.record("pull %s", imageName)
	return nil
}

func (f *fakeClient) ImageExists(ctx context.Context, imageName string) (bool, error) {
	return f.images[imageName], nil
}

func (f *fakeClient) CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	f.record("network %s", name)
	return name, nil
}

func (f *fakeClient) CreateVolume(ctx context.Context, name string, labels map[string]string) (string, error) {
	f.record("volume %s", name)
	return name, nil
}

func (f *fakeClient) Prune(ctx context.Context) (*PruneReport, error) {
	return &PruneReport{}, nil
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) ServerVersion(ctx context.Context) (string, error) {
	return "28.0.0-fake", nil
}

func (f *fakeClient) Close() error { return nil }

// =============================================================================
// Fixtures
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func forumStack() *manifest.Stack {
	return &manifest.Stack{
		Services: []manifest.ServiceDescriptor{
			{Name: "postgres", Rank: 0, Image: "postgres:16"},
			{Name: "redis", Rank: 0, Image: "redis:7"},
			{
				Name:      "app",
				Rank:      1,
				Image:     "forum-app:latest",
				Build:     &manifest.BuildConfig{Context: "."},
				DependsOn: []string{"postgres", "redis"},
				Ports:     []manifest.Port{{Target: 8000}},
			},
			{
				Name:      "nginx",
				Rank:      2,
				Image:     "nginx:alpine",
				DependsOn: []string{"app"},
				Ports: []manifest.Port{
					{Target: 80, Published: 80},
					{Target: 443, Published: 443},
				},
			},
		},
		Volumes: []manifest.Volume{{Name: "forum-postgres-data"}},
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestOrchestratorUpStartsInRankOrder(t *testing.T) {
	cli := newFakeClient()
	orch := NewOrchestrator(cli, testLogger(), "forum")

	err := orch.Up(context.Background(), forumStack(), UpOptions{
		Profile:     manifest.StandardProfile(),
		StopTimeout: 10 * time.Second,
	})
	require.NoError(t, err)

	var startOrder []string
	for _, call := range cli.calls {
		var name string
		if _, err := fmt.Sscanf(call, "start %s", &name); err == nil {
			startOrder = append(startOrder, name)
		}
	}

	require.Len(t, startOrder, 4)
	// Rank 0 first in name order, then rank 1, then rank 2.
	assert.Equal(t, []string{"forum-postgres", "forum-redis", "forum-app", "forum-nginx"}, startOrder)
}

func TestOrchestratorUpReplacesExistingContainers(t *testing.T) {
	cli := newFakeClient()
	orch := NewOrchestrator(cli, testLogger(), "forum")

	require.NoError(t, orch.Up(context.Background(), forumStack(), UpOptions{Profile: manifest.StandardProfile()}))
	firstID := cli.containers["forum-app"].info.ID

	require.NoError(t, orch.Up(context.Background(), forumStack(), UpOptions{Profile: manifest.StandardProfile()}))
	secondID := cli.containers["forum-app"].info.ID

	assert.NotEqual(t, firstID, secondID)
	assert.Contains(t, cli.calls, "remove forum-app")
}

func TestOrchestratorUpAppliesAlternateProfile(t *testing.T) {
	cli := newFakeClient()
	orch := NewOrchestrator(cli, testLogger(), "forum")

	err := orch.Up(context.Background(), forumStack(), UpOptions{Profile: manifest.AlternateProfile()})
	require.NoError(t, err)

	nginx := cli.containers["forum-nginx"]
	require.NotNil(t, nginx)
	require.Len(t, nginx.spec.Ports, 2)
	assert.Equal(t, 8080, nginx.spec.Ports[0].HostPort)
	assert.Equal(t, 8443, nginx.spec.Ports[1].HostPort)
	// Container-side ports are untouched.
	assert.Equal(t, 80, nginx.spec.Ports[0].ContainerPort)
	assert.Equal(t, 443, nginx.spec.Ports[1].ContainerPort)
}

func TestOrchestratorUpBuildFailureTouchesNoContainers(t *testing.T) {
	cli := newFakeClient()
	cli.buildErr = NewError("BuildImage", "image", "forum-app:latest", "step 4 failed", ErrImageBuildFailed)
	orch := NewOrchestrator(cli, testLogger(), "forum")

	err := orch.Up(context.Background(), forumStack(), UpOptions{Profile: manifest.StandardProfile()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageBuildFailed)
	assert.Empty(t, cli.containers)
}

func TestOrchestratorCleanBuildDisablesCache(t *testing.T) {
	cli := newFakeClient()
	orch := NewOrchestrator(cli, testLogger(), "forum")

	err := orch.Up(context.Background(), forumStack(), UpOptions{
		Profile:    manifest.StandardProfile(),
		CleanBuild: true,
	})
	require.NoError(t, err)
	assert.Contains(t, cli.calls, "build forum-app:latest no_cache=true")
}

func TestOrchestratorStopReversesRankOrder(t *testing.T) {
	cli := newFakeClient()
	orch := NewOrchestrator(cli, testLogger(), "forum")
	require.NoError(t, orch.Up(context.Background(), forumStack(), UpOptions{Profile: manifest.StandardProfile()}))
	cli.calls = nil

	require.NoError(t, orch.Stop(context.Background(), 10*time.Second))

	assert.Equal(t, []string{
		"stop forum-nginx",
		"stop forum-app",
		"stop forum-redis",
		"stop forum-postgres",
	}, cli.calls)
}

func TestOrchestratorStatusSortsByRank(t *testing.T) {
	cli := newFakeClient()
	orch := NewOrchestrator(cli, testLogger(), "forum")
	require.NoError(t, orch.Up(context.Background(), forumStack(), UpOptions{Profile: manifest.StandardProfile()}))

	statuses, err := orch.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 4)

	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, s.Name)
		assert.Equal(t, "running", s.State)
	}
	assert.Equal(t, []string{"postgres", "redis", "app", "nginx"}, names)
}

func TestOrchestratorPublishedHostPorts(t *testing.T) {
	cli := newFakeClient()
	orch := NewOrchestrator(cli, testLogger(), "forum")
	require.NoError(t, orch.Up(context.Background(), forumStack(), UpOptions{Profile: manifest.StandardProfile()}))

	bound, err := orch.PublishedHostPorts(context.Background())
	require.NoError(t, err)
	assert.True(t, bound[80])
	assert.True(t, bound[443])
	// The app's unpublished container port does not count.
	assert.Len(t, bound, 2)

	// Stopped containers hold no host ports.
	require.NoError(t, orch.Stop(context.Background(), time.Second))
	bound, err = orch.PublishedHostPorts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bound)
}

func TestOrchestratorLogs(t *testing.T) {
	cli := newFakeClient()
	orch := NewOrchestrator(cli, testLogger(), "forum")
	require.NoError(t, orch.Up(context.Background(), forumStack(), UpOptions{Profile: manifest.StandardProfile()}))

	rc, err := orch.Logs(context.Background(), "app", LogOptions{Tail: "50"})
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "log line\n", string(data))
}

func TestOrchestratorEnsureImagesSkipsPresent(t *testing.T) {
	cli := newFakeClient()
	cli.images["postgres:16"] = true
	orch := NewOrchestrator(cli, testLogger(), "forum")

	err := orch.EnsureImages(context.Background(), forumStack(), false)
	require.NoError(t, err)

	assert.NotContains(t, cli.calls, "pull postgres:16")
	assert.Contains(t, cli.calls, "pull redis:7")
	assert.Contains(t, cli.calls, "pull nginx:alpine")
}
