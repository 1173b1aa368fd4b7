// Package docker wraps the Docker SDK with the container lifecycle verbs the
// deployment pipeline needs. It is the only package permitted to mutate
// container-runtime state.
package docker

import (
	"context"
	"io"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name          string
	Image         string
	Command       []string
	Entrypoint    []string
	Env           map[string]string
	Labels        map[string]string
	Ports         []PortBinding
	Volumes       []VolumeMount
	Networks      []string
	RestartPolicy RestartPolicy
	HealthCheck   *HealthCheck
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// VolumeMount defines a volume mount.
type VolumeMount struct {
	Source   string // volume name or host path
	Target   string // container path
	ReadOnly bool
}

// RestartPolicy defines the container restart policy.
type RestartPolicy struct {
	Name              string // "no", "always", "on-failure", "unless-stopped"
	MaximumRetryCount int
}

// HealthCheck defines container health check configuration.
type HealthCheck struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// BuildSpec defines an image build.
type BuildSpec struct {
	ContextDir string
	Dockerfile string // relative to ContextDir, "" means Dockerfile
	Tag        string
	NoCache    bool // clean build: ignore cached layers and re-pull bases
	Labels     map[string]string
}

// ExecSpec defines a command execution inside a running container.
type ExecSpec struct {
	Cmd   []string
	Env   []string
	User  string
	Stdin io.Reader // nil when the command takes no input
}

// ExecResult carries the outcome of an exec.
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// =============================================================================
// Container Info
// =============================================================================

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID         string
	Name       string
	Image      string
	Status     ContainerStatus
	State      string
	Health     string // "healthy", "unhealthy", "starting", ""
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Ports      []PortBinding
	Labels     map[string]string
	ExitCode   int
}

// ContainerResourceStats represents resource statistics for a container.
type ContainerResourceStats struct {
	CPUPercent       float64
	MemoryUsageBytes int64
	MemoryLimitBytes int64
	MemoryPercent    float64
	NetworkRxBytes   int64
	NetworkTxBytes   int64
	BlockReadBytes   int64
	BlockWriteBytes  int64
	PIDs             int
}

// PruneReport summarizes what a cleanup pass reclaimed.
type PruneReport struct {
	ContainersDeleted int
	ImagesDeleted     int
	NetworksDeleted   int
	SpaceReclaimed    uint64
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool              // include stopped containers
	Filters map[string]string // e.g., {"label": "com.forumctl.service=app"}
}

// LogOptions defines options for container logs.
type LogOptions struct {
	Follow     bool
	Tail       string // "all" or number
	Timestamps bool
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the container runtime interface the pipeline consumes.
type Client interface {
	// Container lifecycle
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RestartContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)
	ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error)
	ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error)
	ContainerStats(ctx context.Context, containerID string) (*ContainerResourceStats, error)

	// In-container execution
	Exec(ctx context.Context, containerID string, spec ExecSpec) (*ExecResult, error)
	// ExecStream runs a command and streams its stdout to w, demultiplexing
	// the runtime's log framing. Used for dump/archive piping.
	ExecStream(ctx context.Context, containerID string, spec ExecSpec, w io.Writer) (int, error)

	// Images
	BuildImage(ctx context.Context, spec BuildSpec) error
	PullImage(ctx context.Context, imageName string) error
	ImageExists(ctx context.Context, imageName string) (bool, error)

	// Networks and volumes
	CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error)
	CreateVolume(ctx context.Context, name string, labels map[string]string) (string, error)

	// Housekeeping
	Prune(ctx context.Context) (*PruneReport, error)

	// Daemon
	Ping(ctx context.Context) error
	ServerVersion(ctx context.Context) (string, error)
	Close() error
}

// =============================================================================
// Label Constants
// =============================================================================

const (
	LabelManaged = "com.forumctl.managed"
	LabelStack   = "com.forumctl.stack"
	LabelService = "com.forumctl.service"
	LabelRank    = "com.forumctl.rank"
)
