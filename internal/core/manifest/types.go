package manifest

// =============================================================================
// ServiceDescriptor
// =============================================================================

// ServiceDescriptor is the static declaration of one managed service: its
// identity, start ordering, port bindings, and health contract. It is
// immutable once loaded from the manifest.
type ServiceDescriptor struct {
	Name        string            `json:"name"`
	Rank        int               `json:"rank"` // lower starts first
	Image       string            `json:"image,omitempty"`
	Build       *BuildConfig      `json:"build,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Entrypoint  []string          `json:"entrypoint,omitempty"`
	Ports       []Port            `json:"ports,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Volumes     []VolumeMount     `json:"volumes,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty"`
	Restart     RestartPolicy     `json:"restart,omitempty"`
	HealthCheck *HealthCheck      `json:"healthcheck,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// BuildConfig represents a service build context.
type BuildConfig struct {
	Context    string `json:"context"`
	Dockerfile string `json:"dockerfile,omitempty"`
}

// Port represents a declared port mapping.
type Port struct {
	Target    uint32 `json:"target"`              // container port
	Published uint32 `json:"published,omitempty"` // host port (0 = unpublished)
	Protocol  string `json:"protocol,omitempty"`
	HostIP    string `json:"host_ip,omitempty"`
}

// VolumeMount represents a volume mount in a service.
type VolumeMount struct {
	Type     VolumeMountType `json:"type"`
	Source   string          `json:"source"`
	Target   string          `json:"target"`
	ReadOnly bool            `json:"readonly"`
}

// VolumeMountType represents the type of volume mount.
type VolumeMountType string

const (
	VolumeMountTypeBind   VolumeMountType = "bind"
	VolumeMountTypeVolume VolumeMountType = "volume"
	VolumeMountTypeTmpfs  VolumeMountType = "tmpfs"
)

// RestartPolicy represents the restart policy.
type RestartPolicy string

const (
	RestartNo            RestartPolicy = "no"
	RestartAlways        RestartPolicy = "always"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
)

// HealthCheck represents a container-level health check declaration.
type HealthCheck struct {
	Test        []string `json:"test"`
	Interval    string   `json:"interval,omitempty"`
	Timeout     string   `json:"timeout,omitempty"`
	Retries     int      `json:"retries,omitempty"`
	StartPeriod string   `json:"start_period,omitempty"`
}

// =============================================================================
// Stack - Main Output Type
// =============================================================================

// Volume represents a named volume declaration.
type Volume struct {
	Name     string            `json:"name"`
	Driver   string            `json:"driver,omitempty"`
	External bool              `json:"external,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// Network represents a network declaration.
type Network struct {
	Name   string            `json:"name"`
	Driver string            `json:"driver,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Stack is the fully parsed manifest: services in ascending rank order plus
// the volumes and networks they reference.
type Stack struct {
	Services []ServiceDescriptor `json:"services"`
	Networks []Network           `json:"networks,omitempty"`
	Volumes  []Volume            `json:"volumes,omitempty"`
}

// Service returns the descriptor with the given name, if declared.
func (s *Stack) Service(name string) (ServiceDescriptor, bool) {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceDescriptor{}, false
}

// ServiceNames returns declared service names in rank order.
func (s *Stack) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for _, svc := range s.Services {
		names = append(names, svc.Name)
	}
	return names
}

// PublishedPorts returns every host port the stack wants to bind, in rank
// order, deduplicated.
func (s *Stack) PublishedPorts() []int {
	seen := make(map[int]bool)
	var ports []int
	for _, svc := range s.Services {
		for _, p := range svc.Ports {
			if p.Published == 0 {
				continue
			}
			port := int(p.Published)
			if !seen[port] {
				seen[port] = true
				ports = append(ports, port)
			}
		}
	}
	return ports
}
