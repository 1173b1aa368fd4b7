package manifest

import (
	"context"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Parser Functions
// =============================================================================

// Parse parses Docker Compose YAML into a Stack. Services come out in
// ascending rank order, where rank is the topological depth of the service's
// depends_on graph (data store and cache at rank 0, application above them,
// proxy on top).
//
// env supplies the values for ${VAR} interpolation in the YAML - the
// materialized configuration record, not the ambient process environment.
// Secrets referenced by the manifest only reach the containers through it.
//
// This is a pure function - no I/O, no side effects.
func Parse(yamlContent string, env map[string]string) (*Stack, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadProject(yamlContent, env)
	if err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	stack := &Stack{
		Services: make([]ServiceDescriptor, 0, len(project.Services)),
		Networks: make([]Network, 0, len(project.Networks)),
		Volumes:  make([]Volume, 0, len(project.Volumes)),
	}

	for _, svc := range project.Services {
		converted, err := convertService(svc)
		if err != nil {
			return nil, err
		}
		stack.Services = append(stack.Services, converted)
	}

	if err := validateDependencies(stack.Services); err != nil {
		return nil, err
	}

	// Assign ranks and order by them. Rank is recomputed here rather than
	// trusted from labels so the ordering guarantee always holds.
	if err := AssignRanks(stack.Services); err != nil {
		return nil, err
	}
	SortByRank(stack.Services)

	for name, net := range project.Networks {
		stack.Networks = append(stack.Networks, Network{
			Name:   name,
			Driver: net.Driver,
			Labels: net.Labels,
		})
	}
	for name, vol := range project.Volumes {
		stack.Volumes = append(stack.Volumes, Volume{
			Name:     name,
			Driver:   vol.Driver,
			External: bool(vol.External),
			Labels:   vol.Labels,
		})
	}

	return stack, nil
}

// loadProject loads a compose project from in-memory YAML using compose-go.
func loadProject(yamlContent string, env map[string]string) (*types.Project, error) {
	// Parse YAML into a map first so syntax errors surface cleanly.
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		Environment: env,
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("forumctl", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory spec: don't resolve paths or chase external files.
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "dependency cycle detected") {
			return nil, NewParseError("", "circular dependency detected", ErrCircularDependency)
		}
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, NewParseError("", "service must have image or build", ErrServiceNoImage)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}

// convertService converts a compose-go service to a ServiceDescriptor.
func convertService(svc types.ServiceConfig) (ServiceDescriptor, error) {
	desc := ServiceDescriptor{
		Name:        svc.Name,
		Image:       svc.Image,
		Command:     svc.Command,
		Entrypoint:  svc.Entrypoint,
		Environment: make(map[string]string),
		Labels:      make(map[string]string),
		DependsOn:   make([]string, 0),
	}

	if svc.Build != nil {
		desc.Build = &BuildConfig{
			Context:    svc.Build.Context,
			Dockerfile: svc.Build.Dockerfile,
		}
	}

	if desc.Image == "" && desc.Build == nil {
		return ServiceDescriptor{}, NewParseError("services."+svc.Name, "service must have image or build", ErrServiceNoImage)
	}

	for _, p := range svc.Ports {
		var published uint32
		if p.Published != "" {
			if pub, err := strconv.ParseUint(p.Published, 10, 32); err == nil {
				published = uint32(pub)
			}
		}
		desc.Ports = append(desc.Ports, Port{
			Target:    p.Target,
			Published: published,
			Protocol:  p.Protocol,
			HostIP:    p.HostIP,
		})
	}

	for k, v := range svc.Environment {
		if v != nil {
			desc.Environment[k] = *v
		}
	}

	for _, v := range svc.Volumes {
		mnt := VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		}
		switch v.Type {
		case "bind":
			mnt.Type = VolumeMountTypeBind
		case "volume":
			mnt.Type = VolumeMountTypeVolume
		case "tmpfs":
			mnt.Type = VolumeMountTypeTmpfs
		default:
			if strings.HasPrefix(v.Source, "./") || strings.HasPrefix(v.Source, "/") || strings.HasPrefix(v.Source, "~") {
				mnt.Type = VolumeMountTypeBind
			} else {
				mnt.Type = VolumeMountTypeVolume
			}
		}
		desc.Volumes = append(desc.Volumes, mnt)
	}

	for dep := range svc.DependsOn {
		desc.DependsOn = append(desc.DependsOn, dep)
	}

	desc.Restart = RestartPolicy(svc.Restart)

	for k, v := range svc.Labels {
		desc.Labels[k] = v
	}

	if svc.HealthCheck != nil && !svc.HealthCheck.Disable {
		desc.HealthCheck = &HealthCheck{
			Test: svc.HealthCheck.Test,
		}
		if svc.HealthCheck.Retries != nil {
			desc.HealthCheck.Retries = int(*svc.HealthCheck.Retries)
		}
		if svc.HealthCheck.Interval != nil {
			desc.HealthCheck.Interval = svc.HealthCheck.Interval.String()
		}
		if svc.HealthCheck.Timeout != nil {
			desc.HealthCheck.Timeout = svc.HealthCheck.Timeout.String()
		}
		if svc.HealthCheck.StartPeriod != nil {
			desc.HealthCheck.StartPeriod = svc.HealthCheck.StartPeriod.String()
		}
	}

	return desc, nil
}

// validateDependencies verifies every depends_on target is declared.
func validateDependencies(services []ServiceDescriptor) error {
	declared := make(map[string]bool, len(services))
	for _, svc := range services {
		declared[svc.Name] = true
	}
	for _, svc := range services {
		for _, dep := range svc.DependsOn {
			if !declared[dep] {
				return NewParseError(
					"services."+svc.Name+".depends_on",
					"depends on undeclared service "+dep,
					ErrUnknownDependency,
				)
			}
		}
	}
	return nil
}
