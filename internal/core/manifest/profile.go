package manifest

// =============================================================================
// Port Profiles
// =============================================================================

// Resolution records what conflict resolution did about one requested port.
type Resolution string

const (
	ResolutionNone       Resolution = "none"
	ResolutionTerminated Resolution = "terminated-occupant"
	ResolutionRemapped   Resolution = "remapped"
)

// Binding tracks one requested host port through conflict detection: the
// occupant observed on it (if any) and the action taken.
type Binding struct {
	Port         int
	OccupantPID  int
	OccupantName string
	Action       Resolution
}

// Occupied reports whether an occupant was observed on the port.
func (b Binding) Occupied() bool {
	return b.OccupantPID != 0
}

// Profile is a named set of port-mapping choices selected by conflict
// resolution. Remap translates a declared published port to the one this
// profile actually binds; ports outside the map pass through unchanged.
type Profile struct {
	Name  string
	Remap map[int]int
}

// StandardProfile binds the ports exactly as declared in the manifest.
func StandardProfile() Profile {
	return Profile{Name: "standard"}
}

// AlternateProfile is the fixed secondary port set used when the standard
// ports are occupied and the operator declines to free them.
func AlternateProfile() Profile {
	return Profile{
		Name: "alternate",
		Remap: map[int]int{
			80:  8080,
			443: 8443,
		},
	}
}

// Apply returns the host port this profile binds for a declared port.
func (p Profile) Apply(port int) int {
	if mapped, ok := p.Remap[port]; ok {
		return mapped
	}
	return port
}

// ApplyToService returns a copy of the descriptor with its published ports
// remapped through the profile. The input descriptor is not modified.
func (p Profile) ApplyToService(svc ServiceDescriptor) ServiceDescriptor {
	if len(p.Remap) == 0 || len(svc.Ports) == 0 {
		return svc
	}
	out := svc
	out.Ports = make([]Port, len(svc.Ports))
	copy(out.Ports, svc.Ports)
	for i, port := range out.Ports {
		if port.Published != 0 {
			out.Ports[i].Published = uint32(p.Apply(int(port.Published)))
		}
	}
	return out
}
