package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/forumops/forumctl/internal/core/manifest"
	"github.com/forumops/forumctl/internal/core/pipeline"
)

// =============================================================================
// Conflict Resolver
// =============================================================================

// ConflictResolution is what the resolver decided for a run: which port
// profile to deploy under and what happened to each contested port.
type ConflictResolution struct {
	Profile  manifest.Profile
	Bindings []manifest.Binding
}

// ResolveConflicts inspects every host port the stack wants and decides how
// to get them. All free: the standard profile. Ports held by this stack's own
// running containers are not conflicts - bring-up replaces those containers
// and frees the ports itself. Foreign occupants are put to the operator one
// at a time - terminate the occupant or leave it. If any occupant survives,
// the resolver offers the alternate profile; if that is declined too (or its
// ports are also taken), the pipeline stops without having started anything.
func (e *Engine) ResolveConflicts(ctx context.Context, stack *manifest.Stack) (ConflictResolution, pipeline.Outcome, string, error) {
	wanted := stack.PublishedPorts()
	res := ConflictResolution{Profile: manifest.StandardProfile()}

	occupants, err := e.scanner.Occupants(wanted)
	if err != nil {
		return res, pipeline.OutcomeFatal, "port occupancy scan failed",
			fmt.Errorf("scan ports: %w: %v", ErrPortConflict, err)
	}

	ownPorts, err := e.orch.PublishedHostPorts(ctx)
	if err != nil {
		e.logger.Warn("could not check the stack's own port bindings", "error", err)
	}

	var contested []int
	for _, port := range wanted {
		binding := manifest.Binding{Port: port}
		if occ, taken := occupants[port]; taken {
			if ownPorts[port] {
				e.logger.Debug("port already bound by this stack", "port", port, "pid", occ.PID)
			} else {
				binding.OccupantPID = occ.PID
				binding.OccupantName = occ.Name
				contested = append(contested, port)
			}
		}
		res.Bindings = append(res.Bindings, binding)
	}

	if len(contested) == 0 {
		return res, pipeline.OutcomeSuccess, "", nil
	}

	// Offer to free each contested port.
	var surviving []int
	for i := range res.Bindings {
		b := &res.Bindings[i]
		if !contains(contested, b.Port) {
			continue
		}

		occ := occupants[b.Port]
		e.logger.Warn("port occupied", "port", b.Port, "pid", occ.PID, "process", occ.Name)

		yes, err := e.confirm.Confirm(fmt.Sprintf("%s - terminate it?", occ.Describe()), false)
		if err != nil {
			return res, pipeline.OutcomeFatal, "confirmation failed",
				fmt.Errorf("%w: %v", ErrPortConflict, err)
		}
		if !yes {
			surviving = append(surviving, b.Port)
			continue
		}

		if err := e.killer.Terminate(ctx, occ); err != nil {
			e.logger.Warn("occupant did not exit", "port", b.Port, "pid", occ.PID, "error", err)
			surviving = append(surviving, b.Port)
			continue
		}
		b.Action = manifest.ResolutionTerminated
		e.logger.Info("freed port", "port", b.Port, "pid", occ.PID)
	}

	if len(surviving) == 0 {
		return res, pipeline.OutcomeWarning,
			fmt.Sprintf("terminated occupant(s) to free port(s) %s", joinPorts(contested)), nil
	}

	// Termination declined or failed somewhere; offer the alternate profile.
	alternate := manifest.AlternateProfile()
	yes, err := e.confirm.Confirm(
		fmt.Sprintf("port(s) %s remain occupied - deploy on alternate ports %s instead?",
			joinPorts(surviving), describeRemap(alternate)), true)
	if err != nil {
		return res, pipeline.OutcomeFatal, "confirmation failed",
			fmt.Errorf("%w: %v", ErrPortConflict, err)
	}
	if !yes {
		detail := fmt.Sprintf("port(s) %s occupied and no resolution accepted", joinPorts(surviving))
		return res, pipeline.OutcomeFatal, detail, fmt.Errorf("%s: %w", detail, ErrPortConflict)
	}

	// The alternate set has to actually be free.
	altPorts := make([]int, 0, len(wanted))
	for _, p := range wanted {
		altPorts = append(altPorts, alternate.Apply(p))
	}
	altOccupants, err := e.scanner.Occupants(altPorts)
	if err != nil {
		return res, pipeline.OutcomeFatal, "port occupancy scan failed",
			fmt.Errorf("scan alternate ports: %w: %v", ErrPortConflict, err)
	}
	var taken []int
	for p := range altOccupants {
		if !ownPorts[p] {
			taken = append(taken, p)
		}
	}
	if len(taken) > 0 {
		detail := fmt.Sprintf("alternate port(s) %s also occupied", joinPorts(taken))
		return res, pipeline.OutcomeFatal, detail, fmt.Errorf("%s: %w", detail, ErrPortConflict)
	}

	res.Profile = alternate
	for i := range res.Bindings {
		if contains(surviving, res.Bindings[i].Port) {
			res.Bindings[i].Action = manifest.ResolutionRemapped
		}
	}

	return res, pipeline.OutcomeWarning,
		fmt.Sprintf("deploying on alternate port profile (%s)", describeRemap(alternate)), nil
}

func contains(ports []int, port int) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}

func joinPorts(ports []int) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, fmt.Sprintf("%d", p))
	}
	return strings.Join(parts, ", ")
}

func describeRemap(p manifest.Profile) string {
	parts := make([]string, 0, len(p.Remap))
	for _, from := range []int{80, 443} {
		if to, ok := p.Remap[from]; ok {
			parts = append(parts, fmt.Sprintf("%d->%d", from, to))
		}
	}
	return strings.Join(parts, ", ")
}
