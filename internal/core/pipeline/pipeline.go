// Package pipeline contains the pure state machine behind a deployment run.
// This is part of the Functional Core - all functions are pure with no I/O.
//
// A run walks an ordered set of phases. Each phase reports an Outcome, and
// the transition table decides whether the run advances, aborts, or - in the
// one deliberate exception - carries a fatal migration result forward so the
// operator still gets a final health read.
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Phase
// =============================================================================

// Phase identifies one discrete, idempotent step of the deployment pipeline.
type Phase int

const (
	PhaseValidate Phase = iota
	PhaseMaterialize
	PhaseResolveConflicts
	PhaseUp
	PhaseAwaitReady
	PhaseMigrate
	PhaseHealth
	PhaseReport
	PhaseDone
)

var phaseNames = map[Phase]string{
	PhaseValidate:         "validate",
	PhaseMaterialize:      "materialize",
	PhaseResolveConflicts: "resolve-conflicts",
	PhaseUp:               "up",
	PhaseAwaitReady:       "await-ready",
	PhaseMigrate:          "migrate",
	PhaseHealth:           "health",
	PhaseReport:           "report",
	PhaseDone:             "done",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Phases returns the canonical phase order for a full deploy.
func Phases() []Phase {
	return []Phase{
		PhaseValidate,
		PhaseMaterialize,
		PhaseResolveConflicts,
		PhaseUp,
		PhaseAwaitReady,
		PhaseMigrate,
		PhaseHealth,
		PhaseReport,
	}
}

// =============================================================================
// Outcome
// =============================================================================

// Outcome is the result a phase reports back to the runner.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeWarning
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeWarning:
		return "warning"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// =============================================================================
// Transition Table
// =============================================================================

// PhaseHalt is returned by Next when the pipeline must stop.
const PhaseHalt = Phase(-1)

// Next returns the phase that follows the given phase and outcome.
// Fatal outcomes halt the run, with one exception: a fatal migration still
// advances to the health check so the operator receives a complete picture
// of system state rather than an early abort mid-deployment. Warnings never
// halt anything.
func Next(p Phase, o Outcome) Phase {
	if o == OutcomeFatal {
		if p == PhaseMigrate {
			return PhaseHealth
		}
		return PhaseHalt
	}

	switch p {
	case PhaseValidate:
		return PhaseMaterialize
	case PhaseMaterialize:
		return PhaseResolveConflicts
	case PhaseResolveConflicts:
		return PhaseUp
	case PhaseUp:
		return PhaseAwaitReady
	case PhaseAwaitReady:
		return PhaseMigrate
	case PhaseMigrate:
		return PhaseHealth
	case PhaseHealth:
		return PhaseReport
	case PhaseReport:
		return PhaseDone
	default:
		return PhaseHalt
	}
}

// =============================================================================
// Deployment State
// =============================================================================

// PhaseResult records one phase's outcome within a run.
type PhaseResult struct {
	Phase      Phase
	Outcome    Outcome
	Detail     string
	FinishedAt time.Time
}

// State tracks a single pipeline run. It is created at pipeline start,
// mutated by each phase in sequence, and discarded at process exit - every
// run recomputes it from the observed environment.
type State struct {
	RunID     string
	StartedAt time.Time
	Current   Phase
	Results   []PhaseResult
	Warnings  []string
}

// NewState creates state for a fresh run positioned at the first phase.
func NewState(now time.Time) *State {
	return &State{
		RunID:     uuid.New().String(),
		StartedAt: now,
		Current:   PhaseValidate,
	}
}

// Record stores a phase outcome and advances Current per the transition
// table. It returns the next phase (PhaseHalt when the run must stop).
func (s *State) Record(p Phase, o Outcome, detail string, now time.Time) Phase {
	s.Results = append(s.Results, PhaseResult{
		Phase:      p,
		Outcome:    o,
		Detail:     detail,
		FinishedAt: now,
	})
	if o == OutcomeWarning && detail != "" {
		s.Warnings = append(s.Warnings, detail)
	}
	next := Next(p, o)
	if next != PhaseHalt {
		s.Current = next
	}
	return next
}

// Fatal reports whether any recorded phase ended fatally.
func (s *State) Fatal() bool {
	for _, r := range s.Results {
		if r.Outcome == OutcomeFatal {
			return true
		}
	}
	return false
}

// Result returns the recorded result for a phase, if any.
func (s *State) Result(p Phase) (PhaseResult, bool) {
	for _, r := range s.Results {
		if r.Phase == p {
			return r, true
		}
	}
	return PhaseResult{}, false
}
