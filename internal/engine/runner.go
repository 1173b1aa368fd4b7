package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/forumops/forumctl/internal/core/backup"
	"github.com/forumops/forumctl/internal/core/envfile"
	"github.com/forumops/forumctl/internal/core/health"
	"github.com/forumops/forumctl/internal/core/manifest"
	"github.com/forumops/forumctl/internal/core/pipeline"
	"github.com/forumops/forumctl/internal/shell/docker"
)

// =============================================================================
// Pipeline Runner
// =============================================================================

// RunReport is what a finished (or aborted) deploy hands back to the CLI.
type RunReport struct {
	State      *pipeline.State
	Resolution ConflictResolution
	Health     *health.Report

	stack *manifest.Stack
}

// Deploy runs the full pipeline: validate, materialize configuration,
// resolve port conflicts, bring the stack up, wait for the database, apply
// migrations, verify health, report. Phase sequencing follows the pipeline
// transition table; the returned error is non-nil iff a phase ended fatally.
func (e *Engine) Deploy(ctx context.Context) (*RunReport, error) {
	stack, err := e.loadStack()
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		State:      pipeline.NewState(time.Now().UTC()),
		Resolution: ConflictResolution{Profile: manifest.StandardProfile()},
		stack:      stack,
	}
	e.beginJournalRun(ctx, report.State, "deploy")

	var firstFatal error
	phase := pipeline.PhaseValidate
	for phase != pipeline.PhaseDone && phase != pipeline.PhaseHalt {
		started := time.Now()
		outcome, detail, phaseErr := e.runPhase(ctx, phase, report)

		if phaseErr != nil {
			e.logger.Error("phase failed", "phase", phase.String(), "error", phaseErr)
			if firstFatal == nil && outcome == pipeline.OutcomeFatal {
				firstFatal = phaseErr
			}
		}

		next := report.State.Record(phase, outcome, detail, time.Now().UTC())
		e.recordJournalPhase(ctx, report.State, phase, outcome, detail, time.Since(started))

		e.logger.Info("phase finished",
			"phase", phase.String(),
			"outcome", outcome.String(),
			"duration", time.Since(started).Round(time.Millisecond))
		phase = next
	}

	if report.State.Fatal() {
		if firstFatal == nil {
			firstFatal = ErrDeploymentFailed
		}
		e.finishJournalRun(ctx, report.State, "fatal")
		return report, fmt.Errorf("%w: %v", ErrDeploymentFailed, firstFatal)
	}

	e.finishJournalRun(ctx, report.State, runOutcome(report.State))
	return report, nil
}

// runOutcome summarizes a non-fatal run for the journal.
func runOutcome(state *pipeline.State) string {
	if state.Fatal() {
		return "fatal"
	}
	if len(state.Warnings) > 0 {
		return "warning"
	}
	return "success"
}

func (e *Engine) runPhase(ctx context.Context, phase pipeline.Phase, report *RunReport) (pipeline.Outcome, string, error) {
	switch phase {
	case pipeline.PhaseValidate:
		return e.Validate(ctx)

	case pipeline.PhaseMaterialize:
		outcome, detail, err := e.Materialize(ctx)
		if outcome != pipeline.OutcomeFatal {
			// Re-read the manifest against the record that now exists, so
			// secrets generated moments ago interpolate into the services.
			stack, loadErr := e.loadStack()
			if loadErr != nil {
				return pipeline.OutcomeFatal, "manifest reload failed", loadErr
			}
			report.stack = stack
		}
		return outcome, detail, err

	case pipeline.PhaseResolveConflicts:
		res, outcome, detail, err := e.ResolveConflicts(ctx, report.stack)
		report.Resolution = res
		return outcome, detail, err

	case pipeline.PhaseUp:
		return e.up(ctx, report.stack, report.Resolution.Profile)

	case pipeline.PhaseAwaitReady:
		err := AwaitReady(ctx, e.DatabaseProbe(), e.cfg.ReadinessAttempts, e.cfg.ReadinessInterval)
		if err != nil {
			return pipeline.OutcomeFatal, "database never became ready", err
		}
		return pipeline.OutcomeSuccess, "", nil

	case pipeline.PhaseMigrate:
		return e.Migrate(ctx)

	case pipeline.PhaseHealth:
		healthReport, outcome, detail, err := e.VerifyHealth(ctx, report.Resolution.Profile)
		report.Health = healthReport
		return outcome, detail, err

	case pipeline.PhaseReport:
		e.printReport(report)
		return pipeline.OutcomeSuccess, "", nil
	}

	return pipeline.OutcomeFatal, fmt.Sprintf("unknown phase %v", phase),
		fmt.Errorf("%w: unknown phase %v", ErrDeploymentFailed, phase)
}

// up hands the stack to the orchestrator under the selected port profile.
func (e *Engine) up(ctx context.Context, stack *manifest.Stack, profile manifest.Profile) (pipeline.Outcome, string, error) {
	err := e.orch.Up(ctx, stack, docker.UpOptions{
		Profile:     profile,
		CleanBuild:  e.cfg.CleanBuild,
		StopTimeout: e.cfg.StopTimeout,
	})
	if err != nil {
		return pipeline.OutcomeFatal, "stack bring-up failed",
			fmt.Errorf("%w: %v", ErrServiceStartFailed, err)
	}
	return pipeline.OutcomeSuccess, "", nil
}

// Setup runs only the non-destructive preparation phases: environment
// validation and configuration materialization.
func (e *Engine) Setup(ctx context.Context) (*pipeline.State, error) {
	state := pipeline.NewState(time.Now().UTC())
	e.beginJournalRun(ctx, state, "setup")

	var firstFatal error
	for _, phase := range []pipeline.Phase{pipeline.PhaseValidate, pipeline.PhaseMaterialize} {
		started := time.Now()
		var outcome pipeline.Outcome
		var detail string
		var err error
		if phase == pipeline.PhaseValidate {
			outcome, detail, err = e.Validate(ctx)
		} else {
			outcome, detail, err = e.Materialize(ctx)
		}
		state.Record(phase, outcome, detail, time.Now().UTC())
		e.recordJournalPhase(ctx, state, phase, outcome, detail, time.Since(started))
		if outcome == pipeline.OutcomeFatal {
			firstFatal = err
			break
		}
	}

	if state.Fatal() {
		e.finishJournalRun(ctx, state, "fatal")
		return state, fmt.Errorf("%w: %v", ErrDeploymentFailed, firstFatal)
	}
	e.finishJournalRun(ctx, state, runOutcome(state))
	return state, nil
}

// MigrateRun applies migrations outside a full deploy, recorded in the
// journal as its own run.
func (e *Engine) MigrateRun(ctx context.Context) (pipeline.Outcome, string, error) {
	state := pipeline.NewState(time.Now().UTC())
	e.beginJournalRun(ctx, state, "migrate")

	started := time.Now()
	outcome, detail, err := e.Migrate(ctx)
	state.Record(pipeline.PhaseMigrate, outcome, detail, time.Now().UTC())
	e.recordJournalPhase(ctx, state, pipeline.PhaseMigrate, outcome, detail, time.Since(started))

	e.finishJournalRun(ctx, state, runOutcome(state))
	return outcome, detail, err
}

// HealthRun verifies stack health outside a full deploy, recorded in the
// journal as its own run. The port profile is inferred from the running
// containers' bindings.
func (e *Engine) HealthRun(ctx context.Context) (*health.Report, pipeline.Outcome, string, error) {
	state := pipeline.NewState(time.Now().UTC())
	e.beginJournalRun(ctx, state, "health")

	started := time.Now()
	profile := e.DetectProfile(ctx)
	report, outcome, detail, err := e.VerifyHealth(ctx, profile)
	state.Record(pipeline.PhaseHealth, outcome, detail, time.Now().UTC())
	e.recordJournalPhase(ctx, state, pipeline.PhaseHealth, outcome, detail, time.Since(started))

	e.finishJournalRun(ctx, state, runOutcome(state))
	return report, outcome, detail, err
}

// loadStack parses the service manifest and computes start order. The
// configuration record supplies ${VAR} interpolation values, so the manifest
// picks up the secrets the materializer wrote; a not-yet-materialized record
// simply contributes nothing.
func (e *Engine) loadStack() (*manifest.Stack, error) {
	data, err := os.ReadFile(e.cfg.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w: %v", e.cfg.ManifestPath, ErrPrerequisiteMissing, err)
	}

	var env map[string]string
	if record, err := os.ReadFile(e.cfg.EnvFilePath); err == nil {
		env = envfile.Parse(string(record)).Pairs()
	}

	stack, err := manifest.Parse(string(data), env)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", e.cfg.ManifestPath, err)
	}
	return stack, nil
}

func (e *Engine) printReport(report *RunReport) {
	for _, r := range report.State.Results {
		e.logger.Info("phase summary",
			"phase", r.Phase.String(),
			"outcome", r.Outcome.String(),
			"detail", r.Detail)
	}
	for _, b := range report.Resolution.Bindings {
		if b.Action != manifest.ResolutionNone {
			e.logger.Info("port resolution",
				"port", b.Port,
				"action", string(b.Action),
				"bound", report.Resolution.Profile.Apply(b.Port))
		}
	}
	if report.Health != nil {
		fmt.Fprint(os.Stderr, report.Health.Summary())
	}
	if len(report.State.Warnings) > 0 {
		e.logger.Warn("run completed with warnings", "count", len(report.State.Warnings))
	}
}

// =============================================================================
// Journal Hooks
// =============================================================================

// Journal writes are best-effort: an audit trail must not be able to fail a
// deployment. They also outlive an operator interrupt - a cancelled run still
// gets its final outcome row - so every hook detaches from cancellation.

func (e *Engine) beginJournalRun(ctx context.Context, state *pipeline.State, command string) {
	if e.store == nil {
		return
	}
	id, err := uuid.Parse(state.RunID)
	if err != nil {
		return
	}
	if err := e.store.BeginRun(context.WithoutCancel(ctx), id, command, e.cfg.StackName); err != nil {
		e.logger.Warn("journal write failed", "error", err)
	}
}

func (e *Engine) recordJournalPhase(ctx context.Context, state *pipeline.State, phase pipeline.Phase, outcome pipeline.Outcome, detail string, duration time.Duration) {
	if e.store == nil {
		return
	}
	id, err := uuid.Parse(state.RunID)
	if err != nil {
		return
	}
	seq := len(state.Results) - 1
	if err := e.store.RecordPhase(context.WithoutCancel(ctx), id, seq, phase.String(), outcome.String(), detail, duration); err != nil {
		e.logger.Warn("journal write failed", "error", err)
	}
}

func (e *Engine) finishJournalRun(ctx context.Context, state *pipeline.State, outcome string) {
	if e.store == nil {
		return
	}
	id, err := uuid.Parse(state.RunID)
	if err != nil {
		return
	}
	if err := e.store.FinishRun(context.WithoutCancel(ctx), id, outcome, len(state.Warnings)); err != nil {
		e.logger.Warn("journal write failed", "error", err)
	}
}

// beginCommandRun opens a journal row for a command that runs outside the
// phase pipeline (backup, restore). Returns uuid.Nil without a journal.
func (e *Engine) beginCommandRun(ctx context.Context, command string) uuid.UUID {
	if e.store == nil {
		return uuid.Nil
	}
	id := uuid.New()
	if err := e.store.BeginRun(context.WithoutCancel(ctx), id, command, e.cfg.StackName); err != nil {
		e.logger.Warn("journal write failed", "error", err)
	}
	return id
}

func (e *Engine) finishCommandRun(ctx context.Context, id uuid.UUID, outcome string) {
	if e.store == nil || id == uuid.Nil {
		return
	}
	if err := e.store.FinishRun(context.WithoutCancel(ctx), id, outcome, 0); err != nil {
		e.logger.Warn("journal write failed", "error", err)
	}
}

func (e *Engine) recordJournalArtifact(ctx context.Context, id uuid.UUID, artifact backup.Artifact) {
	if e.store == nil || id == uuid.Nil {
		return
	}
	if err := e.store.RecordArtifact(context.WithoutCancel(ctx), id, string(artifact.Scope), artifact.Path, artifact.Size); err != nil {
		e.logger.Warn("journal write failed", "error", err)
	}
}
