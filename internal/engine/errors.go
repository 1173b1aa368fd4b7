package engine

import "errors"

// =============================================================================
// Error Taxonomy
// =============================================================================

// Each fatal pipeline outcome wraps one of these sentinels so callers can
// map failures to exit codes and remediation hints without string matching.
var (
	// ErrPrerequisiteMissing marks an environment the pipeline refuses to
	// deploy into: unreachable daemon, insufficient disk or memory.
	ErrPrerequisiteMissing = errors.New("deployment prerequisite missing")

	// ErrPortConflict marks required ports that stayed occupied after the
	// operator declined both termination and the alternate port profile.
	ErrPortConflict = errors.New("port conflict unresolved")

	// ErrServiceStartFailed marks a container that could not be created or
	// started.
	ErrServiceStartFailed = errors.New("service start failed")

	// ErrReadinessTimeout marks a dependency that never became ready within
	// the polling budget.
	ErrReadinessTimeout = errors.New("readiness timeout")

	// ErrMigrationFailed marks a schema migration that failed on both
	// attempts.
	ErrMigrationFailed = errors.New("migration failed")

	// ErrHealthCheckFailed marks an aggregate health verification failure.
	ErrHealthCheckFailed = errors.New("health check failed")

	// ErrBackupFailed marks a backup that produced no artifact.
	ErrBackupFailed = errors.New("backup failed")

	// ErrRestoreDeclined is the clean no-op outcome of a restore whose
	// confirmation token did not match. It is a refusal, not a failure.
	ErrRestoreDeclined = errors.New("restore declined")

	// ErrDeploymentFailed is the umbrella returned when a run recorded at
	// least one fatal phase.
	ErrDeploymentFailed = errors.New("deployment failed")
)
