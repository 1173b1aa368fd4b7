package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forumops/forumctl/internal/core/health"
	"github.com/forumops/forumctl/internal/core/manifest"
	"github.com/forumops/forumctl/internal/core/pipeline"
	"github.com/forumops/forumctl/internal/shell/docker"
)

// =============================================================================
// Health Verifier
// =============================================================================

// VerifyHealth waits out the settle delay, then probes the stack: HTTP
// endpoints through the selected port profile and a database round-trip.
// Every check lands in the report with its latency or error; the aggregate
// passes only if all required checks do.
func (e *Engine) VerifyHealth(ctx context.Context, profile manifest.Profile) (*health.Report, pipeline.Outcome, string, error) {
	if e.cfg.SettleDelay > 0 {
		e.logger.Info("letting services settle", "delay", e.cfg.SettleDelay)
		e.sleep(e.cfg.SettleDelay)
	}

	report := &health.Report{CheckedAt: time.Now().UTC()}

	for _, endpoint := range e.cfg.HealthEndpoints {
		url := renderEndpoint(endpoint, profile)
		report.Add(e.httpCheck(ctx, url))
	}
	report.Add(e.databaseCheck(ctx))

	if !report.Pass() {
		detail := fmt.Sprintf("health verification failed: %s", strings.Join(report.Failed(), ", "))
		return report, pipeline.OutcomeFatal, detail,
			fmt.Errorf("%s: %w", detail, ErrHealthCheckFailed)
	}
	return report, pipeline.OutcomeSuccess, "", nil
}

// DetectProfile infers which port profile a running stack was deployed
// under by looking at its actual host port bindings. Used by the standalone
// health command, which has no pipeline run to ask.
func (e *Engine) DetectProfile(ctx context.Context) manifest.Profile {
	statuses, err := e.orch.Status(ctx)
	if err != nil {
		return manifest.StandardProfile()
	}
	alternate := manifest.AlternateProfile()
	for _, s := range statuses {
		for _, p := range s.Ports {
			for _, alt := range alternate.Remap {
				if p.HostPort == alt {
					return alternate
				}
			}
		}
	}
	return manifest.StandardProfile()
}

// renderEndpoint substitutes the profile's web port into an endpoint
// template like "http://localhost:%d/health/".
func renderEndpoint(template string, profile manifest.Profile) string {
	if strings.Contains(template, "%d") {
		return fmt.Sprintf(template, profile.Apply(80))
	}
	return template
}

func (e *Engine) httpCheck(ctx context.Context, url string) health.CheckResult {
	result := health.CheckResult{Name: url, Required: true}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	start := time.Now()
	resp, err := e.http.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Err = fmt.Sprintf("status %d", resp.StatusCode)
		return result
	}

	result.OK = true
	return result
}

func (e *Engine) databaseCheck(ctx context.Context) health.CheckResult {
	result := health.CheckResult{Name: "database", Required: true}
	name := e.orch.ContainerName(e.cfg.DBService)

	start := time.Now()
	exec, err := e.cli.Exec(ctx, name, docker.ExecSpec{
		Cmd: []string{"psql", "-U", e.cfg.DBUser, "-d", e.cfg.DBName, "-tAc", "SELECT 1"},
	})
	result.Latency = time.Since(start)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	if exec.ExitCode != 0 {
		result.Err = fmt.Sprintf("psql exited %d: %s", exec.ExitCode, tail(exec.Stderr, 200))
		return result
	}

	result.OK = true
	return result
}
