package health

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReport_EmptyDoesNotPass(t *testing.T) {
	r := &Report{}
	assert.False(t, r.Pass())
}

func TestReport_AllRequiredPass(t *testing.T) {
	r := &Report{}
	r.Add(CheckResult{Name: "http /health/", Required: true, OK: true, Latency: 12 * time.Millisecond})
	r.Add(CheckResult{Name: "database", Required: true, OK: true})
	assert.True(t, r.Pass())
	assert.Empty(t, r.Failed())
}

func TestReport_AnyRequiredFailureFailsAggregate(t *testing.T) {
	r := &Report{}
	r.Add(CheckResult{Name: "http /health/", Required: true, OK: true})
	r.Add(CheckResult{Name: "database", Required: true, OK: false, Err: "connection refused"})
	assert.False(t, r.Pass())
	assert.Equal(t, []string{"database"}, r.Failed())
}

func TestReport_OptionalFailureStillPasses(t *testing.T) {
	r := &Report{}
	r.Add(CheckResult{Name: "http /health/", Required: true, OK: true})
	r.Add(CheckResult{Name: "cache stats", Required: false, OK: false, Err: "timeout"})
	assert.True(t, r.Pass())
}

func TestReport_SummaryNamesFailures(t *testing.T) {
	r := &Report{}
	r.Add(CheckResult{Name: "http /health/", Required: true, OK: false, Err: "503"})
	out := r.Summary()
	assert.True(t, strings.Contains(out, "FAIL"))
	assert.True(t, strings.Contains(out, "http /health/"))
	assert.True(t, strings.Contains(out, "aggregate: FAIL"))
}
