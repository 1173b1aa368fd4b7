// Package engine implements the deployment pipeline: the phases that take a
// forum stack from "not running" to "verified healthy", and the runner that
// sequences them. Phases talk to the world only through the injected shell
// adapters, so every one of them is testable against fakes.
package engine

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/forumops/forumctl/internal/core/secrets"
	"github.com/forumops/forumctl/internal/shell/docker"
	"github.com/forumops/forumctl/internal/shell/journal"
	"github.com/forumops/forumctl/internal/shell/ports"
	"github.com/forumops/forumctl/internal/shell/sysinfo"
	"github.com/forumops/forumctl/internal/shell/term"
)

// =============================================================================
// Configuration
// =============================================================================

// Config carries everything a pipeline run needs to know about its host,
// stack, and timing budget.
type Config struct {
	StackName       string
	ManifestPath    string
	EnvFilePath     string
	EnvTemplatePath string
	BackupDir       string
	JournalPath     string

	// Service roles within the stack.
	AppService   string
	DBService    string
	MediaService string

	DBUser   string
	DBName   string
	MediaDir string // media path inside the media-holding container

	// Resource floors checked by the environment validator.
	MinDiskMB           int64
	MinMemoryMB         int64
	RecommendedMemoryMB int64

	// Timing budget.
	SettleDelay       time.Duration
	RetryDelay        time.Duration
	ReadinessAttempts int
	ReadinessInterval time.Duration
	StopTimeout       time.Duration
	HTTPTimeout       time.Duration

	// HealthEndpoints are probed by the health verifier. Ports already
	// reflect the selected profile when probes run.
	HealthEndpoints []string

	CleanBuild bool
	AssumeYes  bool
}

// Defaults returns the timing and floor values a fresh config starts from.
func Defaults() Config {
	return Config{
		StackName:           "forum",
		ManifestPath:        "forum-stack.yml",
		EnvFilePath:         ".env",
		EnvTemplatePath:     ".env.example",
		BackupDir:           "backups",
		JournalPath:         "forumctl.db",
		AppService:          "app",
		DBService:           "postgres",
		MediaService:        "app",
		DBUser:              "forum",
		DBName:              "forum",
		MediaDir:            "/app/media",
		MinDiskMB:           2048,
		MinMemoryMB:         1024,
		RecommendedMemoryMB: 2048,
		SettleDelay:         10 * time.Second,
		RetryDelay:          30 * time.Second,
		ReadinessAttempts:   30,
		ReadinessInterval:   5 * time.Second,
		StopTimeout:         10 * time.Second,
		HTTPTimeout:         5 * time.Second,
		HealthEndpoints: []string{
			"http://localhost:%d/health/",
			"http://localhost:%d/health/ready/",
		},
	}
}

// =============================================================================
// Engine
// =============================================================================

// Engine wires the pipeline phases to their shell adapters.
type Engine struct {
	cfg     Config
	cli     docker.Client
	orch    *docker.Orchestrator
	scanner *ports.Scanner
	killer  *ports.Terminator
	confirm term.Confirmer
	store   *journal.Store
	gen     secrets.Generator
	http    *http.Client
	probe   func() sysinfo.Snapshot
	logger  *slog.Logger
	sleep   func(time.Duration) // injectable for phase tests
}

// Option customizes an Engine at construction.
type Option func(*Engine)

// WithConfirmer replaces the operator confirmation source.
func WithConfirmer(c term.Confirmer) Option {
	return func(e *Engine) { e.confirm = c }
}

// WithJournal attaches a run journal. Without one, runs are not recorded.
func WithJournal(s *journal.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithSecretGenerator replaces the secret source.
func WithSecretGenerator(g secrets.Generator) Option {
	return func(e *Engine) { e.gen = g }
}

// WithHostProbe replaces the host resource probe.
func WithHostProbe(probe func() sysinfo.Snapshot) Option {
	return func(e *Engine) { e.probe = probe }
}

// WithPortScanner replaces the port occupancy scanner.
func WithPortScanner(s *ports.Scanner) Option {
	return func(e *Engine) { e.scanner = s }
}

// WithHTTPClient replaces the health probe HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.http = c }
}

// WithSleep replaces the delay function used for settle and retry waits.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// New creates an engine over the given runtime client.
func New(cfg Config, cli docker.Client, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:     cfg,
		cli:     cli,
		orch:    docker.NewOrchestrator(cli, logger, cfg.StackName),
		scanner: ports.NewScanner(),
		killer:  ports.NewTerminator(),
		confirm: term.NewTerminalConfirmer(os.Stdin, os.Stderr),
		gen:     secrets.RandomGenerator{},
		probe:   sysinfo.Collect,
		logger:  logger,
		sleep:   time.Sleep,
	}
	if cfg.AssumeYes {
		e.confirm = term.StaticConfirmer{Answer: true}
	}
	e.http = &http.Client{Timeout: cfg.HTTPTimeout}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Orchestrator exposes the stack orchestrator for lifecycle commands that
// bypass the full pipeline (start, stop, restart, status, logs).
func (e *Engine) Orchestrator() *docker.Orchestrator {
	return e.orch
}

// Journal returns the attached run journal, if any.
func (e *Engine) Journal() *journal.Store {
	return e.store
}
