package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forumops/forumctl/internal/engine"
	"github.com/forumops/forumctl/internal/shell/docker"
	"github.com/forumops/forumctl/internal/shell/journal"
)

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	assumeYes  bool
	cleanBuild bool
	noJournal  bool
}

var rootCmd = &cobra.Command{
	Use:           "forumctl",
	Short:         "Deployment orchestration for a containerized forum stack",
	Long:          "forumctl drives a multi-tier forum deployment (web app, PostgreSQL, Redis,\nworker, Nginx) from \"not running\" to \"verified healthy\".",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.assumeYes, "yes", "y", false, "answer yes to all prompts")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.noJournal, "no-journal", false, "skip recording this run in the journal")

	rootCmd.AddCommand(
		newSetupCmd(),
		newDeployCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newMigrateCmd(),
		newHealthCmd(),
		newMonitorCmd(),
		newCleanupCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
}

// appContext is everything a command handler needs, assembled once.
type appContext struct {
	cfg    *Config
	logger *slog.Logger
	engine *engine.Engine
	close  func()
}

// buildApp loads config, connects the runtime client, and wires the engine.
func buildApp() (*appContext, error) {
	cfg, err := LoadConfig(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if rootFlags.logLevel != "" {
		cfg.Log.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.Log.Format = rootFlags.logFormat
	}

	logger := SetupLogger(cfg)

	cli, err := docker.NewSDKClient(cfg.Docker.Host)
	if err != nil {
		return nil, err
	}

	engCfg := cfg.EngineConfig()
	engCfg.AssumeYes = rootFlags.assumeYes
	engCfg.CleanBuild = rootFlags.cleanBuild

	opts := []engine.Option{}
	closeFns := []func(){func() { cli.Close() }}

	if !rootFlags.noJournal {
		store, err := journal.Open(engCfg.JournalPath)
		if err != nil {
			// A broken journal must not take the tool down with it.
			logger.Warn("run journal unavailable", "path", engCfg.JournalPath, "error", err)
		} else {
			opts = append(opts, engine.WithJournal(store))
			closeFns = append(closeFns, func() { store.Close() })
		}
	}

	app := &appContext{
		cfg:    cfg,
		logger: logger,
		engine: engine.New(engCfg, cli, logger, opts...),
		close: func() {
			for i := len(closeFns) - 1; i >= 0; i-- {
				closeFns[i]()
			}
		},
	}
	return app, nil
}

// runWithApp wraps a handler with app construction and teardown.
func runWithApp(fn func(cmd *cobra.Command, args []string, app *appContext) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.close()
		return fn(cmd, args, app)
	}
}

func main() {
	// An operator interrupt cancels the command context, so blocking waits
	// (readiness polling, in-container execs) unwind instead of being killed
	// mid-phase, and the journal run is closed out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
