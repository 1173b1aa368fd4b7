package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/forumops/forumctl/internal/core/backup"
	"github.com/forumops/forumctl/internal/engine"
	"github.com/forumops/forumctl/internal/shell/docker"
)

// version is stamped at build time.
var version = "dev"

// =============================================================================
// Pipeline Commands
// =============================================================================

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Validate the host and materialize configuration",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			_, err := app.engine.Setup(cmd.Context())
			return err
		}),
	}
}

func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run the full deployment pipeline",
		Long: "Runs every pipeline phase in order: validate the environment, materialize\n" +
			"configuration, resolve port conflicts, bring the stack up, wait for the\n" +
			"database, apply migrations, verify health, and report.",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			_, err := app.engine.Deploy(cmd.Context())
			return err
		}),
	}
	cmd.Flags().BoolVar(&rootFlags.cleanBuild, "clean-build", false, "rebuild images without cache and re-pull base images")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations in the running app container",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			_, _, err := app.engine.MigrateRun(cmd.Context())
			return err
		}),
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Verify stack health",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			report, _, _, err := app.engine.HealthRun(cmd.Context())
			if report != nil {
				fmt.Print(report.Summary())
			}
			return err
		}),
	}
}

// =============================================================================
// Lifecycle Commands
// =============================================================================

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start stopped stack containers in dependency order",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			return app.engine.Orchestrator().Start(cmd.Context())
		}),
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop stack containers, dependents first",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			return app.engine.Orchestrator().Stop(cmd.Context(), app.cfg.Timing.StopTimeout)
		}),
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart stack containers in dependency order",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			return app.engine.Orchestrator().Restart(cmd.Context(), app.cfg.Timing.StopTimeout)
		}),
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the runtime state of every stack service",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			statuses, err := app.engine.Orchestrator().Status(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tSTATE\tHEALTH\tPORTS\tUPTIME")
			for _, s := range statuses {
				uptime := "-"
				if s.StartedAt != nil && s.State == "running" {
					uptime = time.Since(*s.StartedAt).Round(time.Second).String()
				}
				health := s.Health
				if health == "" {
					health = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.State, health, formatPorts(s.Ports), uptime)
			}
			return w.Flush()
		}),
	}
}

func newLogsCmd() *cobra.Command {
	var follow bool
	var tailLines string

	cmd := &cobra.Command{
		Use:   "logs <service>",
		Short: "Show logs for one stack service",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			rc, err := app.engine.Orchestrator().Logs(cmd.Context(), args[0], docker.LogOptions{
				Follow: follow,
				Tail:   tailLines,
			})
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(os.Stdout, rc)
			return err
		}),
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow log output")
	cmd.Flags().StringVar(&tailLines, "tail", "100", "number of lines to show from the end")
	return cmd
}

// =============================================================================
// Backup Commands
// =============================================================================

func newBackupCmd() *cobra.Command {
	var scopeFlag string
	var list bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Capture database and media backups",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			if list {
				return printArtifacts(app.engine)
			}

			var scopes []backup.Scope
			switch scopeFlag {
			case "all", "":
			case "db":
				scopes = append(scopes, backup.ScopeDatabase)
			case "media":
				scopes = append(scopes, backup.ScopeMedia)
			default:
				return fmt.Errorf("unknown scope %q (want db, media, or all)", scopeFlag)
			}

			artifacts, err := app.engine.Backup(cmd.Context(), scopes...)
			if err != nil {
				return err
			}
			for _, a := range artifacts {
				fmt.Printf("%s\t%s\t%d bytes\n", a.ID, a.Path, a.Size)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&scopeFlag, "scope", "all", "what to back up: db, media, or all")
	cmd.Flags().BoolVar(&list, "list", false, "list existing artifacts instead of creating new ones")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <artifact-id>",
		Short: "Restore a database backup into the running database",
		Long: "Restore overwrites the live database, so it asks you to type the artifact\n" +
			"ID back exactly. Any other input aborts with nothing changed.\n\n" +
			"Only database dumps (db-*.dump) are restorable; media archives listed by\n" +
			"'backup --list' are plain tarballs meant for manual extraction.",
		Args: cobra.ExactArgs(1),
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			artifact, err := app.engine.FindArtifact(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "This OVERWRITES the live database with %s (%d bytes).\n", artifact.Path, artifact.Size)
			fmt.Fprintf(os.Stderr, "Type the artifact ID %q to continue: ", artifact.ID)
			token, _ := bufio.NewReader(os.Stdin).ReadString('\n')

			err = app.engine.Restore(cmd.Context(), artifact, strings.TrimSpace(token))
			if errors.Is(err, engine.ErrRestoreDeclined) {
				fmt.Fprintln(os.Stderr, "restore aborted, nothing changed")
				return nil
			}
			return err
		}),
	}
}

func printArtifacts(eng *engine.Engine) error {
	artifacts, err := eng.ListArtifacts()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCOPE\tPATH\tSIZE")
	for _, a := range artifacts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", a.ID, a.Scope, a.Path, a.Size)
	}
	return w.Flush()
}

// =============================================================================
// Observation Commands
// =============================================================================

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Show a one-shot resource snapshot of the host and stack",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			snap, err := app.engine.Monitor(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("host: %s/%s  cpu %d cores (%.1f%% used)  mem %d/%d MB free  disk %d/%d MB free\n",
				snap.Host.OS, snap.Host.Arch,
				snap.Host.CPUCores, snap.Host.CPUUsedPct,
				snap.Host.MemoryFreeMB, snap.Host.MemoryTotalMB,
				snap.Host.DiskFreeMB, snap.Host.DiskTotalMB)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tSTATE\tCPU%\tMEM\tNET RX/TX\tPIDS")
			for _, svc := range snap.Services {
				if svc.Stats == nil {
					fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\n", svc.Status.Name, svc.Status.State)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%.1f\t%s/%s\t%s/%s\t%d\n",
					svc.Status.Name, svc.Status.State,
					svc.Stats.CPUPercent,
					formatBytes(svc.Stats.MemoryUsageBytes), formatBytes(svc.Stats.MemoryLimitBytes),
					formatBytes(svc.Stats.NetworkRxBytes), formatBytes(svc.Stats.NetworkTxBytes),
					svc.Stats.PIDs)
			}
			return w.Flush()
		}),
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Prune stopped containers, dangling images, and unused networks",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			report, err := app.engine.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d containers, %d images, %d networks; reclaimed %s\n",
				report.ContainersDeleted, report.ImagesDeleted, report.NetworksDeleted,
				formatBytes(int64(report.SpaceReclaimed)))
			return nil
		}),
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs from the journal",
		RunE: runWithApp(func(cmd *cobra.Command, args []string, app *appContext) error {
			store := app.engine.Journal()
			if store == nil {
				return errors.New("run journal unavailable")
			}

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tCOMMAND\tOUTCOME\tWARNINGS\tDURATION\tRUN ID")
			for _, r := range runs {
				duration := "-"
				if r.FinishedAt != nil {
					duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Command, r.Outcome, r.Warnings, duration, r.ID)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the forumctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("forumctl", version)
		},
	}
}

// =============================================================================
// Rendering Helpers
// =============================================================================

func formatPorts(ports []docker.PortBinding) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.HostPort != 0 {
			parts = append(parts, fmt.Sprintf("%d->%d/%s", p.HostPort, p.ContainerPort, p.Protocol))
		} else {
			parts = append(parts, fmt.Sprintf("%d/%s", p.ContainerPort, p.Protocol))
		}
	}
	return strings.Join(parts, ", ")
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
