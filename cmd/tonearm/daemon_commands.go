package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tonearm/internal/daemonctl"
	"tonearm/internal/ipc"
	"tonearm/internal/preflight"
	"tonearm/internal/queue"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tonearm daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the tonearm daemon (terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stopping scheduler...")
			} else {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, statusResp)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			writeSection(stdout, "Daemon", daemonLines(statusResp, colorize), colorize)

			summary := daemonctl.BuildDependencySummary(statusResp.Dependencies)
			writeSection(stdout, "Dependencies", dependencyLines(statusResp.Dependencies, summary, colorize), colorize)

			var pathLines []string
			for _, result := range preflight.RunAll(cmd.Context(), cfg, false) {
				pathLines = append(pathLines, preflightLine(result, colorize))
			}
			keyKind, keyDetail := statusOK, "configured"
			if strings.TrimSpace(cfg.AcoustID.APIKey) == "" {
				keyKind, keyDetail = statusWarn, "missing (spectral fingerprints matched locally)"
			}
			pathLines = append(pathLines, renderStatusLine("AcoustID key", keyKind, keyDetail, colorize))
			writeSection(stdout, "Configuration", pathLines, colorize)

			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildJobStatusRows(statusResp.JobStats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No jobs")
				return nil
			}
			fmt.Fprint(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func daemonLines(status *ipc.StatusResponse, colorize bool) []string {
	if status == nil {
		return nil
	}
	var lines []string
	switch {
	case status.Running:
		lines = append(lines, renderStatusLine("Tonearm", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	case status.PID > 0:
		lines = append(lines, renderStatusLine("Tonearm", statusWarn, fmt.Sprintf("Scheduler stopped (pid %d)", status.PID), colorize))
	default:
		lines = append(lines, renderStatusLine("Tonearm", statusError, "Not running", colorize))
	}
	if status.Running {
		sched := status.Scheduler
		lines = append(lines, renderStatusLine("Scheduler", statusInfo,
			fmt.Sprintf("%d/%d running, %d ready, %d delayed", sched.Running, sched.MaxConcurrent, sched.Ready, sched.Delayed), colorize))
		if !sched.LastRescan.IsZero() {
			lines = append(lines, renderStatusLine("Last rescan", statusInfo, sched.LastRescan.Local().Format(time.DateTime), colorize))
		}
	}
	if status.LastJob != nil {
		lines = append(lines, renderStatusLine("Last job", statusInfo,
			fmt.Sprintf("%s %s (%s)", status.LastJob.ID, status.LastJob.Status, status.LastJob.Path), colorize))
	}
	if msg := strings.TrimSpace(status.LastError); msg != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, msg, colorize))
	}
	if status.DatabasePath != "" {
		lines = append(lines, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	}
	if status.LogPath != "" {
		lines = append(lines, renderStatusLine("Log", statusInfo, status.LogPath, colorize))
	}
	return lines
}

func dependencyLines(deps []ipc.DependencyStatus, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := make([]string, 0, len(deps)+2)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	var missing []string
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Version)
			} else if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		lines = append(lines, renderStatusLine(dep.Name, statusKindFromSeverity(daemonctl.Severity(dep)), detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

// buildJobStatusRows orders counts by the job lifecycle, with unknown
// statuses last.
func buildJobStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	order := make(map[string]int, len(queue.AllStatuses()))
	for i, status := range queue.AllStatuses() {
		order[string(status)] = i
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := order[keys[i]]
		oj, jok := order[keys[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{titleStatus(key), strconv.Itoa(stats[key])})
	}
	return rows
}

func titleStatus(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "Unknown"
	}
	return strings.ToUpper(status[:1]) + status[1:]
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{
		ConfigPath: ctx.configPath(),
		LogLevel:   ctx.logLevel(),
	}
	if ctx.socketFlag != nil {
		opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
	}
	return opts
}
