package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tonearm/internal/fileutil"
	"tonearm/internal/ipc"
	"tonearm/internal/jobaccess"
)

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSubmitCommand(ctx),
		newJobsCommand(ctx),
		newJobCommand(ctx),
		newCancelCommand(ctx),
		newRescanCommand(ctx),
		newResultCommand(ctx),
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var rescan bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "submit <path>...",
		Short: "Queue audio files for identification",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobSession(ctx, cmd, func(access jobaccess.Access) error {
				jobs := make([]ipc.JobItem, 0, len(args))
				for _, arg := range args {
					// The daemon resolves relative paths against its own
					// working directory.
					path, err := fileutil.AbsPath(arg)
					if err != nil {
						return fmt.Errorf("resolve %s: %w", arg, err)
					}
					job, err := access.Submit(cmd.Context(), path, rescan)
					if err != nil {
						return fmt.Errorf("submit %s: %w", path, err)
					}
					jobs = append(jobs, job)
				}
				if asJSON {
					return writeJSON(cmd, jobs)
				}
				out := cmd.OutOrStdout()
				for _, job := range jobs {
					fmt.Fprintf(out, "Queued job %s for %s (%s)\n", job.ID, job.Path, job.Status)
				}
				if !access.Live() {
					fmt.Fprintln(out, "Daemon not running; jobs run once it starts")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&rescan, "rescan", false, "Recompute fingerprints instead of reusing stored ones")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List identification jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobSession(ctx, cmd, func(access jobaccess.Access) error {
				jobs, err := access.List(cmd.Context(), normalizeStatuses(statuses))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, jobs)
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderJobsTable(jobs))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (pending, running, retrying, succeeded, failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "job <id>",
		Short: "Show a job with its attempt history and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobSession(ctx, cmd, func(access jobaccess.Access) error {
				resp, err := access.Describe(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				renderJobDetail(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return withJobSession(ctx, cmd, func(access jobaccess.Access) error {
				if err := access.Cancel(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %s\n", id)
				return nil
			})
		},
	}
}

func newRescanCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "rescan",
		Short: "Queue every library file that is unidentified or uncertain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Rescan()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rescan considered %d files: %d queued, %d skipped, %d errors\n",
					resp.Considered, len(resp.Submitted), resp.Skipped, resp.Errors)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "result <path>",
		Short: "Show the stored identification for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := fileutil.AbsPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			return withJobSession(ctx, cmd, func(access jobaccess.Access) error {
				result, err := access.Result(cmd.Context(), path)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				renderResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func withJobSession(ctx *commandContext, cmd *cobra.Command, fn func(jobaccess.Access) error) error {
	session, err := ctx.jobSession()
	if err != nil {
		return err
	}
	defer session.Close()
	if session.DialErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warn: daemon unavailable, using the database directly (%v)\n", session.DialErr)
	}
	return fn(session.Access)
}

func normalizeStatuses(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
