package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tonearm/internal/daemonrun"
	"tonearm/internal/fileutil"
	"tonearm/internal/matching"
	"tonearm/internal/queue"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var rescan bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve <path>...",
		Short: "Identify files immediately without the daemon",
		Long: "Run the fingerprint, embedded tag, and filename strategies in-process and\n" +
			"store the result, exactly as a daemon job would.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger(cmd)
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			components, err := daemonrun.Build(cmd.Context(), cfg, store, logger)
			if err != nil {
				return err
			}

			results := make([]matching.Result, 0, len(args))
			for _, arg := range args {
				path, err := fileutil.AbsPath(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				fileID, err := fileutil.FileID(path)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", path, err)
				}
				result, err := components.Runner.Identify(cmd.Context(), matching.File{ID: fileID, Path: path, Rescan: rescan})
				if err != nil {
					return fmt.Errorf("resolve %s: %w", path, err)
				}
				results = append(results, result)
			}

			if asJSON {
				if len(results) == 1 {
					return writeJSON(cmd, results[0])
				}
				return writeJSON(cmd, results)
			}
			out := cmd.OutOrStdout()
			for i, result := range results {
				if i > 0 {
					fmt.Fprintln(out)
				}
				renderResult(out, result)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&rescan, "rescan", false, "Recompute the fingerprint instead of reusing the stored one")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
