package main

import (
	"github.com/spf13/cobra"

	"tonearm/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var mirrorStdout bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the tonearm daemon in the foreground",
		Long: "Run the daemon process directly. `tonearm start` launches this command in the\n" +
			"background; use it directly under a service manager.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   ctx.logLevel(),
				SocketPath: ctx.socketPath(),
				Stdout:     mirrorStdout,
			})
		},
	}
	cmd.Flags().BoolVar(&mirrorStdout, "stdout", false, "Mirror daemon logs to stdout")
	return cmd
}
