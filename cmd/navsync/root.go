package main

import (
	"navsync/internal/platform/config"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "navsync",
		Short: "Session controller for the dual-panel navigation video page",
		Long: `navsync drives the two video panels of the navigation demo page.

Each page opens a session over a websocket. The server decides which media
feeds each panel, keeps the two panels in step and owns the switch between
the Standard and Realtime modes, including the live camera.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional
			_ = config.Load()
		},
	}

	cmd.AddCommand(newServeCmd(), newSourcesCmd())

	return cmd
}
