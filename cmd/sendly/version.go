package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bissquit/sendly/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		info := version.Get()
		fmt.Fprintf(cmd.OutOrStdout(), "sendly %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildDate)
	},
}
