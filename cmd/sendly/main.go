// Command sendly runs the newsletter service and its operational tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bissquit/sendly/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "sendly",
	Short:         "Personalized news digests by email",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.Path(), "path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(sendNowCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
