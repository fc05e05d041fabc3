package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hostbridge",
	Short: "Host a component web app inside a browser engine widget",
	Long: `hostbridge serves a web app from a custom app:// scheme, bridges string
messages between host code and page script, and hands external link clicks
to the system browser.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
