package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "desim",
	Short: "desim runs discrete-event simulation models.",
	Long: `desim runs discrete-event simulation models on a time-ordered event ` +
		`scheduler. Runs can be recorded into SQLite databases and observed ` +
		`through a monitoring server while they execute.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	return rootCmd.Execute()
}
