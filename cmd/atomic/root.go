package main

import (
	"os"

	"github.com/spf13/cobra"
)

var projectDir string

var rootCmd = &cobra.Command{
	Use:   "atomic",
	Short: "Marker-driven agent pipeline runner",
	Long: `Atomic runs a coordinator agent that dispatches markdown-defined agents
and threads their results through a shared key-value State.

Agents report results by printing marker lines such as
  TESTS_FILE: specs/feature_test.go
which are merged into State and read by the coordinator to decide what
to run next.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", "", "Project directory (default: current directory)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
