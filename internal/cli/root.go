// Package cli wires the mirra commands together.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mirra",
	Short: "A creature that watches, breathes, and sometimes draws",
	Long: "Mirra runs a small embodied creature: it breathes through a lung servo,\n" +
		"watches the room through a camera sidecar, keeps a mood, and when bored\n" +
		"or surprised enough, queues a sketch of what it sees.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(eventsCmd)
}
