package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "mev-shield",
	Short: "MEV protection service for order flow",
	Long: `MEV protection service that shields order flow from front-running.

Orders enter through a commit-reveal scheme, are grouped into time-boxed
batches, and execute in a deterministic but unpredictable fair order.
A detection layer scans recent order and trade history for front-running
patterns and feeds the protection metrics.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
