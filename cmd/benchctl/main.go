// Package main implements benchctl, a thin CLI driver of the coordinator's
// HTTP API. It holds no dispatch logic of its own: every subcommand is a
// JSON request against a running coordinator process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "benchctl",
	Short: "Drive a hpcbench coordinator from the command line",
	Long: `benchctl talks to a running coordinator over HTTP to list workers
and submit competitive or cooperative benchmark sessions.`,
}

func init() {
	rootCmd.PersistentFlags().String("coordinator", "http://localhost:8000", "coordinator base URL")

	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(competitiveCmd)
	rootCmd.AddCommand(cooperativeCmd)
}
