package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crewd",
	Short: "Crewd - multi-agent task coordination",
	Long:  `Crewd coordinates a crew of autonomous workers over a shared task store: exclusive leases, heartbeat liveness, weighted verification, and human escalation.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7611", "API server address")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(reviewsCmd)
	rootCmd.AddCommand(escalationsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(workersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
