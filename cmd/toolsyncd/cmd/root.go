// Package cmd provides the CLI commands for toolsyncd.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "toolsyncd",
	Short: "toolsyncd - tool inventory sync and recovery daemon",
	Long: `toolsyncd maintains a persisted local mirror of the agent's tool
inventory. It consumes incremental tool update messages from a shared Redis
queue and, when the queue drifts (lost messages, malformed payloads, crashes
mid-processing), recovers by requesting a full inventory snapshot from the
agent over HTTP and reconciling it into the mirror.

Quick start:
  1. Optionally create a config file: toolsync.yaml
  2. Run: toolsyncd start

Configuration:
  Config is loaded from toolsync.yaml in the current directory,
  $HOME/.toolsync/, or /etc/toolsync/. All values have defaults.

  Environment variables override config values with the TOOLSYNC_ prefix.
  Example: TOOLSYNC_RECOVERY_AGENT_BASE_URL=http://agent:5001`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./toolsync.yaml)")
}
