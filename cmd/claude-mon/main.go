package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "claude-mon",
		Short: "Claude Session Monitor - Live dashboard for autonomous coding agents",
		Long: `Claude Session Monitor watches autonomous Claude coding sessions across
repositories. It consumes the orchestrator's event stream, reconciles
live session state, detects stuck agents, and serves a dashboard with
alerting and session controls.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
