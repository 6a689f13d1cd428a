package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "flowops",
		Short: "FlowOps Orchestrator - ML run lifecycle manager",
		Long: `FlowOps Orchestrator tracks machine learning training runs.
It hands queued runs to an external trainer, records the event stream
the trainer reports back, and serves live run feeds over websockets.`,
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
