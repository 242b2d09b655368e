package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Concierge is a conversational router for guided data analysis",
	Long: `Concierge turns free-text messages into gated workflow actions:
it classifies intent, checks the session's workflow stage, resolves tool
arguments from natural language, and keeps all session state behind a
compare-and-swap store so any worker can serve any message.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the config file")
	rootCmd.PersistentFlags().String("redis", "", "Redis address (overrides config; empty = in-process store)")
}
