package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "datum",
	Short: "Datum is a command execution engine for AI-driven design automation",
	Long: `Datum executes validated, transactional commands against a host design
document and hot-loads AI-generated scripts in a sandboxed environment.`,
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
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides DATUM_LOG_LEVEL)")
}
