// Package cli wires the agentsafe commands. Each command is a thin wrapper:
// evaluation, storage, and transport live in the internal packages, and the
// files here only parse flags, resolve defaults, and map decisions to exit
// codes.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for the inline gate. Anything else is the child's exit code.
const (
	exitBlocked          = 2
	exitApprovalRequired = 3
)

var rootCmd = &cobra.Command{
	Use:   "agentsafe",
	Short: "Policy enforcement point for autonomous agent tool calls",
	Long: "agentsafe gates what an agent may execute, read, and fetch.\n" +
		"Commands run inline (run, fetch) or as a proxy in front of the\n" +
		"agent gateway; every decision lands on an append-only audit ledger.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// firstNonEmpty returns the first non-empty string, so flag values win over
// environment variables which win over built-in defaults.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
