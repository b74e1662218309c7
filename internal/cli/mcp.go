package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	safemcp "github.com/ppiankov/agentsafe/internal/mcp"
)

var (
	mcpPolicy      string
	mcpBackendName string
	mcpWorkspace   string
	mcpGrants      string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpPolicy, "policy", "", "Path to policy YAML (default: $AGENTSAFE_POLICY or policy.yaml)")
	mcpCmd.Flags().StringVar(&mcpBackendName, "policy-backend", "", "Decision backend: yaml or opa (default: $AGENTSAFE_POLICY_BACKEND)")
	mcpCmd.Flags().StringVar(&mcpWorkspace, "workspace", "", "Workspace root for path checks (default: $AGENTSAFE_WORKSPACE or .)")
	mcpCmd.Flags().StringVar(&mcpGrants, "grants", "", "Grant log path (default: <workspace>/.agentsafe/grants.jsonl)")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP pre-flight server on stdio",
	Long: "Runs agentsafe as an MCP (Model Context Protocol) server so agent\n" +
		"runtimes can pre-flight tool calls. Exposes agentsafe_check_command,\n" +
		"agentsafe_check_url, and agentsafe_grant_check. Checks only: nothing\n" +
		"executes on this path.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := safemcp.Config{
		PolicyPath:      firstNonEmpty(mcpPolicy, os.Getenv("AGENTSAFE_POLICY"), "policy.yaml"),
		PolicyBackend:   firstNonEmpty(mcpBackendName, os.Getenv("AGENTSAFE_POLICY_BACKEND")),
		OPAURL:          os.Getenv("AGENTSAFE_OPA_URL"),
		OPADecisionPath: os.Getenv("AGENTSAFE_OPA_DECISION_PATH"),
		Workspace:       firstNonEmpty(mcpWorkspace, os.Getenv("AGENTSAFE_WORKSPACE")),
		GrantsPath:      mcpGrants,
	}

	srv, err := safemcp.New(cfg)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "agentsafe MCP server running on stdio")
	return srv.Run(ctx)
}
