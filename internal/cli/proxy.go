package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/proxy"
	"github.com/ppiankov/agentsafe/internal/state"
)

var (
	proxyListen      string
	proxyUpstream    string
	proxyPolicy      string
	proxyBackendName string
	proxyWorkspace   string
	proxyAdapter     string
	proxyActorHeader string
	proxyRoutes      string
	proxyLedger      string
	proxyGrants      string
)

func init() {
	rootCmd.AddCommand(proxyCmd)
	proxyCmd.Flags().StringVar(&proxyListen, "listen", ":8080", "Address to listen on")
	proxyCmd.Flags().StringVar(&proxyUpstream, "upstream", "", "Upstream base URL (default: $AGENTSAFE_UPSTREAM_URL)")
	proxyCmd.Flags().StringVar(&proxyPolicy, "policy", "", "Path to policy YAML (default: $AGENTSAFE_POLICY)")
	proxyCmd.Flags().StringVar(&proxyBackendName, "policy-backend", "", "Decision backend: yaml or opa (default: $AGENTSAFE_POLICY_BACKEND)")
	proxyCmd.Flags().StringVar(&proxyWorkspace, "workspace", "", "Workspace root for path checks (default: $AGENTSAFE_WORKSPACE or .)")
	proxyCmd.Flags().StringVar(&proxyAdapter, "adapter", "", "Request adapter: openclaw_strict_v1, openclaw_strict_v2, openclaw_generic, openclaw_auto (default: $AGENTSAFE_PROXY_ADAPTER)")
	proxyCmd.Flags().StringVar(&proxyActorHeader, "actor-header", "", "Header carrying the actor identity (default: $AGENTSAFE_ACTOR_HEADER or X-Agent-Actor)")
	proxyCmd.Flags().StringVar(&proxyRoutes, "routes", "", "CSV of tool route regexes (default: $AGENTSAFE_PROXY_TOOL_PATH_REGEX)")
	proxyCmd.Flags().StringVar(&proxyLedger, "ledger", "", "Audit ledger path (default: <workspace>/.agentsafe/ledger.jsonl)")
	proxyCmd.Flags().StringVar(&proxyGrants, "grants", "", "Grant log path (default: <workspace>/.agentsafe/grants.jsonl)")
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Start the enforcing reverse proxy in front of the agent gateway",
	Long: "Sits between the agent gateway and its tool-execution upstream.\n" +
		"Tool routes are adapted, evaluated, and audited before forwarding;\n" +
		"blocked calls get a 403 with the rule id. All other traffic passes\n" +
		"through untouched.",
	RunE: runProxy,
}

func runProxy(cmd *cobra.Command, args []string) error {
	cfg := proxy.FromEnv()
	cfg.Listen = proxyListen
	if proxyUpstream != "" {
		cfg.Upstream = proxyUpstream
	}
	if proxyPolicy != "" {
		cfg.PolicyPath = proxyPolicy
	}
	if proxyBackendName != "" {
		cfg.PolicyBackend = proxyBackendName
	}
	if proxyAdapter != "" {
		cfg.Adapter = proxyAdapter
	}
	if proxyActorHeader != "" {
		cfg.ActorHeader = proxyActorHeader
	}
	if proxyRoutes != "" {
		cfg.RouteRegexes = splitRoutes(proxyRoutes)
	}
	if proxyWorkspace != "" {
		cfg.Workspace = proxyWorkspace
		cfg.LedgerPath = state.LedgerPath(proxyWorkspace)
		cfg.GrantsPath = state.GrantsPath(proxyWorkspace)
	}
	if proxyLedger != "" {
		cfg.LedgerPath = proxyLedger
	}
	if proxyGrants != "" {
		cfg.GrantsPath = proxyGrants
	}

	srv, err := proxy.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("create proxy: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down proxy...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "agentsafe proxy listening on %s\n", cfg.Listen)
	fmt.Fprintf(os.Stderr, "upstream %s, policy %s (backend %s), adapter %s\n",
		cfg.Upstream, cfg.PolicyPath, cfg.PolicyBackend, cfg.Adapter)
	return srv.Start(ctx)
}

func splitRoutes(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
