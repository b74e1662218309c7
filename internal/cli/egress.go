package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/egress"
)

var (
	egressListen      string
	egressPolicy      string
	egressBackendName string
	egressLedger      string
)

func init() {
	rootCmd.AddCommand(egressCmd)
	egressCmd.Flags().StringVar(&egressListen, "listen", ":3128", "Address to listen on")
	egressCmd.Flags().StringVar(&egressPolicy, "policy", "", "Path to policy YAML (default: $AGENTSAFE_POLICY)")
	egressCmd.Flags().StringVar(&egressBackendName, "policy-backend", "", "Decision backend: yaml or opa (default: $AGENTSAFE_POLICY_BACKEND)")
	egressCmd.Flags().StringVar(&egressLedger, "ledger", "", "Audit ledger path (default: .agentsafe/ledger.jsonl)")
}

var egressCmd = &cobra.Command{
	Use:   "egress-proxy",
	Short: "Start the forward proxy that gates sandbox network access",
	Long: "HTTP forward proxy for sandboxed commands. Plain requests and\n" +
		"CONNECT tunnels are checked against the policy's domain and port\n" +
		"allowlists; every verdict is audited. Point the sandbox at it via\n" +
		"HTTP_PROXY/HTTPS_PROXY (the run command does this automatically\n" +
		"when the policy allows network access).",
	RunE: runEgress,
}

func runEgress(cmd *cobra.Command, args []string) error {
	cfg := egress.Config{
		Listen:          egressListen,
		PolicyPath:      firstNonEmpty(egressPolicy, os.Getenv("AGENTSAFE_POLICY")),
		PolicyBackend:   firstNonEmpty(egressBackendName, os.Getenv("AGENTSAFE_POLICY_BACKEND")),
		LedgerPath:      egressLedger,
		OPAURL:          os.Getenv("AGENTSAFE_OPA_URL"),
		OPADecisionPath: os.Getenv("AGENTSAFE_OPA_DECISION_PATH"),
	}

	srv, err := egress.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("create egress proxy: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down egress proxy...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "agentsafe egress proxy listening on %s\n", cfg.Listen)
	return srv.Start(ctx)
}
