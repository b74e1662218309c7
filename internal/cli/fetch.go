package cli

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/audit"
	"github.com/ppiankov/agentsafe/internal/model"
)

// fetchTimeout bounds the whole download.
const fetchTimeout = 20 * time.Second

var (
	fetchActor     string
	fetchWorkspace string
	fetchPolicy    string
	fetchBackend   string
	fetchLedger    string
	fetchOutput    string
)

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchActor, "actor", defaultActor, "Actor identity recorded in the ledger")
	fetchCmd.Flags().StringVar(&fetchWorkspace, "workspace", "", "Workspace the download lands in (default: $AGENTSAFE_WORKSPACE or .)")
	fetchCmd.Flags().StringVar(&fetchPolicy, "policy", "", "Path to policy YAML (default: $AGENTSAFE_POLICY or policy.yaml)")
	fetchCmd.Flags().StringVar(&fetchBackend, "policy-backend", "", "Decision backend: yaml or opa (default: $AGENTSAFE_POLICY_BACKEND or yaml)")
	fetchCmd.Flags().StringVar(&fetchLedger, "ledger", "", "Audit ledger path (default: <workspace>/.agentsafe/ledger.jsonl)")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "Output file name, relative to the workspace (default: URL basename)")
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [flags] URL",
	Short: "Fetch a URL through the policy gate into the workspace",
	Long: "Checks the URL against the policy's domain and port allowlists and\n" +
		"the output path against the path rules, then downloads. Exit code 2\n" +
		"means blocked.",
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	rawURL := args[0]
	g, err := newGate(fetchActor, fetchWorkspace, fetchPolicy, fetchBackend, fetchLedger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "BLOCK invalid policy/backend: %v\n", err)
		os.Exit(exitBlocked)
	}

	ev := g.event("fetch", rawURL)

	if d := g.limiter.Check("fetch"); !d.Allowed {
		g.deny(ev, d, exitBlocked)
	}

	decision := g.backend.EvaluateFetch(rawURL)
	if !decision.Allowed {
		g.deny(ev, decision, exitBlocked)
	}

	outPath, err := fetchDestination(g.workspace, rawURL, fetchOutput)
	if err != nil {
		g.deny(ev, model.Block(err.Error(), decision.RuleID), exitBlocked)
	}
	if d := g.backend.EvaluatePath(outPath, g.workspace); !d.Allowed {
		blocked := ev
		blocked.FilesTouched = []string{outPath}
		g.deny(blocked, d, exitBlocked)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		g.deny(ev, model.Block(fmt.Sprintf("create output dir: %v", err), decision.RuleID), exitBlocked)
	}

	client := &http.Client{Timeout: fetchTimeout}
	resp, err := client.Get(rawURL)
	if err != nil {
		blocked := ev
		blocked.NetworkAttempts = []audit.NetworkAttempt{{URL: rawURL}}
		g.deny(blocked, model.Block(fmt.Sprintf("fetch error: %v", err), model.RuleFetchHTTPError), exitBlocked)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		blocked := ev
		blocked.NetworkAttempts = []audit.NetworkAttempt{{URL: rawURL, StatusCode: resp.StatusCode}}
		g.deny(blocked, model.Block(fmt.Sprintf("HTTP error: %d", resp.StatusCode), model.RuleFetchHTTPError), exitBlocked)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		blocked := ev
		blocked.NetworkAttempts = []audit.NetworkAttempt{{URL: rawURL, StatusCode: resp.StatusCode}}
		g.deny(blocked, model.Block(fmt.Sprintf("read response: %v", err), model.RuleFetchHTTPError), exitBlocked)
	}
	if err := os.WriteFile(outPath, body, 0644); err != nil {
		g.deny(ev, model.Block(fmt.Sprintf("write output: %v", err), decision.RuleID), exitBlocked)
	}

	after := ev
	after.Decision = audit.DecisionAllow
	after.Reason = decision.Reason
	after.RuleID = decision.RuleID
	after.Sandbox = &audit.SandboxDetail{
		WorkspaceMount: g.workspace,
		NetworkMode:    g.backend.NetworkMode(),
	}
	after.NetworkAttempts = []audit.NetworkAttempt{{URL: rawURL, StatusCode: resp.StatusCode}}
	after.FilesTouched = []string{outPath}
	g.record(after)

	fmt.Printf("ALLOW saved to %s\n", outPath)
	return nil
}

// fetchDestination resolves where the body lands: --output, else the URL
// path basename, else download.bin. Relative names land inside the
// workspace; absolute ones are taken as-is and still face the path check.
func fetchDestination(workspace, rawURL, output string) (string, error) {
	name := output
	if name == "" {
		if u, err := url.Parse(rawURL); err == nil {
			name = path.Base(u.Path)
		}
		if name == "" || name == "." || name == "/" {
			name = "download.bin"
		}
	}
	out := name
	if !filepath.IsAbs(out) {
		out = filepath.Join(workspace, out)
	}
	abs, err := filepath.Abs(out)
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}
	return abs, nil
}
