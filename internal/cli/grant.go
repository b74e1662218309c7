package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/grant"
	"github.com/ppiankov/agentsafe/internal/state"
)

var (
	grantWorkspace string
	grantPath      string

	grantIssueActor    string
	grantIssueTool     string
	grantIssueScope    string
	grantIssueTemplate string
	grantIssueValue    string
	grantIssueTTL      time.Duration
	grantIssueReason   string

	grantRevokeReason string
)

func init() {
	rootCmd.AddCommand(grantCmd)
	grantCmd.PersistentFlags().StringVar(&grantWorkspace, "workspace", "", "Workspace whose grant log to use (default: $AGENTSAFE_WORKSPACE or .)")
	grantCmd.PersistentFlags().StringVar(&grantPath, "grants", "", "Grant log path (default: <workspace>/.agentsafe/grants.jsonl)")

	grantCmd.AddCommand(grantIssueCmd)
	grantIssueCmd.Flags().StringVar(&grantIssueActor, "actor", "", "Actor the grant covers (\"*\" for any)")
	grantIssueCmd.Flags().StringVar(&grantIssueTool, "tool", "run", "Tool the grant covers (\"*\" for any)")
	grantIssueCmd.Flags().StringVar(&grantIssueScope, "scope", "", "Scope glob the grant covers")
	grantIssueCmd.Flags().StringVar(&grantIssueTemplate, "template", "", "Scope template: run-binary, run-command, tool-prefix, http-domain")
	grantIssueCmd.Flags().StringVar(&grantIssueValue, "value", "", "Value expanded into the scope template")
	grantIssueCmd.Flags().DurationVar(&grantIssueTTL, "ttl", 15*time.Minute, "How long the grant stays active")
	grantIssueCmd.Flags().StringVar(&grantIssueReason, "reason", "manual approval", "Reason recorded with the grant")
	grantIssueCmd.MarkFlagRequired("actor")

	grantCmd.AddCommand(grantRevokeCmd)
	grantRevokeCmd.Flags().StringVar(&grantRevokeReason, "reason", "", "Reason recorded with the revocation")

	grantCmd.AddCommand(grantListCmd)
}

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Issue, revoke, and list capability grants",
	Long: "Grants are time-boxed capabilities checked by the run gate and the\n" +
		"proxy. They live in an append-only event log; the active set is\n" +
		"recomputed from the log on every read.",
}

var grantIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a grant",
	RunE:  runGrantIssue,
}

var grantRevokeCmd = &cobra.Command{
	Use:   "revoke <grant-id>",
	Short: "Revoke a grant",
	Args:  cobra.ExactArgs(1),
	RunE:  runGrantRevoke,
}

var grantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active grants",
	RunE:  runGrantList,
}

func runGrantIssue(cmd *cobra.Command, args []string) error {
	scope, err := scopeFrom(grantIssueScope, grantIssueTemplate, grantIssueValue, grantIssueTool)
	if err != nil {
		return err
	}
	store := grant.NewStore(grantStorePath())
	g, err := store.Issue(grantIssueActor, grantIssueTool, scope, grantIssueTTL, grantIssueReason)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(g, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runGrantRevoke(cmd *cobra.Command, args []string) error {
	store := grant.NewStore(grantStorePath())
	if err := store.Revoke(args[0], grantRevokeReason); err != nil {
		return err
	}
	fmt.Printf("revoked %s\n", args[0])
	return nil
}

func runGrantList(cmd *cobra.Command, args []string) error {
	store := grant.NewStore(grantStorePath())
	active, err := store.Active()
	if err != nil {
		return err
	}
	if len(active) == 0 {
		fmt.Println("No active grants.")
		return nil
	}
	out, _ := json.MarshalIndent(active, "", "  ")
	fmt.Println(string(out))
	return nil
}

func grantStorePath() string {
	if grantPath != "" {
		return grantPath
	}
	ws := firstNonEmpty(grantWorkspace, os.Getenv("AGENTSAFE_WORKSPACE"), ".")
	return state.GrantsPath(ws)
}

// scopeFrom resolves --scope or --template/--value into one scope string, so
// approval prompts and issued grants render scopes the same way.
func scopeFrom(scope, template, value, tool string) (string, error) {
	if scope != "" && template != "" {
		return "", fmt.Errorf("--scope and --template are mutually exclusive")
	}
	if scope != "" {
		return scope, nil
	}
	if template == "" {
		return "", fmt.Errorf("one of --scope or --template is required")
	}
	return grant.RenderScopeTemplate(template, value, tool)
}
