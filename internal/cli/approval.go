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
	approvalWorkspace string
	approvalRequests  string
	approvalGrants    string

	approvalReqActor    string
	approvalReqTool     string
	approvalReqScope    string
	approvalReqTemplate string
	approvalReqValue    string
	approvalReqReason   string
	approvalReqTTL      time.Duration

	approvalListStatus string

	approvalReviewer   string
	approvalApproveTTL time.Duration
	approvalNote       string
)

func init() {
	rootCmd.AddCommand(approvalCmd)
	approvalCmd.PersistentFlags().StringVar(&approvalWorkspace, "workspace", "", "Workspace whose approval log to use (default: $AGENTSAFE_WORKSPACE or .)")
	approvalCmd.PersistentFlags().StringVar(&approvalRequests, "requests", "", "Approval request log path (default: <workspace>/.agentsafe/approval_requests.jsonl)")
	approvalCmd.PersistentFlags().StringVar(&approvalGrants, "grants", "", "Grant log path (default: <workspace>/.agentsafe/grants.jsonl)")

	approvalCmd.AddCommand(approvalRequestCmd)
	approvalRequestCmd.Flags().StringVar(&approvalReqActor, "actor", "", "Actor requesting the capability")
	approvalRequestCmd.Flags().StringVar(&approvalReqTool, "tool", "run", "Tool the capability covers")
	approvalRequestCmd.Flags().StringVar(&approvalReqScope, "scope", "", "Scope glob being requested")
	approvalRequestCmd.Flags().StringVar(&approvalReqTemplate, "template", "", "Scope template: run-binary, run-command, tool-prefix, http-domain")
	approvalRequestCmd.Flags().StringVar(&approvalReqValue, "value", "", "Value expanded into the scope template")
	approvalRequestCmd.Flags().StringVar(&approvalReqReason, "reason", "", "Why the capability is needed")
	approvalRequestCmd.Flags().DurationVar(&approvalReqTTL, "ttl", grant.DefaultRequestTTL, "How long the request stays actionable")
	approvalRequestCmd.MarkFlagRequired("actor")

	approvalCmd.AddCommand(approvalPendingCmd)
	approvalPendingCmd.Flags().StringVar(&approvalListStatus, "status", grant.StatusPending, "Filter: pending, approved, rejected, expired, or all")

	approvalCmd.AddCommand(approvalApproveCmd)
	approvalApproveCmd.Flags().StringVar(&approvalReviewer, "reviewer", "", "Who is approving")
	approvalApproveCmd.Flags().DurationVar(&approvalApproveTTL, "ttl", 15*time.Minute, "How long the issued grant stays active")
	approvalApproveCmd.Flags().StringVar(&approvalNote, "reason", "", "Review note recorded with the decision")
	approvalApproveCmd.MarkFlagRequired("reviewer")

	approvalCmd.AddCommand(approvalRejectCmd)
	approvalRejectCmd.Flags().StringVar(&approvalReviewer, "reviewer", "", "Who is rejecting")
	approvalRejectCmd.Flags().StringVar(&approvalNote, "reason", "", "Review note recorded with the decision")
	approvalRejectCmd.MarkFlagRequired("reviewer")
}

var approvalCmd = &cobra.Command{
	Use:   "approval",
	Short: "Request and review capability approvals",
	Long: "Approval requests capture what an agent wants to do; approving one\n" +
		"issues a grant for the requested scope. Requests expire if nobody\n" +
		"reviews them in time.",
}

var approvalRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "File an approval request",
	RunE:  runApprovalRequest,
}

var approvalPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List approval requests",
	RunE:  runApprovalPending,
}

var approvalApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a request and issue the grant",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalApprove,
}

var approvalRejectCmd = &cobra.Command{
	Use:   "reject <request-id>",
	Short: "Reject a request",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalReject,
}

func runApprovalRequest(cmd *cobra.Command, args []string) error {
	scope, err := scopeFrom(approvalReqScope, approvalReqTemplate, approvalReqValue, approvalReqTool)
	if err != nil {
		return err
	}
	requests, _ := approvalStores()
	req, err := requests.Create(approvalReqActor, approvalReqTool, scope, approvalReqReason, approvalReqTTL)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(req, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runApprovalPending(cmd *cobra.Command, args []string) error {
	requests, _ := approvalStores()
	list, err := requests.List(approvalListStatus)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Printf("No %s approval requests.\n", approvalListStatus)
		return nil
	}

	fmt.Printf("%-36s  %-9s %-14s %-40s %s\n", "REQUEST", "STATUS", "ACTOR", "SCOPE", "EXPIRES")
	for _, req := range list {
		fmt.Printf("%-36s  %-9s %-14s %-40s %s\n",
			req.RequestID,
			req.Status,
			truncate(req.Actor, 14),
			truncate(req.Scope, 40),
			req.ExpiresAt,
		)
	}
	return nil
}

func runApprovalApprove(cmd *cobra.Command, args []string) error {
	requests, grants := approvalStores()
	g, err := requests.Approve(args[0], approvalReviewer, approvalApproveTTL, approvalNote, grants)
	if err != nil {
		return err
	}
	fmt.Printf("approved %s\n", args[0])
	out, _ := json.MarshalIndent(g, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runApprovalReject(cmd *cobra.Command, args []string) error {
	requests, _ := approvalStores()
	if err := requests.Reject(args[0], approvalReviewer, approvalNote); err != nil {
		return err
	}
	fmt.Printf("rejected %s\n", args[0])
	return nil
}

func approvalStores() (*grant.RequestStore, *grant.Store) {
	ws := firstNonEmpty(approvalWorkspace, os.Getenv("AGENTSAFE_WORKSPACE"), ".")
	requestsPath := approvalRequests
	if requestsPath == "" {
		requestsPath = state.RequestsPath(ws)
	}
	grantsPath := approvalGrants
	if grantsPath == "" {
		grantsPath = state.GrantsPath(ws)
	}
	return grant.NewRequestStore(requestsPath), grant.NewStore(grantsPath)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
