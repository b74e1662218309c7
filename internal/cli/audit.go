package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/audit"
	"github.com/ppiankov/agentsafe/internal/state"
)

var (
	auditWorkspace string
	auditLedger    string

	reportLimit  int
	reportOutput string

	tailLines int

	queryIndex    string
	queryActor    string
	queryTool     string
	queryDecision string
	queryRuleID   string
	querySince    string
	queryLimit    int
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.PersistentFlags().StringVar(&auditWorkspace, "workspace", "", "Workspace whose ledger to read (default: $AGENTSAFE_WORKSPACE or .)")
	auditCmd.PersistentFlags().StringVar(&auditLedger, "ledger", "", "Audit ledger path (default: <workspace>/.agentsafe/ledger.jsonl)")

	auditCmd.AddCommand(auditReportCmd)
	auditReportCmd.Flags().IntVar(&reportLimit, "limit", 0, "Report over the last N records only (0 = all)")
	auditReportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report to a file instead of stdout")

	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 20, "Number of recent records to show")

	auditCmd.AddCommand(auditQueryCmd)
	auditQueryCmd.Flags().StringVar(&queryIndex, "index", "", "sqlite index path (default: <workspace>/.agentsafe/ledger.db)")
	auditQueryCmd.Flags().StringVar(&queryActor, "actor", "", "Filter by actor")
	auditQueryCmd.Flags().StringVar(&queryTool, "tool", "", "Filter by tool")
	auditQueryCmd.Flags().StringVar(&queryDecision, "decision", "", "Filter by decision (ALLOW or BLOCK)")
	auditQueryCmd.Flags().StringVar(&queryRuleID, "rule-id", "", "Filter by rule id")
	auditQueryCmd.Flags().StringVar(&querySince, "since", "", "Only records at or after this timestamp")
	auditQueryCmd.Flags().IntVar(&queryLimit, "limit", 0, "Maximum records to return (0 = no limit)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the decision ledger",
	Long:  "Reports over, tails, and queries the append-only audit ledger.",
}

var auditReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a Markdown report of ledger activity",
	RunE:  runAuditReport,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent ledger records as JSONL",
	RunE:  runAuditTail,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Filter ledger records through the sqlite index",
	Long: "Rebuilds the sqlite index from the ledger, applies the filters, and\n" +
		"prints matching records newest first as JSONL. The JSONL file stays\n" +
		"the source of truth; the index only serves reads.",
	RunE: runAuditQuery,
}

func runAuditReport(cmd *cobra.Command, args []string) error {
	l := audit.NewLedger(auditLedgerPath())
	report, err := audit.RenderReport(l, reportLimit)
	if err != nil {
		return err
	}
	if reportOutput == "" {
		fmt.Println(report)
		return nil
	}
	if dir := filepath.Dir(reportOutput); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(reportOutput, []byte(report+"\n"), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("wrote %s\n", reportOutput)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	l := audit.NewLedger(auditLedgerPath())
	events, err := l.Tail(tailLines)
	if err != nil {
		return err
	}
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		fmt.Println(string(line))
	}
	return nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	indexPath := queryIndex
	if indexPath == "" {
		indexPath = state.IndexPath(auditWorkspaceRoot())
	}
	ix, err := audit.OpenIndex(indexPath)
	if err != nil {
		return err
	}
	defer ix.Close()

	ctx := context.Background()
	if _, err := ix.Rebuild(ctx, audit.NewLedger(auditLedgerPath())); err != nil {
		return err
	}

	events, err := ix.Query(ctx, audit.QueryOptions{
		Actor:    queryActor,
		Tool:     queryTool,
		Decision: queryDecision,
		RuleID:   queryRuleID,
		Since:    querySince,
		Limit:    queryLimit,
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		line, _ := json.Marshal(ev)
		fmt.Println(string(line))
	}
	return nil
}

func auditWorkspaceRoot() string {
	return firstNonEmpty(auditWorkspace, os.Getenv("AGENTSAFE_WORKSPACE"), ".")
}

func auditLedgerPath() string {
	if auditLedger != "" {
		return auditLedger
	}
	return state.LedgerPath(auditWorkspaceRoot())
}
