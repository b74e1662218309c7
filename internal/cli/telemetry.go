package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/audit"
	"github.com/ppiankov/agentsafe/internal/state"
	"github.com/ppiankov/agentsafe/internal/telemetry"
)

var (
	telemetryEndpoint  string
	telemetryWorkspace string
	telemetryLedger    string
	telemetryDryRun    bool
)

func init() {
	rootCmd.AddCommand(telemetryCmd)
	telemetryCmd.AddCommand(telemetryExportCmd)
	telemetryExportCmd.Flags().StringVar(&telemetryEndpoint, "endpoint", "", "OTLP/HTTP collector base URL (default: $AGENTSAFE_OTLP_ENDPOINT)")
	telemetryExportCmd.Flags().StringVar(&telemetryWorkspace, "workspace", "", "Workspace whose ledger to export (default: $AGENTSAFE_WORKSPACE or .)")
	telemetryExportCmd.Flags().StringVar(&telemetryLedger, "ledger", "", "Audit ledger path (default: <workspace>/.agentsafe/ledger.jsonl)")
	telemetryExportCmd.Flags().BoolVar(&telemetryDryRun, "dry-run", false, "Print the OTLP payload instead of sending it")
}

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Export ledger records to observability backends",
}

var telemetryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Convert ledger records to OTLP spans and send them",
	Long: "Renders every ledger record as an OTLP/HTTP JSON span (BLOCK\n" +
		"decisions become ERROR spans) and POSTs them to the collector in\n" +
		"batches.",
	RunE: runTelemetryExport,
}

func runTelemetryExport(cmd *cobra.Command, args []string) error {
	ws := firstNonEmpty(telemetryWorkspace, os.Getenv("AGENTSAFE_WORKSPACE"), ".")
	ledgerPath := telemetryLedger
	if ledgerPath == "" {
		ledgerPath = state.LedgerPath(ws)
	}
	events, err := audit.NewLedger(ledgerPath).Read()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no events to export")
		return nil
	}

	if telemetryDryRun {
		payload, err := telemetry.Payload(events)
		if err != nil {
			return err
		}
		fmt.Println(string(payload))
		return nil
	}

	endpoint := firstNonEmpty(telemetryEndpoint, os.Getenv("AGENTSAFE_OTLP_ENDPOINT"))
	exp := &telemetry.Exporter{Endpoint: endpoint}
	n, err := exp.Export(events)
	if err != nil {
		if n > 0 {
			fmt.Fprintf(os.Stderr, "exported %d of %d events before the failure\n", n, len(events))
		}
		return err
	}
	fmt.Printf("exported %d events to %s\n", n, endpoint)
	return nil
}
