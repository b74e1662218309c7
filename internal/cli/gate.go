package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/agentsafe/internal/audit"
	"github.com/ppiankov/agentsafe/internal/backend"
	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/policy"
	"github.com/ppiankov/agentsafe/internal/ratelimit"
	"github.com/ppiankov/agentsafe/internal/state"
)

// defaultActor names callers that did not identify themselves.
const defaultActor = "unknown-agent"

// gate bundles everything the inline commands need to decide and record one
// tool call.
type gate struct {
	workspace string
	backend   backend.Backend
	limiter   *ratelimit.Limiter
	ledger    *audit.Ledger
	requestID string
	actor     string
}

// newGate resolves the shared flags against their environment defaults and
// loads the decision stack. A load failure is terminal: the caller prints
// BLOCK and exits 2, never falls open.
func newGate(actor, workspace, policyPath, backendName, ledgerPath string) (*gate, error) {
	workspace = firstNonEmpty(workspace, os.Getenv("AGENTSAFE_WORKSPACE"), ".")
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	policyPath = firstNonEmpty(policyPath, os.Getenv("AGENTSAFE_POLICY"), "policy.yaml")
	backendName = firstNonEmpty(backendName, os.Getenv("AGENTSAFE_POLICY_BACKEND"), "yaml")

	b, err := backend.Load(backendName, policyPath,
		os.Getenv("AGENTSAFE_OPA_URL"), os.Getenv("AGENTSAFE_OPA_DECISION_PATH"))
	if err != nil {
		return nil, err
	}

	// Rate limits always come from the local policy file, even when the
	// decision backend is remote.
	pol, err := policy.Load(policyPath)
	if err != nil {
		return nil, err
	}

	if ledgerPath == "" {
		ledgerPath = state.LedgerPath(abs)
	}
	if actor == "" {
		actor = defaultActor
	}
	return &gate{
		workspace: abs,
		backend:   b,
		limiter:   ratelimit.New(pol.Tools.RateLimits),
		ledger:    audit.NewLedger(ledgerPath),
		requestID: audit.NewRequestID(),
		actor:     actor,
	}, nil
}

// event returns a ledger record pre-filled with the call identity. The
// caller sets decision, reason, rule, and any detail fields.
func (g *gate) event(tool, argsSummary string) audit.Event {
	return audit.Event{
		RequestID:   g.requestID,
		Actor:       g.actor,
		Tool:        tool,
		ArgsSummary: argsSummary,
	}
}

// record appends the event. Ledger failures are reported but never mask the
// decision already made.
func (g *gate) record(ev audit.Event) {
	if err := g.ledger.Append(ev); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit append failed: %v\n", err)
	}
}

// deny records the blocking decision, prints it, and exits with code.
func (g *gate) deny(ev audit.Event, d model.Decision, code int) {
	ev.Decision = audit.DecisionBlock
	ev.Reason = d.Reason
	ev.RuleID = d.RuleID
	g.record(ev)
	fmt.Fprintf(os.Stderr, "BLOCK %s (%s)\n", d.Reason, d.RuleID)
	os.Exit(code)
}
