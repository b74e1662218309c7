package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/audit"
	"github.com/ppiankov/agentsafe/internal/grant"
	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/policy"
	"github.com/ppiankov/agentsafe/internal/sandbox"
	"github.com/ppiankov/agentsafe/internal/shellwords"
	"github.com/ppiankov/agentsafe/internal/state"
)

var (
	runActor           string
	runWorkspace       string
	runPolicy          string
	runBackend         string
	runLedger          string
	runGrants          string
	runImage           string
	runNetworkOverride string
	runCPUs            string
	runMemory          string
	runTimeout         time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runActor, "actor", defaultActor, "Actor identity recorded in the ledger and checked against grants")
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "Workspace mounted into the sandbox (default: $AGENTSAFE_WORKSPACE or .)")
	runCmd.Flags().StringVar(&runPolicy, "policy", "", "Path to policy YAML (default: $AGENTSAFE_POLICY or policy.yaml)")
	runCmd.Flags().StringVar(&runBackend, "policy-backend", "", "Decision backend: yaml or opa (default: $AGENTSAFE_POLICY_BACKEND or yaml)")
	runCmd.Flags().StringVar(&runLedger, "ledger", "", "Audit ledger path (default: <workspace>/.agentsafe/ledger.jsonl)")
	runCmd.Flags().StringVar(&runGrants, "grants", "", "Grant log path (default: <workspace>/.agentsafe/grants.jsonl)")
	runCmd.Flags().StringVar(&runImage, "image", "", "Sandbox container image (default: $AGENTSAFE_SANDBOX_IMAGE or "+sandbox.DefaultImage+")")
	runCmd.Flags().StringVar(&runNetworkOverride, "network-override", "", "Tighten the policy network mode for this call (none)")
	runCmd.Flags().StringVar(&runCPUs, "cpus", "", "Container CPU limit (docker --cpus)")
	runCmd.Flags().StringVar(&runMemory, "memory", "", "Container memory limit (docker --memory)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", sandbox.DefaultTimeout, "Wall-clock limit for the command")
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Run a command through the policy gate in a sandboxed container",
	Long: "Evaluates the command against the policy, checks every file argument,\n" +
		"enforces the approval gate for privileged binaries, then executes it in\n" +
		"an ephemeral container. Exit code 2 means blocked, 3 means approval\n" +
		"required; otherwise the child's exit code passes through.",
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	g, err := newGate(runActor, runWorkspace, runPolicy, runBackend, runLedger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "BLOCK invalid policy/backend: %v\n", err)
		os.Exit(exitBlocked)
	}

	commandLine := shellwords.Join(args)
	ev := g.event("run", commandLine)

	if d := g.limiter.Check("run"); !d.Allowed {
		g.deny(ev, d, exitBlocked)
	}

	decision := g.backend.EvaluateRun(args, g.workspace)
	if !decision.Allowed {
		g.deny(ev, decision, exitBlocked)
	}

	fileArgs := policy.FileArgs(args)
	for _, candidate := range fileArgs {
		if d := g.backend.EvaluatePath(candidate, g.workspace); !d.Allowed {
			blocked := ev
			blocked.FilesTouched = []string{candidate}
			g.deny(blocked, d, exitBlocked)
		}
	}

	// Privileged binaries pass policy but still need a held grant or an
	// operator line in the approvals file before they run.
	binary := filepath.Base(args[0])
	if model.IsPrivilegedBinary(binary) {
		grants := grant.NewStore(firstNonEmpty(runGrants, state.GrantsPath(g.workspace)))
		approved, err := runApproved(grants, state.ApprovalsPath(g.workspace), g.actor, commandLine, binary)
		if err != nil {
			fmt.Fprintf(os.Stderr, "BLOCK approval check failed: %v\n", err)
			os.Exit(exitBlocked)
		}
		if !approved {
			g.deny(ev, model.Block(
				fmt.Sprintf("%s requires an active grant or an %s entry", binary, state.ApprovalsFileName),
				model.RuleApprovalNeeded,
			), exitApprovalRequired)
		}
	}

	networkMode, err := effectiveNetworkMode(g.backend.NetworkMode(), runNetworkOverride)
	if err != nil {
		return err
	}

	env := sandbox.CollectEnv(g.backend.EnvAllowlist())
	dockerNet := "none"
	if networkMode == policy.NetworkAllowProxy {
		dockerNet = "bridge"
		proxyURL := envOr("AGENTSAFE_EGRESS_PROXY", "http://host.docker.internal:3128")
		env["HTTP_PROXY"] = proxyURL
		env["HTTPS_PROXY"] = proxyURL
	}

	runner := &sandbox.Runner{
		Image:    firstNonEmpty(runImage, os.Getenv("AGENTSAFE_SANDBOX_IMAGE")),
		CPULimit: runCPUs,
		MemLimit: runMemory,
		Timeout:  runTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	res, err := runner.Run(ctx, args, g.workspace, dockerNet, env)
	if err != nil {
		g.deny(ev, model.Block(err.Error(), decision.RuleID), exitBlocked)
	}

	after := ev
	after.Decision = audit.DecisionAllow
	after.Reason = decision.Reason
	after.RuleID = decision.RuleID
	if res.ExitCode != 0 {
		after.Decision = audit.DecisionBlock
		after.Reason = fmt.Sprintf("command exited non-zero (%d)", res.ExitCode)
	}
	after.Sandbox = &audit.SandboxDetail{
		ContainerID:    res.ContainerID,
		WorkspaceMount: g.workspace,
		NetworkMode:    networkMode,
	}
	after.FilesTouched = fileArgs
	after.StdoutPreview = sandbox.Preview(res.Stdout)
	after.StderrPreview = sandbox.Preview(res.Stderr)
	g.record(after)

	fmt.Print(res.Stdout)
	if res.Stderr != "" {
		fmt.Fprint(os.Stderr, res.Stderr)
	}
	if res.ExitCode != 0 {
		os.Exit(res.ExitCode)
	}
	return nil
}

// runApproved implements the approval gate: an operator line in the
// approvals file, a grant covering the exact command line, or a grant
// covering "<binary> *". The last check makes a bare invocation (no
// arguments) covered by a binary-wide grant.
func runApproved(grants *grant.Store, approvalsPath, actor, commandLine, binary string) (bool, error) {
	if ok, err := grant.FileApproves(approvalsPath, commandLine); err != nil || ok {
		return ok, err
	}
	if ok, err := grants.IsAllowed(actor, "run", commandLine); err != nil || ok {
		return ok, err
	}
	return grants.IsAllowed(actor, "run", binary+" *")
}

// effectiveNetworkMode applies --network-override. The override only
// tightens: a policy running with network none cannot be widened from the
// command line.
func effectiveNetworkMode(policyMode, override string) (string, error) {
	if override == "" {
		return policyMode, nil
	}
	switch override {
	case policy.NetworkNone, policy.NetworkAllowProxy:
	default:
		return "", fmt.Errorf("unknown --network-override %q: use %q or %q",
			override, policy.NetworkNone, policy.NetworkAllowProxy)
	}
	if override == policy.NetworkAllowProxy && policyMode == policy.NetworkNone {
		return "", fmt.Errorf("--network-override cannot widen the policy's network mode")
	}
	return override, nil
}
