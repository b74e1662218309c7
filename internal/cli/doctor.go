package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/policy"
	"github.com/ppiankov/agentsafe/internal/state"
)

var (
	doctorWorkspace string
	doctorPolicy    string
)

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorWorkspace, "workspace", "", "Workspace to check (default: $AGENTSAFE_WORKSPACE or .)")
	doctorCmd.Flags().StringVar(&doctorPolicy, "policy", "", "Policy file to check (default: $AGENTSAFE_POLICY or policy.yaml)")
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the environment can actually enforce",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{
			label:  "agentsafe binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s)", execPath, version),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "agentsafe binary",
			ok:     false,
			detail: "cannot determine executable path",
		})
	}

	// 2. Policy file present and parseable.
	policyPath := firstNonEmpty(doctorPolicy, os.Getenv("AGENTSAFE_POLICY"), "policy.yaml")
	if _, err := os.Stat(policyPath); err != nil {
		checks = append(checks, checkResult{
			label:  "policy",
			ok:     false,
			detail: fmt.Sprintf("%s missing", policyPath),
			fix:    "agentsafe init",
		})
	} else if p, _, err := policy.LoadWithHash(policyPath); err != nil {
		checks = append(checks, checkResult{
			label:  "policy",
			ok:     false,
			detail: err.Error(),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "policy",
			ok:     true,
			detail: fmt.Sprintf("%s (%s)", policyPath, p.PolicyID),
		})
	}

	// 3. Workspace writable.
	workspace := firstNonEmpty(doctorWorkspace, os.Getenv("AGENTSAFE_WORKSPACE"), ".")
	abs, err := filepath.Abs(workspace)
	if err != nil {
		abs = workspace
	}
	if writable(abs) {
		checks = append(checks, checkResult{label: "workspace", ok: true, detail: abs})
	} else {
		checks = append(checks, checkResult{
			label:  "workspace",
			ok:     false,
			detail: abs + " is not writable",
		})
	}

	// 4. State directory usable.
	stateDir := state.Dir(abs)
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		checks = append(checks, checkResult{
			label:  "state directory",
			ok:     false,
			detail: err.Error(),
		})
	} else if writable(stateDir) {
		checks = append(checks, checkResult{label: "state directory", ok: true, detail: stateDir})
	} else {
		checks = append(checks, checkResult{
			label:  "state directory",
			ok:     false,
			detail: stateDir + " is not writable",
		})
	}

	// 5. Docker present for the sandbox.
	if dockerPath, err := exec.LookPath("docker"); err == nil {
		checks = append(checks, checkResult{label: "docker", ok: true, detail: dockerPath})
	} else {
		checks = append(checks, checkResult{
			label:  "docker",
			ok:     false,
			detail: "not found in PATH",
			fix:    "install docker (only `agentsafe run` needs it)",
		})
	}

	hasFailures := false
	for _, c := range checks {
		mark := "\u2713" // ✓
		if !c.ok {
			mark = "\u2717" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-18s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}

// writable probes a directory by creating and removing a temp file; stat
// bits alone miss read-only mounts.
func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".agentsafe-doctor-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
