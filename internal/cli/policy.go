package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/policy"
)

var policyFile string

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.PersistentFlags().StringVar(&policyFile, "policy", "", "Path to policy YAML (default: $AGENTSAFE_POLICY or policy.yaml)")
	policyCmd.AddCommand(policyValidateCmd)
	policyCmd.AddCommand(policyShowCmd)
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Validate and inspect the policy file",
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and validate the policy file",
	RunE:  runPolicyValidate,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a summary of the loaded policy",
	RunE:  runPolicyShow,
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	path := resolvedPolicyPath()
	// A missing file loads as the built-in default policy; for validation
	// that counts as a failure, not a fallback.
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("policy file %s: %w", path, err)
	}
	p, hash, err := policy.LoadWithHash(path)
	if err != nil {
		return err
	}
	fmt.Printf("OK %s (%s)\n", p.PolicyID, hash)
	return nil
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	p, hash, err := policy.LoadWithHash(resolvedPolicyPath())
	if err != nil {
		return err
	}
	summary := map[string]any{
		"policy_id":        p.PolicyID,
		"hash":             hash,
		"default_decision": p.DefaultDecision,
		"network_mode":     p.Tools.Network.Mode,
		"counts": map[string]int{
			"commands":    len(p.Tools.Commands),
			"allow_paths": len(p.Tools.Paths.Allow),
			"deny_paths":  len(p.Tools.Paths.Deny),
			"env_vars":    len(p.Tools.EnvAllowlist),
			"domains":     len(p.Tools.Network.Domains),
			"ports":       len(p.Tools.Network.Ports),
			"rate_limits": len(p.Tools.RateLimits),
		},
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	return nil
}

func resolvedPolicyPath() string {
	return firstNonEmpty(policyFile, os.Getenv("AGENTSAFE_POLICY"), "policy.yaml")
}
