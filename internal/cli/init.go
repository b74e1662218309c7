package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/profile"
)

var (
	initProfileName string
	initOut         string
	initForce       bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initProfileName, "profile", profile.DefaultName, "Built-in profile: "+strings.Join(profile.Names(), ", "))
	initCmd.Flags().StringVar(&initOut, "out", "policy.yaml", "Where to write the starter policy")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter policy from a built-in profile",
	Long: "Writes one of the built-in starter policies:\n\n" +
		"  minimal   read-only shell basics, no network\n" +
		"  standard  everyday development commands, proxied network\n" +
		"  hardened  pinned argument patterns, tight rate limits\n\n" +
		"Edit the file afterwards; the policy refuses to load if an edit\n" +
		"breaks validation.",
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := profile.Write(initProfileName, initOut, initForce); err != nil {
		return err
	}
	fmt.Printf("wrote %s (profile %s)\n", initOut, initProfileName)
	fmt.Println()
	fmt.Println("Verify:")
	fmt.Println("  agentsafe doctor")
	fmt.Printf("  agentsafe policy validate --policy %s\n", initOut)
	fmt.Println()
	fmt.Println("Run a command under enforcement:")
	fmt.Printf("  agentsafe run --policy %s -- ls -la\n", initOut)
	return nil
}
