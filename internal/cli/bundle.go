package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentsafe/internal/bundle"
)

var (
	keygenPrivate string
	keygenPublic  string

	signPolicy string
	signKey    string
	signOut    string

	verifyPolicy string
	verifyBundle string
	verifyPubKey string
)

func init() {
	rootCmd.AddCommand(bundleCmd)

	bundleCmd.AddCommand(bundleKeygenCmd)
	bundleKeygenCmd.Flags().StringVar(&keygenPrivate, "private-key", "bundle_signing.pem", "Where to write the private key")
	bundleKeygenCmd.Flags().StringVar(&keygenPublic, "public-key", "bundle_signing.pub.pem", "Where to write the public key")

	bundleCmd.AddCommand(bundleSignCmd)
	bundleSignCmd.Flags().StringVar(&signPolicy, "policy", "", "Policy file to sign (default: $AGENTSAFE_POLICY or policy.yaml)")
	bundleSignCmd.Flags().StringVar(&signKey, "key", "bundle_signing.pem", "Ed25519 private key (PKCS#8 PEM)")
	bundleSignCmd.Flags().StringVar(&signOut, "out", "bundle.json", "Where to write the bundle")

	bundleCmd.AddCommand(bundleVerifyCmd)
	bundleVerifyCmd.Flags().StringVar(&verifyPolicy, "policy", "", "Policy file to verify (default: $AGENTSAFE_POLICY or policy.yaml)")
	bundleVerifyCmd.Flags().StringVar(&verifyBundle, "bundle", "bundle.json", "Bundle document to verify against")
	bundleVerifyCmd.Flags().StringVar(&verifyPubKey, "public-key", "", "Ed25519 public key; when set the signature is checked too")
}

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Sign and verify policy bundles",
	Long: "A bundle pins the policy file by SHA-256 and carries a detached\n" +
		"Ed25519 signature over the raw bytes, so any edit to the deployed\n" +
		"policy is detectable.",
}

var bundleKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 signing keypair",
	RunE:  runBundleKeygen,
}

var bundleSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign the policy file and write the bundle",
	RunE:  runBundleSign,
}

var bundleVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the policy file against its bundle",
	RunE:  runBundleVerify,
}

func runBundleKeygen(cmd *cobra.Command, args []string) error {
	if err := bundle.GenerateKeypair(keygenPrivate, keygenPublic); err != nil {
		return err
	}
	fmt.Printf("wrote %s and %s\n", keygenPrivate, keygenPublic)
	return nil
}

func runBundleSign(cmd *cobra.Command, args []string) error {
	policyPath := firstNonEmpty(signPolicy, os.Getenv("AGENTSAFE_POLICY"), "policy.yaml")
	sig, err := bundle.Sign(policyPath, signKey)
	if err != nil {
		return err
	}
	if err := bundle.Write(policyPath, signOut, sig); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", signOut)
	return nil
}

func runBundleVerify(cmd *cobra.Command, args []string) error {
	policyPath := firstNonEmpty(verifyPolicy, os.Getenv("AGENTSAFE_POLICY"), "policy.yaml")

	ok, err := bundle.VerifyHash(policyPath, verifyBundle)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "FAILED: policy hash does not match the bundle")
		os.Exit(exitBlocked)
	}
	fmt.Println("OK policy hash matches")

	if verifyPubKey == "" {
		return nil
	}
	ok, err = bundle.VerifySignature(policyPath, verifyBundle, verifyPubKey)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "FAILED: signature does not verify")
		os.Exit(exitBlocked)
	}
	fmt.Println("OK signature verifies")
	return nil
}
