// Package bundle builds and verifies signed policy bundles. A bundle pins a
// policy file by SHA-256 and carries a detached Ed25519 signature over the
// raw policy bytes, so any edit to the file is detectable.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Version is the only bundle format version in circulation.
const Version = 1

// Algorithm names the only supported signature scheme.
const Algorithm = "ed25519"

// Signature is the detached signature block of a bundle.
type Signature struct {
	Algorithm string `json:"algorithm"`
	SigB64    string `json:"sig_b64"`
}

// Bundle pins one policy file.
type Bundle struct {
	Version      int       `json:"version"`
	PolicyFile   string    `json:"policy_file"`
	PolicySHA256 string    `json:"policy_sha256"`
	Signature    Signature `json:"signature"`
}

// SigningError reports key or signature handling failures: a missing
// signature, an unreadable key, a key of the wrong type. A signature that
// simply does not verify is not a SigningError; verification returns false.
type SigningError struct {
	Msg string
}

func (e *SigningError) Error() string {
	return "bundle: " + e.Msg
}

func signingErrorf(format string, args ...any) *SigningError {
	return &SigningError{Msg: fmt.Sprintf(format, args...)}
}

// Build computes a bundle for the policy file, embedding an optional
// pre-computed base64 signature.
func Build(policyPath, signatureB64 string) (Bundle, error) {
	content, err := os.ReadFile(policyPath)
	if err != nil {
		return Bundle{}, fmt.Errorf("bundle: read policy: %w", err)
	}
	digest := sha256.Sum256(content)
	return Bundle{
		Version:      Version,
		PolicyFile:   filepath.Base(policyPath),
		PolicySHA256: hex.EncodeToString(digest[:]),
		Signature: Signature{
			Algorithm: Algorithm,
			SigB64:    signatureB64,
		},
	}, nil
}

// Write builds the bundle and writes it as indented JSON.
func Write(policyPath, outPath, signatureB64 string) error {
	b, err := Build(policyPath, signatureB64)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: marshal: %w", err)
	}
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("bundle: create output dir: %w", err)
		}
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("bundle: write: %w", err)
	}
	return nil
}

// Read loads a bundle document.
func Read(bundlePath string) (Bundle, error) {
	data, err := os.ReadFile(bundlePath)
	if err != nil {
		return Bundle{}, fmt.Errorf("bundle: read: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("bundle: parse: %w", err)
	}
	return b, nil
}

// VerifyHash recomputes the policy file digest and compares it to the
// bundle's pinned value.
func VerifyHash(policyPath, bundlePath string) (bool, error) {
	content, err := os.ReadFile(policyPath)
	if err != nil {
		return false, fmt.Errorf("bundle: read policy: %w", err)
	}
	b, err := Read(bundlePath)
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(content)
	return hex.EncodeToString(digest[:]) == b.PolicySHA256, nil
}
