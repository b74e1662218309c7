package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/agentsafe/internal/policy"
)

func TestRunInit_WritesStarterPolicy(t *testing.T) {
	tmpDir := t.TempDir()

	// Reset flags.
	initProfileName = "standard"
	initOut = filepath.Join(tmpDir, "policy.yaml")
	initForce = false

	if err := runInit(nil, nil); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	data, err := os.ReadFile(initOut)
	if err != nil {
		t.Fatalf("policy.yaml not created: %v", err)
	}
	if !strings.Contains(string(data), "starter-standard") {
		t.Error("policy.yaml missing the profile's policy_id")
	}
	if !strings.Contains(string(data), "default_decision: deny") {
		t.Error("policy.yaml missing default_decision: deny")
	}

	// The starter must survive the loader's validation.
	if _, err := policy.Load(initOut); err != nil {
		t.Errorf("starter policy does not validate: %v", err)
	}
}

func TestRunInit_RefusesOverwriteWithoutForce(t *testing.T) {
	tmpDir := t.TempDir()

	sentinel := "# sentinel content\n"
	out := filepath.Join(tmpDir, "policy.yaml")
	if err := os.WriteFile(out, []byte(sentinel), 0o644); err != nil {
		t.Fatal(err)
	}

	initProfileName = "standard"
	initOut = out
	initForce = false

	err := runInit(nil, nil)
	if err == nil {
		t.Fatal("expected error for existing file without --force")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("unexpected error: %v", err)
	}

	data, _ := os.ReadFile(out)
	if string(data) != sentinel {
		t.Error("policy.yaml was overwritten without --force")
	}
}

func TestRunInit_ForceOverwrites(t *testing.T) {
	tmpDir := t.TempDir()

	sentinel := "# sentinel content\n"
	out := filepath.Join(tmpDir, "policy.yaml")
	if err := os.WriteFile(out, []byte(sentinel), 0o644); err != nil {
		t.Fatal(err)
	}

	initProfileName = "minimal"
	initOut = out
	initForce = true

	if err := runInit(nil, nil); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	data, _ := os.ReadFile(out)
	if string(data) == sentinel {
		t.Error("policy.yaml was NOT overwritten with --force")
	}
	if !strings.Contains(string(data), "starter-minimal") {
		t.Error("overwrite did not write the requested profile")
	}
}

func TestRunInit_UnknownProfile(t *testing.T) {
	initProfileName = "paranoid"
	initOut = filepath.Join(t.TempDir(), "policy.yaml")
	initForce = false

	err := runInit(nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if !strings.Contains(err.Error(), "unknown profile") {
		t.Errorf("unexpected error: %v", err)
	}
}
