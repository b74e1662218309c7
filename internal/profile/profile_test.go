package profile

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/agentsafe/internal/policy"
)

func TestNames(t *testing.T) {
	want := []string{"hardened", "minimal", "standard"}
	if got := Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestBuiltinsAreValidPolicies(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			data, err := Data(name)
			if err != nil {
				t.Fatal(err)
			}
			p, err := policy.Parse(data)
			if err != nil {
				t.Fatalf("profile %s does not parse: %v", name, err)
			}
			if p.DefaultDecision != "deny" {
				t.Errorf("default_decision = %q", p.DefaultDecision)
			}
			if !strings.HasPrefix(p.PolicyID, "starter-") {
				t.Errorf("policy_id = %q, want starter-*", p.PolicyID)
			}
			if len(p.Tools.Paths.Allow) == 0 {
				t.Error("starter policy should allow at least the workspace")
			}
		})
	}
}

func TestDataUnknown(t *testing.T) {
	if _, err := Data("galactic"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestWriteRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies", "agentsafe.yaml")

	if err := Write("minimal", path, false); err != nil {
		t.Fatal(err)
	}
	if err := Write("minimal", path, false); err == nil {
		t.Fatal("expected overwrite refusal")
	}
	if err := Write("hardened", path, true); err != nil {
		t.Fatalf("force overwrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "starter-hardened") {
		t.Error("force write should have replaced the content")
	}
}
