package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const samplePolicy = `
policy_id: test-policy
default_decision: deny
tools:
  commands:
    - binary: ls
    - binary: git
      arg_regex: "^status"
      rule_id: cmd_git_status
  paths:
    allow: ["."]
    deny: ["/etc"]
  env_allowlist: [PATH, HOME]
  network:
    mode: allow_proxy
    domains: [github.com]
    ports: [443]
  rate_limits:
    - category: run
      capacity: 5
      refill_per_sec: 1.0
`

func TestParseSamplePolicy(t *testing.T) {
	p, err := Parse([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.PolicyID != "test-policy" {
		t.Errorf("policy_id = %q", p.PolicyID)
	}
	if len(p.Tools.Commands) != 2 {
		t.Fatalf("expected 2 command rules, got %d", len(p.Tools.Commands))
	}
	if p.Tools.Commands[0].RuleID != "cmd_0" {
		t.Errorf("expected default rule_id cmd_0, got %q", p.Tools.Commands[0].RuleID)
	}
	if p.Tools.Commands[1].RuleID != "cmd_git_status" {
		t.Errorf("declared rule_id lost: %q", p.Tools.Commands[1].RuleID)
	}
	if p.Tools.Network.Mode != NetworkAllowProxy {
		t.Errorf("network mode = %q", p.Tools.Network.Mode)
	}
	if rl, ok := p.RateLimitFor("run"); !ok || rl.Capacity != 5 {
		t.Errorf("rate limit for run = %+v ok=%v", rl, ok)
	}
	if _, ok := p.RateLimitFor("fetch"); ok {
		t.Error("unexpected rate limit for fetch")
	}
}

func TestParseRejectsNonDenyDefault(t *testing.T) {
	_, err := Parse([]byte("default_decision: allow\n"))
	if err == nil {
		t.Fatal("expected error for default_decision: allow")
	}
	if !strings.Contains(err.Error(), "default_decision") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestParseUnknownKeys(t *testing.T) {
	// Unknown top-level keys are tolerated.
	if _, err := Parse([]byte("metadata: {owner: sec}\ndefault_decision: deny\n")); err != nil {
		t.Errorf("top-level unknown key should be tolerated: %v", err)
	}

	// Unknown keys nested under tools are rejected.
	bad := []string{
		"tools:\n  commandz: []\n",
		"tools:\n  paths:\n    allowed: [/x]\n",
		"tools:\n  network:\n    mode: none\n    domain: [x.com]\n",
		"tools:\n  commands:\n    - binary: ls\n      args_regex: x\n",
		"tools:\n  rate_limits:\n    - category: run\n      capacity: 1\n      refill: 1\n",
	}
	for _, doc := range bad {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("expected unknown-key error for:\n%s", doc)
		}
	}
}

func TestParseValidation(t *testing.T) {
	bad := []string{
		"tools:\n  network:\n    mode: bridge\n",
		"tools:\n  commands:\n    - arg_regex: x\n",
		"tools:\n  commands:\n    - binary: ls\n      arg_regex: '('\n",
		"tools:\n  rate_limits:\n    - category: ''\n      capacity: 1\n      refill_per_sec: 1\n",
		"tools:\n  rate_limits:\n    - category: run\n      capacity: 0\n      refill_per_sec: 1\n",
		"tools:\n  rate_limits:\n    - category: run\n      capacity: 1\n      refill_per_sec: 0\n",
	}
	for _, doc := range bad {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("expected validation error for:\n%s", doc)
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
	if p.DefaultDecision != "deny" {
		t.Errorf("default policy decision = %q", p.DefaultDecision)
	}
	if p.Tools.Network.Mode != NetworkNone {
		t.Errorf("default network mode = %q", p.Tools.Network.Mode)
	}
	if len(p.Tools.Commands) != 0 {
		t.Errorf("default policy should allowlist nothing, got %d rules", len(p.Tools.Commands))
	}
}

func TestLoadWithHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(samplePolicy), 0o644); err != nil {
		t.Fatal(err)
	}

	p, hash, err := LoadWithHash(path)
	if err != nil {
		t.Fatalf("LoadWithHash: %v", err)
	}
	if p.PolicyID != "test-policy" {
		t.Errorf("policy_id = %q", p.PolicyID)
	}
	if !strings.HasPrefix(hash, "sha256:") || len(hash) != len("sha256:")+64 {
		t.Errorf("unexpected hash format: %q", hash)
	}

	// Same bytes, same hash.
	_, hash2, err := LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if hash != hash2 {
		t.Errorf("hash not stable: %q vs %q", hash, hash2)
	}

	// Changed bytes, different hash.
	if err := os.WriteFile(path, []byte(samplePolicy+"\n# trailing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, hash3, err := LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if hash == hash3 {
		t.Error("hash unchanged after file modification")
	}
}
