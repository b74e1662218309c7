package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
)

// Network modes. "none" forbids all egress; "allow_proxy" permits fetches to
// allowlisted domains, routed through the egress proxy when sandboxed.
const (
	NetworkNone       = "none"
	NetworkAllowProxy = "allow_proxy"
)

// CommandRule allowlists one binary, optionally constrained by a regular
// expression over the shell-quoted join of the remaining arguments.
type CommandRule struct {
	Binary   string `yaml:"binary"`
	ArgRegex string `yaml:"arg_regex"`
	RuleID   string `yaml:"rule_id"`

	argRe *regexp.Regexp
}

// PathRules holds path allowlist roots and denied prefixes. Entries may use
// "~" and "$HOME"; they are resolved against the workspace root at
// evaluation time.
type PathRules struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// Network restricts egress to allowlisted domains and ports.
type Network struct {
	Mode    string   `yaml:"mode"`
	Domains []string `yaml:"domains"`
	Ports   []int    `yaml:"ports"`
}

// RateLimit configures one token bucket.
type RateLimit struct {
	Category     string  `yaml:"category"`
	Capacity     int     `yaml:"capacity"`
	RefillPerSec float64 `yaml:"refill_per_sec"`
}

// Tools groups the per-capability allowlists.
type Tools struct {
	Commands     []CommandRule `yaml:"commands"`
	Paths        PathRules     `yaml:"paths"`
	EnvAllowlist []string      `yaml:"env_allowlist"`
	Network      Network       `yaml:"network"`
	RateLimits   []RateLimit   `yaml:"rate_limits"`
}

// Policy is the loaded, validated policy document. Immutable after Load.
type Policy struct {
	PolicyID        string `yaml:"policy_id"`
	DefaultDecision string `yaml:"default_decision"`
	Tools           Tools  `yaml:"tools"`
}

// DefaultPolicy returns the built-in deny-everything policy: no commands, no
// network, paths confined to the workspace root.
func DefaultPolicy() *Policy {
	return &Policy{
		PolicyID:        "default",
		DefaultDecision: "deny",
		Tools: Tools{
			Network: Network{Mode: NetworkNone},
		},
	}
}

// Load reads and validates a policy file.
// Empty path or a missing file returns the built-in default policy.
// Invalid YAML or failed validation returns an error.
func Load(path string) (*Policy, error) {
	p, _, err := LoadWithHash(path)
	return p, err
}

// LoadWithHash loads a policy and returns the SHA-256 of the raw file bytes
// as "sha256:<hex>". When the built-in default is used, the hash is the
// SHA-256 of empty input.
func LoadWithHash(path string) (*Policy, string, error) {
	if path == "" {
		h := sha256.Sum256(nil)
		return DefaultPolicy(), "sha256:" + hex.EncodeToString(h[:]), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return DefaultPolicy(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("read policy: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	p, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	return p, hash, nil
}

// validate normalizes defaults and rejects ill-typed fields. The policy
// model is fail-closed: anything it cannot make sense of is an error, never
// a silent allow.
func validate(p *Policy) error {
	if p.PolicyID == "" {
		p.PolicyID = "default"
	}
	if p.DefaultDecision == "" {
		p.DefaultDecision = "deny"
	}
	if p.DefaultDecision != "deny" {
		return fmt.Errorf("unsupported default_decision %q: only \"deny\" is accepted", p.DefaultDecision)
	}

	if p.Tools.Network.Mode == "" {
		p.Tools.Network.Mode = NetworkNone
	}
	switch p.Tools.Network.Mode {
	case NetworkNone, NetworkAllowProxy:
	default:
		return fmt.Errorf("unsupported network.mode %q", p.Tools.Network.Mode)
	}

	for i := range p.Tools.Commands {
		rule := &p.Tools.Commands[i]
		if rule.Binary == "" {
			return fmt.Errorf("tools.commands[%d]: binary is required", i)
		}
		if rule.RuleID == "" {
			rule.RuleID = fmt.Sprintf("cmd_%d", i)
		}
		if rule.ArgRegex != "" {
			re, err := regexp.Compile(rule.ArgRegex)
			if err != nil {
				return fmt.Errorf("tools.commands[%d]: invalid arg_regex: %w", i, err)
			}
			rule.argRe = re
		}
	}

	for i, rl := range p.Tools.RateLimits {
		if rl.Category == "" {
			return fmt.Errorf("tools.rate_limits[%d]: category is required", i)
		}
		if rl.Capacity < 1 {
			return fmt.Errorf("tools.rate_limits[%d]: capacity must be >= 1", i)
		}
		if rl.RefillPerSec <= 0 {
			return fmt.Errorf("tools.rate_limits[%d]: refill_per_sec must be > 0", i)
		}
	}

	return nil
}

// RateLimitFor returns the rate-limit rule for a category, if configured.
func (p *Policy) RateLimitFor(category string) (RateLimit, bool) {
	for _, rl := range p.Tools.RateLimits {
		if rl.Category == category {
			return rl, true
		}
	}
	return RateLimit{}, false
}
