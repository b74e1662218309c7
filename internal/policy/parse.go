package policy

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes and validates policy YAML. Unknown top-level keys are
// tolerated (forward compatibility for sidecar metadata); unknown keys nested
// under tools are an error, because a typo there silently widens or narrows
// an allowlist.
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if err := checkToolKeys(raw); err != nil {
		return nil, err
	}

	if err := validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func checkToolKeys(raw map[string]any) error {
	tools, ok := raw["tools"].(map[string]any)
	if !ok {
		return nil
	}
	if err := knownKeys("tools", tools, "commands", "paths", "env_allowlist", "network", "rate_limits"); err != nil {
		return err
	}

	if paths, ok := tools["paths"].(map[string]any); ok {
		if err := knownKeys("tools.paths", paths, "allow", "deny"); err != nil {
			return err
		}
	}
	if network, ok := tools["network"].(map[string]any); ok {
		if err := knownKeys("tools.network", network, "mode", "domains", "ports"); err != nil {
			return err
		}
	}
	if commands, ok := tools["commands"].([]any); ok {
		for i, c := range commands {
			entry, ok := c.(map[string]any)
			if !ok {
				continue
			}
			where := fmt.Sprintf("tools.commands[%d]", i)
			if err := knownKeys(where, entry, "binary", "arg_regex", "rule_id"); err != nil {
				return err
			}
		}
	}
	if limits, ok := tools["rate_limits"].([]any); ok {
		for i, l := range limits {
			entry, ok := l.(map[string]any)
			if !ok {
				continue
			}
			where := fmt.Sprintf("tools.rate_limits[%d]", i)
			if err := knownKeys(where, entry, "category", "capacity", "refill_per_sec"); err != nil {
				return err
			}
		}
	}
	return nil
}

func knownKeys(where string, m map[string]any, allowed ...string) error {
	var unknown []string
	for k := range m {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%s: unknown key(s): %s", where, strings.Join(unknown, ", "))
}
