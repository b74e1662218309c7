// Package profile ships starter policies for agentsafe init. Each profile
// is a complete, valid policy file meant to be edited, not a template with
// holes.
package profile

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed profiles/minimal.yaml
var minimalYAML []byte

//go:embed profiles/standard.yaml
var standardYAML []byte

//go:embed profiles/hardened.yaml
var hardenedYAML []byte

// builtinProfiles maps profile names to their embedded YAML content.
var builtinProfiles = map[string][]byte{
	"minimal":  minimalYAML,
	"standard": standardYAML,
	"hardened": hardenedYAML,
}

// DefaultName is the profile init uses when none is given.
const DefaultName = "standard"

// Names returns the sorted built-in profile names.
func Names() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Data returns the starter policy YAML for a built-in profile.
func Data(name string) ([]byte, error) {
	data, ok := builtinProfiles[name]
	if !ok {
		return nil, fmt.Errorf("profile: unknown profile %q (have %v)", name, Names())
	}
	return data, nil
}

// Write materializes a profile at path, creating parent directories.
// An existing file is preserved unless force is set.
func Write(name, path string, force bool) error {
	data, err := Data(name)
	if err != nil {
		return err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("profile: %s already exists (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("profile: create policy dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("profile: write %s: %w", path, err)
	}
	return nil
}
