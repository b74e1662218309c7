package grant

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// FileApproves reports whether the operator approvals file covers the scope
// string. The file holds one scope glob per line, matched exactly like grant
// scopes; blank lines and lines starting with '#' are skipped. A missing
// file approves nothing.
func FileApproves(path, scope string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("grant: read approvals file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if MatchScope(line, scope) {
			return true, nil
		}
	}
	return false, nil
}
