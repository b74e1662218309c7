package grant

import (
	"fmt"
	"strings"
)

// RenderScopeTemplate expands a named template into a grant scope string so
// approval prompts and issued grants stay consistent:
//
//	run-binary:  value "curl"       -> "curl *"
//	run-command: value "git status" -> "git status"
//	tool-prefix: value "deploy", tool "ops.run" -> "ops.run deploy*"
//	http-domain: value "OpenAI.com" -> "http.fetch https://openai.com*"
func RenderScopeTemplate(template, value, tool string) (string, error) {
	switch template {
	case "run-binary":
		return value + " *", nil
	case "run-command":
		return value, nil
	case "tool-prefix":
		return strings.TrimRight(tool+" "+value+"*", " \t"), nil
	case "http-domain":
		domain := strings.ToLower(strings.TrimSpace(value))
		return "http.fetch https://" + domain + "*", nil
	default:
		return "", fmt.Errorf("grant: unknown scope template %q", template)
	}
}
