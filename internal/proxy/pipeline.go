package proxy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/agentsafe/internal/backend"
	"github.com/ppiankov/agentsafe/internal/grant"
	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/policy"
	"github.com/ppiankov/agentsafe/internal/shellwords"
)

// Evaluation is the proxy verdict for one tool action.
type Evaluation struct {
	Decision model.Decision
	Action   model.ToolAction
}

// commandFromArgs extracts the command vector from a shell action's args,
// preferring "command" and falling back to "cmd". A list is taken as-is with
// elements stringified; a string is split by shell quoting rules. Absent
// command means an empty vector, which the pipeline blocks.
func commandFromArgs(args map[string]any) ([]string, error) {
	raw := args["command"]
	if emptyCommandValue(raw) {
		raw = args["cmd"]
	}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		cmd := make([]string, len(v))
		for i, part := range v {
			cmd[i] = fmt.Sprintf("%v", part)
		}
		return cmd, nil
	case []string:
		return v, nil
	case string:
		cmd, err := shellwords.Split(v)
		if err != nil {
			return nil, fmt.Errorf("proxy: unparseable command %q: %w", v, err)
		}
		return cmd, nil
	default:
		return shellwords.Split(fmt.Sprintf("%v", v))
	}
}

func emptyCommandValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

// urlFromArgs stringifies the url argument; a missing url reads as empty and
// fails evaluation as a bad scheme.
func urlFromArgs(args map[string]any) string {
	v, ok := args["url"]
	if !ok || v == nil {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// ScopeForAction renders the grant scope string a privileged action must
// hold. Shell actions scope to the quoted command line, fetches to the URL,
// anything else to the canonical JSON of its args. Grants are written with
// the same rendering, so the two sides always compare like for like.
func ScopeForAction(a model.ToolAction) string {
	lowered := strings.ToLower(a.Tool)
	if model.IsShellTool(lowered) {
		cmd, err := commandFromArgs(a.Args)
		if err != nil {
			cmd = nil
		}
		return strings.TrimSpace(a.Tool + " " + shellwords.Join(cmd))
	}
	if model.IsFetchTool(lowered) {
		return strings.TrimSpace(a.Tool + " " + urlFromArgs(a.Args))
	}
	argsJSON, err := json.Marshal(a.Args)
	if err != nil {
		argsJSON = []byte("{}")
	}
	return a.Tool + " " + string(argsJSON)
}

// isPrivileged reports whether an action needs a grant on top of a policy
// ALLOW. Fetches always do; shell actions do when the binary can exfiltrate
// or mutate the system.
func isPrivileged(a model.ToolAction, cmd []string) bool {
	lowered := strings.ToLower(a.Tool)
	if model.IsShellTool(lowered) {
		first := ""
		if len(cmd) > 0 {
			first = cmd[0]
		}
		return model.IsPrivilegedBinary(first)
	}
	return model.IsFetchTool(lowered)
}

// evaluateAction runs the policy stage of the pipeline: classify the tool,
// evaluate the command or URL, and check any path-shaped arguments. The
// returned error marks a structurally bad payload, not a policy block.
func evaluateAction(b backend.Backend, a model.ToolAction, workspaceRoot string) (model.Decision, error) {
	lowered := strings.ToLower(a.Tool)

	if model.IsShellTool(lowered) {
		cmd, err := commandFromArgs(a.Args)
		if err != nil {
			return model.Decision{}, err
		}
		if len(cmd) == 0 {
			return model.Block("empty command", model.RuleProxyEmptyCmd), nil
		}

		decision := b.EvaluateRun(cmd, workspaceRoot)
		if !decision.Allowed {
			return decision, nil
		}

		for _, arg := range policy.FileArgs(cmd) {
			if pd := b.EvaluatePath(arg, workspaceRoot); !pd.Allowed {
				return pd, nil
			}
		}
		return decision, nil
	}

	if model.IsFetchTool(lowered) {
		return b.EvaluateFetch(urlFromArgs(a.Args)), nil
	}

	return model.Block(
		fmt.Sprintf("tool not allowlisted at proxy boundary: %s", a.Tool),
		model.RuleProxyToolBlock,
	), nil
}

// decide runs the full pipeline for a parsed action: policy evaluation, then
// the privileged-action gate against the grant store.
func decide(b backend.Backend, grants *grant.Store, a model.ToolAction, workspaceRoot string) (Evaluation, error) {
	decision, err := evaluateAction(b, a, workspaceRoot)
	if err != nil {
		return Evaluation{}, err
	}

	if decision.Allowed {
		cmd, _ := commandFromArgs(a.Args)
		if isPrivileged(a, cmd) {
			ok, err := grants.IsAllowed(a.Actor, a.Tool, ScopeForAction(a))
			switch {
			case err != nil:
				// Unreadable grants never authorize. The reason lands in
				// the ledger so the failure is visible.
				decision = model.Block(fmt.Sprintf("grant check failed: %v", err), model.RuleProxyApproval)
			case !ok:
				decision = model.Block("proxy approval grant required", model.RuleProxyApproval)
			}
		}
	}

	return Evaluation{Decision: decision, Action: a}, nil
}
