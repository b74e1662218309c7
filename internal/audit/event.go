package audit

import "github.com/google/uuid"

// Decision outcomes recorded in the ledger.
const (
	DecisionAllow = "ALLOW"
	DecisionBlock = "BLOCK"
)

// Event is one ledger record: a single enforcement decision together with
// the context needed to reconstruct what the agent attempted. Records are
// appended once and never rewritten.
type Event struct {
	Timestamp       string           `json:"timestamp"`
	RequestID       string           `json:"request_id"`
	Actor           string           `json:"actor,omitempty"`
	Tool            string           `json:"tool,omitempty"`
	ArgsSummary     string           `json:"args_summary,omitempty"`
	Decision        string           `json:"decision"`
	Reason          string           `json:"reason,omitempty"`
	RuleID          string           `json:"rule_id,omitempty"`
	Sandbox         *SandboxDetail   `json:"sandbox,omitempty"`
	NetworkAttempts []NetworkAttempt `json:"network_attempts,omitempty"`
	FilesTouched    []string         `json:"files_touched,omitempty"`
	Proxy           *ProxyDetail     `json:"proxy,omitempty"`
	StdoutPreview   string           `json:"stdout_preview,omitempty"`
	StderrPreview   string           `json:"stderr_preview,omitempty"`
}

// SandboxDetail records where an inline command actually ran.
type SandboxDetail struct {
	ContainerID    string `json:"container_id,omitempty"`
	WorkspaceMount string `json:"workspace_mount,omitempty"`
	NetworkMode    string `json:"network_mode,omitempty"`
}

// NetworkAttempt is one observed or attempted egress from a gated call.
type NetworkAttempt struct {
	URL        string `json:"url,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// ProxyDetail is attached to events recorded at the proxy boundary. It pins
// the gateway route and upstream so a ledger line is interpretable without
// the proxy's runtime config.
type ProxyDetail struct {
	Route         string         `json:"route,omitempty"`
	Tool          string         `json:"tool,omitempty"`
	Args          map[string]any `json:"args,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Upstream      string         `json:"upstream,omitempty"`
	PolicyBackend string         `json:"policy_backend,omitempty"`
	Adapter       string         `json:"adapter,omitempty"`
}

// NewRequestID returns a fresh UUIDv4 used to correlate one tool call
// across evaluation, the ledger, and upstream forwarding.
func NewRequestID() string {
	return uuid.NewString()
}
