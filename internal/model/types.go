package model

import "encoding/json"

// Rule identifiers carried by Decision values. Every BLOCK names one of
// these; ALLOW decisions name the matching allow rule.
const (
	RuleCmdEmpty          = "cmd_empty"
	RuleCmdNotAllowlisted = "cmd_not_allowlisted"

	RulePathDeny             = "path_deny"
	RulePathAllow            = "path_allow"
	RulePathOutsideAllowlist = "path_outside_allowlist"

	RuleNetBadScheme    = "net_bad_scheme"
	RuleNetNoHost       = "net_no_host"
	RuleNetDisabled     = "net_disabled"
	RuleNetDomainAllow  = "net_domain_allow"
	RuleNetDomainBlock  = "net_domain_block"
	RuleNetPortBlock    = "net_port_block"
	RuleFetchHTTPError  = "fetch_http_error"
	RuleRateDefault     = "rate_default_allow"
	RuleRateAllow       = "rate_allow"
	RuleRateLimitBlock  = "rate_limit_block"
	RuleApprovalNeeded  = "approval_required"
	RuleProxyEmptyCmd   = "proxy_empty_cmd"
	RuleProxyToolBlock  = "proxy_tool_block"
	RuleProxyApproval   = "proxy_approval_required"
	RuleRemoteNoConfig  = "remote_not_configured"
	RuleRemoteBadResult = "remote_bad_result"
	RuleRemoteBoolean   = "remote_boolean"
	RuleRemoteFailed    = "remote_query_failed"
)

// Decision is the outcome of a single policy check. It is a plain value:
// a BLOCK is an ordinary decision, never an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	RuleID  string `json:"rule_id"`
}

// Allow builds an allowing decision.
func Allow(reason, ruleID string) Decision {
	return Decision{Allowed: true, Reason: reason, RuleID: ruleID}
}

// Block builds a blocking decision.
func Block(reason, ruleID string) Decision {
	return Decision{Allowed: false, Reason: reason, RuleID: ruleID}
}

// ToolAction is the canonical form of an intercepted tool call, produced by
// the request adapters and consumed by the proxy pipeline.
type ToolAction struct {
	RequestID  string          `json:"request_id"`
	Actor      string          `json:"actor"`
	SessionID  string          `json:"session_id,omitempty"`
	Tool       string          `json:"tool"`
	Args       map[string]any  `json:"args"`
	Route      string          `json:"route"`
	Context    map[string]any  `json:"context,omitempty"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// IsShellTool reports whether the (already lowercased) tool name names a
// shell execution capability.
func IsShellTool(tool string) bool {
	switch tool {
	case "shell.run", "run", "command":
		return true
	}
	return false
}

// IsFetchTool reports whether the (already lowercased) tool name names an
// HTTP fetch capability.
func IsFetchTool(tool string) bool {
	switch tool {
	case "http.fetch", "fetch", "browser.fetch":
		return true
	}
	return false
}

// IsPrivilegedBinary reports whether a shell binary is privileged: privileged
// invocations pass policy but still need a held grant (or operator approval)
// before they run.
func IsPrivilegedBinary(binary string) bool {
	switch binary {
	case "curl", "wget", "apt", "apt-get":
		return true
	}
	return false
}
