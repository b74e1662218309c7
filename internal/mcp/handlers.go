package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/policy"
	"github.com/ppiankov/agentsafe/internal/shellwords"
)

// CheckCommandInput defines parameters for agentsafe_check_command.
type CheckCommandInput struct {
	Command string `json:"command" jsonschema:"full command line to check"`
}

// CheckURLInput defines parameters for agentsafe_check_url.
type CheckURLInput struct {
	URL string `json:"url" jsonschema:"URL the agent wants to fetch"`
}

// CheckOutput carries the policy decision back to the agent runtime.
type CheckOutput struct {
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason"`
	RuleID     string `json:"rule_id"`
	NeedsGrant bool   `json:"needs_grant,omitempty"`
}

// GrantCheckInput defines parameters for agentsafe_grant_check.
type GrantCheckInput struct {
	Actor string `json:"actor" jsonschema:"acting agent identity"`
	Tool  string `json:"tool" jsonschema:"tool name the grant must cover"`
	Scope string `json:"scope" jsonschema:"concrete scope string, e.g. 'shell.run curl https://example.com'"`
}

// GrantCheckOutput reports whether a covering grant is currently held.
type GrantCheckOutput struct {
	Granted bool `json:"granted"`
}

func (s *Server) handleCheckCommand(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckCommandInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	cmd, err := shellwords.Split(input.Command)
	if err != nil {
		out := CheckOutput{
			Reason: fmt.Sprintf("unparseable command: %v", err),
			RuleID: model.RuleCmdNotAllowlisted,
		}
		return nil, out, nil
	}

	decision := s.backend.EvaluateRun(cmd, s.workspace)
	if decision.Allowed {
		for _, arg := range policy.FileArgs(cmd) {
			if pd := s.backend.EvaluatePath(arg, s.workspace); !pd.Allowed {
				decision = pd
				break
			}
		}
	}

	out := CheckOutput{Allowed: decision.Allowed, Reason: decision.Reason, RuleID: decision.RuleID}
	if decision.Allowed && len(cmd) > 0 && model.IsPrivilegedBinary(cmd[0]) {
		out.NeedsGrant = true
	}
	return nil, out, nil
}

func (s *Server) handleCheckURL(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckURLInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	decision := s.backend.EvaluateFetch(input.URL)
	out := CheckOutput{
		Allowed:    decision.Allowed,
		Reason:     decision.Reason,
		RuleID:     decision.RuleID,
		NeedsGrant: decision.Allowed,
	}
	return nil, out, nil
}

func (s *Server) handleGrantCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input GrantCheckInput) (*mcpsdk.CallToolResult, GrantCheckOutput, error) {
	ok, err := s.grants.IsAllowed(input.Actor, input.Tool, input.Scope)
	if err != nil {
		return nil, GrantCheckOutput{}, fmt.Errorf("mcp: read grants: %w", err)
	}
	return nil, GrantCheckOutput{Granted: ok}, nil
}
