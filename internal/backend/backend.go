// Package backend abstracts the decision source behind one fixed contract,
// so the inline CLI and the proxies evaluate tool calls the same way
// whether the policy lives in a local YAML file or a remote decision
// service.
package backend

import (
	"fmt"

	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/policy"
)

// Backend is the decision contract. Implementations are total: they never
// fail for decision inputs, they return BLOCK with a rule id.
type Backend interface {
	EvaluateRun(cmd []string, workspaceRoot string) model.Decision
	EvaluatePath(candidate, workspaceRoot string) model.Decision
	EvaluateFetch(rawURL string) model.Decision
	EnvAllowlist() []string
	NetworkMode() string
}

// Load resolves a backend by name: "yaml" (or "local") evaluates the policy
// file locally, "opa" (or "remote") queries a remote decision service
// configured by opaURL and decisionPath.
func Load(name, policyPath, opaURL, decisionPath string) (Backend, error) {
	switch name {
	case "", "yaml", "local":
		return LocalFromPath(policyPath)
	case "opa", "remote":
		p, err := policy.Load(policyPath)
		if err != nil {
			return nil, err
		}
		r := NewRemote(opaURL, decisionPath)
		r.SetPolicyID(p.PolicyID)
		return r, nil
	}
	return nil, fmt.Errorf("backend: unsupported policy backend %q", name)
}
