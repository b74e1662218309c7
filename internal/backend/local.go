package backend

import (
	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/policy"
)

// Local evaluates decisions against a loaded policy.
type Local struct {
	policy *policy.Policy
	hash   string
}

// NewLocal wraps an already loaded policy.
func NewLocal(p *policy.Policy) *Local {
	return &Local{policy: p}
}

// LocalFromPath loads the policy file and wraps it. A missing file loads
// the built-in deny-everything defaults.
func LocalFromPath(path string) (*Local, error) {
	p, hash, err := policy.LoadWithHash(path)
	if err != nil {
		return nil, err
	}
	return &Local{policy: p, hash: hash}, nil
}

func (l *Local) EvaluateRun(cmd []string, workspaceRoot string) model.Decision {
	return policy.EvaluateCommand(l.policy, cmd, workspaceRoot)
}

func (l *Local) EvaluatePath(candidate, workspaceRoot string) model.Decision {
	return policy.EvaluatePath(l.policy, candidate, workspaceRoot)
}

func (l *Local) EvaluateFetch(rawURL string) model.Decision {
	return policy.EvaluateURL(l.policy, rawURL)
}

func (l *Local) EnvAllowlist() []string {
	return append([]string(nil), l.policy.Tools.EnvAllowlist...)
}

func (l *Local) NetworkMode() string {
	return l.policy.Tools.Network.Mode
}

// Policy exposes the backing policy for callers that need more than
// decisions, such as the rate limiter and hot reload.
func (l *Local) Policy() *policy.Policy {
	return l.policy
}

// PolicyHash is the sha256 of the policy file this backend was loaded from,
// or empty when the policy did not come from a file.
func (l *Local) PolicyHash() string {
	return l.hash
}
