package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/agentsafe/internal/model"
)

// remoteTimeout bounds one decision query.
const remoteTimeout = 8 * time.Second

// DefaultDecisionPath is queried when no decision path is configured.
const DefaultDecisionPath = "agentsafe/decision"

// Remote queries an OPA-style decision service over its REST data API. It
// fails closed: any transport or shape problem is a BLOCK, never an allow.
type Remote struct {
	baseURL      string
	decisionPath string
	policyID     string
	client       *http.Client
}

// NewRemote builds a remote backend against baseURL. The decision document
// lives under /v1/data/<decisionPath>.
func NewRemote(baseURL, decisionPath string) *Remote {
	if decisionPath == "" {
		decisionPath = DefaultDecisionPath
	}
	return &Remote{
		baseURL:      strings.TrimRight(baseURL, "/"),
		decisionPath: strings.Trim(decisionPath, "/"),
		client:       &http.Client{Timeout: remoteTimeout},
	}
}

// SetPolicyID names the policy the service should decide under; it rides
// along as input.policy on every query.
func (r *Remote) SetPolicyID(id string) {
	r.policyID = id
}

// remoteResult is the service response: result is either a bare boolean or
// a {allow, reason, rule_id} object.
type remoteResult struct {
	Result json.RawMessage `json:"result"`
}

type remoteDecision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
	RuleID string `json:"rule_id"`
}

func (r *Remote) query(action map[string]any) model.Decision {
	if r.baseURL == "" {
		return model.Block("remote decision service is not configured", model.RuleRemoteNoConfig)
	}

	body, err := json.Marshal(map[string]any{
		"input": map[string]any{
			"action": action,
			"policy": r.policyID,
		},
	})
	if err != nil {
		return model.Block(fmt.Sprintf("encode decision query: %v", err), model.RuleRemoteFailed)
	}

	url := r.baseURL + "/v1/data/" + r.decisionPath
	resp, err := r.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return model.Block(fmt.Sprintf("remote decision query failed: %v", err), model.RuleRemoteFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Block(fmt.Sprintf("remote decision query failed: status %d", resp.StatusCode), model.RuleRemoteFailed)
	}

	var out remoteResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Block(fmt.Sprintf("decode remote decision: %v", err), model.RuleRemoteBadResult)
	}
	if len(out.Result) == 0 {
		return model.Block("remote decision service returned no result", model.RuleRemoteBadResult)
	}

	var allow bool
	if err := json.Unmarshal(out.Result, &allow); err == nil {
		reason := "boolean decision"
		if allow {
			return model.Allow(reason, model.RuleRemoteBoolean)
		}
		return model.Block(reason, model.RuleRemoteBoolean)
	}

	var dec remoteDecision
	if err := json.Unmarshal(out.Result, &dec); err != nil {
		return model.Block("remote decision result has an unexpected shape", model.RuleRemoteBadResult)
	}
	if dec.RuleID == "" {
		dec.RuleID = model.RuleRemoteBadResult
	}
	if dec.Allow {
		return model.Allow(dec.Reason, dec.RuleID)
	}
	return model.Block(dec.Reason, dec.RuleID)
}

func (r *Remote) EvaluateRun(cmd []string, workspaceRoot string) model.Decision {
	return r.query(map[string]any{
		"type":           "run",
		"cmd":            cmd,
		"workspace_root": workspaceRoot,
	})
}

func (r *Remote) EvaluatePath(candidate, workspaceRoot string) model.Decision {
	return r.query(map[string]any{
		"type":           "path",
		"candidate":      candidate,
		"workspace_root": workspaceRoot,
	})
}

func (r *Remote) EvaluateFetch(rawURL string) model.Decision {
	return r.query(map[string]any{
		"type": "fetch",
		"url":  rawURL,
	})
}

// EnvAllowlist is empty for remote backends: environment passthrough is a
// local sandbox concern and the decision service does not hold the list.
func (r *Remote) EnvAllowlist() []string {
	return nil
}

// NetworkMode is "none" for remote backends; fetch decisions still go to
// the service per URL.
func (r *Remote) NetworkMode() string {
	return "none"
}
