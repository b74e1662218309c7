package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/policy"
)

const backendPolicy = `
policy_id: backend-test
default_decision: deny
tools:
  commands:
    - binary: ls
  paths:
    allow: ["."]
    deny: []
  env_allowlist: [PATH, HOME]
  network:
    mode: allow_proxy
    domains: [github.com]
    ports: [443]
`

func localBackend(t *testing.T) *Local {
	t.Helper()
	p, err := policy.Parse([]byte(backendPolicy))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return NewLocal(p)
}

func TestLocalBackend(t *testing.T) {
	b := localBackend(t)
	ws := t.TempDir()

	if d := b.EvaluateRun([]string{"ls"}, ws); !d.Allowed {
		t.Errorf("EvaluateRun(ls) = %+v, want allow", d)
	}
	if d := b.EvaluateRun([]string{"rm", "-rf"}, ws); d.Allowed {
		t.Errorf("EvaluateRun(rm) = %+v, want block", d)
	}
	if d := b.EvaluatePath("/etc/passwd", ws); d.Allowed || d.RuleID != model.RulePathDeny {
		t.Errorf("EvaluatePath(/etc/passwd) = %+v, want path_deny", d)
	}
	if d := b.EvaluateFetch("https://github.com/cli/cli"); !d.Allowed {
		t.Errorf("EvaluateFetch(github) = %+v, want allow", d)
	}
	if mode := b.NetworkMode(); mode != policy.NetworkAllowProxy {
		t.Errorf("NetworkMode = %q, want allow_proxy", mode)
	}

	env := b.EnvAllowlist()
	if len(env) != 2 || env[0] != "PATH" {
		t.Errorf("EnvAllowlist = %v, want [PATH HOME]", env)
	}
	env[0] = "MUTATED"
	if b.EnvAllowlist()[0] != "PATH" {
		t.Error("EnvAllowlist returns a shared slice")
	}
}

func TestLocalFromMissingPath(t *testing.T) {
	b, err := LocalFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LocalFromPath: %v", err)
	}
	if d := b.EvaluateRun([]string{"ls"}, t.TempDir()); d.Allowed {
		t.Errorf("default policy allowed %+v, want deny-everything", d)
	}
}

func TestRemoteUnconfigured(t *testing.T) {
	r := NewRemote("", "")
	d := r.EvaluateRun([]string{"ls"}, "/ws")
	if d.Allowed || d.RuleID != model.RuleRemoteNoConfig {
		t.Errorf("decision = %+v, want block remote_not_configured", d)
	}
}

func TestRemoteQueryShape(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		raw, _ := io.ReadAll(req.Body)
		json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{"result": true}`))
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "agentsafe/decision")
	r.SetPolicyID("backend-test")

	d := r.EvaluateRun([]string{"curl", "https://x"}, "/ws")
	if !d.Allowed || d.RuleID != model.RuleRemoteBoolean {
		t.Fatalf("decision = %+v, want allow remote_boolean", d)
	}
	if gotPath != "/v1/data/agentsafe/decision" {
		t.Errorf("query path = %q, want /v1/data/agentsafe/decision", gotPath)
	}

	input, _ := gotBody["input"].(map[string]any)
	if input == nil {
		t.Fatalf("request body missing input: %v", gotBody)
	}
	if input["policy"] != "backend-test" {
		t.Errorf("input.policy = %v, want backend-test", input["policy"])
	}
	action, _ := input["action"].(map[string]any)
	if action["type"] != "run" || action["workspace_root"] != "/ws" {
		t.Errorf("input.action = %v, want run action with workspace root", action)
	}
}

func TestRemoteResults(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		status     int
		wantAllow  bool
		wantRuleID string
	}{
		{"boolean allow", `{"result": true}`, 200, true, model.RuleRemoteBoolean},
		{"boolean deny", `{"result": false}`, 200, false, model.RuleRemoteBoolean},
		{"object allow", `{"result": {"allow": true, "reason": "ok", "rule_id": "custom_rule"}}`, 200, true, "custom_rule"},
		{"object deny", `{"result": {"allow": false, "reason": "nope", "rule_id": "custom_block"}}`, 200, false, "custom_block"},
		{"object without rule id", `{"result": {"allow": false}}`, 200, false, model.RuleRemoteBadResult},
		{"missing result", `{}`, 200, false, model.RuleRemoteBadResult},
		{"result wrong shape", `{"result": "yes"}`, 200, false, model.RuleRemoteBadResult},
		{"not json", `<html>`, 200, false, model.RuleRemoteBadResult},
		{"server error", `boom`, 500, false, model.RuleRemoteFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r := NewRemote(srv.URL, "")
			d := r.EvaluateFetch("https://example.com")
			if d.Allowed != tt.wantAllow {
				t.Errorf("allowed = %v, want %v (%+v)", d.Allowed, tt.wantAllow, d)
			}
			if d.RuleID != tt.wantRuleID {
				t.Errorf("rule_id = %q, want %q", d.RuleID, tt.wantRuleID)
			}
		})
	}
}

func TestRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))
	url := srv.URL
	srv.Close()

	r := NewRemote(url, "")
	d := r.EvaluatePath("/etc/passwd", "/ws")
	if d.Allowed || d.RuleID != model.RuleRemoteFailed {
		t.Errorf("decision = %+v, want block remote_query_failed", d)
	}
}

func TestLoadBackend(t *testing.T) {
	dir := t.TempDir()

	b, err := Load("yaml", filepath.Join(dir, "absent.yaml"), "", "")
	if err != nil {
		t.Fatalf("Load(yaml): %v", err)
	}
	if _, ok := b.(*Local); !ok {
		t.Errorf("Load(yaml) = %T, want *Local", b)
	}

	b, err = Load("opa", filepath.Join(dir, "absent.yaml"), "http://localhost:8181", "agentsafe/decision")
	if err != nil {
		t.Fatalf("Load(opa): %v", err)
	}
	if _, ok := b.(*Remote); !ok {
		t.Errorf("Load(opa) = %T, want *Remote", b)
	}

	if _, err := Load("etcd", "", "", ""); err == nil {
		t.Error("Load(etcd) succeeded, want unsupported-backend error")
	}
}
