package grant

import (
	"path/filepath"
	"testing"
	"time"
)

func tempStores(t *testing.T) (*Store, *RequestStore) {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "grants.jsonl")),
		NewRequestStore(filepath.Join(dir, "approval_requests.jsonl"))
}

func TestRequestApproveFlow(t *testing.T) {
	grants, reqs := tempStores(t)

	req, err := reqs.Create("openclaw-agent", "run", "curl https://openai.com", "need external docs", 5*time.Minute)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if req.Status != StatusPending {
		t.Fatalf("new request status = %q, want pending", req.Status)
	}

	pending, err := reqs.List(StatusPending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, item := range pending {
		if item.RequestID == req.RequestID {
			found = true
		}
	}
	if !found {
		t.Fatal("created request missing from pending list")
	}

	g, err := reqs.Approve(req.RequestID, "secops", 10*time.Minute, "approved for demo", grants)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if g.Actor != "openclaw-agent" || g.Scope != "curl https://openai.com" {
		t.Errorf("grant actor/scope = %q/%q, want request values", g.Actor, g.Scope)
	}

	ok, err := grants.IsAllowed("openclaw-agent", "run", "curl https://openai.com")
	if err != nil {
		t.Fatalf("IsAllowed: %v", err)
	}
	if !ok {
		t.Error("approved request did not yield a working grant")
	}

	got, err := reqs.Get(req.RequestID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusApproved || got.Reviewer != "secops" || got.GrantID != g.GrantID {
		t.Errorf("materialized request = %+v, want approved by secops with grant %s", got, g.GrantID)
	}
}

func TestRequestRejectFlow(t *testing.T) {
	_, reqs := tempStores(t)

	req, err := reqs.Create("openclaw-agent", "run", "apt-get *", "install package", 5*time.Minute)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reqs.Reject(req.RequestID, "secops", "not allowed"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	rejected, err := reqs.List(StatusRejected)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rejected) != 1 || rejected[0].RequestID != req.RequestID {
		t.Fatalf("rejected list = %+v, want the rejected request", rejected)
	}
	if rejected[0].ReviewNote != "not allowed" {
		t.Errorf("review note = %q, want %q", rejected[0].ReviewNote, "not allowed")
	}
}

func TestApproveUnknownRequest(t *testing.T) {
	grants, reqs := tempStores(t)
	if _, err := reqs.Approve("no-such-request", "secops", time.Minute, "", grants); err == nil {
		t.Fatal("approving unknown request succeeded, want error")
	}
}

func TestApproveTwice(t *testing.T) {
	grants, reqs := tempStores(t)
	req, err := reqs.Create("a", "run", "ls *", "", 5*time.Minute)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := reqs.Approve(req.RequestID, "secops", time.Minute, "", grants); err != nil {
		t.Fatalf("first Approve: %v", err)
	}
	if _, err := reqs.Approve(req.RequestID, "secops", time.Minute, "", grants); err == nil {
		t.Fatal("second approve succeeded, want not-pending error")
	}
}

func TestRejectNonPending(t *testing.T) {
	grants, reqs := tempStores(t)
	req, err := reqs.Create("a", "run", "ls *", "", 5*time.Minute)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := reqs.Approve(req.RequestID, "secops", time.Minute, "", grants); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := reqs.Reject(req.RequestID, "secops", "too late"); err == nil {
		t.Fatal("rejecting an approved request succeeded, want error")
	}
}

func TestApproveExpiredRequest(t *testing.T) {
	grants, reqs := tempStores(t)
	start := time.Now()
	reqs.now = func() time.Time { return start }

	req, err := reqs.Create("a", "run", "ls *", "", time.Minute)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	reqs.now = func() time.Time { return start.Add(2 * time.Minute) }
	if _, err := reqs.Approve(req.RequestID, "secops", time.Minute, "", grants); err == nil {
		t.Fatal("approving an expired request succeeded, want error")
	}

	list, err := reqs.List(StatusExpired)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].RequestID != req.RequestID {
		t.Errorf("expired list = %+v, want the stale request", list)
	}
}

func TestListNewestFirst(t *testing.T) {
	_, reqs := tempStores(t)
	base := time.Now()

	for i := 0; i < 3; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		reqs.now = func() time.Time { return tick }
		if _, err := reqs.Create("a", "run", "ls *", "", 5*time.Minute); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	reqs.now = func() time.Time { return base }
	all, err := reqs.List("all")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d requests, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].CreatedAt < all[i].CreatedAt {
			t.Errorf("list not newest first: %q before %q", all[i-1].CreatedAt, all[i].CreatedAt)
		}
	}
}

func TestRenderScopeTemplate(t *testing.T) {
	tests := []struct {
		template, value, tool string
		want                  string
	}{
		{"run-binary", "curl", "run", "curl *"},
		{"run-command", "curl https://openai.com", "run", "curl https://openai.com"},
		{"tool-prefix", "curl", "shell.run", "shell.run curl*"},
		{"http-domain", "OpenAI.com", "fetch", "http.fetch https://openai.com*"},
		{"http-domain", "  GitHub.COM  ", "fetch", "http.fetch https://github.com*"},
	}
	for _, tt := range tests {
		got, err := RenderScopeTemplate(tt.template, tt.value, tt.tool)
		if err != nil {
			t.Errorf("RenderScopeTemplate(%q, %q, %q): %v", tt.template, tt.value, tt.tool, err)
			continue
		}
		if got != tt.want {
			t.Errorf("RenderScopeTemplate(%q, %q, %q) = %q, want %q", tt.template, tt.value, tt.tool, got, tt.want)
		}
	}

	if _, err := RenderScopeTemplate("nonsense", "x", "run"); err == nil {
		t.Error("unknown template rendered without error")
	}
}
