package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/agentsafe/internal/grant"
)

func TestRunApproved(t *testing.T) {
	tmpDir := t.TempDir()

	grants := grant.NewStore(filepath.Join(tmpDir, "grants.jsonl"))
	if _, err := grants.Issue("codex", "run", "git *", time.Hour, "test"); err != nil {
		t.Fatal(err)
	}
	if _, err := grants.Issue("codex", "run", "curl *", time.Hour, "test"); err != nil {
		t.Fatal(err)
	}

	approvalsPath := filepath.Join(tmpDir, ".agentsafe_approvals")
	lines := "# operator overrides\n\nrm -rf /tmp/scratch\napt-get install *\n"
	if err := os.WriteFile(approvalsPath, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		actor       string
		commandLine string
		binary      string
		want        bool
	}{
		{"approvals file exact line", "nobody", "rm -rf /tmp/scratch", "rm", true},
		{"approvals file glob line", "nobody", "apt-get install jq", "apt-get", true},
		{"grant covers command", "codex", "git push origin main", "git", true},
		{"bare binary covered by binary-wide grant", "codex", "curl", "curl", true},
		{"wrong actor", "intern", "git push origin main", "git", false},
		{"no grant no override", "codex", "wget https://example.com", "wget", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runApproved(grants, approvalsPath, tt.actor, tt.commandLine, tt.binary)
			if err != nil {
				t.Fatalf("runApproved: %v", err)
			}
			if got != tt.want {
				t.Errorf("runApproved(%q, %q) = %v, want %v", tt.actor, tt.commandLine, got, tt.want)
			}
		})
	}
}

func TestRunApprovedMissingApprovalsFile(t *testing.T) {
	tmpDir := t.TempDir()
	grants := grant.NewStore(filepath.Join(tmpDir, "grants.jsonl"))

	ok, err := runApproved(grants, filepath.Join(tmpDir, ".agentsafe_approvals"), "codex", "curl -s https://example.com", "curl")
	if err != nil {
		t.Fatalf("missing approvals file should not error: %v", err)
	}
	if ok {
		t.Error("expected false with no grants and no approvals file")
	}
}

func TestEffectiveNetworkMode(t *testing.T) {
	tests := []struct {
		policyMode string
		override   string
		want       string
		wantErr    string
	}{
		{"none", "", "none", ""},
		{"allow_proxy", "", "allow_proxy", ""},
		{"allow_proxy", "none", "none", ""},
		{"allow_proxy", "allow_proxy", "allow_proxy", ""},
		{"none", "allow_proxy", "", "cannot widen"},
		{"none", "bridge", "", "unknown --network-override"},
	}
	for _, tt := range tests {
		got, err := effectiveNetworkMode(tt.policyMode, tt.override)
		if tt.wantErr != "" {
			if err == nil {
				t.Errorf("(%q, %q): expected error", tt.policyMode, tt.override)
			} else if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("(%q, %q): error %q does not mention %q", tt.policyMode, tt.override, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("(%q, %q): unexpected error: %v", tt.policyMode, tt.override, err)
			continue
		}
		if got != tt.want {
			t.Errorf("(%q, %q) = %q, want %q", tt.policyMode, tt.override, got, tt.want)
		}
	}
}

func TestFetchDestination(t *testing.T) {
	ws := t.TempDir()

	tests := []struct {
		name   string
		rawURL string
		output string
		want   string
	}{
		{"url basename", "https://example.com/files/data.csv", "", filepath.Join(ws, "data.csv")},
		{"bare host falls back", "https://example.com/", "", filepath.Join(ws, "download.bin")},
		{"no path falls back", "https://example.com", "", filepath.Join(ws, "download.bin")},
		{"relative output joins workspace", "https://example.com/x", "sub/out.bin", filepath.Join(ws, "sub", "out.bin")},
		{"absolute output kept", "https://example.com/x", "/opt/data/out.bin", "/opt/data/out.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fetchDestination(ws, tt.rawURL, tt.output)
			if err != nil {
				t.Fatalf("fetchDestination: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScopeFrom(t *testing.T) {
	tests := []struct {
		name     string
		scope    string
		template string
		value    string
		tool     string
		want     string
		wantErr  string
	}{
		{"explicit scope wins", "git push *", "", "", "run", "git push *", ""},
		{"run-binary template", "", "run-binary", "git", "run", "git *", ""},
		{"http-domain template", "", "http-domain", "Example.COM", "http.fetch", "http.fetch https://example.com*", ""},
		{"both given", "x", "run-binary", "git", "run", "", "mutually exclusive"},
		{"neither given", "", "", "", "run", "", "required"},
		{"unknown template", "", "run-anything", "x", "run", "", "unknown scope template"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scopeFrom(tt.scope, tt.template, tt.value, tt.tool)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("scopeFrom: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitRoutes(t *testing.T) {
	got := splitRoutes(` ^/v1/tools/execute$ , ^/api/tools/.+ ,`)
	want := []string{`^/v1/tools/execute$`, `^/api/tools/.+`}
	if len(got) != len(want) {
		t.Fatalf("got %d routes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("route %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if routes := splitRoutes(""); routes != nil {
		t.Errorf("empty csv: got %v, want nil", routes)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("short string changed: %q", got)
	}
	got := truncate("0123456789abcdef", 10)
	if got != "0123456..." {
		t.Errorf("got %q", got)
	}
	if len(got) != 10 {
		t.Errorf("truncated length = %d, want 10", len(got))
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "c"); got != "c" {
		t.Errorf("got %q, want %q", got, "c")
	}
	if got := firstNonEmpty("a", "b"); got != "a" {
		t.Errorf("got %q, want %q", got, "a")
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
