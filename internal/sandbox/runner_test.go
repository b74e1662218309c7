package sandbox

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func userArg() string {
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}

func TestDockerArgsBaseline(t *testing.T) {
	r := &Runner{}
	got := r.dockerArgs([]string{"ls", "-la"}, "/work/project", "none", nil)

	want := []string{
		"run", "--rm", "-i", "--read-only",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=64m",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--add-host", "host.docker.internal:host-gateway",
		"--user", userArg(),
		"-v", "/work/project:/workspace:rw",
		"-w", "/workspace",
		"--network", "none",
		"agentsafe-sandbox:latest",
		"ls", "-la",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dockerArgs = %q, want %q", got, want)
	}
}

func TestDockerArgsLimitsAndEnv(t *testing.T) {
	r := &Runner{Image: "alpine:3.20", CPULimit: "0.5", MemLimit: "256m"}
	env := map[string]string{
		"HTTPS_PROXY": "http://host.docker.internal:8080",
		"HOME":        "/workspace",
		"HTTP_PROXY":  "http://host.docker.internal:8080",
	}
	got := r.dockerArgs([]string{"curl", "https://github.com"}, "/w", "bridge", env)

	joined := strings.Join(got, " ")
	for _, snippet := range []string{
		"--network bridge",
		"--cpus 0.5",
		"--memory 256m",
		"-e HOME=/workspace -e HTTP_PROXY=http://host.docker.internal:8080 -e HTTPS_PROXY=http://host.docker.internal:8080",
	} {
		if !strings.Contains(joined, snippet) {
			t.Errorf("dockerArgs missing %q in %q", snippet, joined)
		}
	}
	if got[len(got)-3] != "alpine:3.20" {
		t.Errorf("image = %q, want alpine:3.20 before the command", got[len(got)-3])
	}
	if got[len(got)-2] != "curl" || got[len(got)-1] != "https://github.com" {
		t.Errorf("command tail = %q", got[len(got)-2:])
	}
}

func TestRunnerDefaults(t *testing.T) {
	r := &Runner{}
	if r.image() != DefaultImage {
		t.Errorf("image() = %q, want %q", r.image(), DefaultImage)
	}
	if r.timeout() != DefaultTimeout {
		t.Errorf("timeout() = %v, want %v", r.timeout(), DefaultTimeout)
	}
	r = &Runner{Image: "x", Timeout: 5 * time.Second}
	if r.image() != "x" || r.timeout() != 5*time.Second {
		t.Errorf("overrides not honored: %q %v", r.image(), r.timeout())
	}
}

func TestPreview(t *testing.T) {
	short := "hello"
	if Preview(short) != short {
		t.Errorf("Preview(%q) = %q", short, Preview(short))
	}
	long := strings.Repeat("x", PreviewLimit) + "tail"
	got := Preview(long)
	if len(got) != PreviewLimit {
		t.Errorf("Preview length = %d, want %d", len(got), PreviewLimit)
	}
	if !strings.HasSuffix(got, "tail") {
		t.Errorf("Preview should keep the trailing bytes, got suffix %q", got[len(got)-8:])
	}
}

func TestCollectEnv(t *testing.T) {
	t.Setenv("SANDBOX_KEEP", "yes")
	t.Setenv("SANDBOX_EMPTY", "")
	os.Unsetenv("SANDBOX_ABSENT")

	got := CollectEnv([]string{"SANDBOX_KEEP", "SANDBOX_EMPTY", "SANDBOX_ABSENT"})
	want := map[string]string{"SANDBOX_KEEP": "yes", "SANDBOX_EMPTY": ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CollectEnv = %v, want %v", got, want)
	}
}
