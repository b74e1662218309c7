// Package sandbox executes allowed commands inside ephemeral Docker
// containers. The container is the blast-radius boundary for anything the
// policy lets through: read-only rootfs, all capabilities dropped, the
// workspace bind-mounted at /workspace, and no network unless the policy's
// network mode asks for proxied egress.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"
)

const (
	// DefaultImage is the container image commands run in unless overridden.
	DefaultImage = "agentsafe-sandbox:latest"

	// DefaultTimeout caps the wall-clock time of one sandboxed command.
	DefaultTimeout = 60 * time.Second

	// PreviewLimit is how many trailing bytes of stdout/stderr are kept in
	// the audit record.
	PreviewLimit = 4 << 10
)

// Runner builds and executes docker run invocations. The zero value uses
// DefaultImage, DefaultTimeout and no resource limits.
type Runner struct {
	Image    string
	CPULimit string // --cpus value, e.g. "0.5"
	MemLimit string // --memory value, e.g. "256m"
	Timeout  time.Duration
}

// Result captures one container run. A non-zero exit code is a result, not
// an error; errors mean the container could not be started or was killed by
// the deadline.
type Result struct {
	ExitCode    int
	Stdout      string
	Stderr      string
	ContainerID string
	Command     []string
}

// Run executes command inside a fresh container with the workspace mounted
// at /workspace. networkMode is passed to docker verbatim ("none" or
// "bridge"); env becomes -e pairs inside the container.
func (r *Runner) Run(ctx context.Context, command []string, workspace, networkMode string, env map[string]string) (*Result, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve workspace: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	args := r.dockerArgs(command, abs, networkMode, env)
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("sandbox: command timed out after %s", r.timeout())
	}

	exitCode := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			// docker itself failed to start, typically because the
			// binary is not installed.
			return nil, fmt.Errorf("sandbox: docker unavailable: %w", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		ExitCode:    exitCode,
		Stdout:      stdout.String(),
		Stderr:      stderr.String(),
		ContainerID: "ephemeral",
		Command:     command,
	}, nil
}

// dockerArgs assembles the docker run argument vector. workspace must be
// absolute. Env keys are sorted so the vector is stable.
func (r *Runner) dockerArgs(command []string, workspace, networkMode string, env map[string]string) []string {
	args := []string{
		"run",
		"--rm",
		"-i",
		"--read-only",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=64m",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--add-host", "host.docker.internal:host-gateway",
		"--user", fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		"-v", workspace + ":/workspace:rw",
		"-w", "/workspace",
		"--network", networkMode,
	}
	if r.CPULimit != "" {
		args = append(args, "--cpus", r.CPULimit)
	}
	if r.MemLimit != "" {
		args = append(args, "--memory", r.MemLimit)
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}

	args = append(args, r.image())
	args = append(args, command...)
	return args
}

func (r *Runner) image() string {
	if r.Image != "" {
		return r.Image
	}
	return DefaultImage
}

func (r *Runner) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

// Preview returns the trailing PreviewLimit bytes of s, for audit records.
func Preview(s string) string {
	if len(s) <= PreviewLimit {
		return s
	}
	return s[len(s)-PreviewLimit:]
}

// CollectEnv copies the allowlisted variables that are actually set in the
// host environment. Unset names are skipped rather than passed empty.
func CollectEnv(allowlist []string) map[string]string {
	out := make(map[string]string, len(allowlist))
	for _, key := range allowlist {
		if val, ok := os.LookupEnv(key); ok {
			out[key] = val
		}
	}
	return out
}
