package policy

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/shellwords"
)

// denyFloor is denied regardless of what the policy allows. The literal "~"
// and "$HOME" entries normalize to the user home; keeping them alongside the
// resolved form is deliberate redundancy.
var denyFloor = []string{"/etc", "/proc", "/sys", "/root", "~", "$HOME"}

// EvaluateCommand decides whether a command vector is allowlisted.
//
// Order:
//  1. Empty command — block.
//  2. Command rules in declared order; first rule whose binary matches
//     basename(cmd[0]) and whose arg_regex (if any) matches the quoted join
//     of the remaining args wins.
//  3. No match — block.
func EvaluateCommand(p *Policy, cmd []string, workspaceRoot string) model.Decision {
	if len(cmd) == 0 {
		return model.Block("empty command", model.RuleCmdEmpty)
	}

	binary := filepath.Base(cmd[0])
	argStr := shellwords.Join(cmd[1:])

	for _, rule := range p.Tools.Commands {
		if rule.Binary != binary {
			continue
		}
		if rule.argRe != nil && !rule.argRe.MatchString(argStr) {
			continue
		}
		return model.Allow(fmt.Sprintf("command %q allowed by rule %s", binary, rule.RuleID), rule.RuleID)
	}

	return model.Block(fmt.Sprintf("command %q is not allowlisted", binary), model.RuleCmdNotAllowlisted)
}

// EvaluatePath decides whether a filesystem path may be touched.
//
// Order:
//  1. Normalize the candidate (home expansion, workspace join, symlink and
//     dot-dot resolution).
//  2. Deny floor plus policy denies — equal or descendant blocks. Deny beats
//     allow.
//  3. Allow roots (policy allow list, else the workspace root) — equal or
//     descendant allows.
//  4. Anything else is outside the allowlist.
func EvaluatePath(p *Policy, candidate, workspaceRoot string) model.Decision {
	root := NormalizePath(workspaceRoot, "/")
	resolved := NormalizePath(candidate, root)

	for _, d := range denyFloor {
		if isWithin(resolved, NormalizePath(d, root)) {
			return model.Block(fmt.Sprintf("path %q is denied", resolved), model.RulePathDeny)
		}
	}
	for _, d := range p.Tools.Paths.Deny {
		if isWithin(resolved, NormalizePath(d, root)) {
			return model.Block(fmt.Sprintf("path %q is denied", resolved), model.RulePathDeny)
		}
	}

	allowRoots := p.Tools.Paths.Allow
	if len(allowRoots) == 0 {
		allowRoots = []string{root}
	}
	for _, a := range allowRoots {
		if isWithin(resolved, NormalizePath(a, root)) {
			return model.Allow(fmt.Sprintf("path %q is within an allowed root", resolved), model.RulePathAllow)
		}
	}

	return model.Block(fmt.Sprintf("path %q is outside the allowed roots", resolved), model.RulePathOutsideAllowlist)
}

// EvaluateURL decides whether an outbound fetch is allowed.
//
// Order:
//  1. Scheme must be http or https; the URL must name a host.
//  2. network.mode "none" blocks all egress.
//  3. The host must match an allowlisted domain exactly or as a proper
//     suffix after a dot.
//  4. The effective port (explicit, else 443/80 by scheme) must be
//     allowlisted.
func EvaluateURL(p *Policy, rawURL string) model.Decision {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.Block(fmt.Sprintf("invalid url: %v", err), model.RuleNetBadScheme)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return model.Block(fmt.Sprintf("unsupported scheme %q", u.Scheme), model.RuleNetBadScheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return model.Block("url has no host", model.RuleNetNoHost)
	}

	if p.Tools.Network.Mode == NetworkNone {
		return model.Block("network access is disabled by policy", model.RuleNetDisabled)
	}

	matched := false
	for _, d := range p.Tools.Network.Domains {
		dl := strings.ToLower(d)
		if host == dl || strings.HasSuffix(host, "."+dl) {
			matched = true
			break
		}
	}
	if !matched {
		return model.Block(fmt.Sprintf("domain %q is not allowlisted", host), model.RuleNetDomainBlock)
	}

	port := 80
	if scheme == "https" {
		port = 443
	}
	if ps := u.Port(); ps != "" {
		n, err := strconv.Atoi(ps)
		if err != nil {
			return model.Block(fmt.Sprintf("invalid port %q", ps), model.RuleNetBadScheme)
		}
		port = n
	}

	for _, allowed := range p.Tools.Network.Ports {
		if port == allowed {
			return model.Allow(fmt.Sprintf("domain %q allowed on port %d", host, port), model.RuleNetDomainAllow)
		}
	}
	return model.Block(fmt.Sprintf("port %d is not allowlisted for %q", port, host), model.RuleNetPortBlock)
}

// FileArgs picks the arguments of a command vector that look like paths:
// anything containing a separator or starting with a dot. These are the
// arguments that go through EvaluatePath before the command may run.
func FileArgs(cmd []string) []string {
	if len(cmd) < 2 {
		return nil
	}
	var args []string
	for _, arg := range cmd[1:] {
		if strings.Contains(arg, "/") || strings.HasPrefix(arg, ".") {
			args = append(args, arg)
		}
	}
	return args
}

// NormalizePath resolves a policy or request path to canonical absolute
// form: "~" and "$HOME" become the user home, relative paths land under
// root, symlinks and ".." collapse. Paths that do not exist resolve through
// their deepest existing ancestor.
func NormalizePath(p, root string) string {
	p = expandHome(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)

	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	dir, rest := p, ""
	for dir != "/" && dir != "." {
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = filepath.Dir(dir)
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest)
		}
	}
	return p
}

func expandHome(p string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" || p == "$HOME" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	if strings.HasPrefix(p, "$HOME/") {
		return filepath.Join(home, p[len("$HOME/"):])
	}
	return strings.ReplaceAll(p, "$HOME", home)
}

// isWithin reports whether path equals root or is a descendant of it.
func isWithin(path, root string) bool {
	if path == root {
		return true
	}
	if root == "/" {
		return strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, root+"/")
}
