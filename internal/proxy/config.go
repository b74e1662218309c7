// Package proxy implements the reverse proxy that sits between an agent
// gateway and its tool-execution upstream. Requests on tool routes are
// normalized by an adapter, evaluated against policy and grants, audited,
// and only then forwarded; everything else passes through untouched.
package proxy

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ppiankov/agentsafe/internal/adapter"
	"github.com/ppiankov/agentsafe/internal/backend"
	"github.com/ppiankov/agentsafe/internal/state"
)

// DefaultRouteRegexes match the tool-execution endpoints of the gateways we
// front. Paths matching none of them are forwarded without inspection.
const DefaultRouteRegexes = `^/v1/tools/execute$,^/gateway/tools/execute$,^/api/tools/.+`

// Config holds proxy configuration. Zero values are filled in by FromEnv or
// by Normalize.
type Config struct {
	Listen          string
	Upstream        string
	PolicyPath      string
	PolicyBackend   string
	Workspace       string
	RouteRegexes    []string
	Adapter         string
	ActorHeader     string
	LedgerPath      string
	GrantsPath      string
	OPAURL          string
	OPADecisionPath string
}

// FromEnv builds a Config from AGENTSAFE_* environment variables, applying
// the documented defaults for anything unset.
func FromEnv() Config {
	workspace := envOr("AGENTSAFE_WORKSPACE", ".")
	return Config{
		Upstream:        envOr("AGENTSAFE_UPSTREAM_URL", "http://openclaw:3333"),
		PolicyPath:      envOr("AGENTSAFE_POLICY", "policies/demo-openclaw.yaml"),
		PolicyBackend:   envOr("AGENTSAFE_POLICY_BACKEND", "yaml"),
		Workspace:       workspace,
		RouteRegexes:    splitCSV(envOr("AGENTSAFE_PROXY_TOOL_PATH_REGEX", DefaultRouteRegexes)),
		Adapter:         envOr("AGENTSAFE_PROXY_ADAPTER", adapter.DefaultName),
		ActorHeader:     envOr("AGENTSAFE_ACTOR_HEADER", "X-Agent-Actor"),
		LedgerPath:      state.LedgerPath(workspace),
		GrantsPath:      state.GrantsPath(workspace),
		OPAURL:          os.Getenv("AGENTSAFE_OPA_URL"),
		OPADecisionPath: envOr("AGENTSAFE_OPA_DECISION_PATH", backend.DefaultDecisionPath),
	}
}

// Normalize fills unset fields with defaults so a Config assembled by hand
// (flags, tests) behaves like one from FromEnv.
func (c *Config) Normalize() {
	if c.Upstream == "" {
		c.Upstream = "http://openclaw:3333"
	}
	if c.Workspace == "" {
		c.Workspace = "."
	}
	if len(c.RouteRegexes) == 0 {
		c.RouteRegexes = splitCSV(DefaultRouteRegexes)
	}
	if c.Adapter == "" {
		c.Adapter = adapter.DefaultName
	}
	if c.ActorHeader == "" {
		c.ActorHeader = "X-Agent-Actor"
	}
	if c.LedgerPath == "" {
		c.LedgerPath = state.LedgerPath(c.Workspace)
	}
	if c.GrantsPath == "" {
		c.GrantsPath = state.GrantsPath(c.Workspace)
	}
	if c.OPADecisionPath == "" {
		c.OPADecisionPath = backend.DefaultDecisionPath
	}
}

// compileRoutes compiles the route regexes. Matching is unanchored: a
// pattern constrains itself with ^ and $ if it wants to.
func compileRoutes(patterns []string) ([]*regexp.Regexp, error) {
	routes := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("proxy: invalid route regex %q: %w", p, err)
		}
		routes = append(routes, re)
	}
	return routes, nil
}

func routeMatches(path string, routes []*regexp.Regexp) bool {
	for _, re := range routes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
