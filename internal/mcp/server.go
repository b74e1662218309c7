// Package mcp exposes agentsafe policy checks over the Model Context
// Protocol so agent runtimes can pre-flight tool calls before issuing them.
// Every tool here only evaluates; nothing executes on this path.
package mcp

import (
	"context"
	"fmt"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/agentsafe/internal/backend"
	"github.com/ppiankov/agentsafe/internal/grant"
	"github.com/ppiankov/agentsafe/internal/state"
)

// Config holds MCP server configuration.
type Config struct {
	PolicyPath      string
	PolicyBackend   string
	OPAURL          string
	OPADecisionPath string
	Workspace       string
	GrantsPath      string
}

// Server wraps the MCP SDK server around the policy backend and grant store.
type Server struct {
	mcpServer *mcpsdk.Server
	backend   backend.Backend
	grants    *grant.Store
	workspace string
}

// New creates an MCP server with a loaded policy backend.
func New(cfg Config) (*Server, error) {
	b, err := backend.Load(cfg.PolicyBackend, cfg.PolicyPath, cfg.OPAURL, cfg.OPADecisionPath)
	if err != nil {
		return nil, fmt.Errorf("mcp: load policy backend: %w", err)
	}

	workspace := cfg.Workspace
	if workspace == "" {
		workspace = "."
	}
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("mcp: resolve workspace: %w", err)
	}

	grantsPath := cfg.GrantsPath
	if grantsPath == "" {
		grantsPath = state.GrantsPath(abs)
	}

	s := &Server{
		backend:   b,
		grants:    grant.NewStore(grantsPath),
		workspace: abs,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "agentsafe",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds the agentsafe pre-flight tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "agentsafe_check_command",
		Description: "Check whether a shell command would be allowed by the active policy, without executing it.",
	}, s.handleCheckCommand)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "agentsafe_check_url",
		Description: "Check whether fetching a URL would be allowed by the active policy, without fetching it.",
	}, s.handleCheckURL)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "agentsafe_grant_check",
		Description: "Check whether an actor holds an unexpired grant covering a tool and scope.",
	}, s.handleGrantCheck)
}
