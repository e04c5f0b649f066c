// Package mcp exposes the human review queue, workflow status and audit
// metrics of a features root as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"io"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/sddflow/internal/service"
)

// ServerConfig names the server in the MCP handshake.
type ServerConfig struct {
	Name    string
	Version string
}

// Server is an MCP server over one workspace.
type Server struct {
	cfg       ServerConfig
	workspace *service.Workspace
	audit     *service.AuditService
	mcpServer *mcpserver.MCPServer
}

// NewServer creates the server and registers its tools and resources.
func NewServer(cfg ServerConfig, ws *service.Workspace, audit *service.AuditService) *Server {
	if cfg.Name == "" {
		cfg.Name = "sddflow"
	}
	s := &Server{
		cfg:       cfg,
		workspace: ws,
		audit:     audit,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// ServeStdio serves JSON-RPC over in/out until ctx is cancelled or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return mcpserver.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

// toolResultJSON marshals v as the text content of a tool result.
func toolResultJSON(v any) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err)
	}
	return mcplib.NewToolResultText(string(data))
}
