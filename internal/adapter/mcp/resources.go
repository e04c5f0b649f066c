package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"sddflow://features",
			"Feature List",
			mcplib.WithResourceDescription("Feature directories below the features root"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleFeaturesResource,
	)
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"sddflow://metrics",
			"Audit Metrics",
			mcplib.WithResourceDescription("Routing distribution and human/automated disagreement rate"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleMetricsResource,
	)
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}

func (s *Server) handleFeaturesResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	names, err := s.workspace.Features()
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, names)
}

func (s *Server) handleMetricsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	m, err := s.audit.ComputeRoot(ctx, s.workspace.Root())
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, m)
}
