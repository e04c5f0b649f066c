package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/service"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	feature := mcplib.WithString("feature",
		mcplib.Required(),
		mcplib.Description("Feature directory relative to the features root"),
	)
	s.mcpServer.AddTools(
		mcpserver.ServerTool{
			Tool: mcplib.NewTool("workflow_status",
				mcplib.WithDescription("Task counts and the running, ready, failed and held tasks of a feature"),
				feature,
			),
			Handler: s.handleWorkflowStatus,
		},
		mcpserver.ServerTool{
			Tool: mcplib.NewTool("queue_list",
				mcplib.WithDescription("List the human review queue of a feature"),
				feature,
				mcplib.WithString("status", mcplib.Description("Only items with this status (PENDING, ACKED, RESOLVED, REJECTED)")),
			),
			Handler: s.handleQueueList,
		},
		mcpserver.ServerTool{
			Tool: mcplib.NewTool("queue_ack",
				mcplib.WithDescription("Assign a reviewer to a queue item"),
				feature,
				mcplib.WithString("queue_id", mcplib.Required(), mcplib.Description("Queue item id (hq-...)")),
				mcplib.WithString("reviewer", mcplib.Required(), mcplib.Description("Reviewer name")),
			),
			Handler: s.handleQueueAck,
		},
		mcpserver.ServerTool{
			Tool: mcplib.NewTool("queue_resolve",
				mcplib.WithDescription("Record the human GO or NO_GO decision for a queue item"),
				feature,
				mcplib.WithString("queue_id", mcplib.Required(), mcplib.Description("Queue item id (hq-...)")),
				mcplib.WithString("decision", mcplib.Required(), mcplib.Enum("GO", "NO_GO")),
				mcplib.WithString("reviewer", mcplib.Required(), mcplib.Description("Reviewer name")),
				mcplib.WithString("summary", mcplib.Description("Resolution summary")),
			),
			Handler: s.handleQueueResolve,
		},
		mcpserver.ServerTool{
			Tool: mcplib.NewTool("audit_metrics",
				mcplib.WithDescription("Routing and human-versus-automated agreement metrics across all features"),
			),
			Handler: s.handleAuditMetrics,
		},
	)
}

// stringArg returns a string argument; required arguments must be non-empty.
func stringArg(req mcplib.CallToolRequest, name string, required bool) (string, *mcplib.CallToolResult) { //nolint:gocritic // hugeParam: mcp-go request type
	v, _ := req.GetArguments()[name].(string)
	if required && v == "" {
		return "", mcplib.NewToolResultError(name + " is required")
	}
	return v, nil
}

func (s *Server) openFeature(ctx context.Context, req mcplib.CallToolRequest) (*service.Feature, context.Context, *mcplib.CallToolResult) { //nolint:gocritic // hugeParam: mcp-go request type
	name, bad := stringArg(req, "feature", true)
	if bad != nil {
		return nil, ctx, bad
	}
	f, err := s.workspace.Feature(ctx, name)
	if err != nil {
		return nil, ctx, mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to open feature %s", name), err)
	}
	return f, logger.WithFeature(ctx, f.Store.Name()), nil
}

func (s *Server) handleWorkflowStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	f, ctx, bad := s.openFeature(ctx, req)
	if bad != nil {
		return bad, nil
	}
	report, err := service.Status(ctx, f.Store)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to load status", err), nil
	}
	return toolResultJSON(report), nil
}

func (s *Server) handleQueueList(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	f, ctx, bad := s.openFeature(ctx, req)
	if bad != nil {
		return bad, nil
	}
	status, _ := stringArg(req, "status", false)
	items, err := f.Queue.List(ctx, status)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list queue", err), nil
	}
	out := make([]humanqueue.Summary, 0, len(items))
	for _, it := range items {
		out = append(out, it.Summary())
	}
	return toolResultJSON(out), nil
}

func (s *Server) handleQueueAck(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	f, ctx, bad := s.openFeature(ctx, req)
	if bad != nil {
		return bad, nil
	}
	id, bad := stringArg(req, "queue_id", true)
	if bad != nil {
		return bad, nil
	}
	reviewer, bad := stringArg(req, "reviewer", true)
	if bad != nil {
		return bad, nil
	}
	it, err := f.Queue.Ack(ctx, id, reviewer)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to ack %s", id), err), nil
	}
	return toolResultJSON(it), nil
}

func (s *Server) handleQueueResolve(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	f, ctx, bad := s.openFeature(ctx, req)
	if bad != nil {
		return bad, nil
	}
	id, bad := stringArg(req, "queue_id", true)
	if bad != nil {
		return bad, nil
	}
	decision, bad := stringArg(req, "decision", true)
	if bad != nil {
		return bad, nil
	}
	reviewer, bad := stringArg(req, "reviewer", true)
	if bad != nil {
		return bad, nil
	}
	summary, _ := stringArg(req, "summary", false)
	it, err := f.Queue.Resolve(ctx, id, decision, reviewer, summary)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to resolve %s", id), err), nil
	}
	return toolResultJSON(it), nil
}

func (s *Server) handleAuditMetrics(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	m, err := s.audit.ComputeRoot(ctx, s.workspace.Root())
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to compute audit metrics", err), nil
	}
	return toolResultJSON(m), nil
}
