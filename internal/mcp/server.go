// Package mcp exposes workflow sessions to coding agents over the Model
// Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/sessions/application"
	"github.com/zjrosen/vibe/internal/workflow"
)

// Catalog is the read side of the workflow registry.
type Catalog interface {
	Search(query string) []*workflow.Definition
	Match(prompt string) []*workflow.Definition
}

// Server registers the session tools on an MCP server.
type Server struct {
	svc     *application.Service
	catalog Catalog
	mcp     *server.MCPServer

	tools    map[string]mcp.Tool
	handlers map[string]server.ToolHandlerFunc
}

const instructions = `vibe keeps a stack of workflows for a coding session.
Call start_workflow with the user's request, follow the returned instruction,
and call advance_workflow when the step is done. Use push_workflow to nest a
workflow, break_workflow to leave it early, and get_workflow_status if you lose
track. Do not stop while a session still has steps remaining.`

// NewServer builds the MCP server. catalog may be nil, in which case
// start_workflow requires explicit workflow names and list_workflows is empty.
func NewServer(svc *application.Service, catalog Catalog, version string) *Server {
	s := &Server{
		svc:      svc,
		catalog:  catalog,
		tools:    make(map[string]mcp.Tool),
		handlers: make(map[string]server.ToolHandlerFunc),
		mcp: server.NewMCPServer(
			"vibe",
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server, e.g. for ServeStdio.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves the protocol on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	log.Info(log.CatMCP, "Serving MCP over stdio", "tools", len(s.tools))
	return server.ServeStdio(s.mcp)
}

// ToolNames returns the registered tool names in sorted order.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	name := tool.Name
	wrapped := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Debug(log.CatMCP, "Tool call", "tool", name)
		return handler(ctx, req)
	}
	s.tools[name] = tool
	s.handlers[name] = wrapped
	s.mcp.AddTool(tool, wrapped)
}

func sessionIDArg() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID returned by start_workflow"))
}

func (s *Server) registerTools() {
	s.addTool(mcp.NewTool("start_workflow",
		mcp.WithDescription("Start a workflow session for a prompt. Names the workflows to run, or matches them from the prompt's triggers when none are given."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("The user's request")),
		mcp.WithArray("workflows", mcp.Description("Workflow names to run, in order"), mcp.WithStringItems()),
	), s.handleStart)

	s.addTool(mcp.NewTool("get_workflow_status",
		mcp.WithDescription("Show the current step and workflow stack of a session."),
		sessionIDArg(),
	), sessionTool(s.svc.Status))

	s.addTool(mcp.NewTool("advance_workflow",
		mcp.WithDescription("Mark the current step done and move to the next one."),
		sessionIDArg(),
	), s.handleAdvance)

	s.addTool(mcp.NewTool("back_workflow",
		mcp.WithDescription("Go back one step in the current workflow."),
		sessionIDArg(),
	), sessionTool(s.svc.Back))

	s.addTool(mcp.NewTool("restart_session",
		mcp.WithDescription("Restart the current workflow from its first step."),
		sessionIDArg(),
	), sessionTool(s.svc.Restart))

	s.addTool(mcp.NewTool("break_workflow",
		mcp.WithDescription("Leave the current nested workflow and resume the one beneath it."),
		sessionIDArg(),
	), sessionTool(s.svc.Break))

	s.addTool(mcp.NewTool("push_workflow",
		mcp.WithDescription("Start a nested workflow on top of the current one."),
		sessionIDArg(),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Workflow name to push")),
	), s.handlePush)

	s.addTool(mcp.NewTool("list_workflow_sessions",
		mcp.WithDescription("List all workflow sessions."),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return outcomeResult(s.svc.ListSessions(ctx))
	})

	s.addTool(mcp.NewTool("remove_session",
		mcp.WithDescription("Delete a workflow session."),
		sessionIDArg(),
	), sessionTool(s.svc.RemoveSession))

	s.addTool(mcp.NewTool("monitor_sessions",
		mcp.WithDescription("Summarize session health: active, dormant and stale sessions with alerts."),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return outcomeResult(s.svc.MonitorSummary(ctx))
	})

	s.addTool(mcp.NewTool("analyze_agent_response",
		mcp.WithDescription("Check an agent response for a forgotten workflow completion and get an intervention message."),
		sessionIDArg(),
		mcp.WithString("response", mcp.Required(), mcp.Description("The agent's response text")),
	), s.handleAnalyze)

	s.addTool(mcp.NewTool("cleanup_stale_sessions",
		mcp.WithDescription("Remove sessions older than the archive threshold."),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return outcomeResult(s.svc.CleanupStale(ctx))
	})

	s.addTool(mcp.NewTool("list_workflows",
		mcp.WithDescription("List available workflows, optionally filtered by a search query."),
		mcp.WithString("query", mcp.Description("Matches names, descriptions and triggers")),
	), s.handleListWorkflows)
}

// sessionTool adapts a service call that only needs the session id.
func sessionTool[T any](fn func(context.Context, string) application.Outcome[T]) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return outcomeResult(fn(ctx, id))
	}
}

func (s *Server) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names := req.GetStringSlice("workflows", nil)
	if len(names) == 0 && s.catalog != nil {
		for _, d := range s.catalog.Match(prompt) {
			names = append(names, d.Name)
		}
		log.Debug(log.CatMCP, "Matched workflows from prompt", "workflows", names)
	}
	return outcomeResult(s.svc.StartSession(ctx, application.StartRequest{Prompt: prompt, Workflows: names}))
}

func (s *Server) handleAdvance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return outcomeResult(s.svc.Advance(ctx, id))
}

func (s *Server) handlePush(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return outcomeResult(s.svc.PushWorkflow(ctx, id, name))
}

func (s *Server) handleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("response")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return outcomeResult(s.svc.AnalyzeResponse(ctx, id, text))
}

// WorkflowSummary is one entry of list_workflows.
type WorkflowSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Source      string   `json:"source"`
	Kind        string   `json:"kind"`
	Triggers    []string `json:"triggers"`
	Steps       int      `json:"steps"`
}

func (s *Server) handleListWorkflows(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaries := []WorkflowSummary{}
	if s.catalog != nil {
		for _, d := range s.catalog.Search(req.GetString("query", "")) {
			summaries = append(summaries, WorkflowSummary{
				Name:        d.Name,
				Description: d.Description,
				Category:    d.Category,
				Source:      d.Source.String(),
				Kind:        string(d.Kind),
				Triggers:    d.Triggers,
				Steps:       len(d.Steps),
			})
		}
	}
	return jsonResult(summaries, false)
}

// outcomeResult returns the outcome as JSON text. Failed outcomes are marked
// as tool errors so agents notice them.
func outcomeResult[T any](out application.Outcome[T]) (*mcp.CallToolResult, error) {
	if !out.Success && out.Error != nil {
		log.Debug(log.CatMCP, "Tool call failed", "category", out.Error.Category, "message", out.Error.Message)
	}
	return jsonResult(out, !out.Success)
}

func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	result := mcp.NewToolResultText(string(data))
	result.IsError = isError
	return result, nil
}
