// Package mcp exposes the engine as an MCP server, so MCP-speaking
// agents can execute commands and scripts without a custom bridge
// client. All tools funnel through the dispatcher and therefore share
// the single document execution context.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/datum"
	"github.com/aretw0/datum/pkg/bridge"
	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/script"
)

// Server wraps the engine dispatcher as an MCP server.
type Server struct {
	dispatcher *bridge.Dispatcher
	loader     *script.HotLoader
	mcpServer  *server.MCPServer
}

// NewServer creates the MCP server and registers its tools.
func NewServer(d *bridge.Dispatcher, loader *script.HotLoader) *Server {
	s := &Server{
		dispatcher: d,
		loader:     loader,
		mcpServer:  server.NewMCPServer("datum-mcp", strings.TrimSpace(datum.Version)),
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	// TOOL: execute_command
	executeTool := mcp.NewTool("execute_command",
		mcp.WithDescription("Validate and execute a typed command against the host document. The command is validated in three phases (static, contextual, semantic) before any mutation happens, and runs inside a transaction that rolls back on failure."),
		mcp.WithString("command_type", mcp.Required(), mcp.Description("Registered command type, e.g. create_wall")),
		mcp.WithString("parameters", mcp.Required(), mcp.Description("JSON object with the command parameters")),
	)
	s.mcpServer.AddTool(executeTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		commandType := request.GetString("command_type", "")
		params, err := jsonArg(request, "parameters")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resp := s.dispatcher.Dispatch(ctx, bridge.Request{
			Type:        bridge.TypeCommand,
			ID:          uuid.NewString(),
			CommandType: commandType,
			Parameters:  params,
		})
		return toolResult(resp)
	})

	// TOOL: invoke_script
	invokeTool := mcp.NewTool("invoke_script",
		mcp.WithDescription("Invoke a script by name. Registered scripts run directly; unknown names require Lua source, which is hot-loaded into a sandbox and executed atomically against the document."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Script name")),
		mcp.WithString("source", mcp.Description("Lua source or .lua path for unregistered scripts")),
		mcp.WithString("params", mcp.Description("JSON object with script parameters")),
		mcp.WithString("targets", mcp.Description("JSON array of element IDs host.selected() should resolve to")),
	)
	s.mcpServer.AddTool(invokeTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := jsonArg(request, "params")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var targets []domain.ElementID
		if raw := request.GetString("targets", ""); raw != "" {
			if err := json.Unmarshal([]byte(raw), &targets); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("targets must be a JSON array of element IDs: %v", err)), nil
			}
		}

		resp := s.dispatcher.Dispatch(ctx, bridge.Request{
			Type:       bridge.TypeScript,
			ID:         uuid.NewString(),
			ScriptName: request.GetString("name", ""),
			Source:     request.GetString("source", ""),
			Parameters: params,
			Targets:    targets,
		})
		return toolResult(resp)
	})

	// TOOL: query_selection
	queryTool := mcp.NewTool("query_selection",
		mcp.WithDescription("Query document elements: the current selection, or all elements of a category or type."),
		mcp.WithString("category", mcp.Description("Filter by category (optional)")),
		mcp.WithString("type", mcp.Description("Filter by type name (optional)")),
	)
	s.mcpServer.AddTool(queryTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp := s.dispatcher.Dispatch(ctx, bridge.Request{
			Type:     bridge.TypeSelectionQuery,
			ID:       uuid.NewString(),
			Category: request.GetString("category", ""),
			TypeName: request.GetString("type", ""),
		})
		return toolResult(resp)
	})

	// TOOL: graduation_candidates
	candidatesTool := mcp.NewTool("graduation_candidates",
		mcp.WithDescription("List hot-loaded scripts proven enough to be promoted into registered scripts, scored by usage, speed and recency."),
		mcp.WithNumber("min_executions", mcp.Description("Minimum execution count (default 3)")),
	)
	s.mcpServer.AddTool(candidatesTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		minExecutions := request.GetInt("min_executions", 3)
		if minExecutions < 1 {
			return mcp.NewToolResultError("min_executions must be positive"), nil
		}
		candidates := s.loader.GraduationCandidates(minExecutions)
		out, err := json.Marshal(candidates)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode candidates: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	})
}

func jsonArg(request mcp.CallToolRequest, key string) (map[string]any, error) {
	raw := request.GetString(key, "")
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%s must be a JSON object: %v", key, err)
	}
	return out, nil
}

func toolResult(resp bridge.Response) (*mcp.CallToolResult, error) {
	out, err := json.Marshal(resp)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode response: %v", err)), nil
	}
	if !resp.Success {
		return mcp.NewToolResultError(string(out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
