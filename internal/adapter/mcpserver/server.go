// Package mcpserver exposes registered tools over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"websearch-mcp/internal/domain"
	"websearch-mcp/internal/infra/logger"
)

// Identity reported to clients during initialize.
const (
	ServerName    = "mcp-websearch"
	ServerVersion = "1.0.0"
)

// Server adapts a tool registry to an MCP server. Tool failures are returned
// from the handler as errors, so clients receive a JSON-RPC error response.
type Server struct {
	mcp    *server.MCPServer
	tools  domain.ToolExecutor
	logger *slog.Logger
}

// New registers every tool from tools on a fresh MCP server.
func New(tools domain.ToolExecutor, logger *slog.Logger) *Server {
	hooks := &server.Hooks{}
	hooks.AddBeforeAny(func(ctx context.Context, id any, method mcp.MCPMethod, message any) {
		logger.Debug("mcp request", "id", id, "method", method)
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		logger.Debug("mcp request failed", "id", id, "method", method, "error", err)
	})

	s := &Server{
		mcp: server.NewMCPServer(ServerName, ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithHooks(hooks),
		),
		tools:  tools,
		logger: logger,
	}

	for _, schema := range tools.Schemas() {
		s.mcp.AddTool(mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters), s.handler(schema.Name))
		logger.Debug("tool registered", "tool", schema.Name)
	}
	return s
}

// MCPServer returns the underlying protocol server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, err := s.tools.Get(name)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(req.Params.Arguments)
		if err != nil {
			return nil, fmt.Errorf("%w: arguments: %v", domain.ErrInvalidParams, err)
		}
		if string(raw) == "null" {
			raw = json.RawMessage("{}")
		}

		res, err := t.Execute(ctx, raw)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}

// ServeStdio serves line-delimited JSON-RPC from in to out until in is
// exhausted or ctx is cancelled. Protocol-level errors go to the logger;
// out carries nothing but protocol messages.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(logger.StdLogger(s.logger, slog.LevelError))

	s.logger.Info("mcp server listening on stdio", "name", ServerName, "version", ServerVersion)
	return stdio.Listen(ctx, in, out)
}
