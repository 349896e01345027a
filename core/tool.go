package core

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tool is one tool served by a built-in backend.
type Tool interface {
	Handle() mcp.Tool
	Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Middleware wraps a tool handler.
type Middleware func(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc

// NewServer builds an MCP server exposing tools, each handler wrapped by
// middleware in the given order.
func NewServer(name, version string, tools []Tool, middleware ...Middleware) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
		server.WithResourceCapabilities(false, false),
		server.WithLogging(),
	)

	for _, tool := range tools {
		handle := tool.Handle()

		var handler server.ToolHandlerFunc = tool.Handler
		for i := len(middleware) - 1; i >= 0; i-- {
			handler = middleware[i](handle.Name, handler)
		}

		s.AddTool(handle, handler)
	}

	return s
}

// NewJSONResult renders v as an indented JSON text result.
func NewJSONResult(v any) (*mcp.CallToolResult, error) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("failed to encode result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(buf)), nil
}

// NewToolFromSchema builds a tool handle from a ready-made JSON schema, for
// tools whose arguments are described by a Go type instead of options.
func NewToolFromSchema(name, description string, schema map[string]any) (mcp.Tool, error) {
	buf, err := json.Marshal(map[string]any{
		"name":        name,
		"description": description,
		"inputSchema": schema,
	})
	if err != nil {
		return mcp.Tool{}, err
	}

	var tool mcp.Tool
	if err := json.Unmarshal(buf, &tool); err != nil {
		return mcp.Tool{}, err
	}
	return tool, nil
}
