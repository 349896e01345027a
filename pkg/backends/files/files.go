// Package files implements the file services backend.
package files

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/theapemachine/mcp-host-orchestrator/core"
)

func Tools() []core.Tool {
	return []core.Tool{NewExampleTool()}
}

// ExampleTool echoes its message back.
type ExampleTool struct {
	handle mcp.Tool
}

func NewExampleTool() *ExampleTool {
	return &ExampleTool{
		handle: mcp.NewTool(
			"example_tool",
			mcp.WithDescription("An example tool that echoes a message"),
			mcp.WithString("message", mcp.Required(), mcp.Description("Message to echo")),
		),
	}
}

func (tool *ExampleTool) Handle() mcp.Tool {
	return tool.handle
}

func (tool *ExampleTool) Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := core.StringParam(request, "message", true)
	if err != nil {
		return core.ParameterError(err), nil
	}
	return mcp.NewToolResultText("Echo: " + message), nil
}
