// Package gateway re-exports an orchestrated tool catalog as a single MCP
// server.
package gateway

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/theapemachine/mcp-host-orchestrator/core"
	"github.com/theapemachine/mcp-host-orchestrator/core/middleware"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/orchestrator"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/provider"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

type Dispatcher interface {
	Catalog() *orchestrator.Catalog
	Dispatch(ctx context.Context, qualifiedName string, args map[string]any) ([]tools.Content, error)
}

type Options struct {
	Name    string
	Version string
	// QualifiedNames exports core/get_health as is instead of
	// core__get_health. Some clients reject "/" in tool names.
	QualifiedNames bool
	Logger         *log.Logger
}

/*
New builds a server with one tool per entry of the current catalog. Each
call goes through Dispatch, so a server disabled later fails with
ToolNotFound even though its tools stay listed until the gateway is rebuilt.
*/
func New(orch Dispatcher, opts Options) (*server.MCPServer, error) {
	if opts.Name == "" {
		opts.Name = "mcphost-gateway"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	descriptors := orch.Catalog().Tools()
	exported := make([]core.Tool, 0, len(descriptors))

	qualified := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		qualified = append(qualified, d.QualifiedName)
	}
	wire := provider.WireNames(qualified)

	for _, d := range descriptors {
		name := d.QualifiedName
		if !opts.QualifiedNames {
			name = wire[name]
		}

		handle, err := core.NewToolFromSchema(name, d.Description, d.InputSchema.Map())
		if err != nil {
			return nil, err
		}

		exported = append(exported, &proxy{handle: handle, target: d.QualifiedName, orch: orch})
	}

	opts.Logger.Info("Gateway exports tools", "count", len(exported))

	return core.NewServer(
		opts.Name,
		opts.Version,
		exported,
		middleware.Recover(opts.Logger),
		middleware.Instrument("gateway", opts.Logger),
	), nil
}

// proxy forwards one exported tool to the orchestrator.
type proxy struct {
	handle mcp.Tool
	target string
	orch   Dispatcher
}

func (p *proxy) Handle() mcp.Tool {
	return p.handle
}

func (p *proxy) Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := p.orch.Dispatch(ctx, p.target, request.Params.Arguments)
	if err != nil {
		return mcp.NewToolResultError(tools.Kind(err) + ": " + err.Error()), nil
	}

	return toResult(content), nil
}

// toResult flattens content into one text result. A lone image is passed
// through as an image.
func toResult(content []tools.Content) *mcp.CallToolResult {
	if len(content) == 1 && content[0].Type == "image" {
		return mcp.NewToolResultImage("", content[0].Data, content[0].MimeType)
	}
	return mcp.NewToolResultText(tools.Text(content))
}
