// Package middleware provides handler wrappers for built-in backend tools.
package middleware

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/theapemachine/mcp-host-orchestrator/core"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/metrics"
)

/*
Instrument logs every call a backend serves and counts it in the backend
metrics. Handler errors are turned into tool error results so a failing
tool never surfaces as a JSON-RPC error to the caller.
*/
func Instrument(backend string, logger *log.Logger) core.Middleware {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix(backend)

	return func(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			result, err := next(ctx, request)

			if err != nil {
				logger.Error("Tool handler failed", "tool", name, "error", err)
				result, err = mcp.NewToolResultError(err.Error()), nil
			}

			failed := result != nil && result.IsError
			metrics.RecordBackendCall(backend, name, failed)
			logger.Debug("Served tool call", "tool", name, "failed", failed, "duration", time.Since(start))

			return result, err
		}
	}
}

// Recover converts a panicking handler into a tool error result.
func Recover(logger *log.Logger) core.Middleware {
	if logger == nil {
		logger = log.Default()
	}

	return func(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Tool handler panicked", "tool", name, "panic", r)
					result, err = mcp.NewToolResultError("internal error"), nil
				}
			}()
			return next(ctx, request)
		}
	}
}
