// Package health implements the core backend: liveness, runtime metrics and
// non-secret service configuration.
package health

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/theapemachine/mcp-host-orchestrator/core"
)

// ServiceInfo is the configuration get_config reports.
type ServiceInfo struct {
	Service     string `json:"service"`
	Environment string `json:"environment"`
	Port        int    `json:"port"`
	LogLevel    string `json:"logLevel"`
	Version     string `json:"version"`
}

// Tools returns the tools of the core backend.
func Tools(info ServiceInfo) []core.Tool {
	started := time.Now()

	return []core.Tool{
		NewHealthTool(info.Service, started),
		NewMetricsTool(started),
		NewConfigTool(info),
	}
}

type memoryStats struct {
	HeapUsed  uint64 `json:"heapUsed"`
	HeapTotal uint64 `json:"heapTotal"`
	RSS       uint64 `json:"rss"`
}

func readMemory() memoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return memoryStats{
		HeapUsed:  ms.HeapAlloc,
		HeapTotal: ms.HeapSys,
		RSS:       ms.Sys,
	}
}

// HealthTool reports that the service is up.
type HealthTool struct {
	handle  mcp.Tool
	service string
	started time.Time
}

func NewHealthTool(service string, started time.Time) *HealthTool {
	return &HealthTool{
		handle: mcp.NewTool(
			"get_health",
			mcp.WithDescription("Get the health status of the service"),
		),
		service: service,
		started: started,
	}
}

func (tool *HealthTool) Handle() mcp.Tool {
	return tool.handle
}

func (tool *HealthTool) Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return core.NewJSONResult(map[string]any{
		"status":    "healthy",
		"uptime":    time.Since(tool.started).Seconds(),
		"memory":    readMemory(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"service":   tool.service,
	})
}

// MetricsTool reports process metrics.
type MetricsTool struct {
	handle  mcp.Tool
	started time.Time
}

func NewMetricsTool(started time.Time) *MetricsTool {
	return &MetricsTool{
		handle: mcp.NewTool(
			"get_metrics",
			mcp.WithDescription("Get system metrics and performance data"),
			mcp.WithString(
				"metric",
				mcp.Description("Specific metric to retrieve (cpu, memory, all)"),
				mcp.Enum("cpu", "memory", "all"),
			),
		),
		started: started,
	}
}

func (tool *MetricsTool) Handle() mcp.Tool {
	return tool.handle
}

func (tool *MetricsTool) Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metric, err := core.StringParam(request, "metric", false)
	if err != nil {
		return core.ParameterError(err), nil
	}
	if metric == "" {
		metric = "all"
	}

	out := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}

	switch metric {
	case "cpu":
		out["cpu"] = cpuStats()
	case "memory":
		out["memory"] = readMemory()
	case "all":
		out["cpu"] = cpuStats()
		out["memory"] = readMemory()
		out["uptime"] = time.Since(tool.started).Seconds()
		out["goroutines"] = runtime.NumGoroutine()
	default:
		return mcp.NewToolResultError("unknown metric: " + metric), nil
	}

	return core.NewJSONResult(out)
}

func cpuStats() map[string]any {
	return map[string]any{
		"cores":      runtime.NumCPU(),
		"maxProcs":   runtime.GOMAXPROCS(0),
		"goroutines": runtime.NumGoroutine(),
	}
}

// ConfigTool reports the non-secret service configuration.
type ConfigTool struct {
	handle mcp.Tool
	info   ServiceInfo
}

func NewConfigTool(info ServiceInfo) *ConfigTool {
	if info.Environment == "" {
		info.Environment = os.Getenv("MCPHOST_ENVIRONMENT")
	}
	if info.Environment == "" {
		info.Environment = "development"
	}

	return &ConfigTool{
		handle: mcp.NewTool(
			"get_config",
			mcp.WithDescription("Get current service configuration"),
		),
		info: info,
	}
}

func (tool *ConfigTool) Handle() mcp.Tool {
	return tool.handle
}

func (tool *ConfigTool) Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return core.NewJSONResult(tool.info)
}
