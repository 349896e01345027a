// Package backends is the table of built-in MCP servers reachable through
// inproc:// endpoints and the backend command.
package backends

import (
	"sort"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/server"
	"github.com/theapemachine/mcp-host-orchestrator/core"
	"github.com/theapemachine/mcp-host-orchestrator/core/middleware"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/backends/database"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/backends/files"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/backends/health"
)

// Version is reported by every built-in server.
const Version = "1.0.0"

// Options carries what the built-in servers need from the host.
type Options struct {
	Environment string
	LogLevel    string
	Logger      *log.Logger
}

var builders = map[string]func(Options) []core.Tool{
	"core": func(opts Options) []core.Tool {
		return health.Tools(health.ServiceInfo{
			Service:     "mcp-core",
			Environment: opts.Environment,
			Port:        8000,
			LogLevel:    opts.LogLevel,
			Version:     Version,
		})
	},
	"database": func(Options) []core.Tool {
		return database.Tools(database.NewStore())
	},
	"files": func(Options) []core.Tool {
		return files.Tools()
	},
}

// Names lists the built-in servers.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds a fresh instance of the named built-in server.
func New(name string, opts Options) (*server.MCPServer, error) {
	build, ok := builders[name]
	if !ok {
		return nil, errors.Newf("no built-in backend named %q (have %v)", name, Names())
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return core.NewServer(
		"mcp-"+name,
		Version,
		build(opts),
		middleware.Recover(logger),
		middleware.Instrument(name, logger),
	), nil
}
