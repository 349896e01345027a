// Command server hosts the tool orchestrator: an MCP gateway, an interactive
// agent chat, and the built-in backends.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/adapter"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/backends"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/config"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/metrics"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/orchestrator"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/registry"
)

var (
	configFile  string
	logLevel    string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:           "mcphost",
	Short:         "Aggregate MCP tool servers behind one namespace",
	Version:       backends.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./mcphost.yaml or $HOME/.config/mcphost/mcphost.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error("mcphost failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// host is what every command builds on.
type host struct {
	cfg    *config.Config
	logger *log.Logger
	orch   *orchestrator.Orchestrator
}

/*
setup loads and validates the configuration, configures logging on stderr so
stdio MCP traffic on stdout stays clean, starts the metrics endpoint when
asked to, and wires the registry into an orchestrator.
*/
func setup(ctx context.Context) (*host, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	metrics.Init()
	if cfg.Metrics.Addr != "" {
		serveMetrics(ctx, cfg.Metrics.Addr, logger)
	}

	reg, err := registry.New(cfg.Servers...)
	if err != nil {
		return nil, err
	}

	factory := adapter.NewFactory(builtins(cfg, logger), logger)

	orch := orchestrator.New(reg, factory,
		orchestrator.WithDiscoveryTimeout(cfg.Timeouts.Discovery),
		orchestrator.WithInvocationTimeout(cfg.Timeouts.Invocation),
		orchestrator.WithLogger(logger),
	)

	return &host{cfg: cfg, logger: logger, orch: orch}, nil
}

func newLogger(level string) (*log.Logger, error) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "mcphost",
		Level:           parsed,
	})
	log.SetDefault(logger)

	return logger, nil
}

func builtins(cfg *config.Config, logger *log.Logger) adapter.Builtins {
	return func(name string) (*server.MCPServer, error) {
		return backends.New(name, backends.Options{
			Environment: cfg.Environment,
			LogLevel:    cfg.Log.Level,
			Logger:      logger,
		})
	}
}

func serveMetrics(ctx context.Context, addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
}
