package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/backends"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/gateway"
)

var qualifiedNames bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the aggregated catalog as one MCP server over stdio",
	Long: `Discover every enabled backend, then serve all of their tools as a single
MCP server on stdin/stdout. Tools are exported as <server>__<tool> unless
--qualified-names is set. The catalog is fixed at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer h.orch.Close()

		report := h.orch.Refresh(cmd.Context())
		for _, failed := range report.Failed() {
			h.logger.Warn("Backend unavailable", "server", failed.ServerID, "error", failed.Err)
		}

		s, err := gateway.New(h.orch, gateway.Options{
			Name:           "mcphost",
			Version:        backends.Version,
			QualifiedNames: qualifiedNames,
			Logger:         h.logger,
		})
		if err != nil {
			return err
		}

		h.logger.Info("Gateway started, waiting for requests...", "tools", report.Tools)
		return server.ServeStdio(s)
	},
}

var backendCmd = &cobra.Command{
	Use:       "backend <name>",
	Short:     "Serve one built-in backend over stdio",
	Args:      cobra.ExactArgs(1),
	ValidArgs: backends.Names(),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		s, err := builtins(h.cfg, h.logger)(args[0])
		if err != nil {
			return err
		}

		h.logger.Info("Backend started, waiting for requests...", "backend", args[0])
		return server.ServeStdio(s)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&qualifiedNames, "qualified-names", false, "export tools as <server>/<tool>")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backendCmd)
}
