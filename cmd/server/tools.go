package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/orchestrator"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Discover the enabled backends and print the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer h.orch.Close()

		report := h.orch.Refresh(cmd.Context())
		out := cmd.OutOrStdout()

		printReport(out, report)
		fmt.Fprintln(out)
		printCatalog(out, h.orch.Catalog())

		return nil
	},
}

var callCmd = &cobra.Command{
	Use:   "call <server>/<tool> [json-arguments]",
	Short: "Dispatch one tool call and print its content",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var arguments map[string]any
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
				return errors.Wrap(err, "arguments must be a JSON object")
			}
		}

		h, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer h.orch.Close()

		h.orch.Refresh(cmd.Context())

		content, err := h.orch.Dispatch(cmd.Context(), args[0], arguments)
		if text := tools.Text(content); text != "" {
			fmt.Fprintln(cmd.OutOrStdout(), text)
		}
		if err != nil {
			return errors.WithMessagef(err, "call failed (%s)", tools.Kind(err))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
}

func printReport(out io.Writer, report orchestrator.Report) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER\tTOOLS\tTOOK\tSTATUS")

	for _, s := range report.Servers {
		status := "ok"
		if s.Err != nil {
			status = tools.Kind(s.Err) + ": " + s.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.ServerID, s.Tools, s.Duration.Round(time.Millisecond), status)
	}

	w.Flush()
}

func printCatalog(out io.Writer, catalog *orchestrator.Catalog) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION")

	for _, d := range catalog.Tools() {
		fmt.Fprintf(w, "%s\t%s\n", d.QualifiedName, d.Description)
	}

	w.Flush()
}
