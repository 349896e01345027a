package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/agent"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/orchestrator"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/provider"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the model with every enabled backend's tools at hand",
	Long: `Read messages from stdin and answer each with the agent loop.

Commands:
  /tools            list the tool catalog
  /servers          list servers and whether they are enabled
  /refresh          rediscover the enabled servers
  /enable <id>      enable a server and rediscover
  /disable <id>     disable a server; its tools go away at once
  /reset            forget the conversation
  /quit             leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer h.orch.Close()

		model, err := provider.New(h.cfg.Model)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		s := newSession(h.orch, out)

		s.loop = agent.New(model, h.orch,
			agent.WithMaxIterations(h.cfg.Agent.MaxIterations),
			agent.WithModelTimeout(h.cfg.Timeouts.Model),
			agent.WithSystemPrompt(h.cfg.Agent.SystemPrompt),
			agent.WithSequential(h.cfg.Agent.Sequential),
			agent.WithLogger(h.logger.With("conversation", s.id)),
			agent.WithHooks(agent.Hooks{OnToolResult: s.printInvocation}),
		)

		s.refresh(cmd.Context())
		fmt.Fprintf(out, "Talking to %s. Type /quit to leave.\n", model.Name())

		return s.run(cmd.Context(), cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// session is one interactive conversation.
type session struct {
	id      string
	orch    *orchestrator.Orchestrator
	loop    *agent.Loop
	history []provider.Message
	out     io.Writer
}

func newSession(orch *orchestrator.Orchestrator, out io.Writer) *session {
	return &session{id: uuid.NewString(), orch: orch, out: out}
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(s.out, "> ")

		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		if !s.handle(ctx, scanner.Text()) {
			return nil
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle processes one input line and reports whether to keep going.
func (s *session) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}

	if !strings.HasPrefix(line, "/") {
		s.ask(ctx, line)
		return true
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return false
	case "/tools":
		printCatalog(s.out, s.orch.Catalog())
	case "/servers":
		s.printServers()
	case "/refresh":
		s.refresh(ctx)
	case "/enable", "/disable":
		if arg == "" {
			fmt.Fprintf(s.out, "usage: %s <server-id>\n", command)
			return true
		}
		if err := s.orch.SetEnabled(arg, command == "/enable"); err != nil {
			fmt.Fprintf(s.out, "error: %s\n", err)
			return true
		}
		if command == "/enable" {
			s.refresh(ctx)
		}
		fmt.Fprintf(s.out, "%s %sd, %d tools available\n", arg, command[1:], s.orch.Catalog().Len())
	case "/reset":
		s.history = nil
		fmt.Fprintln(s.out, "conversation cleared")
	default:
		fmt.Fprintf(s.out, "unknown command %s\n", command)
	}

	return true
}

func (s *session) ask(ctx context.Context, message string) {
	result, err := s.loop.Run(ctx, message, s.history)
	if err != nil {
		fmt.Fprintf(s.out, "cancelled: %s\n", err)
		return
	}

	s.history = result.Messages
	fmt.Fprintln(s.out, result.Answer)
}

func (s *session) refresh(ctx context.Context) {
	report := s.orch.Refresh(ctx)
	for _, failed := range report.Failed() {
		fmt.Fprintf(s.out, "warning: %s unavailable (%s)\n", failed.ServerID, tools.Kind(failed.Err))
	}
}

func (s *session) printServers() {
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER\tCATEGORY\tENABLED\tTOOLS\tENDPOINT")

	catalog := s.orch.Catalog()
	for _, d := range s.orch.Registry().List() {
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n", d.ID, d.Category, d.Enabled, len(catalog.ByServer(d.ID)), d.Endpoint)
	}

	w.Flush()
}

func (s *session) printInvocation(record agent.InvocationRecord) {
	status := "ok"
	if record.Failed() {
		status = record.ErrorKind
	}
	fmt.Fprintf(s.out, "  [tool] %s %s %s\n", record.QualifiedName, status, record.Duration.Round(time.Millisecond))
}
