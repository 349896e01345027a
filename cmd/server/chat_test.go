package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/mock"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/adapter"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/agent"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/backends"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/orchestrator"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/provider"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/registry"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Send(ctx context.Context, system string, history []provider.Message, specs []provider.ToolSpec) (*provider.Response, error) {
	args := m.Called(ctx, system, history, specs)
	response, _ := args.Get(0).(*provider.Response)
	return response, args.Error(1)
}

func newTestSession(out io.Writer, model provider.Provider) *session {
	quiet := log.New(io.Discard)

	reg, err := registry.New(registry.Defaults()...)
	So(err, ShouldBeNil)

	factory := adapter.NewFactory(func(name string) (*server.MCPServer, error) {
		return backends.New(name, backends.Options{Logger: quiet})
	}, quiet)

	s := newSession(orchestrator.New(reg, factory, orchestrator.WithLogger(quiet)), out)
	s.loop = agent.New(model, s.orch, agent.WithLogger(quiet), agent.WithHooks(agent.Hooks{OnToolResult: s.printInvocation}))
	s.refresh(context.Background())

	return s
}

func TestSession(t *testing.T) {
	Convey("Given a chat session over the default servers", t, func() {
		out := &bytes.Buffer{}
		model := &MockProvider{}
		s := newTestSession(out, model)
		ctx := context.Background()

		Convey("/servers should list the registry", func() {
			So(s.handle(ctx, "/servers"), ShouldBeTrue)
			So(out.String(), ShouldContainSubstring, "database")
			So(out.String(), ShouldContainSubstring, "inproc://files")
		})

		Convey("/tools should list only enabled servers' tools", func() {
			s.handle(ctx, "/tools")
			So(out.String(), ShouldContainSubstring, "core/get_health")
			So(out.String(), ShouldNotContainSubstring, "files/example_tool")
		})

		Convey("/enable should rediscover", func() {
			s.handle(ctx, "/enable files")
			So(s.orch.Catalog().ByServer("files"), ShouldHaveLength, 1)

			Convey("and /disable should drop the tools again", func() {
				s.handle(ctx, "/disable files")
				So(s.orch.Catalog().ByServer("files"), ShouldBeEmpty)
			})
		})

		Convey("Bad commands should be reported", func() {
			s.handle(ctx, "/enable")
			s.handle(ctx, "/disable nope")
			s.handle(ctx, "/bogus")
			So(out.String(), ShouldContainSubstring, "usage: /enable")
			So(out.String(), ShouldContainSubstring, `error: server "nope"`)
			So(out.String(), ShouldContainSubstring, "unknown command /bogus")
		})

		Convey("Messages should run the agent and keep the history", func() {
			model.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&provider.Response{Blocks: []provider.Block{
				provider.ToolUseBlock("a", "core/get_health", nil),
			}}, nil).Once()
			model.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&provider.Response{Blocks: []provider.Block{
				provider.TextBlock("Healthy."),
			}}, nil).Once()

			So(s.handle(ctx, "how are things?"), ShouldBeTrue)
			So(out.String(), ShouldContainSubstring, "[tool] core/get_health ok")
			So(out.String(), ShouldContainSubstring, "Healthy.")
			So(s.history, ShouldHaveLength, 4)

			s.handle(ctx, "/reset")
			So(s.history, ShouldBeEmpty)
		})

		Convey("/quit should end the session", func() {
			So(s.handle(ctx, "/quit"), ShouldBeFalse)
			So(s.run(ctx, strings.NewReader("/servers\n/quit\n/tools\n")), ShouldBeNil)
			So(out.String(), ShouldNotContainSubstring, "TOOL\tDESCRIPTION")
		})
	})
}
