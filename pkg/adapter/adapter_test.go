package adapter

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/mock"
	"github.com/theapemachine/mcp-host-orchestrator/core"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/backends"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/registry"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

type slowTool struct {
	delay time.Duration
}

func (tool slowTool) Handle() mcp.Tool {
	return mcp.NewTool("slow", mcp.WithDescription("Sleeps"))
}

func (tool slowTool) Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	time.Sleep(tool.delay)
	return mcp.NewToolResultText("done"), nil
}

func filesServer() *server.MCPServer {
	s, err := backends.New("files", backends.Options{Logger: log.New(io.Discard)})
	So(err, ShouldBeNil)
	return s
}

func TestInProcess(t *testing.T) {
	Convey("Given an in-process adapter over the files backend", t, func() {
		a := NewInProcess("files", filesServer())
		ctx := context.Background()

		Convey("Discover should report example_tool with its schema", func() {
			defs, err := a.Discover(ctx)
			So(err, ShouldBeNil)
			So(defs, ShouldHaveLength, 1)
			So(defs[0].Name, ShouldEqual, "example_tool")
			So(defs[0].InputSchema.Required, ShouldResemble, []string{"message"})
		})

		Convey("Invoke should return the tool content", func() {
			content, err := a.Invoke(ctx, "example_tool", map[string]any{"message": "hi"})
			So(err, ShouldBeNil)
			So(tools.Text(content), ShouldEqual, "Echo: hi")
		})

		Convey("A tool reporting isError should fail with its own text", func() {
			content, err := a.Invoke(ctx, "example_tool", nil)
			So(errors.Is(err, tools.ErrToolFailed), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "missing required parameter")
			So(content, ShouldNotBeEmpty)
		})

		Convey("An unknown tool should be a tool failure", func() {
			_, err := a.Invoke(ctx, "nope", nil)
			So(errors.Is(err, tools.ErrToolFailed), ShouldBeTrue)
		})

		Convey("A closed adapter should refuse requests", func() {
			So(a.Close(), ShouldBeNil)
			_, err := a.Discover(ctx)
			So(errors.Is(err, tools.ErrConnect), ShouldBeTrue)
		})
	})

	Convey("Given an in-process adapter over a slow tool", t, func() {
		s := core.NewServer("slow", "0.0.1", []core.Tool{slowTool{delay: 300 * time.Millisecond}})
		a := NewInProcess("slow", s)

		_, err := a.Discover(context.Background())
		So(err, ShouldBeNil)

		Convey("A timed-out call should return promptly as a timeout", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := a.Invoke(ctx, "slow", nil)
			So(errors.Is(err, tools.ErrTimeout), ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, 250*time.Millisecond)

			Convey("and must not block the next call", func() {
				defs, err := a.Discover(context.Background())
				So(err, ShouldBeNil)
				So(defs, ShouldHaveLength, 1)
			})
		})
	})
}

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	args := m.Called(ctx, request)
	result, _ := args.Get(0).(*mcp.InitializeResult)
	return result, args.Error(1)
}

func (m *MockClient) ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	args := m.Called(ctx, request)
	result, _ := args.Get(0).(*mcp.ListToolsResult)
	return result, args.Error(1)
}

func (m *MockClient) CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := m.Called(ctx, request)
	result, _ := args.Get(0).(*mcp.CallToolResult)
	return result, args.Error(1)
}

func (m *MockClient) Close() error {
	return m.Called().Error(0)
}

func TestRemote(t *testing.T) {
	Convey("Given a remote adapter with a mocked client", t, func() {
		ctx := context.Background()
		dials := 0
		c := new(MockClient)
		c.On("Initialize", mock.Anything, mock.Anything).Return(&mcp.InitializeResult{}, nil)
		c.On("Close").Return(nil)

		r := NewRemote("remote", func(context.Context) (Client, error) {
			dials++
			return c, nil
		}, log.New(io.Discard))

		Convey("Discover should connect once and reuse the session", func() {
			c.On("ListTools", mock.Anything, mock.Anything).Return(&mcp.ListToolsResult{
				Tools: []mcp.Tool{mcp.NewTool("echo", mcp.WithString("message", mcp.Required()))},
			}, nil)

			for i := 0; i < 2; i++ {
				defs, err := r.Discover(ctx)
				So(err, ShouldBeNil)
				So(defs[0].Name, ShouldEqual, "echo")
			}

			So(dials, ShouldEqual, 1)
			c.AssertNumberOfCalls(t, "Initialize", 1)
		})

		Convey("A broken transport should drop the session", func() {
			c.On("CallTool", mock.Anything, mock.Anything).Return(nil, io.EOF).Once()
			c.On("CallTool", mock.Anything, mock.Anything).Return(mcp.NewToolResultText("back"), nil)

			_, err := r.Invoke(ctx, "echo", nil)
			So(errors.Is(err, tools.ErrConnect), ShouldBeTrue)

			content, err := r.Invoke(ctx, "echo", nil)
			So(err, ShouldBeNil)
			So(tools.Text(content), ShouldEqual, "back")
			So(dials, ShouldEqual, 2)
		})

		Convey("A backend error should be a tool failure", func() {
			c.On("CallTool", mock.Anything, mock.Anything).Return(nil, errors.New("tool exploded"))

			_, err := r.Invoke(ctx, "echo", map[string]any{"message": "x"})
			So(errors.Is(err, tools.ErrToolFailed), ShouldBeTrue)
			So(dials, ShouldEqual, 1)
		})

		Convey("An isError result should be a tool failure", func() {
			c.On("CallTool", mock.Anything, mock.Anything).Return(mcp.NewToolResultError("bad input"), nil)

			_, err := r.Invoke(ctx, "echo", nil)
			So(errors.Is(err, tools.ErrToolFailed), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "bad input")
		})

		Convey("The call should carry the local name and arguments", func() {
			c.On("CallTool", mock.Anything, mock.MatchedBy(func(req mcp.CallToolRequest) bool {
				return req.Params.Name == "echo" && req.Params.Arguments["message"] == "x"
			})).Return(mcp.NewToolResultText("ok"), nil)

			_, err := r.Invoke(ctx, "echo", map[string]any{"message": "x"})
			So(err, ShouldBeNil)
		})
	})

	Convey("Given a remote adapter whose dial fails", t, func() {
		r := NewRemote("down", func(context.Context) (Client, error) {
			return nil, errors.New("connection refused")
		}, log.New(io.Discard))

		Convey("Discover should report a connect error", func() {
			_, err := r.Discover(context.Background())
			So(errors.Is(err, tools.ErrConnect), ShouldBeTrue)
		})
	})
}

func TestRemoteConnectWait(t *testing.T) {
	Convey("Given a remote adapter whose dial hangs until released", t, func() {
		release := make(chan struct{})
		var dials atomic.Int32

		c := new(MockClient)
		c.On("Initialize", mock.Anything, mock.Anything).Return(&mcp.InitializeResult{}, nil)
		c.On("ListTools", mock.Anything, mock.Anything).Return(&mcp.ListToolsResult{}, nil)
		c.On("Close").Return(nil)

		r := NewRemote("hung", func(ctx context.Context) (Client, error) {
			dials.Add(1)
			select {
			case <-release:
				return c, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}, log.New(io.Discard))

		first := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := r.Discover(ctx)
			first <- err
		}()

		for dials.Load() == 0 {
			time.Sleep(time.Millisecond)
		}

		Convey("A second caller should give up on its own deadline", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := r.Invoke(ctx, "echo", nil)
			So(errors.Is(err, tools.ErrTimeout), ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, 500*time.Millisecond)

			Convey("while the first caller still gets the shared connect", func() {
				close(release)
				So(<-first, ShouldBeNil)
				So(int(dials.Load()), ShouldEqual, 1)
			})
		})
	})
}

func TestFactory(t *testing.T) {
	Convey("Given a factory with the built-in servers", t, func() {
		factory := NewFactory(func(name string) (*server.MCPServer, error) {
			return backends.New(name, backends.Options{Logger: log.New(io.Discard)})
		}, log.New(io.Discard))

		Convey("inproc endpoints should resolve to in-process adapters", func() {
			a, err := factory.New(registry.ServerDescriptor{ID: "core", Endpoint: "inproc://core"})
			So(err, ShouldBeNil)
			So(a, ShouldHaveSameTypeAs, &InProcess{})
			So(a.ServerID(), ShouldEqual, "core")
		})

		Convey("http endpoints should resolve to remote adapters without connecting", func() {
			a, err := factory.New(registry.ServerDescriptor{ID: "far", Endpoint: "http://127.0.0.1:1/sse"})
			So(err, ShouldBeNil)
			So(a, ShouldHaveSameTypeAs, &Remote{})
		})

		Convey("Unusable endpoints should be connect errors", func() {
			for _, endpoint := range []string{"ftp://x", "stdio:", "inproc://mail"} {
				_, err := factory.New(registry.ServerDescriptor{ID: "x", Endpoint: endpoint})
				So(errors.Is(err, tools.ErrConnect), ShouldBeTrue)
			}
		})
	})
}
