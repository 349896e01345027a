package gateway

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/server"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/adapter"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/backends"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/orchestrator"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/registry"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

func newOrchestrator() *orchestrator.Orchestrator {
	reg, err := registry.New(
		registry.ServerDescriptor{ID: "core", Endpoint: "inproc://core", Enabled: true, Tools: []string{"get_health"}},
		registry.ServerDescriptor{ID: "files", Endpoint: "inproc://files", Enabled: true},
	)
	So(err, ShouldBeNil)

	quiet := log.New(io.Discard)
	factory := adapter.NewFactory(func(name string) (*server.MCPServer, error) {
		return backends.New(name, backends.Options{Logger: quiet})
	}, quiet)

	o := orchestrator.New(reg, factory, orchestrator.WithLogger(quiet))
	So(o.Refresh(context.Background()).Failed(), ShouldBeEmpty)
	return o
}

type stubDispatcher struct {
	catalog *orchestrator.Catalog
}

func (s stubDispatcher) Catalog() *orchestrator.Catalog { return s.catalog }

func (s stubDispatcher) Dispatch(ctx context.Context, name string, args map[string]any) ([]tools.Content, error) {
	return []tools.Content{tools.NewTextContent(name)}, nil
}

func TestGateway(t *testing.T) {
	Convey("Given a gateway over the core and files backends", t, func() {
		o := newOrchestrator()
		defer o.Close()

		s, err := New(o, Options{Logger: log.New(io.Discard)})
		So(err, ShouldBeNil)

		client := adapter.NewInProcess("gateway", s)
		ctx := context.Background()

		Convey("It should list the catalog under wire-safe names", func() {
			defs, err := client.Discover(ctx)
			So(err, ShouldBeNil)

			names := make([]string, 0, len(defs))
			for _, def := range defs {
				names = append(names, def.Name)
			}
			So(names, ShouldContain, "core__get_health")
			So(names, ShouldContain, "files__example_tool")
			So(names, ShouldHaveLength, 2)
		})

		Convey("Calls should reach the owning backend", func() {
			content, err := client.Invoke(ctx, "core__get_health", nil)
			So(err, ShouldBeNil)

			var payload map[string]any
			So(json.Unmarshal([]byte(tools.Text(content)), &payload), ShouldBeNil)
			So(payload["status"], ShouldEqual, "healthy")

			content, err = client.Invoke(ctx, "files__example_tool", map[string]any{"message": "hi"})
			So(err, ShouldBeNil)
			So(tools.Text(content), ShouldEqual, "Echo: hi")
		})

		Convey("Dispatch failures should come back as tool errors", func() {
			So(o.SetEnabled("files", false), ShouldBeNil)

			_, err := client.Invoke(ctx, "files__example_tool", map[string]any{"message": "hi"})
			So(errors.Is(err, tools.ErrToolFailed), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "tool_not_found")
		})
	})

	Convey("Given a gateway that keeps qualified names", t, func() {
		o := newOrchestrator()
		defer o.Close()

		s, err := New(o, Options{QualifiedNames: true, Logger: log.New(io.Discard)})
		So(err, ShouldBeNil)

		content, err := adapter.NewInProcess("gateway", s).Invoke(context.Background(), "files/example_tool", map[string]any{"message": "x"})

		Convey("Tools should be callable by their qualified name", func() {
			So(err, ShouldBeNil)
			So(tools.Text(content), ShouldEqual, "Echo: x")
		})
	})

	Convey("Given qualified names that rewrite to the same wire name", t, func() {
		orch := stubDispatcher{catalog: orchestrator.NewCatalog([]tools.Descriptor{
			tools.NewDescriptor("a", tools.Definition{Name: "b__c", InputSchema: tools.NewInputSchema(nil)}),
			tools.NewDescriptor("a__b", tools.Definition{Name: "c", InputSchema: tools.NewInputSchema(nil)}),
		})}

		s, err := New(orch, Options{Logger: log.New(io.Discard)})
		So(err, ShouldBeNil)

		client := adapter.NewInProcess("gateway", s)
		ctx := context.Background()

		Convey("Both tools should be exported under distinct names", func() {
			defs, err := client.Discover(ctx)
			So(err, ShouldBeNil)
			So(defs, ShouldHaveLength, 2)

			names := []string{defs[0].Name, defs[1].Name}
			So(names, ShouldContain, "a__b__c")
			So(names, ShouldContain, "a__b__c_2")
		})

		Convey("Each exported name should reach its own tool", func() {
			content, err := client.Invoke(ctx, "a__b__c", nil)
			So(err, ShouldBeNil)
			So(tools.Text(content), ShouldEqual, "a/b__c")

			content, err = client.Invoke(ctx, "a__b__c_2", nil)
			So(err, ShouldBeNil)
			So(tools.Text(content), ShouldEqual, "a__b/c")
		})
	})
}
