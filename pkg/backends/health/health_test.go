package health

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/mcp-host-orchestrator/core"
)

func call(tool core.Tool, args map[string]any) map[string]any {
	var req mcp.CallToolRequest
	req.Params.Name = tool.Handle().Name
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	So(err, ShouldBeNil)
	So(result.IsError, ShouldBeFalse)

	buf, err := json.Marshal(result)
	So(err, ShouldBeNil)

	var decoded struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	So(json.Unmarshal(buf, &decoded), ShouldBeNil)
	So(decoded.Content, ShouldHaveLength, 1)

	out := map[string]any{}
	So(json.Unmarshal([]byte(decoded.Content[0].Text), &out), ShouldBeNil)
	return out
}

func TestCoreTools(t *testing.T) {
	Convey("Given the core backend tools", t, func() {
		tools := Tools(ServiceInfo{Service: "mcp-core", Port: 8000, LogLevel: "info", Version: "1.0.0"})

		names := []string{}
		for _, tool := range tools {
			names = append(names, tool.Handle().Name)
		}

		Convey("It should expose get_health, get_metrics and get_config", func() {
			So(names, ShouldResemble, []string{"get_health", "get_metrics", "get_config"})
		})

		Convey("get_health should report a healthy status payload", func() {
			out := call(tools[0], nil)
			So(out["status"], ShouldEqual, "healthy")
			So(out["service"], ShouldEqual, "mcp-core")
			So(out, ShouldContainKey, "uptime")
			So(out, ShouldContainKey, "timestamp")
			So(out["memory"], ShouldContainKey, "heapUsed")
		})

		Convey("get_metrics should default to all metrics", func() {
			out := call(tools[1], nil)
			So(out, ShouldContainKey, "cpu")
			So(out, ShouldContainKey, "memory")
		})

		Convey("get_metrics should narrow to one metric", func() {
			out := call(tools[1], map[string]any{"metric": "memory"})
			So(out, ShouldContainKey, "memory")
			So(out, ShouldNotContainKey, "cpu")
		})

		Convey("get_config should report the service info", func() {
			out := call(tools[2], nil)
			So(out["service"], ShouldEqual, "mcp-core")
			So(out["port"], ShouldEqual, 8000.0)
			So(out["environment"], ShouldNotBeEmpty)
		})
	})
}
