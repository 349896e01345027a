package database

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/mcp-host-orchestrator/core"
)

func invoke(tool core.Tool, args map[string]any) (string, bool) {
	var req mcp.CallToolRequest
	req.Params.Name = tool.Handle().Name
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	So(err, ShouldBeNil)

	buf, _ := json.Marshal(result)
	var decoded struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	So(json.Unmarshal(buf, &decoded), ShouldBeNil)
	So(decoded.Content, ShouldNotBeEmpty)
	return decoded.Content[0].Text, result.IsError
}

func TestDatabaseTools(t *testing.T) {
	Convey("Given the database backend", t, func() {
		tools := Tools(NewStore())
		query, insert, schema := tools[0], tools[1], tools[2]

		Convey("Handles should carry reflected schemas", func() {
			buf, err := json.Marshal(insert.Handle())
			So(err, ShouldBeNil)
			So(string(buf), ShouldContainSubstring, `"table"`)
			So(string(buf), ShouldContainSubstring, `"required":["table","data"]`)
		})

		Convey("query_database should reject non-SELECT statements", func() {
			text, isErr := invoke(query, map[string]any{"query": "DELETE FROM users"})
			So(isErr, ShouldBeTrue)
			So(text, ShouldContainSubstring, "Only SELECT")
		})

		Convey("query_database should return matching rows", func() {
			text, isErr := invoke(query, map[string]any{
				"query":  "SELECT id, name FROM users WHERE id = $1",
				"params": []any{2.0},
			})
			So(isErr, ShouldBeFalse)

			var out map[string]any
			So(json.Unmarshal([]byte(text), &out), ShouldBeNil)
			So(out["rowCount"], ShouldEqual, 1.0)
		})

		Convey("insert_record should return a generated id", func() {
			text, isErr := invoke(insert, map[string]any{
				"table": "users",
				"data":  map[string]any{"name": "Ada", "email": "ada@example.com"},
			})
			So(isErr, ShouldBeFalse)

			var out map[string]any
			So(json.Unmarshal([]byte(text), &out), ShouldBeNil)
			So(out["success"], ShouldEqual, true)
			So(out["insertedId"], ShouldEqual, 3.0)
		})

		Convey("get_database_schema should filter by table", func() {
			text, isErr := invoke(schema, map[string]any{"table": "posts"})
			So(isErr, ShouldBeFalse)
			So(text, ShouldContainSubstring, "user_id")
			So(text, ShouldNotContainSubstring, "email")
		})

		Convey("get_database_schema should fail for an unknown table", func() {
			_, isErr := invoke(schema, map[string]any{"table": "ghosts"})
			So(isErr, ShouldBeTrue)
		})
	})
}

func TestStoreQuery(t *testing.T) {
	store := NewStore()

	cases := []struct {
		query string
		rows  int
		err   error
	}{
		{"SELECT * FROM users", 2, nil},
		{"select name from users limit 1", 1, nil},
		{"SELECT * FROM posts WHERE user_id = 1;", 1, nil},
		{"SELECT * FROM users WHERE name = 'Jane Smith'", 1, nil},
		{"SELECT * FROM nothing", 0, ErrUnknownTable},
		{"SELECT nope FROM users", 0, ErrBadQuery},
		{"UPDATE users SET name = 'x'", 0, ErrNotSelect},
	}

	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			rows, err := store.Query(tc.query, nil)
			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rows, tc.rows)
		})
	}
}
