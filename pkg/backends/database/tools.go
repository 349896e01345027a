// Package database implements the database backend over an in-memory table
// set.
package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/theapemachine/mcp-host-orchestrator/core"
)

type QueryInput struct {
	Query  string `json:"query" jsonschema_description:"SQL SELECT query to execute"`
	Params []any  `json:"params,omitempty" jsonschema_description:"Query parameters bound to $1..$n or ?"`
}

type InsertInput struct {
	Table string         `json:"table" jsonschema_description:"Table name"`
	Data  map[string]any `json:"data" jsonschema_description:"Record data to insert"`
}

type SchemaInput struct {
	Table string `json:"table,omitempty" jsonschema_description:"Specific table name (optional)"`
}

// GenerateSchema reflects the JSON schema of T's arguments.
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}

	var v T
	buf, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		panic(err)
	}

	out := map[string]any{}
	if err := json.Unmarshal(buf, &out); err != nil {
		panic(err)
	}

	delete(out, "$schema")
	delete(out, "$id")
	return out
}

func newHandle[T any](name, description string) mcp.Tool {
	handle, err := core.NewToolFromSchema(name, description, GenerateSchema[T]())
	if err != nil {
		panic(errors.Wrapf(err, "tool %s", name))
	}
	return handle
}

// decode reads the request arguments into v.
func decode(request mcp.CallToolRequest, v any) error {
	buf, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return errors.Mark(err, core.ErrInvalidParams)
	}
	return nil
}

// Tools returns the tools of the database backend, all sharing store.
func Tools(store *Store) []core.Tool {
	return []core.Tool{
		NewQueryTool(store),
		NewInsertTool(store),
		NewSchemaTool(store),
	}
}

type QueryTool struct {
	handle mcp.Tool
	store  *Store
}

func NewQueryTool(store *Store) *QueryTool {
	return &QueryTool{
		handle: newHandle[QueryInput]("query_database", "Execute a SELECT query on the database"),
		store:  store,
	}
}

func (tool *QueryTool) Handle() mcp.Tool {
	return tool.handle
}

func (tool *QueryTool) Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in QueryInput
	if err := decode(request, &in); err != nil {
		return core.ParameterError(err), nil
	}

	rows, err := tool.store.Query(in.Query, in.Params)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	params := in.Params
	if params == nil {
		params = []any{}
	}

	return core.NewJSONResult(map[string]any{
		"rows":     rows,
		"rowCount": len(rows),
		"query":    in.Query,
		"params":   params,
	})
}

type InsertTool struct {
	handle mcp.Tool
	store  *Store
}

func NewInsertTool(store *Store) *InsertTool {
	return &InsertTool{
		handle: newHandle[InsertInput]("insert_record", "Insert a new record into a table"),
		store:  store,
	}
}

func (tool *InsertTool) Handle() mcp.Tool {
	return tool.handle
}

func (tool *InsertTool) Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in InsertInput
	if err := decode(request, &in); err != nil {
		return core.ParameterError(err), nil
	}

	id, err := tool.store.Insert(in.Table, in.Data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return core.NewJSONResult(map[string]any{
		"success":    true,
		"table":      in.Table,
		"insertedId": id,
		"data":       in.Data,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type SchemaTool struct {
	handle mcp.Tool
	store  *Store
}

func NewSchemaTool(store *Store) *SchemaTool {
	return &SchemaTool{
		handle: newHandle[SchemaInput]("get_database_schema", "Get database schema information"),
		store:  store,
	}
}

func (tool *SchemaTool) Handle() mcp.Tool {
	return tool.handle
}

func (tool *SchemaTool) Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in SchemaInput
	if err := decode(request, &in); err != nil {
		return core.ParameterError(err), nil
	}

	names := tool.store.Tables()
	if in.Table != "" {
		names = []string{in.Table}
	}

	tables := make(map[string][]Column, len(names))
	for _, name := range names {
		cols, err := tool.store.Columns(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		tables[name] = cols
	}

	return core.NewJSONResult(map[string]any{"tables": tables})
}
