// Package adapter talks to one backend tool server on behalf of the
// orchestrator.
package adapter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/server"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/registry"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

/*
Adapter is a session with one backend tool server. Implementations must be
safe for concurrent use; a request that times out must not hold up the next
one.
*/
type Adapter interface {
	ServerID() string
	Discover(ctx context.Context) ([]tools.Definition, error)
	Invoke(ctx context.Context, localName string, args map[string]any) ([]tools.Content, error)
	Close() error
}

// ClientName and ClientVersion identify the host during initialize.
const (
	ClientName    = "mcphost"
	ClientVersion = "1.0.0"
)

// Builtins resolves the name in an inproc:// endpoint to a server.
type Builtins func(name string) (*server.MCPServer, error)

/*
Factory turns a server descriptor into an adapter, picking the transport
from the endpoint scheme:

	inproc://<name>      built-in server, called in process
	http(s)://host/path  remote server over SSE
	stdio:<cmd> [args]   subprocess speaking MCP on stdin/stdout
*/
type Factory struct {
	builtins Builtins
	logger   *log.Logger
}

func NewFactory(builtins Builtins, logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Default()
	}

	return &Factory{
		builtins: builtins,
		logger:   logger.WithPrefix("adapter"),
	}
}

// New builds the adapter for d. It does not connect.
func (factory *Factory) New(d registry.ServerDescriptor) (Adapter, error) {
	endpoint := strings.TrimSpace(d.Endpoint)

	switch {
	case strings.HasPrefix(endpoint, "inproc://"):
		if factory.builtins == nil {
			return nil, errors.Mark(errors.Newf("server %q: no built-in servers available", d.ID), tools.ErrConnect)
		}

		s, err := factory.builtins(strings.TrimPrefix(endpoint, "inproc://"))
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "server %q", d.ID), tools.ErrConnect)
		}
		return NewInProcess(d.ID, s), nil

	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		return NewRemote(d.ID, SSEDialer(endpoint), factory.logger), nil

	case strings.HasPrefix(endpoint, "stdio:"):
		fields := strings.Fields(strings.TrimPrefix(endpoint, "stdio:"))
		if len(fields) == 0 {
			return nil, errors.Mark(errors.Newf("server %q: empty stdio command", d.ID), tools.ErrConnect)
		}
		return NewRemote(d.ID, StdioDialer(fields[0], nil, fields[1:]...), factory.logger), nil
	}

	return nil, errors.Mark(errors.Newf("server %q: unsupported endpoint %q", d.ID, d.Endpoint), tools.ErrConnect)
}

// callResult is the wire shape of a tools/call result.
type callResult struct {
	Content []tools.Content `json:"content"`
	IsError bool            `json:"isError"`
}

// listResult is the wire shape of a tools/list result.
type listResult struct {
	Tools []tools.Definition `json:"tools"`
}

/*
decodeDefinitions re-reads any JSON-marshalable tool listing as definitions.
Tools without a name are a protocol violation.
*/
func decodeDefinitions(v any) ([]tools.Definition, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode tools/list result"), tools.ErrProtocol)
	}

	var out listResult
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode tools/list result"), tools.ErrProtocol)
	}

	for i, def := range out.Tools {
		if def.Name == "" {
			return nil, errors.Mark(errors.Newf("tool #%d has no name", i), tools.ErrProtocol)
		}
	}

	return out.Tools, nil
}

/*
decodeCall re-reads a tools/call result. A result flagged isError comes back
with its content and an ErrToolFailed error carrying the tool's own text.
*/
func decodeCall(v any) ([]tools.Content, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode tools/call result"), tools.ErrProtocol)
	}

	var out callResult
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode tools/call result"), tools.ErrProtocol)
	}

	if out.IsError {
		msg := tools.Text(out.Content)
		if msg == "" {
			msg = "tool returned an error"
		}
		return out.Content, errors.Mark(errors.New(msg), tools.ErrToolFailed)
	}

	return out.Content, nil
}
