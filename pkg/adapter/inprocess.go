package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

/*
InProcess frames JSON-RPC requests and hands them straight to an MCP server
living in the same process. Each request runs on its own goroutine so a
caller whose context expires returns at once.
*/
type InProcess struct {
	serverID    string
	server      *server.MCPServer
	nextID      atomic.Int64
	initialized atomic.Bool
	closed      atomic.Bool
}

func NewInProcess(serverID string, s *server.MCPServer) *InProcess {
	return &InProcess{
		serverID: serverID,
		server:   s,
	}
}

func (a *InProcess) ServerID() string {
	return a.serverID
}

func (a *InProcess) Discover(ctx context.Context) ([]tools.Definition, error) {
	result, err := a.request(ctx, "tools/list", map[string]any{})
	if err != nil {
		if isRPCError(err) {
			return nil, errors.Mark(err, tools.ErrProtocol)
		}
		return nil, err
	}
	return decodeDefinitions(result)
}

func (a *InProcess) Invoke(ctx context.Context, localName string, args map[string]any) ([]tools.Content, error) {
	if args == nil {
		args = map[string]any{}
	}

	result, err := a.request(ctx, "tools/call", map[string]any{
		"name":      localName,
		"arguments": args,
	})
	if err != nil {
		if isRPCError(err) {
			return nil, errors.Mark(err, tools.ErrToolFailed)
		}
		return nil, err
	}
	return decodeCall(result)
}

func (a *InProcess) Close() error {
	a.closed.Store(true)
	return nil
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type rpcError struct {
	code    int
	message string
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.message, e.code)
}

func isRPCError(err error) bool {
	var target *rpcError
	return errors.As(err, &target)
}

func (a *InProcess) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if a.closed.Load() {
		return nil, errors.Mark(errors.Newf("server %q: adapter closed", a.serverID), tools.ErrConnect)
	}

	if !a.initialized.Load() {
		if _, err := a.roundTrip(ctx, "initialize", map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": ClientName, "version": ClientVersion},
		}); err != nil {
			return nil, tools.MarkContext(ctx, errors.Wrap(err, "initialize"), tools.ErrConnect)
		}
		a.initialized.Store(true)
	}

	return a.roundTrip(ctx, method, params)
}

func (a *InProcess) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": mcp.JSONRPC_VERSION,
		"id":      a.nextID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode request"), tools.ErrProtocol)
	}

	done := make(chan mcp.JSONRPCMessage, 1)
	go func() {
		done <- a.server.HandleMessage(ctx, msg)
	}()

	var resp mcp.JSONRPCMessage
	select {
	case <-ctx.Done():
		return nil, tools.MarkContext(ctx, errors.Wrapf(ctx.Err(), "%s on %q", method, a.serverID), tools.ErrConnect)
	case resp = <-done:
	}

	if resp == nil {
		return nil, errors.Mark(errors.Newf("%s: empty response", method), tools.ErrProtocol)
	}

	buf, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s: encode response", method), tools.ErrProtocol)
	}

	var env rpcEnvelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s: decode response", method), tools.ErrProtocol)
	}

	if env.Error != nil {
		return nil, errors.Wrapf(&rpcError{code: env.Error.Code, message: env.Error.Message}, "%s", method)
	}

	if len(env.Result) == 0 {
		return nil, errors.Mark(errors.Newf("%s: response has no result", method), tools.ErrProtocol)
	}

	return env.Result, nil
}
