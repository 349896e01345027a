package adapter

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
	"golang.org/x/sync/singleflight"
)

// Client is the part of an mcp-go client the adapter uses.
type Client interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer opens a transport to a backend. ctx bounds the connect only, the
// returned client lives until closed.
type Dialer func(ctx context.Context) (Client, error)

type sseClient struct {
	*client.SSEMCPClient
	cancel context.CancelFunc
}

func (c *sseClient) Close() error {
	c.cancel()
	return c.SSEMCPClient.Close()
}

// SSEDialer connects to an MCP server over HTTP server-sent events.
func SSEDialer(url string) Dialer {
	return func(ctx context.Context) (Client, error) {
		c, err := client.NewSSEMCPClient(url)
		if err != nil {
			return nil, err
		}

		// The event stream is bound to the context given to Start, so it
		// gets one of its own.
		lifetime, cancel := context.WithCancel(context.Background())

		started := make(chan error, 1)
		go func() {
			started <- c.Start(lifetime)
		}()

		select {
		case err := <-started:
			if err != nil {
				cancel()
				_ = c.Close()
				return nil, err
			}
		case <-ctx.Done():
			cancel()
			_ = c.Close()
			return nil, ctx.Err()
		}

		return &sseClient{SSEMCPClient: c, cancel: cancel}, nil
	}
}

// StdioDialer starts command and speaks MCP over its stdin and stdout.
func StdioDialer(command string, env []string, args ...string) Dialer {
	return func(ctx context.Context) (Client, error) {
		c, err := client.NewStdioMCPClient(command, env, args...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ConnectTimeout bounds one dial and initialize. Callers give up earlier on
// their own deadlines.
const ConnectTimeout = 30 * time.Second

/*
Remote is an adapter over an mcp-go client. It connects and initializes on
first use and drops the session after a transport failure, so the next call
dials again. The lock only guards the session pointer; concurrent connects
share one dial.
*/
type Remote struct {
	serverID string
	dial     Dialer
	logger   *log.Logger

	connectTimeout time.Duration

	dials singleflight.Group

	mu      sync.Mutex
	session Client
	closed  bool
}

func NewRemote(serverID string, dial Dialer, logger *log.Logger) *Remote {
	if logger == nil {
		logger = log.Default()
	}

	return &Remote{
		serverID:       serverID,
		dial:           dial,
		logger:         logger,
		connectTimeout: ConnectTimeout,
	}
}

func (r *Remote) ServerID() string {
	return r.serverID
}

func (r *Remote) Discover(ctx context.Context) ([]tools.Definition, error) {
	c, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, r.classify(ctx, c, errors.Wrap(err, "tools/list"), tools.ErrProtocol)
	}
	if result == nil {
		return nil, errors.Mark(errors.New("tools/list: empty result"), tools.ErrProtocol)
	}

	return decodeDefinitions(result)
}

func (r *Remote) Invoke(ctx context.Context, localName string, args map[string]any) ([]tools.Content, error) {
	c, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}

	if args == nil {
		args = map[string]any{}
	}

	var request mcp.CallToolRequest
	request.Params.Name = localName
	request.Params.Arguments = args

	result, err := c.CallTool(ctx, request)
	if err != nil {
		return nil, r.classify(ctx, c, errors.Wrapf(err, "tools/call %s", localName), tools.ErrToolFailed)
	}
	if result == nil {
		return nil, errors.Mark(errors.New("tools/call: empty result"), tools.ErrProtocol)
	}

	return decodeCall(result)
}

func (r *Remote) Close() error {
	r.mu.Lock()
	c := r.session
	r.session = nil
	r.closed = true
	r.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

/*
connect returns the live session or waits for one. A single dial runs at a
time and every caller waits for it under its own context, so a hung dial
costs each caller no more than its own deadline.
*/
func (r *Remote) connect(ctx context.Context) (Client, error) {
	r.mu.Lock()
	closed, c := r.closed, r.session
	r.mu.Unlock()

	if closed {
		return nil, r.closedErr()
	}
	if c != nil {
		return c, nil
	}

	dialCtx := context.WithoutCancel(ctx)

	select {
	case res := <-r.dials.DoChan(r.serverID, func() (any, error) {
		return r.establish(dialCtx)
	}):
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Client), nil
	case <-ctx.Done():
		return nil, tools.MarkContext(ctx, errors.Wrapf(ctx.Err(), "connect %q", r.serverID), tools.ErrConnect)
	}
}

// establish dials and publishes the session. It runs once per round of
// waiting callers.
func (r *Remote) establish(ctx context.Context) (Client, error) {
	r.mu.Lock()
	c := r.session
	r.mu.Unlock()
	if c != nil {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	c, err := r.handshake(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		_ = c.Close()
		return nil, r.closedErr()
	}

	r.session = c
	return c, nil
}

func (r *Remote) closedErr() error {
	return errors.Mark(errors.Newf("server %q: adapter closed", r.serverID), tools.ErrConnect)
}

func (r *Remote) handshake(ctx context.Context) (Client, error) {
	c, err := r.dial(ctx)
	if err != nil {
		return nil, tools.MarkContext(ctx, errors.Wrapf(err, "connect %q", r.serverID), tools.ErrConnect)
	}

	var request mcp.InitializeRequest
	request.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	request.Params.ClientInfo = mcp.Implementation{
		Name:    ClientName,
		Version: ClientVersion,
	}

	if _, err := c.Initialize(ctx, request); err != nil {
		_ = c.Close()
		return nil, tools.MarkContext(ctx, errors.Wrapf(err, "initialize %q", r.serverID), tools.ErrConnect)
	}

	r.logger.Debug("Connected", "server", r.serverID)
	return c, nil
}

/*
classify marks a failed request. Deadlines are timeouts and leave the session
alone; broken transports are connect errors and drop the session so the next
call reconnects; anything else is the backend answering with an error.
*/
func (r *Remote) classify(ctx context.Context, c Client, err error, fallback error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Mark(err, tools.ErrTimeout)
	}

	if !isTransport(err) {
		return errors.Mark(err, fallback)
	}

	r.mu.Lock()
	stale := r.session == c
	if stale {
		r.session = nil
	}
	r.mu.Unlock()

	if stale {
		r.logger.Warn("Dropping broken session", "server", r.serverID, "error", err)
		_ = c.Close()
	}

	return errors.Mark(err, tools.ErrConnect)
}

func isTransport(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	for _, target := range []error{
		io.EOF,
		io.ErrUnexpectedEOF,
		io.ErrClosedPipe,
		os.ErrClosed,
		syscall.EPIPE,
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
