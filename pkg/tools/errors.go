package tools

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Error kinds. Producers mark their errors with one of these so callers can
// test with errors.Is no matter how many times the error was wrapped.
var (
	ErrConnect        = errors.New("backend unreachable")
	ErrTimeout        = errors.New("backend timed out")
	ErrProtocol       = errors.New("malformed backend response")
	ErrToolNotFound   = errors.New("tool not found")
	ErrValidation     = errors.New("arguments do not satisfy the input schema")
	ErrToolFailed     = errors.New("tool reported a failure")
	ErrServerNotFound = errors.New("server not found")
	ErrModelTimeout   = errors.New("model call timed out")
	ErrLoopExceeded   = errors.New("tool round trip limit reached")
)

// Mark classifies err as kind. A nil err stays nil.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, kind)
}

// MarkContext classifies an error produced under ctx: a passed deadline
// becomes ErrTimeout, everything else becomes fallback.
func MarkContext(ctx context.Context, err error, fallback error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Mark(err, ErrTimeout)
	}

	return errors.Mark(err, fallback)
}

// Kind names the category of err for invocation records and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrToolNotFound):
		return "tool_not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnect):
		return "connect"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrToolFailed):
		return "tool_failed"
	case errors.Is(err, ErrServerNotFound):
		return "server_not_found"
	case errors.Is(err, ErrModelTimeout):
		return "model_timeout"
	case errors.Is(err, ErrLoopExceeded):
		return "loop_exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
