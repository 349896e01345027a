// Package agent drives one user turn through a bounded exchange between a
// language model and the orchestrated tools.
package agent

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/orchestrator"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/provider"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

const DefaultMaxIterations = 10

// Dispatcher is the part of the orchestrator the loop needs.
type Dispatcher interface {
	Catalog() *orchestrator.Catalog
	Dispatch(ctx context.Context, qualifiedName string, args map[string]any) ([]tools.Content, error)
}

// Stop is the reason a run ended.
type Stop string

const (
	StopDone         Stop = "done"
	StopLoopExceeded Stop = "loop_exceeded"
	StopModelError   Stop = "model_error"
)

// InvocationRecord describes one tool use the model asked for and what came
// of it.
type InvocationRecord struct {
	ToolUseID     string          `json:"toolUseId"`
	QualifiedName string          `json:"qualifiedName"`
	Arguments     map[string]any  `json:"arguments,omitempty"`
	Result        []tools.Content `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	ErrorKind     string          `json:"errorKind,omitempty"`
	Duration      time.Duration   `json:"duration"`
	Iteration     int             `json:"iteration"`
}

// Failed reports whether the invocation produced an error result.
func (record InvocationRecord) Failed() bool {
	return record.Error != ""
}

/*
Result is the outcome of Run. Answer holds the model's text in order, plus a
bracketed notice when the run did not end with StopDone. Err is set for
StopLoopExceeded (ErrLoopExceeded) and StopModelError (the model error).
Messages is the full conversation including history, ready to pass to the
next Run.
*/
type Result struct {
	Answer     string
	Stop       Stop
	Err        error
	Trace      []InvocationRecord
	Messages   []provider.Message
	Iterations int
}

// Hooks observe a run. They must not block for long and cannot change it.
type Hooks struct {
	OnModelCall  func(iteration int, response *provider.Response, err error)
	OnToolResult func(record InvocationRecord)
}

type Option func(*Loop)

// WithMaxIterations caps the number of model round trips per run.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithModelTimeout bounds each model call. Zero leaves only the caller's
// context in charge.
func WithModelTimeout(d time.Duration) Option {
	return func(l *Loop) {
		l.modelTimeout = d
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(l *Loop) {
		l.systemPrompt = prompt
	}
}

// WithSequential dispatches the tool uses of one response one at a time.
func WithSequential(sequential bool) Option {
	return func(l *Loop) {
		l.sequential = sequential
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger.WithPrefix("agent")
		}
	}
}

func WithHooks(hooks Hooks) Option {
	return func(l *Loop) {
		l.hooks = hooks
	}
}

// Loop is safe for concurrent use; each Run owns its own conversation.
type Loop struct {
	model         provider.Provider
	orch          Dispatcher
	maxIterations int
	modelTimeout  time.Duration
	systemPrompt  string
	sequential    bool
	hooks         Hooks
	logger        *log.Logger
}

func New(model provider.Provider, orch Dispatcher, opts ...Option) *Loop {
	l := &Loop{
		model:         model,
		orch:          orch,
		maxIterations: DefaultMaxIterations,
		logger:        log.Default().WithPrefix("agent"),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}
