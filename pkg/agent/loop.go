package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/metrics"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/orchestrator"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/provider"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

/*
Run appends userMessage to history and alternates between the model and the
tools until the model answers without asking for a tool, the iteration cap is
spent, or the model fails. A failing tool never ends the run; its error goes
back to the model as a tool result.

If ctx is cancelled Run returns (nil, ctx.Err()) and nothing of the turn is
kept.
*/
func (l *Loop) Run(ctx context.Context, userMessage string, history []provider.Message) (*Result, error) {
	messages := make([]provider.Message, 0, len(history)+1+2*l.maxIterations)
	messages = append(messages, history...)
	messages = append(messages, provider.UserMessage(userMessage))

	result := &Result{}
	var answer []string

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		result.Iterations = iteration

		// Each round trip sees the catalog as it is now.
		catalog := l.orch.Catalog()

		response, err := l.send(ctx, iteration, messages, specs(catalog))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			answer = append(answer, fmt.Sprintf("[model error: %s]", err))
			result.Err = err
			return l.finish(result, StopModelError, answer, messages), nil
		}

		blocks, uses := normalize(response.Blocks)

		for _, block := range blocks {
			if block.Type == provider.BlockText && block.Text != "" {
				answer = append(answer, block.Text)
			}
		}

		if len(uses) == 0 {
			if len(blocks) > 0 {
				messages = append(messages, provider.Message{Role: provider.RoleAssistant, Blocks: blocks})
			}
			return l.finish(result, StopDone, answer, messages), nil
		}

		records := l.execute(ctx, catalog, iteration, uses)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		results := make([]provider.Block, len(records))
		for i, record := range records {
			results[i] = resultBlock(record)
			if l.hooks.OnToolResult != nil {
				l.hooks.OnToolResult(record)
			}
		}

		messages = append(messages,
			provider.Message{Role: provider.RoleAssistant, Blocks: blocks},
			provider.Message{Role: provider.RoleUser, Blocks: results},
		)
		result.Trace = append(result.Trace, records...)
	}

	result.Err = errors.Mark(
		errors.Newf("model still requested tools after %d round trips", l.maxIterations),
		tools.ErrLoopExceeded,
	)
	answer = append(answer, fmt.Sprintf("[stopped: reached the limit of %d tool round trips]", l.maxIterations))

	return l.finish(result, StopLoopExceeded, answer, messages), nil
}

func (l *Loop) finish(result *Result, stop Stop, answer []string, messages []provider.Message) *Result {
	result.Stop = stop
	result.Answer = strings.Join(answer, "\n")
	result.Messages = messages

	metrics.RecordLoopStop(string(stop), result.Iterations)
	l.logger.Info("Run finished", "stop", stop, "iterations", result.Iterations, "tools", len(result.Trace))

	return result
}

// send makes one model call under the model timeout. A deadline that is the
// model timeout's, not the caller's, becomes ErrModelTimeout.
func (l *Loop) send(ctx context.Context, iteration int, messages []provider.Message, toolSpecs []provider.ToolSpec) (*provider.Response, error) {
	callCtx := ctx
	if l.modelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.modelTimeout)
		defer cancel()
	}

	l.logger.Debug("Calling model", "provider", l.model.Name(), "iteration", iteration, "tools", len(toolSpecs))

	start := time.Now()
	response, err := l.model.Send(callCtx, l.systemPrompt, messages, toolSpecs)
	if err == nil && response == nil {
		err = errors.New("model returned no response")
	}

	if err != nil && ctx.Err() == nil &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)) {
		err = errors.Mark(errors.Wrapf(err, "after %s", l.modelTimeout), tools.ErrModelTimeout)
	}

	if ctx.Err() == nil {
		metrics.RecordModelCall(l.model.Name(), time.Since(start), err)
	}

	if l.hooks.OnModelCall != nil {
		l.hooks.OnModelCall(iteration, response, err)
	}

	if err != nil {
		l.logger.Warn("Model call failed", "iteration", iteration, "error", err)
		return nil, err
	}

	return response, nil
}

// execute runs every tool use and returns the records in the order the model
// emitted the uses, however the calls interleave.
func (l *Loop) execute(ctx context.Context, catalog *orchestrator.Catalog, iteration int, uses []provider.Block) []InvocationRecord {
	records := make([]InvocationRecord, len(uses))

	if l.sequential || len(uses) == 1 {
		for i, use := range uses {
			records[i] = l.invoke(ctx, catalog, iteration, use)
		}
		return records
	}

	wg := conc.NewWaitGroup()
	for i, use := range uses {
		wg.Go(func() {
			records[i] = l.invoke(ctx, catalog, iteration, use)
		})
	}
	wg.Wait()

	return records
}

/*
invoke resolves one tool use against the catalog the model was shown,
validates its arguments, and only then dispatches it. Unknown tools and
invalid arguments never reach a backend.
*/
func (l *Loop) invoke(ctx context.Context, catalog *orchestrator.Catalog, iteration int, use provider.Block) InvocationRecord {
	record := InvocationRecord{
		ToolUseID:     use.ID,
		QualifiedName: use.Name,
		Arguments:     use.Arguments,
		Iteration:     iteration,
	}

	start := time.Now()

	var (
		content []tools.Content
		err     error
	)

	if descriptor, ok := catalog.Get(use.Name); !ok {
		err = errors.Mark(errors.Newf("%s is not in the tool catalog", use.Name), tools.ErrToolNotFound)
	} else if use.ArgumentsErr != nil {
		err = errors.Wrapf(use.ArgumentsErr, "%s", use.Name)
	} else if err = tools.Validate(descriptor.InputSchema, use.Arguments); err != nil {
		err = errors.Wrapf(err, "%s", use.Name)
	} else {
		content, err = l.orch.Dispatch(ctx, use.Name, use.Arguments)
	}

	record.Duration = time.Since(start)
	record.Result = content

	if err != nil {
		record.Error = err.Error()
		record.ErrorKind = tools.Kind(err)
		l.logger.Debug("Tool use failed", "tool", use.Name, "kind", record.ErrorKind, "error", err)
	}

	return record
}

func resultBlock(record InvocationRecord) provider.Block {
	if record.Failed() {
		return provider.ToolResultBlock(
			record.ToolUseID,
			fmt.Sprintf("Error (%s): %s", record.ErrorKind, record.Error),
			true,
		)
	}

	text := tools.Text(record.Result)
	if text == "" {
		text = "(no output)"
	}
	return provider.ToolResultBlock(record.ToolUseID, text, false)
}

// normalize copies the response blocks, giving every tool use an ID that is
// unique within the turn, and returns the tool uses in emitted order.
func normalize(in []provider.Block) (blocks, uses []provider.Block) {
	blocks = make([]provider.Block, 0, len(in))
	seen := make(map[string]bool, len(in))

	for _, block := range in {
		if block.Type == provider.BlockToolUse {
			if block.ID == "" || seen[block.ID] {
				block.ID = "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			}
			seen[block.ID] = true
			uses = append(uses, block)
		}
		blocks = append(blocks, block)
	}

	return blocks, uses
}

func specs(catalog *orchestrator.Catalog) []provider.ToolSpec {
	descriptors := catalog.Tools()
	out := make([]provider.ToolSpec, 0, len(descriptors))

	for _, d := range descriptors {
		out = append(out, provider.ToolSpec{
			Name:        d.QualifiedName,
			Description: d.Description,
			InputSchema: d.InputSchema.Map(),
		})
	}

	return out
}
