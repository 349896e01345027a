package provider

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/config"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

const (
	defaultAnthropicModel = "claude-3-5-sonnet-20240620"
	defaultMaxTokens      = 4096
)

// Anthropic implements Provider for Anthropic Claude models
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates a new provider for Anthropic Claude models. Without an
// API key in cfg the client reads ANTHROPIC_API_KEY.
func NewAnthropic(cfg config.Model) *Anthropic {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	p := &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Name,
		maxTokens: cfg.MaxTokens,
	}

	if p.model == "" {
		p.model = defaultAnthropicModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = defaultMaxTokens
	}

	return p
}

func (p *Anthropic) Name() string {
	return "anthropic"
}

func (p *Anthropic) Send(ctx context.Context, system string, history []Message, specs []ToolSpec) (*Response, error) {
	names := newNameMap(specs)

	response, err := p.client.Messages.New(ctx, p.params(system, history, specs, names))
	if err != nil {
		return nil, errors.Wrap(err, "anthropic messages")
	}

	return fromAnthropic(response, names), nil
}

func (p *Anthropic) params(system string, history []Message, specs []ToolSpec, names *nameMap) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(p.model),
		MaxTokens: anthropic.Int(p.maxTokens),
		Messages:  anthropic.F(toAnthropicMessages(history, names)),
	}

	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(system),
		})
	}

	if len(specs) > 0 {
		params.Tools = anthropic.F(toAnthropicTools(specs, names))
	}

	return params
}

func toAnthropicTools(specs []ToolSpec, names *nameMap) []anthropic.ToolUnionUnionParam {
	out := make([]anthropic.ToolUnionUnionParam, 0, len(specs))

	for _, spec := range specs {
		tool := anthropic.ToolParam{
			Name:        anthropic.F(names.wire(spec.Name)),
			InputSchema: anthropic.F[interface{}](spec.InputSchema),
		}
		if spec.Description != "" {
			tool.Description = anthropic.F(spec.Description)
		}
		out = append(out, tool)
	}

	return out
}

func toAnthropicMessages(history []Message, names *nameMap) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))

	for _, msg := range history {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))

		for _, block := range msg.Blocks {
			switch block.Type {
			case BlockText:
				// The API rejects empty text blocks.
				if block.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(block.Text))
				}
			case BlockToolUse:
				args := block.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlockParam(block.ID, names.wire(block.Name), args))
			case BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolUseID, block.Content, block.IsError))
			}
		}

		if len(blocks) == 0 {
			continue
		}

		if msg.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}

	return out
}

func fromAnthropic(response *anthropic.Message, names *nameMap) *Response {
	out := &Response{StopReason: string(response.StopReason)}

	for _, block := range response.Content {
		switch block := block.AsUnion().(type) {
		case anthropic.TextBlock:
			out.Blocks = append(out.Blocks, TextBlock(block.Text))
		case anthropic.ToolUseBlock:
			out.Blocks = append(out.Blocks, decodedToolUse(block.ID, names.qualified(block.Name), block.Input))
		}
	}

	return out
}

// decodedToolUse builds a tool use from the raw arguments a model produced.
func decodedToolUse(id, name string, raw []byte) Block {
	args, err := decodeArguments(raw)
	block := ToolUseBlock(id, name, args)
	block.ArgumentsErr = err
	return block
}

// decodeArguments reads tool arguments produced by a model. Empty input and
// null are no arguments; anything else that is not a JSON object is an error.
func decodeArguments(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, tools.Mark(errors.Wrapf(ErrMalformedArguments, "%.80s", raw), tools.ErrValidation)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
