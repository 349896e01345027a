package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/config"
)

// OpenAI implements Provider over the chat completions API.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int64
}

// NewOpenAI creates a new provider for OpenAI. Without an API key in cfg the
// client reads OPENAI_API_KEY.
func NewOpenAI(cfg config.Model) *OpenAI {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	p := &OpenAI{
		client:    openai.NewClient(opts...),
		model:     cfg.Name,
		maxTokens: cfg.MaxTokens,
	}

	// A Claude model name is the config default; it means nothing here.
	if p.model == "" || strings.HasPrefix(p.model, "claude") {
		p.model = openai.ChatModelGPT4oMini
	}
	if p.maxTokens <= 0 {
		p.maxTokens = defaultMaxTokens
	}

	return p
}

func (p *OpenAI) Name() string {
	return "openai"
}

func (p *OpenAI) Send(ctx context.Context, system string, history []Message, specs []ToolSpec) (*Response, error) {
	names := newNameMap(specs)

	chat, err := p.client.Chat.Completions.New(ctx, p.params(system, history, specs, names))
	if err != nil {
		return nil, errors.Wrap(err, "openai completion")
	}

	return fromOpenAI(chat, names)
}

func (p *OpenAI) params(system string, history []Message, specs []ToolSpec, names *nameMap) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            openai.F(toOpenAIMessages(system, history, names)),
		Model:               openai.F(p.model),
		MaxCompletionTokens: openai.Int(p.maxTokens),
	}

	if len(specs) > 0 {
		params.Tools = openai.F(toOpenAITools(specs, names))
	}

	return params
}

func toOpenAITools(specs []ToolSpec, names *nameMap) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))

	for _, spec := range specs {
		out = append(out, openai.ChatCompletionToolParam{
			Type: openai.F(openai.ChatCompletionToolTypeFunction),
			Function: openai.F(openai.FunctionDefinitionParam{
				Name:        openai.String(names.wire(spec.Name)),
				Description: openai.String(spec.Description),
				Parameters:  openai.F(openai.FunctionParameters(spec.InputSchema)),
			}),
		})
	}

	return out
}

/*
toOpenAIMessages flattens block turns into chat messages. Tool results become
tool messages and come first in their user turn, since they must directly
follow the assistant message that requested them.
*/
func toOpenAIMessages(system string, history []Message, names *nameMap) []openai.ChatCompletionMessageParamUnion {
	out := []openai.ChatCompletionMessageParamUnion{}

	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	for _, msg := range history {
		var (
			text  []string
			calls []openai.ChatCompletionMessageToolCallParam
		)

		for _, block := range msg.Blocks {
			switch block.Type {
			case BlockText:
				if block.Text != "" {
					text = append(text, block.Text)
				}
			case BlockToolUse:
				args := block.Arguments
				if args == nil {
					args = map[string]any{}
				}
				buf, _ := json.Marshal(args)

				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   openai.F(block.ID),
					Type: openai.F(openai.ChatCompletionMessageToolCallTypeFunction),
					Function: openai.F(openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      openai.F(names.wire(block.Name)),
						Arguments: openai.F(string(buf)),
					}),
				})
			case BlockToolResult:
				content := block.Content
				if block.IsError {
					content = "error: " + content
				}
				out = append(out, openai.ToolMessage(block.ToolUseID, content))
			}
		}

		joined := strings.Join(text, "\n")

		if msg.Role != RoleAssistant {
			if joined != "" {
				out = append(out, openai.UserMessage(joined))
			}
			continue
		}

		if joined == "" && len(calls) == 0 {
			continue
		}

		assistant := openai.ChatCompletionAssistantMessageParam{
			Role: openai.F(openai.ChatCompletionAssistantMessageParamRoleAssistant),
		}
		if joined != "" {
			assistant = openai.AssistantMessage(joined)
		}
		if len(calls) > 0 {
			assistant.ToolCalls = openai.F(calls)
		}
		out = append(out, assistant)
	}

	return out
}

func fromOpenAI(chat *openai.ChatCompletion, names *nameMap) (*Response, error) {
	if chat == nil || len(chat.Choices) == 0 {
		return nil, errors.New("openai completion: no choices in response")
	}

	choice := chat.Choices[0]
	out := &Response{StopReason: string(choice.FinishReason)}

	if choice.Message.Content != "" {
		out.Blocks = append(out.Blocks, TextBlock(choice.Message.Content))
	}

	for _, call := range choice.Message.ToolCalls {
		out.Blocks = append(out.Blocks, decodedToolUse(
			call.ID,
			names.qualified(call.Function.Name),
			[]byte(call.Function.Arguments),
		))
	}

	return out, nil
}
