// Package provider defines the language model contract the agent loop drives,
// with Anthropic and OpenAI implementations.
package provider

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/config"
)

// ErrMalformedArguments marks tool arguments that do not decode to a JSON
// object. It is also marked tools.ErrValidation.
var ErrMalformedArguments = errors.New("tool arguments are not a JSON object")

// Role of a conversation turn. System instructions travel separately.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates Block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one piece of a turn. Which fields are set depends on Type:
// Text for text; ID, Name and Arguments for a tool use; ToolUseID, Content
// and IsError for a tool result.
type Block struct {
	Type BlockType `json:"type"`

	Text string `json:"text,omitempty"`

	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`

	// ArgumentsErr is set when the model sent arguments that are not a
	// JSON object. Arguments is then nil.
	ArgumentsErr error `json:"-"`

	ToolUseID string `json:"toolUseId,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"isError,omitempty"`
}

func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

func ToolUseBlock(id, name string, arguments map[string]any) Block {
	return Block{Type: BlockToolUse, ID: id, Name: name, Arguments: arguments}
}

func ToolResultBlock(toolUseID, content string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Message is one conversation turn.
type Message struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"blocks"`
}

// UserMessage is a plain text user turn.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Blocks: []Block{TextBlock(text)}}
}

// AssistantMessage is a plain text assistant turn.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Blocks: []Block{TextBlock(text)}}
}

// ToolSpec is a tool offered to the model, under its qualified name.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Response is one model reply. Tool use names are qualified names.
type Response struct {
	Blocks     []Block
	StopReason string
}

// Provider sends a conversation to a language model.
type Provider interface {
	Name() string
	Send(ctx context.Context, system string, history []Message, tools []ToolSpec) (*Response, error)
}

// New picks the implementation named by cfg.Provider.
func New(cfg config.Model) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	}
	return nil, errors.Newf("unknown model provider %q", cfg.Provider)
}
