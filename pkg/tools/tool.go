// Package tools holds the vocabulary shared by adapters, the orchestrator and
// the agent loop: tool definitions, namespaced descriptors, content blocks and
// the error taxonomy.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Separator joins a server ID and a local tool name into a qualified name.
const Separator = "/"

// Qualify builds the globally unique name of a tool owned by serverID.
func Qualify(serverID, localName string) string {
	return serverID + Separator + localName
}

// Split resolves a qualified name into its server ID and local name. Server
// IDs never contain the separator, so the first occurrence is the boundary and
// local names are free to contain it.
func Split(qualifiedName string) (serverID, localName string, ok bool) {
	serverID, localName, ok = strings.Cut(qualifiedName, Separator)
	if !ok || serverID == "" || localName == "" {
		return "", "", false
	}
	return serverID, localName, true
}

// InputSchema is the JSON-Schema-like description of a tool's arguments.
// The document received from the backend is kept as-is so validation sees
// every constraint, not only the three fields modelled here.
type InputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`

	raw map[string]any
}

// UnmarshalJSON keeps the full schema document next to the typed fields.
func (schema *InputSchema) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type plain InputSchema
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	// Some servers send null for keywords they leave unset.
	for k, v := range raw {
		if v == nil {
			delete(raw, k)
		}
	}

	*schema = InputSchema(p)
	schema.raw = raw
	return nil
}

// MarshalJSON renders the schema as returned by Map.
func (schema InputSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(schema.Map())
}

// Map returns a shallow copy of the schema document, suitable for handing to
// a model client or a validator. The top level always declares a type.
func (schema InputSchema) Map() map[string]any {
	out := make(map[string]any, len(schema.raw)+3)
	for k, v := range schema.raw {
		out[k] = v
	}

	if _, ok := out["type"]; !ok {
		out["type"] = "object"
		if schema.Type != "" {
			out["type"] = schema.Type
		}
	}

	if _, ok := out["properties"]; !ok {
		props := schema.Properties
		if props == nil {
			props = map[string]any{}
		}
		out["properties"] = props
	}

	if _, ok := out["required"]; !ok && len(schema.Required) > 0 {
		out["required"] = schema.Required
	}

	return out
}

// NewInputSchema builds a schema from its typed parts.
func NewInputSchema(properties map[string]any, required ...string) InputSchema {
	return InputSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// Definition is what one backend reports about one of its tools during
// discovery. Name is local to that backend.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
}

// Descriptor is a discovered tool placed in the shared namespace.
type Descriptor struct {
	QualifiedName string      `json:"qualifiedName"`
	LocalName     string      `json:"localName"`
	Description   string      `json:"description"`
	InputSchema   InputSchema `json:"inputSchema"`
	ServerID      string      `json:"serverId"`
}

// NewDescriptor namespaces a discovered definition under serverID.
func NewDescriptor(serverID string, def Definition) Descriptor {
	return Descriptor{
		QualifiedName: Qualify(serverID, def.Name),
		LocalName:     def.Name,
		Description:   def.Description,
		InputSchema:   def.InputSchema,
		ServerID:      serverID,
	}
}

// Content is one block of tool output as defined by MCP.
type Content struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Data     string          `json:"data,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// NewTextContent wraps plain text in a content block.
func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// Text flattens content blocks into one string for a model turn. Non-text
// blocks are summarized, since models only read text results here.
func Text(contents []Content) string {
	parts := make([]string, 0, len(contents))

	for _, c := range contents {
		switch c.Type {
		case "text", "":
			parts = append(parts, c.Text)
		case "resource":
			parts = append(parts, string(c.Resource))
		default:
			parts = append(parts, fmt.Sprintf("[%s content: %s, %d bytes]", c.Type, c.MimeType, len(c.Data)))
		}
	}

	return strings.Join(parts, "\n")
}
