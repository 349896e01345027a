package provider

import (
	"fmt"
	"strings"
)

const maxWireName = 64

// WireName rewrites a qualified tool name into the character set model APIs
// accept for function names: core/get_health becomes core__get_health.
func WireName(name string) string {
	var b strings.Builder

	for _, r := range strings.ReplaceAll(name, "/", "__") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	if len(out) > maxWireName {
		out = out[:maxWireName]
	}
	return out
}

// WireNames gives every qualified name its own wire name. Names that rewrite
// to the same wire name are told apart by a numeric suffix, first come first
// served.
func WireNames(names []string) map[string]string {
	m := &nameMap{
		toWire:   make(map[string]string, len(names)),
		fromWire: make(map[string]string, len(names)),
	}

	for _, name := range names {
		m.add(name)
	}
	return m.toWire
}

// nameMap translates between qualified and wire names for one request.
type nameMap struct {
	toWire   map[string]string
	fromWire map[string]string
}

func newNameMap(specs []ToolSpec) *nameMap {
	m := &nameMap{
		toWire:   make(map[string]string, len(specs)),
		fromWire: make(map[string]string, len(specs)),
	}

	for _, spec := range specs {
		m.add(spec.Name)
	}
	return m
}

func (m *nameMap) add(name string) string {
	if wire, ok := m.toWire[name]; ok {
		return wire
	}

	wire := WireName(name)
	for i := 2; ; i++ {
		if _, taken := m.fromWire[wire]; !taken {
			break
		}
		suffix := fmt.Sprintf("_%d", i)
		base := WireName(name)
		if len(base)+len(suffix) > maxWireName {
			base = base[:maxWireName-len(suffix)]
		}
		wire = base + suffix
	}

	m.toWire[name] = wire
	m.fromWire[wire] = name
	return wire
}

// wire returns the wire name for a qualified name, registering names that
// only appear in history.
func (m *nameMap) wire(name string) string {
	return m.add(name)
}

// qualified maps a wire name from a response back. Names the model made up
// pass through unchanged so the loop can report them as unknown.
func (m *nameMap) qualified(wire string) string {
	if name, ok := m.fromWire[wire]; ok {
		return name
	}
	return wire
}
