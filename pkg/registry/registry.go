// Package registry keeps the catalog of backend tool servers and their
// enabled state.
package registry

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

// Category groups servers by what they serve.
type Category string

const (
	CategoryCore     Category = "core"
	CategoryDatabase Category = "database"
	CategoryFiles    Category = "files"
	CategoryCustom   Category = "custom"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCore, CategoryDatabase, CategoryFiles, CategoryCustom:
		return true
	}
	return false
}

// ServerDescriptor describes one backend tool server.
type ServerDescriptor struct {
	ID          string   `mapstructure:"id" json:"id"`
	Name        string   `mapstructure:"name" json:"name"`
	Description string   `mapstructure:"description" json:"description"`
	Category    Category `mapstructure:"category" json:"category"`
	Endpoint    string   `mapstructure:"endpoint" json:"endpoint"`
	Enabled     bool     `mapstructure:"enabled" json:"enabled"`
	Port        int      `mapstructure:"port" json:"port,omitempty"`

	// Tools declares the tools this server is expected to expose. When set,
	// only these names are taken from discovery.
	Tools []string `mapstructure:"tools" json:"tools,omitempty"`
}

// Allows reports whether a discovered tool passes the declared tool list.
func (d ServerDescriptor) Allows(localName string) bool {
	return len(d.Tools) == 0 || slices.Contains(d.Tools, localName)
}

func (d ServerDescriptor) clone() ServerDescriptor {
	d.Tools = slices.Clone(d.Tools)
	return d
}

type snapshot struct {
	order []string
	byID  map[string]ServerDescriptor
}

// Registry is safe for concurrent use. Reads never block on writers.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

// New builds a registry from descriptors, kept in the given order.
func New(descriptors ...ServerDescriptor) (*Registry, error) {
	snap := &snapshot{
		order: make([]string, 0, len(descriptors)),
		byID:  make(map[string]ServerDescriptor, len(descriptors)),
	}

	for _, d := range descriptors {
		if d.ID == "" {
			return nil, errors.New("server descriptor without id")
		}
		if strings.Contains(d.ID, tools.Separator) {
			return nil, errors.Newf("server id %q must not contain %q", d.ID, tools.Separator)
		}
		if _, dup := snap.byID[d.ID]; dup {
			return nil, errors.Newf("duplicate server id %q", d.ID)
		}
		if d.Category == "" {
			d.Category = CategoryCustom
		}
		if !d.Category.Valid() {
			return nil, errors.Newf("server %q: unknown category %q", d.ID, d.Category)
		}
		if d.Name == "" {
			d.Name = d.ID
		}

		snap.order = append(snap.order, d.ID)
		snap.byID[d.ID] = d.clone()
	}

	reg := &Registry{}
	reg.current.Store(snap)
	return reg, nil
}

// List returns every server, enabled or not, in registration order.
func (reg *Registry) List() []ServerDescriptor {
	return reg.filter(func(ServerDescriptor) bool { return true })
}

// ListEnabled returns the servers that take part in discovery.
func (reg *Registry) ListEnabled() []ServerDescriptor {
	return reg.filter(func(d ServerDescriptor) bool { return d.Enabled })
}

// ListByCategory returns the servers of one category.
func (reg *Registry) ListByCategory(category Category) []ServerDescriptor {
	return reg.filter(func(d ServerDescriptor) bool { return d.Category == category })
}

// Get returns one server by ID.
func (reg *Registry) Get(id string) (ServerDescriptor, error) {
	d, ok := reg.current.Load().byID[id]
	if !ok {
		return ServerDescriptor{}, errors.Mark(errors.Newf("server %q", id), tools.ErrServerNotFound)
	}
	return d.clone(), nil
}

// IsEnabled is a cheap check used on the dispatch path.
func (reg *Registry) IsEnabled(id string) bool {
	d, ok := reg.current.Load().byID[id]
	return ok && d.Enabled
}

// SetEnabled flips a server on or off. Setting the current state again is a
// successful no-op.
func (reg *Registry) SetEnabled(id string, enabled bool) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	old := reg.current.Load()

	d, ok := old.byID[id]
	if !ok {
		return errors.Mark(errors.Newf("server %q", id), tools.ErrServerNotFound)
	}

	if d.Enabled == enabled {
		return nil
	}

	next := &snapshot{
		order: old.order,
		byID:  make(map[string]ServerDescriptor, len(old.byID)),
	}
	for k, v := range old.byID {
		next.byID[k] = v
	}

	d.Enabled = enabled
	next.byID[id] = d

	reg.current.Store(next)
	return nil
}

func (reg *Registry) filter(keep func(ServerDescriptor) bool) []ServerDescriptor {
	snap := reg.current.Load()
	out := make([]ServerDescriptor, 0, len(snap.order))

	for _, id := range snap.order {
		if d := snap.byID[id]; keep(d) {
			out = append(out, d.clone())
		}
	}

	return out
}
