package orchestrator

import (
	"sort"
	"time"

	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

// Catalog is an immutable snapshot of every discovered tool, keyed by
// qualified name. A new discovery publishes a new Catalog; existing holders
// keep seeing the one they loaded.
type Catalog struct {
	byName  map[string]tools.Descriptor
	sorted  []tools.Descriptor
	builtAt time.Time
}

// NewCatalog builds a snapshot. Later duplicates of a qualified name are ignored.
func NewCatalog(descriptors []tools.Descriptor) *Catalog {
	catalog := &Catalog{
		byName:  make(map[string]tools.Descriptor, len(descriptors)),
		sorted:  make([]tools.Descriptor, 0, len(descriptors)),
		builtAt: time.Now(),
	}

	for _, d := range descriptors {
		if _, dup := catalog.byName[d.QualifiedName]; dup {
			continue
		}
		catalog.byName[d.QualifiedName] = d
		catalog.sorted = append(catalog.sorted, d)
	}

	sort.Slice(catalog.sorted, func(i, j int) bool {
		return catalog.sorted[i].QualifiedName < catalog.sorted[j].QualifiedName
	})

	return catalog
}

// Get looks up one tool by qualified name.
func (catalog *Catalog) Get(qualifiedName string) (tools.Descriptor, bool) {
	d, ok := catalog.byName[qualifiedName]
	return d, ok
}

// Tools returns every tool sorted by qualified name.
func (catalog *Catalog) Tools() []tools.Descriptor {
	return append([]tools.Descriptor(nil), catalog.sorted...)
}

// ByServer returns the tools of one server.
func (catalog *Catalog) ByServer(serverID string) []tools.Descriptor {
	var out []tools.Descriptor
	for _, d := range catalog.sorted {
		if d.ServerID == serverID {
			out = append(out, d)
		}
	}
	return out
}

func (catalog *Catalog) Len() int {
	return len(catalog.sorted)
}

// BuiltAt is when the snapshot was assembled.
func (catalog *Catalog) BuiltAt() time.Time {
	return catalog.builtAt
}

// without returns a copy of the catalog minus the tools of the given
// servers.
func (catalog *Catalog) without(drop func(serverID string) bool) *Catalog {
	kept := make([]tools.Descriptor, 0, len(catalog.sorted))
	for _, d := range catalog.sorted {
		if !drop(d.ServerID) {
			kept = append(kept, d)
		}
	}
	return NewCatalog(kept)
}
