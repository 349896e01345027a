// Package orchestrator aggregates the tools of every enabled backend into one
// namespaced catalog and routes calls to the owning backend.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/adapter"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/metrics"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/registry"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

const (
	DefaultDiscoveryTimeout  = 10 * time.Second
	DefaultInvocationTimeout = 30 * time.Second
)

// AdapterFactory builds the adapter for a server. *adapter.Factory is the
// production implementation.
type AdapterFactory interface {
	New(d registry.ServerDescriptor) (adapter.Adapter, error)
}

type Option func(*Orchestrator)

func WithDiscoveryTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.discoveryTimeout = d
		}
	}
}

func WithInvocationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.invocationTimeout = d
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger.WithPrefix("orchestrator")
		}
	}
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	registry          *registry.Registry
	factory           AdapterFactory
	discoveryTimeout  time.Duration
	invocationTimeout time.Duration
	logger            *log.Logger

	adaptersMu sync.Mutex
	adapters   map[string]adapter.Adapter

	// publishMu orders snapshot publication between Refresh and SetEnabled.
	publishMu sync.Mutex
	catalog   atomic.Pointer[Catalog]
}

func New(reg *registry.Registry, factory AdapterFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:          reg,
		factory:           factory,
		discoveryTimeout:  DefaultDiscoveryTimeout,
		invocationTimeout: DefaultInvocationTimeout,
		logger:            log.Default().WithPrefix("orchestrator"),
		adapters:          map[string]adapter.Adapter{},
	}

	for _, opt := range opts {
		opt(o)
	}

	o.catalog.Store(NewCatalog(nil))
	return o
}

// Registry is the server registry the orchestrator reads.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Catalog returns the current snapshot.
func (o *Orchestrator) Catalog() *Catalog {
	return o.catalog.Load()
}

// ServerReport is the outcome of discovering one server.
type ServerReport struct {
	ServerID string
	Tools    int
	Err      error
	Duration time.Duration
}

// Report is the outcome of one Refresh, in registry order.
type Report struct {
	Servers []ServerReport
	Tools   int
}

// Failed returns the servers whose discovery failed.
func (r Report) Failed() []ServerReport {
	var out []ServerReport
	for _, s := range r.Servers {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

/*
Refresh discovers every enabled server concurrently and publishes the result
as a new catalog. A server that fails or panics contributes nothing; the
failure is logged and reported, never returned.
*/
func (o *Orchestrator) Refresh(ctx context.Context) Report {
	servers := o.registry.ListEnabled()

	reports := make([]ServerReport, len(servers))
	found := make([][]tools.Descriptor, len(servers))

	wg := conc.NewWaitGroup()
	for i, d := range servers {
		wg.Go(func() {
			start := time.Now()

			var (
				descriptors []tools.Descriptor
				err         error
				catcher     panics.Catcher
			)

			catcher.Try(func() {
				descriptors, err = o.discover(ctx, d)
			})
			if recovered := catcher.Recovered(); recovered != nil {
				descriptors, err = nil, errors.Mark(recovered.AsError(), tools.ErrProtocol)
			}

			reports[i] = ServerReport{
				ServerID: d.ID,
				Tools:    len(descriptors),
				Err:      err,
				Duration: time.Since(start),
			}
			found[i] = descriptors

			metrics.RecordDiscovery(d.ID, reports[i].Duration, err)
		})
	}
	wg.Wait()

	var all []tools.Descriptor
	for i, report := range reports {
		if report.Err != nil {
			o.logger.Warn("Discovery failed", "server", report.ServerID, "kind", tools.Kind(report.Err), "error", report.Err)
			continue
		}
		all = append(all, found[i]...)
	}

	o.publishMu.Lock()
	// A server disabled while discovery ran must not come back.
	catalog := NewCatalog(all).without(func(id string) bool { return !o.registry.IsEnabled(id) })
	o.catalog.Store(catalog)
	o.publishMu.Unlock()

	metrics.CatalogTools.Set(float64(catalog.Len()))
	o.logger.Info("Catalog refreshed", "servers", len(servers), "failed", len(Report{Servers: reports}.Failed()), "tools", catalog.Len())

	return Report{Servers: reports, Tools: catalog.Len()}
}

func (o *Orchestrator) discover(ctx context.Context, d registry.ServerDescriptor) ([]tools.Descriptor, error) {
	a, err := o.adapterFor(d.ID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.discoveryTimeout)
	defer cancel()

	defs, err := a.Discover(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, tools.ErrTimeout) {
			err = errors.Mark(err, tools.ErrTimeout)
		}
		return nil, errors.Wrapf(err, "discover %q", d.ID)
	}

	seen := make(map[string]bool, len(defs))
	out := make([]tools.Descriptor, 0, len(defs))

	for _, def := range defs {
		if !d.Allows(def.Name) {
			o.logger.Debug("Skipping undeclared tool", "server", d.ID, "tool", def.Name)
			continue
		}
		if seen[def.Name] {
			o.logger.Warn("Duplicate tool name", "server", d.ID, "tool", def.Name)
			continue
		}
		seen[def.Name] = true
		out = append(out, tools.NewDescriptor(d.ID, def))
	}

	return out, nil
}

/*
Dispatch routes a call to the server owning qualifiedName. Names missing from
the current snapshot, and names whose server has since been disabled, fail
with ErrToolNotFound without contacting any backend, as do arguments that
fail the tool's input schema (ErrValidation). Adapter errors keep their kind
and gain the qualified name.
*/
func (o *Orchestrator) Dispatch(ctx context.Context, qualifiedName string, args map[string]any) ([]tools.Content, error) {
	serverID, _, ok := tools.Split(qualifiedName)
	if !ok {
		return nil, errors.Mark(errors.Newf("%q is not a qualified tool name", qualifiedName), tools.ErrToolNotFound)
	}

	descriptor, ok := o.Catalog().Get(qualifiedName)
	if !ok || !o.registry.IsEnabled(serverID) {
		return nil, errors.Mark(errors.Newf("%s", qualifiedName), tools.ErrToolNotFound)
	}

	if err := tools.Validate(descriptor.InputSchema, args); err != nil {
		return nil, errors.Wrapf(err, "%s", qualifiedName)
	}

	a, err := o.adapterFor(serverID)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", qualifiedName)
	}

	ctx, cancel := context.WithTimeout(ctx, o.invocationTimeout)
	defer cancel()

	start := time.Now()
	content, err := a.Invoke(ctx, descriptor.LocalName, args)
	metrics.RecordToolCall(serverID, descriptor.LocalName, time.Since(start), err)

	if err != nil {
		o.logger.Debug("Tool call failed", "tool", qualifiedName, "kind", tools.Kind(err), "error", err)
		return content, errors.Wrapf(err, "%s", qualifiedName)
	}

	return content, nil
}

// SetEnabled toggles a server. Disabling it removes its tools from the
// catalog at once; enabling it takes effect on the next Refresh.
func (o *Orchestrator) SetEnabled(id string, enabled bool) error {
	o.publishMu.Lock()
	defer o.publishMu.Unlock()

	if err := o.registry.SetEnabled(id, enabled); err != nil {
		return err
	}

	if !enabled {
		catalog := o.catalog.Load().without(func(serverID string) bool { return serverID == id })
		o.catalog.Store(catalog)
		metrics.CatalogTools.Set(float64(catalog.Len()))
	}

	o.logger.Info("Server toggled", "server", id, "enabled", enabled)
	return nil
}

func (o *Orchestrator) adapterFor(id string) (adapter.Adapter, error) {
	o.adaptersMu.Lock()
	defer o.adaptersMu.Unlock()

	if a, ok := o.adapters[id]; ok {
		return a, nil
	}

	d, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}

	a, err := o.factory.New(d)
	if err != nil {
		return nil, err
	}

	o.adapters[id] = a
	return a, nil
}

// Close releases every adapter.
func (o *Orchestrator) Close() error {
	o.adaptersMu.Lock()
	adapters := o.adapters
	o.adapters = map[string]adapter.Adapter{}
	o.adaptersMu.Unlock()

	var err error
	for id, a := range adapters {
		if cerr := a.Close(); cerr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(cerr, "close %q", id))
		}
	}
	return err
}

// Split and Qualify are the namespace rules the catalog uses.
func Split(qualifiedName string) (serverID, localName string, ok bool) {
	return tools.Split(qualifiedName)
}

func Qualify(serverID, localName string) string {
	return tools.Qualify(serverID, localName)
}
