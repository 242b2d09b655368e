// Package concierge assembles the conversational routing core for guided
// data analysis: a classifier that names the user's intent, a workflow gate
// that decides whether the matching action may run yet, a resolver that
// fills the action's arguments from free text, and a compare-and-swap state
// store shared by every worker.
package concierge

import (
	"io"
	"log/slog"
	"time"

	memstore "github.com/atelierlabs/concierge/pkg/adapters/memory"
	"github.com/atelierlabs/concierge/pkg/adapters/tools"
	"github.com/atelierlabs/concierge/pkg/classifier"
	convmem "github.com/atelierlabs/concierge/pkg/memory"
	"github.com/atelierlabs/concierge/pkg/ports"
	"github.com/atelierlabs/concierge/pkg/registry"
	"github.com/atelierlabs/concierge/pkg/resolver"
	"github.com/atelierlabs/concierge/pkg/router"
	"github.com/atelierlabs/concierge/pkg/sandbox"
)

// Version is the library version, stamped into adapters that announce one.
var Version = "0.1.0"

// Concierge is the high-level entry point for the library. It wraps the
// router and provides a simplified assembly API for consumers.
type Concierge struct {
	router  *router.Router
	catalog *registry.Registry
	store   ports.StateStore
	loader  ports.DataLoader

	model    ports.ModelClient
	memStore ports.MemoryStore
	invoker  ports.ToolInvoker
	analyzer router.Analyzer
	sink     ports.EventSink
	logger   *slog.Logger

	acceptThreshold  float64
	clarifyThreshold float64
	memoryWindow     int
	summaryEvery     int
	modelTimeout     time.Duration
}

// Option defines a functional option for configuring the Concierge.
type Option func(*Concierge)

// WithModel injects the model client behind classification, resolution and
// memory summaries. Without one, the deterministic fallbacks carry routing.
func WithModel(m ports.ModelClient) Option {
	return func(c *Concierge) { c.model = m }
}

// WithMemoryStore enables bounded conversation memory.
func WithMemoryStore(ms ports.MemoryStore) Option {
	return func(c *Concierge) { c.memStore = ms }
}

// WithDataLoader sets the session dataset store. Required for any action
// that reads tabular data.
func WithDataLoader(l ports.DataLoader) Option {
	return func(c *Concierge) { c.loader = l }
}

// WithInvoker overrides the default tool invoker.
func WithInvoker(inv ports.ToolInvoker) Option {
	return func(c *Concierge) { c.invoker = inv }
}

// WithAnalyzer sets the sandboxed analysis executor.
func WithAnalyzer(a router.Analyzer) Option {
	return func(c *Concierge) { c.analyzer = a }
}

// WithCatalog overrides the default action catalog.
func WithCatalog(reg *registry.Registry) Option {
	return func(c *Concierge) { c.catalog = reg }
}

// WithEventSink registers observability hooks.
func WithEventSink(sink ports.EventSink) Option {
	return func(c *Concierge) { c.sink = sink }
}

// WithThresholds overrides the resolver confidence cut-offs.
func WithThresholds(accept, clarify float64) Option {
	return func(c *Concierge) {
		c.acceptThreshold = accept
		c.clarifyThreshold = clarify
	}
}

// WithMemoryWindow bounds the number of retained conversation turns.
func WithMemoryWindow(n int) Option {
	return func(c *Concierge) { c.memoryWindow = n }
}

// WithSummaryCadence sets how many turns pass between memory summaries.
func WithSummaryCadence(k int) Option {
	return func(c *Concierge) { c.summaryEvery = k }
}

// WithModelTimeout caps every classifier and resolver model call.
func WithModelTimeout(d time.Duration) Option {
	return func(c *Concierge) { c.modelTimeout = d }
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Concierge) { c.logger = logger }
}

// New assembles a Concierge around the given state store. The store is the
// only mandatory dependency; everything else has a working default, with
// an in-process invoker over the default catalog and no model attached.
func New(store ports.StateStore, opts ...Option) (*Concierge, error) {
	c := &Concierge{
		store:            store,
		catalog:          registry.Default(),
		acceptThreshold:  resolver.DefaultAcceptThreshold,
		clarifyThreshold: resolver.DefaultClarifyThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	if c.invoker == nil {
		inv := tools.NewInvoker(c.logger)
		tools.RegisterBuiltins(inv, c.loader)
		c.invoker = inv
	}
	if c.analyzer == nil {
		c.analyzer = sandbox.NewAnalyzer(sandbox.New(sandbox.WithLogger(c.logger)), c.logger)
	}

	clsOpts := []classifier.Option{classifier.WithLogger(c.logger)}
	resOpts := []resolver.Option{
		resolver.WithThresholds(c.acceptThreshold, c.clarifyThreshold),
		resolver.WithLogger(c.logger),
	}
	if c.modelTimeout > 0 {
		clsOpts = append(clsOpts, classifier.WithTimeout(c.modelTimeout))
		resOpts = append(resOpts, resolver.WithTimeout(c.modelTimeout))
	}
	cls := classifier.New(c.model, c.catalog, clsOpts...)
	res := resolver.New(c.model, resOpts...)

	routerOpts := []router.Option{
		router.WithInvoker(c.invoker),
		router.WithAnalyzer(c.analyzer),
		router.WithLogger(c.logger),
	}
	if c.loader != nil {
		routerOpts = append(routerOpts, router.WithDataLoader(c.loader))
	}
	if c.memStore != nil {
		memOpts := []convmem.Option{convmem.WithLogger(c.logger)}
		if c.model != nil {
			memOpts = append(memOpts, convmem.WithModel(c.model))
		}
		if c.memoryWindow > 0 {
			memOpts = append(memOpts, convmem.WithWindow(c.memoryWindow))
		}
		if c.summaryEvery > 0 {
			memOpts = append(memOpts, convmem.WithSummaryEvery(c.summaryEvery))
		}
		routerOpts = append(routerOpts, router.WithMemory(convmem.NewManager(c.memStore, memOpts...)))
	}
	if c.sink != nil {
		routerOpts = append(routerOpts, router.WithSink(c.sink))
	}

	c.router = router.New(store, c.catalog, cls, res, routerOpts...)
	return c, nil
}

// Router returns the assembled message router.
func (c *Concierge) Router() *router.Router {
	return c.router
}

// Catalog returns the action catalog in use.
func (c *Concierge) Catalog() *registry.Registry {
	return c.catalog
}

// Store returns the underlying state store.
func (c *Concierge) Store() ports.StateStore {
	return c.store
}

// NewInProcess is the single-worker convenience assembly: in-memory state
// and conversation memory, suitable for dev and tests.
func NewInProcess(opts ...Option) (*Concierge, error) {
	store := memstore.NewStore()
	return New(store, append([]Option{WithMemoryStore(store)}, opts...)...)
}
