package toolcache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vikashloomba/mcp-toolmesh-go/pkg/mcpmgr"
)

// DefaultRetireGrace is how long a superseded provider stays open so calls
// drawn from the previous snapshot can finish.
const DefaultRetireGrace = mcpmgr.DefaultRequestTimeout

// Options configure a Cache.
type Options struct {
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// RetireGrace delays closing providers replaced by a rebuild. A negative
	// value closes them immediately.
	RetireGrace time.Duration
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetireGrace == 0 {
		opts.RetireGrace = DefaultRetireGrace
	}
	return opts
}

// ToolsChangedEvent invalidates the cache.
type ToolsChangedEvent struct {
	// Source names the server or endpoint that reported the change, for logs.
	Source string
}

// Snapshot is one rebuild's set of providers. Seq increases with every
// rebuild, so consumers can discard a snapshot older than one already seen.
type Snapshot struct {
	Seq       int64
	Providers []mcpmgr.ToolCallbackProvider
}

// Cache aggregates the tool providers of every configured server. Reads are
// served from a snapshot; an invalidation causes the whole snapshot to be
// rebuilt on the next read. Servers that cannot be reached during a rebuild
// are skipped.
type Cache struct {
	sources []ProviderSource
	opts    Options
	logger  *slog.Logger

	mu          sync.RWMutex
	snapshot    Snapshot
	invalidated bool
	closed      bool

	rebuilds atomic.Int64

	hooksMu   sync.RWMutex
	onRebuild []func(Snapshot)
}

// NewCache builds an empty, invalidated cache over sources.
func NewCache(sources []ProviderSource, opts *Options) *Cache {
	options := opts.withDefaults()
	return &Cache{
		sources:     append([]ProviderSource(nil), sources...),
		opts:        options,
		logger:      options.Logger,
		invalidated: true,
	}
}

// ToolCallbackProviders returns one session-recovering provider per reachable
// server. It never fails: unreachable servers are simply absent.
func (c *Cache) ToolCallbackProviders(ctx context.Context) []mcpmgr.ToolCallbackProvider {
	return c.Snapshot(ctx).Providers
}

// Snapshot is ToolCallbackProviders together with the rebuild sequence that
// produced the providers.
func (c *Cache) Snapshot(ctx context.Context) Snapshot {
	c.mu.RLock()
	if !c.invalidated {
		snap := c.snapshot
		c.mu.RUnlock()
		return snap
	}
	c.mu.RUnlock()

	c.mu.Lock()
	if !c.invalidated {
		snap := c.snapshot
		c.mu.Unlock()
		return snap
	}
	retired := c.snapshot.Providers
	// Every server is bounded by its own connect timeout; the caller's
	// deadline must not turn reachable servers into skipped ones for every
	// later reader.
	snap := Snapshot{
		Seq:       c.rebuilds.Add(1),
		Providers: c.rebuild(context.WithoutCancel(ctx)),
	}
	c.snapshot = snap
	c.invalidated = false
	c.mu.Unlock()

	c.retire(retired)
	c.fireRebuild(snap)
	return snap
}

// OnToolsChanged invalidates every server's entry. Only one server's catalog
// may have changed, but the next read rebuilds all of them.
func (c *Cache) OnToolsChanged(event ToolsChangedEvent) {
	c.logger.Info("tool catalog changed, invalidating cache", "source", event.Source)
	c.Invalidate()
}

// Invalidate marks the snapshot stale.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	if !c.closed {
		c.invalidated = true
	}
	c.mu.Unlock()
}

// Rebuilds reports how many times the snapshot has been rebuilt.
func (c *Cache) Rebuilds() int64 { return c.rebuilds.Load() }

// OnRebuild registers a hook invoked, outside the cache lock, with every new
// snapshot. A hook can run before a reader that obtained an older snapshot
// has used it, so consumers should compare Seq.
func (c *Cache) OnRebuild(hook func(Snapshot)) {
	if hook == nil {
		return
	}
	c.hooksMu.Lock()
	c.onRebuild = append(c.onRebuild, hook)
	c.hooksMu.Unlock()
}

// Close releases every cached provider. Later reads return an empty snapshot.
func (c *Cache) Close() error {
	c.mu.Lock()
	providers := c.snapshot.Providers
	c.snapshot.Providers = nil
	c.invalidated = false
	c.closed = true
	c.mu.Unlock()
	for _, p := range providers {
		if err := p.Close(); err != nil {
			c.logger.Debug("closing provider", "server", p.ServerName(), "error", err)
		}
	}
	return nil
}

// rebuild connects every source in turn. Called with c.mu held.
func (c *Cache) rebuild(ctx context.Context) []mcpmgr.ToolCallbackProvider {
	start := time.Now()
	providers := make([]mcpmgr.ToolCallbackProvider, 0, len(c.sources))
	for _, source := range c.sources {
		provider, err := source.NewToolProvider(ctx)
		if err != nil {
			c.logger.Warn("skipping unreachable mcp server", "server", source.Name(), "error", err)
			continue
		}
		providers = append(providers, NewRecoveringProvider(source, provider, c.logger))
	}
	c.logger.Info("tool cache rebuilt",
		"servers", len(c.sources),
		"reachable", len(providers),
		"duration", time.Since(start),
	)
	return providers
}

func (c *Cache) retire(providers []mcpmgr.ToolCallbackProvider) {
	if len(providers) == 0 {
		return
	}
	closeAll := func() {
		for _, p := range providers {
			if err := p.Close(); err != nil {
				c.logger.Debug("closing retired provider", "server", p.ServerName(), "error", err)
			}
		}
	}
	if c.opts.RetireGrace < 0 {
		closeAll()
		return
	}
	time.AfterFunc(c.opts.RetireGrace, closeAll)
}

func (c *Cache) fireRebuild(snap Snapshot) {
	c.hooksMu.RLock()
	hooks := append([]func(Snapshot){}, c.onRebuild...)
	c.hooksMu.RUnlock()
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("rebuild hook panicked", "panic", r)
				}
			}()
			hook(snap)
		}()
	}
}
