package mcpgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"

	"github.com/vikashloomba/mcp-toolmesh-go/pkg/mcpmgr"
	"github.com/vikashloomba/mcp-toolmesh-go/pkg/toolcache"
)

// Gateway exposes a Streamable MCP server that fronts the cached tool catalog
// of every configured upstream server under a single HTTP endpoint, plus a
// JSON health status endpoint.
type Gateway struct {
	cache   *toolcache.Cache
	monitor *HealthMonitor
	opts    Options

	tools *toolIndex

	server        *mcp.Server
	streamHandler *mcp.StreamableHTTPHandler
	mux           *http.ServeMux
	httpHandler   http.Handler

	syncMu     sync.Mutex
	appliedSeq int64

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// NewGateway builds a Gateway over cache and synchronizes the initial tool
// snapshot. monitor may be nil, in which case the status endpoint reports an
// empty list.
func NewGateway(cache *toolcache.Cache, monitor *HealthMonitor, opts *Options) (*Gateway, error) {
	if cache == nil {
		return nil, fmt.Errorf("mcpgateway: tool cache is required")
	}
	options := opts.withDefaults()
	g := &Gateway{
		cache:   cache,
		monitor: monitor,
		opts:    options,
		tools:   newToolIndex(options.Namespace),
	}

	g.server = mcp.NewServer(options.Implementation, &mcp.ServerOptions{HasTools: true})
	g.streamHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return g.server
	}, &options.Streamable)
	g.mux = g.mountHandler()
	g.httpHandler = cors.New(cors.Options{
		AllowedOrigins: options.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
	}).Handler(g.mux)

	cache.OnRebuild(g.applySnapshot)
	if err := g.SyncTools(context.Background()); err != nil {
		return nil, err
	}
	return g, nil
}

// Handler exposes the HTTP handler that serves the Streamable and status
// endpoints.
func (g *Gateway) Handler() http.Handler {
	return g.httpHandler
}

// ServeMux exposes the mux so callers can mount additional routes.
func (g *Gateway) ServeMux() *http.ServeMux {
	return g.mux
}

// Options returns the effective options.
func (g *Gateway) Options() Options {
	return g.opts
}

// ListenAndServe runs an HTTP server until the provided context is cancelled or
// the server stops.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	g.httpServerMu.Lock()
	if g.httpServer != nil {
		serv := g.httpServer
		g.httpServerMu.Unlock()
		return fmt.Errorf("mcpgateway: server already running on %s", serv.Addr)
	}
	srv := &http.Server{Addr: g.opts.Addr, Handler: g.Handler()}
	g.httpServer = srv
	g.httpServerMu.Unlock()
	defer func() {
		g.httpServerMu.Lock()
		if g.httpServer == srv {
			g.httpServer = nil
		}
		g.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.opts.SyncTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.httpServerMu.Lock()
	srv := g.httpServer
	g.httpServer = nil
	g.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

// SyncTools reads the cache, rebuilding it when invalidated, and publishes
// its tools downstream.
func (g *Gateway) SyncTools(ctx context.Context) error {
	ctx, cancel := g.syncContext(ctx)
	defer cancel()
	g.applySnapshot(g.cache.Snapshot(ctx))
	return ctx.Err()
}

// HandleToolsChanged invalidates the cache and resynchronizes in the
// background.
func (g *Gateway) HandleToolsChanged(event toolcache.ToolsChangedEvent) {
	g.cache.OnToolsChanged(event)
	go func() {
		if err := g.SyncTools(context.Background()); err != nil {
			g.logError("sync tools", err, "source", event.Source)
		}
	}()
}

// ToolCount reports how many tools are currently exposed.
func (g *Gateway) ToolCount() int {
	return g.tools.Len()
}

// applySnapshot publishes snap unless a snapshot at least as new was already
// published. The cache hook and SyncTools race to apply the same rebuild, and
// an older snapshot holds providers the cache has retired.
func (g *Gateway) applySnapshot(snap toolcache.Snapshot) {
	g.syncMu.Lock()
	defer g.syncMu.Unlock()
	if snap.Seq <= g.appliedSeq {
		return
	}
	g.appliedSeq = snap.Seq
	removed, added := g.tools.Replace(snap.Providers)
	if len(removed) > 0 {
		g.server.RemoveTools(removed...)
	}
	for _, reg := range added {
		g.server.AddTool(reg.Tool, g.makeToolHandler(reg.Target.GatewayName))
	}
	g.opts.Logger.Debug("gateway tools synchronized", "seq", snap.Seq, "tools", len(added), "removed", len(removed))
}

// makeToolHandler resolves the target on every call so a handler registered
// for an earlier snapshot always reaches the current callback.
func (g *Gateway) makeToolHandler(gatewayName string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, ok := g.tools.ToolTarget(gatewayName)
		if !ok {
			return nil, fmt.Errorf("mcpgateway: unknown tool %q", gatewayName)
		}
		var args any
		if req != nil && req.Params != nil {
			args = normalizeArguments(req.Params.Arguments)
		}
		res, err := target.Callback.Call(ctx, args)
		if err != nil {
			g.logError("tool call", err, "server", target.ServerID, "tool", target.NativeName)
			return toolErrorResult(err), nil
		}
		return res, nil
	}
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snapshots := []mcpmgr.HealthSnapshot{}
	if g.monitor != nil {
		snapshots = g.monitor.Snapshots()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshots); err != nil {
		g.logError("encode status", err)
	}
}

func (g *Gateway) mountHandler() *http.ServeMux {
	mux := http.NewServeMux()
	path := g.opts.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	mux.Handle(path, g.streamHandler)
	if !strings.HasSuffix(path, "/") {
		mux.Handle(path+"/", g.streamHandler)
	}
	if status := g.opts.StatusPath; status != "-" {
		if !strings.HasPrefix(status, "/") {
			status = "/" + status
		}
		mux.HandleFunc(status, g.handleStatus)
	}
	return mux
}

func (g *Gateway) syncContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if g.opts.SyncTimeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, g.opts.SyncTimeout)
}

func (g *Gateway) logError(msg string, err error, args ...any) {
	if err == nil {
		return
	}
	attrs := append([]any{"error", err}, args...)
	g.opts.Logger.Error(msg, attrs...)
}

// normalizeArguments drops empty raw arguments so upstream servers receive no
// "arguments" field instead of null.
func normalizeArguments(v any) any {
	if raw, ok := v.(json.RawMessage); ok && len(raw) == 0 {
		return nil
	}
	return v
}

func toolErrorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
