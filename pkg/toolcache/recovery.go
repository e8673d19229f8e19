package toolcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/vikashloomba/mcp-toolmesh-go/pkg/mcpmgr"
)

// ErrToolMissing is returned when a tool is no longer advertised by the
// server, typically after a reconnect.
var ErrToolMissing = errors.New("toolcache: tool not advertised by server")

// ProviderSource creates fresh tool providers for one server.
// *mcpmgr.ServerConnection implements it.
type ProviderSource interface {
	Name() string
	NewToolProvider(ctx context.Context) (mcpmgr.ToolCallbackProvider, error)
}

// RecoveryError reports a failed recovery. Original is the session-loss error
// that triggered it; Err is the reconnect or retry failure.
type RecoveryError struct {
	Server   string
	Tool     string
	Original error
	Err      error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("toolcache: %s/%s failed after session recovery: %v (original: %v)", e.Server, e.Tool, e.Err, e.Original)
}

// Unwrap exposes both the recovery failure and the session-loss error that
// triggered it.
func (e *RecoveryError) Unwrap() []error {
	out := make([]error, 0, 2)
	for _, err := range []error{e.Err, e.Original} {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

type generation struct {
	seq      uint64
	provider mcpmgr.ToolCallbackProvider
}

// RecoveringProvider wraps one server's tool provider. When a call fails
// because the server lost its session, a new provider is connected, swapped in
// atomically, and the call is retried exactly once.
//
// Recoveries for the same server are serialized: concurrent failures on the
// same connection share one reconnect, and a failure observed on an already
// superseded connection reuses the newer one.
type RecoveringProvider struct {
	source  ProviderSource
	logger  *slog.Logger
	current atomic.Pointer[generation]
	group   singleflight.Group

	recoveries atomic.Int64
}

var _ mcpmgr.ToolCallbackProvider = (*RecoveringProvider)(nil)

// NewRecoveringProvider wraps initial, using source to reconnect.
func NewRecoveringProvider(source ProviderSource, initial mcpmgr.ToolCallbackProvider, logger *slog.Logger) *RecoveringProvider {
	if logger == nil {
		logger = slog.Default()
	}
	r := &RecoveringProvider{
		source: source,
		logger: logger.With("server", source.Name()),
	}
	r.current.Store(&generation{provider: initial})
	return r
}

func (r *RecoveringProvider) ServerName() string { return r.source.Name() }

// Recoveries counts successful reconnects.
func (r *RecoveringProvider) Recoveries() int64 { return r.recoveries.Load() }

// Current returns the provider currently in use.
func (r *RecoveringProvider) Current() mcpmgr.ToolCallbackProvider {
	return r.current.Load().provider
}

// ToolCallbacks wraps every callback of the current provider. The wrappers
// always dispatch to the newest generation, so they stay valid across
// recoveries.
func (r *RecoveringProvider) ToolCallbacks() []mcpmgr.ToolCallback {
	inner := r.current.Load().provider.ToolCallbacks()
	out := make([]mcpmgr.ToolCallback, 0, len(inner))
	for _, cb := range inner {
		out = append(out, &recoveringCallback{owner: r, tool: cb.Tool()})
	}
	return out
}

// Close closes the current provider.
func (r *RecoveringProvider) Close() error {
	return r.current.Load().provider.Close()
}

// recover returns a generation newer than stale, connecting one if nobody has
// done so yet.
func (r *RecoveringProvider) recover(ctx context.Context, stale *generation, cause error) (*generation, error) {
	if cur := r.current.Load(); cur.seq > stale.seq {
		return cur, nil
	}
	v, err, _ := r.group.Do(strconv.FormatUint(stale.seq, 10), func() (any, error) {
		if cur := r.current.Load(); cur.seq > stale.seq {
			return cur, nil
		}
		r.logger.Info("mcp session lost, reconnecting", "error", cause)
		// The reconnect outlives the caller whose call triggered it; other
		// callers may be waiting on the same result.
		provider, err := r.source.NewToolProvider(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		next := &generation{seq: stale.seq + 1, provider: provider}
		if !r.current.CompareAndSwap(stale, next) {
			_ = provider.Close()
			return r.current.Load(), nil
		}
		r.recoveries.Add(1)
		if err := stale.provider.Close(); err != nil {
			r.logger.Debug("closing superseded provider", "error", err)
		}
		r.logger.Info("mcp session recovered", "tools", len(provider.ToolCallbacks()))
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*generation), nil
}

type recoveringCallback struct {
	owner *RecoveringProvider
	tool  *mcp.Tool
}

func (c *recoveringCallback) Tool() *mcp.Tool { return c.tool }

func (c *recoveringCallback) Call(ctx context.Context, args any) (*mcp.CallToolResult, error) {
	name := c.tool.Name
	server := c.owner.ServerName()
	gen := c.owner.current.Load()
	target := findCallback(gen.provider, name)
	if target == nil {
		return nil, fmt.Errorf("toolcache: %s/%s: %w", server, name, ErrToolMissing)
	}
	res, err := target.Call(ctx, args)
	if err == nil {
		return res, nil
	}
	if mcpmgr.ClassifyFailure(err) != mcpmgr.FailureSessionLost {
		return nil, err
	}

	next, recErr := c.owner.recover(ctx, gen, err)
	if recErr != nil {
		c.owner.logger.Warn("mcp session recovery failed", "tool", name, "error", recErr)
		return nil, &RecoveryError{Server: server, Tool: name, Original: err, Err: recErr}
	}
	retry := findCallback(next.provider, name)
	if retry == nil {
		return nil, &RecoveryError{Server: server, Tool: name, Original: err, Err: ErrToolMissing}
	}
	res, err2 := retry.Call(ctx, args)
	if err2 != nil {
		return nil, &RecoveryError{Server: server, Tool: name, Original: err, Err: err2}
	}
	return res, nil
}

func findCallback(provider mcpmgr.ToolCallbackProvider, name string) mcpmgr.ToolCallback {
	for _, cb := range provider.ToolCallbacks() {
		if tool := cb.Tool(); tool != nil && tool.Name == name {
			return cb
		}
	}
	return nil
}
