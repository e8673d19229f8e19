package mcpgateway

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vikashloomba/mcp-toolmesh-go/pkg/mcpmgr"
)

// DefaultHealthInterval is how often every server is polled.
const DefaultHealthInterval = 5 * time.Second

// HealthChecker produces a health snapshot for one server and never fails.
// *mcpmgr.ServerConnection implements it.
type HealthChecker interface {
	Name() string
	HealthSnapshot(ctx context.Context) mcpmgr.HealthSnapshot
}

// HealthMonitor polls every server on a fixed interval and keeps the latest
// snapshot of each. It runs independently of the tool cache.
type HealthMonitor struct {
	checkers []HealthChecker
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	snapshots map[string]mcpmgr.HealthSnapshot

	hookMu      sync.RWMutex
	onRecovered []func(mcpmgr.HealthSnapshot)
}

// NewHealthMonitor builds a monitor. A non-positive interval selects
// DefaultHealthInterval.
func NewHealthMonitor(checkers []HealthChecker, interval time.Duration, logger *slog.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{
		checkers:  append([]HealthChecker(nil), checkers...),
		interval:  interval,
		logger:    logger,
		snapshots: make(map[string]mcpmgr.HealthSnapshot),
	}
}

// OnRecovered registers a hook called when a server previously reported
// unhealthy reports healthy again. Hooks run on the polling goroutine.
func (m *HealthMonitor) OnRecovered(hook func(mcpmgr.HealthSnapshot)) {
	if hook == nil {
		return
	}
	m.hookMu.Lock()
	m.onRecovered = append(m.onRecovered, hook)
	m.hookMu.Unlock()
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce checks every server concurrently and waits for all of them.
func (m *HealthMonitor) PollOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for _, checker := range m.checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			m.record(c.HealthSnapshot(ctx))
		}(checker)
	}
	wg.Wait()
}

// Snapshots returns the latest snapshot of every polled server, sorted by
// name.
func (m *HealthMonitor) Snapshots() []mcpmgr.HealthSnapshot {
	m.mu.RLock()
	out := make([]mcpmgr.HealthSnapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, snap)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ServerName < out[j].ServerName })
	return out
}

// Snapshot returns the latest snapshot for one server.
func (m *HealthMonitor) Snapshot(name string) (mcpmgr.HealthSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[name]
	return snap, ok
}

func (m *HealthMonitor) record(snap mcpmgr.HealthSnapshot) {
	m.mu.Lock()
	prev, seen := m.snapshots[snap.ServerName]
	m.snapshots[snap.ServerName] = snap
	m.mu.Unlock()

	switch {
	case snap.Healthy && (!seen || !prev.Healthy):
		m.logger.Info("mcp server healthy", "server", snap.ServerName, "tools", len(snap.Tools), "endpoint", snap.Endpoint)
		if seen {
			m.fireRecovered(snap)
		}
	case !snap.Healthy && (!seen || prev.Healthy):
		m.logger.Warn("mcp server unhealthy", "server", snap.ServerName, "error", snap.Error)
	}
}

func (m *HealthMonitor) fireRecovered(snap mcpmgr.HealthSnapshot) {
	m.hookMu.RLock()
	hooks := append([]func(mcpmgr.HealthSnapshot){}, m.onRecovered...)
	m.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(snap)
	}
}
