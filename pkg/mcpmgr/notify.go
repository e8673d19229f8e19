package mcpmgr

import (
	"context"
	"sync"
)

// ToolListChangedEvent is emitted when a connected server announces that its
// tool catalog changed.
type ToolListChangedEvent struct {
	Endpoint     string
	ConnectionID string
}

// ToolListChangedHandler receives ToolListChangedEvent notifications.
type ToolListChangedHandler func(context.Context, ToolListChangedEvent)

type notifier struct {
	mu       sync.RWMutex
	handlers []ToolListChangedHandler
}

func (n *notifier) add(h ToolListChangedHandler) {
	if h == nil {
		return
	}
	n.mu.Lock()
	n.handlers = append(n.handlers, h)
	n.mu.Unlock()
}

func (n *notifier) dispatch(ctx context.Context, event ToolListChangedEvent) {
	n.mu.RLock()
	handlers := append([]ToolListChangedHandler(nil), n.handlers...)
	n.mu.RUnlock()
	for _, h := range handlers {
		func() {
			// A misbehaving listener must not take the session's read loop down.
			defer func() { _ = recover() }()
			h(ctx, event)
		}()
	}
}
