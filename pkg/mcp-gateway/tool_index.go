package mcpgateway

import (
	"maps"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-toolmesh-go/pkg/mcpmgr"
)

const (
	metaKeyServerID   = "mcptoolmesh.server_id"
	metaKeyNativeName = "mcptoolmesh.native_name"
)

type toolTarget struct {
	GatewayName string
	ServerID    string
	NativeName  string
	Callback    mcpmgr.ToolCallback
}

type toolRegistration struct {
	Tool   *mcp.Tool
	Target toolTarget
}

// toolIndex maps downstream tool names onto upstream callbacks.
type toolIndex struct {
	ns NamespaceStrategy

	mu    sync.RWMutex
	tools map[string]toolTarget
}

func newToolIndex(ns NamespaceStrategy) *toolIndex {
	return &toolIndex{ns: ns, tools: make(map[string]toolTarget)}
}

// Replace swaps in the tools of a whole snapshot. Every tool of the snapshot
// is returned as added, since its callback may belong to a new session; names
// no longer present are returned as removed.
func (f *toolIndex) Replace(providers []mcpmgr.ToolCallbackProvider) (removed []string, added []toolRegistration) {
	next := make(map[string]toolTarget)
	for _, provider := range providers {
		serverID := provider.ServerName()
		for _, cb := range provider.ToolCallbacks() {
			tool := cb.Tool()
			if tool == nil || tool.Name == "" {
				continue
			}
			gatewayName := f.ns.ToolName(serverID, tool.Name)
			if _, dup := next[gatewayName]; dup {
				continue
			}
			target := toolTarget{GatewayName: gatewayName, ServerID: serverID, NativeName: tool.Name, Callback: cb}
			next[gatewayName] = target
			added = append(added, toolRegistration{Tool: cloneTool(tool, gatewayName, serverID), Target: target})
		}
	}

	f.mu.Lock()
	for name := range f.tools {
		if _, ok := next[name]; !ok {
			removed = append(removed, name)
		}
	}
	f.tools = next
	f.mu.Unlock()

	sort.Strings(removed)
	sort.Slice(added, func(i, j int) bool { return added[i].Target.GatewayName < added[j].Target.GatewayName })
	return removed, added
}

func (f *toolIndex) ToolTarget(name string) (toolTarget, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.tools[name]
	return t, ok
}

func (f *toolIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.tools)
}

func cloneTool(tool *mcp.Tool, gatewayName, serverID string) *mcp.Tool {
	clone := *tool
	clone.Name = gatewayName
	clone.Meta = withMeta(tool.Meta, map[string]any{
		metaKeyServerID:   serverID,
		metaKeyNativeName: tool.Name,
	})
	clone.InputSchema = objectSchema(tool.InputSchema)
	return &clone
}

// objectSchema guarantees the "type": "object" input schema the server side
// of the SDK requires.
func objectSchema(schema any) any {
	switch s := schema.(type) {
	case nil:
		return map[string]any{"type": "object"}
	case map[string]any:
		if s["type"] == "object" {
			return s
		}
		out := maps.Clone(s)
		out["type"] = "object"
		return out
	default:
		return schema
	}
}

func withMeta(base map[string]any, extras map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any)
	}
	for k, v := range extras {
		out[k] = v
	}
	return out
}
