package mcpgateway

import (
	"fmt"
	"strings"
)

// NamespaceStrategy generates the downstream tool names for upstream MCP
// servers. Implementations must be deterministic and collision-free for a
// given serverID/name pair.
type NamespaceStrategy interface {
	ToolName(serverID, toolName string) string
	NativeToolName(gatewayName string) (serverID, toolName string, ok bool)
}

// ServerPrefixNamespace prefixes every tool name with the originating server
// ID, separating fields with a configurable delimiter (defaults to "__" to stay
// within the MCP spec's character guidance).
type ServerPrefixNamespace struct {
	Separator string
}

func (s ServerPrefixNamespace) separator() string {
	if s.Separator == "" {
		return "__"
	}
	return s.Separator
}

func (s ServerPrefixNamespace) ToolName(serverID, toolName string) string {
	return fmt.Sprintf("%s%s%s", serverID, s.separator(), toolName)
}

// NativeToolName splits at the first separator; server IDs must therefore not
// contain it.
func (s ServerPrefixNamespace) NativeToolName(gatewayName string) (string, string, bool) {
	server, tool, ok := strings.Cut(gatewayName, s.separator())
	if !ok || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}
