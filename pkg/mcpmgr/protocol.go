package mcpmgr

import (
	"fmt"
	"strings"
)

// Protocol identifies the wire protocol used to reach a remote MCP server. It
// is fixed when the server is discovered and never changes afterwards.
type Protocol string

const (
	ProtocolStreamableHTTP Protocol = "streamable"
	ProtocolSSE            Protocol = "sse"
	// ProtocolLegacy is reported separately for display purposes but is
	// dialed exactly like ProtocolSSE.
	ProtocolLegacy Protocol = "legacy"
)

const (
	suffixSSE        = "/sse"
	suffixStreamable = "/mcp"
)

// protocolPriority lists protocols from most to least preferred.
var protocolPriority = []Protocol{ProtocolStreamableHTTP, ProtocolSSE, ProtocolLegacy}

// DisplayName returns a human readable label for the protocol.
func (p Protocol) DisplayName() string {
	switch p {
	case ProtocolStreamableHTTP:
		return "Streamable HTTP"
	case ProtocolSSE:
		return "SSE"
	case ProtocolLegacy:
		return "Legacy (SSE)"
	default:
		return string(p)
	}
}

// DefaultSuffix is the endpoint path appended during fallback.
func (p Protocol) DefaultSuffix() string {
	if p.Transport() == ProtocolStreamableHTTP {
		return suffixStreamable
	}
	return suffixSSE
}

// Transport collapses Legacy onto SSE, returning the protocol whose client
// transport should actually be built.
func (p Protocol) Transport() Protocol {
	if p == ProtocolLegacy {
		return ProtocolSSE
	}
	return p
}

// Valid reports whether p is one of the known protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolStreamableHTTP, ProtocolSSE, ProtocolLegacy:
		return true
	}
	return false
}

// IsSSE reports whether p is served by the SSE client transport.
func (p Protocol) IsSSE() bool { return p.Transport() == ProtocolSSE }

// ParseProtocolTag maps a discovery tag onto a Protocol. Matching is case
// insensitive.
func ParseProtocolTag(tag string) (Protocol, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "streamable", "streamable-http", "streamable_http", "streamablehttp", "http":
		return ProtocolStreamableHTTP, true
	case "sse":
		return ProtocolSSE, true
	case "legacy":
		return ProtocolLegacy, true
	}
	return "", false
}

// SelectProtocol picks the preferred protocol among the advertised tags:
// Streamable HTTP, then SSE, then Legacy. Unknown tags are ignored.
func SelectProtocol(tags []string) (Protocol, error) {
	seen := make(map[Protocol]bool, len(tags))
	for _, tag := range tags {
		if p, ok := ParseProtocolTag(tag); ok {
			seen[p] = true
		}
	}
	for _, p := range protocolPriority {
		if seen[p] {
			return p, nil
		}
	}
	return "", fmt.Errorf("mcpmgr: no supported protocol in tags %v", tags)
}
