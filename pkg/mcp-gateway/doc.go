// Package mcpgateway exposes the aggregated tool catalog kept by toolcache
// over a single Streamable MCP server, namespacing each tool by its upstream
// server. Calls are routed through the cache's session-recovering providers,
// so an upstream restart is invisible to downstream clients. A HealthMonitor
// polls every upstream server and its latest snapshots are served as JSON on
// the status endpoint.
package mcpgateway
