// Package mcpmgr connects to remote Model Context Protocol (MCP) servers over
// the SSE and Streamable HTTP transports of the modelcontextprotocol/go-sdk,
// masking the ways real deployments differ from one another.
//
// # Core entry points
//
//   - Protocol and ServerDescriptor describe one remote server. Use
//     ResolveDescriptors to turn discovered services (with one or more
//     protocol tags) into descriptors; Streamable HTTP wins over SSE, which
//     wins over Legacy.
//   - TransportFactory builds Client handles. CreateClientWithFallback first
//     dials the base URL as given and then the protocol's conventional path
//     ("/mcp" or "/sse"), returning a *ConnectionError naming both forms when
//     neither completes the initialize handshake.
//   - ServerConnection owns one descriptor. It creates long-lived clients for
//     tool invocation (NewToolProvider) and short-lived ones for polling;
//     HealthSnapshot never fails, it reports an unhealthy snapshot instead.
//   - ClassifyFailure normalizes transport errors into a FailureKind so
//     callers can tell a lost session apart from other failures.
//
// Register OnToolListChanged on the factory to observe
// notifications/tools/list_changed from every session it creates.
package mcpmgr
