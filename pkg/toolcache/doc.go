// Package toolcache turns the per-server clients of mcpmgr into one stable
// tool catalog for a conversational orchestrator.
//
// Cache holds a snapshot of every reachable server's tools behind a
// read/write lock and rebuilds it, sequentially and skipping servers that
// fail, after OnToolsChanged. Each cached provider is a RecoveringProvider:
// when a tool call fails because the remote server forgot its session (for
// example after a restart) the provider reconnects and retries the call once,
// so the failure never reaches the caller.
package toolcache
