package mcpgateway

import (
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Options configure a Gateway instance.
type Options struct {
	// Implementation identifies the gateway's MCP server implementation metadata.
	Implementation *mcp.Implementation
	// Addr controls the listen address used by ListenAndServe. Defaults to ":8700".
	Addr string
	// Path mounts the Streamable handler. Defaults to "/mcp".
	Path string
	// StatusPath serves the latest health snapshots as JSON. Defaults to
	// "/status"; set to "-" to disable.
	StatusPath string
	// Namespace customizes how upstream tool names are exposed to downstream
	// clients. Defaults to ServerPrefixNamespace.
	Namespace NamespaceStrategy
	// Streamable tweaks the Streamable HTTP handler behavior passed to
	// mcp.NewStreamableHTTPHandler.
	Streamable mcp.StreamableHTTPOptions
	// AllowedOrigins lists origins permitted by CORS. Defaults to "*".
	AllowedOrigins []string
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// SyncTimeout bounds how long a tool catalog synchronization may take.
	SyncTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Implementation == nil {
		opts.Implementation = &mcp.Implementation{
			Name:    "mcp-toolmesh",
			Title:   "MCP Tool Mesh",
			Version: "1.0.0",
		}
	} else {
		impl := *opts.Implementation
		opts.Implementation = &impl
	}
	if opts.Addr == "" {
		opts.Addr = ":8700"
	}
	if opts.Path == "" {
		opts.Path = "/mcp"
	}
	if opts.StatusPath == "" {
		opts.StatusPath = "/status"
	}
	if opts.Namespace == nil {
		opts.Namespace = ServerPrefixNamespace{}
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 2 * time.Minute
	}
	return opts
}
