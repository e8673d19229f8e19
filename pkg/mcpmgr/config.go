package mcpmgr

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Default timeouts. Tool invocations may legitimately run for minutes, health
// checks must not stall the polling loop.
const (
	DefaultConnectTimeout     = 30 * time.Second
	DefaultRequestTimeout     = 5 * time.Minute
	HealthCheckConnectTimeout = 10 * time.Second
	HealthCheckRequestTimeout = 10 * time.Second
)

// RPCDirection represents the direction of an observed JSON-RPC message.
type RPCDirection string

const (
	RPCDirectionSend    RPCDirection = "send"
	RPCDirectionReceive RPCDirection = "receive"
)

// RPCLogEvent encapsulates JSON-RPC traffic for custom logging.
type RPCLogEvent struct {
	Direction RPCDirection
	Message   []byte
	Endpoint  string
}

// RPCLogger is invoked for each JSON-RPC message when logging is enabled.
type RPCLogger func(RPCLogEvent)

// HTTPAuthProvider dynamically supplies an Authorization header (for example,
// "Bearer <token>") for outbound HTTP requests.
type HTTPAuthProvider func(context.Context) (string, error)

// FactoryOptions configures a TransportFactory.
type FactoryOptions struct {
	// ClientName is advertised to servers during initialization.
	ClientName string
	// ClientVersion is the semantic version reported to servers.
	ClientVersion string
	// HTTPClient is cloned for every transport. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Headers are added to every outbound request.
	Headers http.Header
	// AuthProvider supplies the Authorization header when none is set.
	AuthProvider HTTPAuthProvider
	// MaxRetries is passed to the Streamable HTTP transport.
	MaxRetries int
	// KeepAlive enables periodic pings on established sessions.
	KeepAlive time.Duration
	// LogJSONRPC logs every JSON-RPC message at debug level through Logger.
	LogJSONRPC bool
	// RPCLogger receives JSON-RPC traffic; it takes precedence over LogJSONRPC.
	RPCLogger RPCLogger
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

func (o *FactoryOptions) normalized() FactoryOptions {
	if o == nil {
		o = &FactoryOptions{}
	}
	opts := *o
	if opts.ClientName == "" {
		opts.ClientName = "mcp-toolmesh"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// ConnectionOptions configures a ServerConnection.
type ConnectionOptions struct {
	// ConnectTimeout bounds establishing a long-lived client.
	ConnectTimeout time.Duration
	// RequestTimeout bounds each call made on a long-lived client.
	RequestTimeout time.Duration
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

func (o *ConnectionOptions) normalized() ConnectionOptions {
	if o == nil {
		o = &ConnectionOptions{}
	}
	opts := *o
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}
