package mcpmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrIncompleteHandshake is returned when a server accepted the connection but
// did not negotiate a protocol version.
var ErrIncompleteHandshake = errors.New("mcpmgr: initialize returned no protocol version")

// ClientFactory builds clients for a remote server. TransportFactory is the
// production implementation.
type ClientFactory interface {
	CreateClientWithFallback(ctx context.Context, endpoint string, protocol Protocol, connectTimeout, requestTimeout time.Duration) (*Client, error)
	CreateHealthCheckClient(ctx context.Context, endpoint string, protocol Protocol) (*Client, error)
}

// TransportFactory builds MCP clients over the SSE or Streamable HTTP client
// transports. It tolerates servers mounted either at the bare base URL or at
// the protocol's conventional path.
type TransportFactory struct {
	opts      FactoryOptions
	logger    *slog.Logger
	rpcLogger RPCLogger
	notifier  notifier
}

var _ ClientFactory = (*TransportFactory)(nil)

// NewTransportFactory constructs a TransportFactory. Callers can provide nil
// options to fall back to sensible defaults.
func NewTransportFactory(opts *FactoryOptions) *TransportFactory {
	options := opts.normalized()
	f := &TransportFactory{opts: options, logger: options.Logger}
	switch {
	case options.RPCLogger != nil:
		f.rpcLogger = options.RPCLogger
	case options.LogJSONRPC:
		f.rpcLogger = slogRPCLogger(options.Logger)
	}
	return f
}

// OnToolListChanged registers a handler invoked whenever any client built by
// this factory receives notifications/tools/list_changed.
func (f *TransportFactory) OnToolListChanged(handler ToolListChangedHandler) {
	f.notifier.add(handler)
}

// CreateClient connects to exactly endpoint. The handshake must complete
// within connectTimeout; every later request is bounded by requestTimeout.
func (f *TransportFactory) CreateClient(ctx context.Context, endpoint string, protocol Protocol, connectTimeout, requestTimeout time.Duration) (*Client, error) {
	client, err := f.connect(ctx, endpoint, protocol, connectTimeout, requestTimeout)
	if err != nil {
		return nil, &ConnectionError{
			URL:      endpoint,
			Protocol: protocol,
			Attempts: []AttemptError{{URL: endpoint, Err: err}},
		}
	}
	return client, nil
}

// CreateClientWithFallback first tries endpoint as given and, if that
// handshake fails, endpoint with the protocol's default suffix. When both
// fail the returned *ConnectionError names both forms.
func (f *TransportFactory) CreateClientWithFallback(ctx context.Context, endpoint string, protocol Protocol, connectTimeout, requestTimeout time.Duration) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	candidates, err := EndpointCandidates(endpoint, protocol)
	if err != nil {
		return nil, &ConnectionError{URL: endpoint, Protocol: protocol, Attempts: []AttemptError{{URL: endpoint, Err: err}}}
	}
	attempts := make([]AttemptError, 0, len(candidates))
	for _, candidate := range candidates {
		client, err := f.connect(ctx, candidate, protocol, connectTimeout, requestTimeout)
		if err == nil {
			if len(attempts) > 0 {
				f.logger.Info("connected via fallback endpoint",
					"endpoint", candidate,
					"protocol", protocol.DisplayName(),
					"first_error", attempts[0].Err,
				)
			}
			return client, nil
		}
		f.logger.Debug("endpoint attempt failed", "endpoint", candidate, "protocol", protocol.DisplayName(), "error", err)
		attempts = append(attempts, AttemptError{URL: candidate, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &ConnectionError{URL: endpoint, Protocol: protocol, Attempts: attempts}
}

// CreateHealthCheckClient is CreateClientWithFallback with short timeouts so a
// dead server cannot stall periodic health polling.
func (f *TransportFactory) CreateHealthCheckClient(ctx context.Context, endpoint string, protocol Protocol) (*Client, error) {
	return f.CreateClientWithFallback(ctx, endpoint, protocol, HealthCheckConnectTimeout, HealthCheckRequestTimeout)
}

// EndpointCandidates returns the endpoint forms tried by
// CreateClientWithFallback, in order. A base URL that already ends with the
// protocol's suffix yields a single candidate.
func EndpointCandidates(endpoint string, protocol Protocol) ([]string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("mcpmgr: endpoint missing")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("mcpmgr: invalid endpoint %q: %w", endpoint, err)
	}
	suffix := protocol.DefaultSuffix()
	path := strings.TrimRight(u.Path, "/")
	if strings.HasSuffix(path, suffix) {
		return []string{endpoint}, nil
	}
	suffixed := *u
	suffixed.Path = path + suffix
	suffixed.RawPath = ""
	return []string{endpoint, suffixed.String()}, nil
}

func (f *TransportFactory) connect(ctx context.Context, endpoint string, protocol Protocol, connectTimeout, requestTimeout time.Duration) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !protocol.Valid() {
		return nil, fmt.Errorf("mcpmgr: unsupported protocol %q", protocol)
	}
	id := uuid.NewString()
	transport := f.buildTransport(endpoint, protocol)
	if f.rpcLogger != nil {
		transport = &loggingTransport{endpoint: endpoint, delegate: transport, logger: f.rpcLogger}
	}
	client := mcp.NewClient(&mcp.Implementation{
		Name:    f.opts.ClientName,
		Version: f.opts.ClientVersion,
	}, &mcp.ClientOptions{
		KeepAlive: f.opts.KeepAlive,
		ToolListChangedHandler: func(ctx context.Context, _ *mcp.ToolListChangedRequest) {
			f.notifier.dispatch(ctx, ToolListChangedEvent{Endpoint: endpoint, ConnectionID: id})
		},
	})

	// The SSE transport binds its event stream to the context given to
	// Connect, so the session context lives until Close. Parent cancellation
	// and the connect timeout only apply while the handshake is in flight.
	sessionCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	stopParent := context.AfterFunc(ctx, func() { cancel(context.Cause(ctx)) })
	var timer *time.Timer
	if connectTimeout > 0 {
		timer = time.AfterFunc(connectTimeout, func() {
			cancel(fmt.Errorf("mcpmgr: handshake with %s exceeded %s: %w", endpoint, connectTimeout, context.DeadlineExceeded))
		})
	}
	session, err := client.Connect(sessionCtx, transport, nil)
	if timer != nil {
		timer.Stop()
	}
	stopParent()
	if err == nil && sessionCtx.Err() != nil {
		_ = session.Close()
		err = sessionCtx.Err()
	}
	if err != nil {
		if cause := context.Cause(sessionCtx); cause != nil {
			err = errors.Join(err, cause)
		}
		cancel(nil)
		return nil, err
	}
	init := session.InitializeResult()
	if init == nil || init.ProtocolVersion == "" {
		_ = session.Close()
		cancel(nil)
		return nil, ErrIncompleteHandshake
	}
	f.logger.Debug("mcp session established",
		"endpoint", endpoint,
		"protocol", protocol.DisplayName(),
		"connection_id", id,
		"session_id", session.ID(),
		"protocol_version", init.ProtocolVersion,
	)
	return &Client{
		id:             id,
		endpoint:       endpoint,
		protocol:       protocol,
		requestTimeout: requestTimeout,
		client:         client,
		session:        session,
		init:           init,
		cancel:         func() { cancel(nil) },
	}, nil
}

func (f *TransportFactory) buildTransport(endpoint string, protocol Protocol) mcp.Transport {
	httpClient := f.decorateHTTPClient(f.opts.HTTPClient, f.opts.Headers, f.opts.AuthProvider)
	if protocol.IsSSE() {
		return &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: httpClient}
	}
	return &mcp.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: httpClient,
		MaxRetries: f.opts.MaxRetries,
	}
}

func (f *TransportFactory) decorateHTTPClient(base *http.Client, headers http.Header, provider HTTPAuthProvider) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	clone := *base
	clone.Transport = &headerDecorator{
		next:         defaultRoundTripper(base.Transport),
		headers:      cloneHeader(headers),
		authProvider: provider,
	}
	return &clone
}

func cloneHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	clone := make(http.Header, len(h))
	for k, values := range h {
		clone[k] = append([]string(nil), values...)
	}
	return clone
}

type headerDecorator struct {
	next         http.RoundTripper
	headers      http.Header
	authProvider HTTPAuthProvider
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(d.headers) > 0 || d.authProvider != nil {
		// RoundTrippers must not modify the caller's request.
		req = req.Clone(req.Context())
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for k, values := range d.headers {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if d.authProvider != nil && req.Header.Get("Authorization") == "" {
		token, err := d.authProvider(req.Context())
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", token)
		}
	}
	return d.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}
