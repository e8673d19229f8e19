package mcpmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client is one negotiated session with a remote MCP server. A Client is
// never repaired in place: when its session is lost a new Client replaces it.
type Client struct {
	id             string
	endpoint       string
	protocol       Protocol
	requestTimeout time.Duration

	client  *mcp.Client
	session *mcp.ClientSession
	init    *mcp.InitializeResult

	// cancel releases the context the session's streams are bound to.
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// ID is a process-local identifier for log correlation.
func (c *Client) ID() string { return c.id }

// Endpoint is the URL form that produced the session.
func (c *Client) Endpoint() string { return c.endpoint }

// Protocol is the protocol the session was negotiated over.
func (c *Client) Protocol() Protocol { return c.protocol }

// SessionID returns the server assigned session identifier, which is empty for
// transports that do not expose one.
func (c *Client) SessionID() string { return c.session.ID() }

// ProtocolVersion is the version negotiated during initialization.
func (c *Client) ProtocolVersion() string { return c.init.ProtocolVersion }

// ServerName returns the name the server advertised, or "" when it sent none.
func (c *Client) ServerName() string {
	if c.init.ServerInfo == nil {
		return ""
	}
	if c.init.ServerInfo.Title != "" {
		return c.init.ServerInfo.Title
	}
	return c.init.ServerInfo.Name
}

// Ping sends a protocol-level ping.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, c.requestTimeout)
	defer cancel()
	return c.session.Ping(ctx, nil)
}

// ListTools returns every tool advertised by the server, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	ctx, cancel := withTimeout(ctx, c.requestTimeout)
	defer cancel()
	var (
		tools  []*mcp.Tool
		params = &mcp.ListToolsParams{}
	)
	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("mcpmgr: list tools on %s: %w", c.endpoint, err)
		}
		for _, tool := range res.Tools {
			if tool != nil {
				tools = append(tools, tool)
			}
		}
		if res.NextCursor == "" || res.NextCursor == params.Cursor {
			return tools, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

// CallTool invokes a tool. Transport failures are returned as *ToolCallError
// carrying their FailureKind; a result flagged IsError is not a Go error.
func (c *Client) CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	if name == "" {
		return nil, fmt.Errorf("mcpmgr: tool name is required for %s", c.endpoint)
	}
	ctx, cancel := withTimeout(ctx, c.requestTimeout)
	defer cancel()
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, &ToolCallError{Endpoint: c.endpoint, Tool: name, Kind: ClassifyFailure(err), Err: err}
	}
	return res, nil
}

// Close terminates the session. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.session.Close()
		if c.cancel != nil {
			c.cancel()
		}
	})
	return c.closeErr
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
