package mcpmgr

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolCallback is one invocable tool discovered on a server.
type ToolCallback interface {
	// Tool returns the tool definition as advertised by the server.
	Tool() *mcp.Tool
	// Call invokes the tool. args must marshal to a JSON object.
	Call(ctx context.Context, args any) (*mcp.CallToolResult, error)
}

// ToolCallbackProvider is the set of tools discovered from one server.
type ToolCallbackProvider interface {
	ServerName() string
	ToolCallbacks() []ToolCallback
	Close() error
}

// ClientToolProvider exposes the tools of one Client as callbacks. The tool
// list is captured once when the provider is built.
type ClientToolProvider struct {
	serverName string
	client     *Client
	callbacks  []ToolCallback
}

var _ ToolCallbackProvider = (*ClientToolProvider)(nil)

// NewClientToolProvider lists the client's tools and wraps each one. The
// provider takes ownership of client.
func NewClientToolProvider(ctx context.Context, serverName string, client *Client) (*ClientToolProvider, error) {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcpmgr: tools for %q: %w", serverName, err)
	}
	p := &ClientToolProvider{serverName: serverName, client: client}
	p.callbacks = make([]ToolCallback, 0, len(tools))
	for _, tool := range tools {
		p.callbacks = append(p.callbacks, &clientToolCallback{tool: tool, client: client})
	}
	return p, nil
}

func (p *ClientToolProvider) ServerName() string { return p.serverName }

// Client exposes the underlying client handle.
func (p *ClientToolProvider) Client() *Client { return p.client }

func (p *ClientToolProvider) ToolCallbacks() []ToolCallback {
	return append([]ToolCallback(nil), p.callbacks...)
}

func (p *ClientToolProvider) Close() error { return p.client.Close() }

type clientToolCallback struct {
	tool   *mcp.Tool
	client *Client
}

func (c *clientToolCallback) Tool() *mcp.Tool { return c.tool }

func (c *clientToolCallback) Call(ctx context.Context, args any) (*mcp.CallToolResult, error) {
	return c.client.CallTool(ctx, c.tool.Name, args)
}
