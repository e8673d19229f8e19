package mcpgateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-toolmesh-go/pkg/mcpmgr"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type echoArgs struct {
	Text string `json:"text"`
}

// upstream is an in-process MCP server served at "/mcp". Restart forgets
// every session.
type upstream struct {
	*httptest.Server

	name  string
	tools []string

	mu      sync.Mutex
	handler http.Handler
}

func newUpstream(t *testing.T, name string, tools ...string) *upstream {
	t.Helper()
	u := &upstream{name: name, tools: tools}
	u.handler = u.newHandler()
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		h := u.handler
		u.mu.Unlock()
		h.ServeHTTP(w, r)
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) newHandler() http.Handler {
	server := mcp.NewServer(&mcp.Implementation{Name: u.name, Version: "0.0.1"}, nil)
	for _, name := range u.tools {
		mcp.AddTool(server, &mcp.Tool{Name: name, Description: "Echo for " + name}, func(ctx context.Context, req *mcp.CallToolRequest, in echoArgs) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: u.name + "/" + req.Params.Name + ":" + in.Text}},
			}, nil, nil
		})
	}
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func (u *upstream) Restart() {
	h := u.newHandler()
	u.mu.Lock()
	u.handler = h
	u.mu.Unlock()
}

func newConnection(name, baseURL string) *mcpmgr.ServerConnection {
	factory := mcpmgr.NewTransportFactory(&mcpmgr.FactoryOptions{Logger: quietLogger()})
	return mcpmgr.NewServerConnection(
		mcpmgr.ServerDescriptor{Name: name, BaseURL: baseURL, Protocol: mcpmgr.ProtocolStreamableHTTP},
		factory,
		&mcpmgr.ConnectionOptions{Logger: quietLogger()},
	)
}

// stubProvider is a fixed set of tools for index tests.
type stubProvider struct {
	server string
	tools  []*mcp.Tool
}

func (p *stubProvider) ServerName() string { return p.server }

func (p *stubProvider) ToolCallbacks() []mcpmgr.ToolCallback {
	out := make([]mcpmgr.ToolCallback, 0, len(p.tools))
	for _, tool := range p.tools {
		out = append(out, stubCallback{tool: tool})
	}
	return out
}

func (p *stubProvider) Close() error { return nil }

type stubCallback struct {
	tool *mcp.Tool
}

func (c stubCallback) Tool() *mcp.Tool { return c.tool }

func (c stubCallback) Call(context.Context, any) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: c.tool.Name}}}, nil
}

func textOf(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

// stubSource hands out a stubProvider with its current tool list per connect.
type stubSource struct {
	name string

	mu    sync.Mutex
	tools []string
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) NewToolProvider(context.Context) (mcpmgr.ToolCallbackProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &stubProvider{server: s.name}
	for _, name := range s.tools {
		p.tools = append(p.tools, &mcp.Tool{Name: name, InputSchema: map[string]any{"type": "object"}})
	}
	return p, nil
}

func (s *stubSource) setTools(tools ...string) {
	s.mu.Lock()
	s.tools = tools
	s.mu.Unlock()
}
