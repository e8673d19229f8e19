package mcpmgr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoArgs struct {
	Text string `json:"text"`
}

// upstream is an in-process Streamable HTTP MCP server mounted at "/mcp".
// Restart swaps in a fresh server so that every existing session is
// forgotten, the way a redeployed server behaves.
type upstream struct {
	*httptest.Server

	name  string
	tools []*mcp.Tool

	mu      sync.Mutex
	handler http.Handler
	paths   []string
}

func newUpstream(t *testing.T, name string, tools ...*mcp.Tool) *upstream {
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
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.paths = append(u.paths, r.URL.Path)
		u.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) newHandler() http.Handler {
	server := mcp.NewServer(&mcp.Implementation{Name: u.name, Version: "0.0.1"}, nil)
	for _, tool := range u.tools {
		mcp.AddTool(server, tool, func(ctx context.Context, req *mcp.CallToolRequest, in echoArgs) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: req.Params.Name + ":" + in.Text}},
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

func (u *upstream) Paths() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.paths...)
}

func echoTool(name, description string) *mcp.Tool {
	return &mcp.Tool{Name: name, Description: description}
}
