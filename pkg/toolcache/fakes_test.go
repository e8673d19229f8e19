package toolcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-toolmesh-go/pkg/mcpmgr"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider is one "session" with a fixed tool set. Calls fail with the
// configured error until it is cleared.
type fakeProvider struct {
	server string
	gen    int64
	tools  []string

	mu      sync.Mutex
	callErr error
	calls   int
	closed  bool
}

func (p *fakeProvider) ServerName() string { return p.server }

func (p *fakeProvider) ToolCallbacks() []mcpmgr.ToolCallback {
	out := make([]mcpmgr.ToolCallback, 0, len(p.tools))
	for _, name := range p.tools {
		out = append(out, &fakeCallback{provider: p, tool: &mcp.Tool{Name: name}})
	}
	return out
}

func (p *fakeProvider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) setErr(err error) {
	p.mu.Lock()
	p.callErr = err
	p.mu.Unlock()
}

func (p *fakeProvider) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeCallback struct {
	provider *fakeProvider
	tool     *mcp.Tool
}

func (c *fakeCallback) Tool() *mcp.Tool { return c.tool }

func (c *fakeCallback) Call(ctx context.Context, args any) (*mcp.CallToolResult, error) {
	p := c.provider
	p.mu.Lock()
	p.calls++
	err := p.callErr
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errors.New("use of closed provider")
	}
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: c.tool.Name}}}, nil
}

// fakeSource hands out a new fakeProvider per connect.
type fakeSource struct {
	name  string
	tools []string

	connects atomic.Int64
	fail     atomic.Bool
	// nextErr, when set, is the call error given to every new provider.
	mu        sync.Mutex
	nextErr   error
	providers []*fakeProvider
	// gate, when non-nil, blocks connects until closed.
	gate chan struct{}
}

func newFakeSource(name string, tools ...string) *fakeSource {
	return &fakeSource{name: name, tools: tools}
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) NewToolProvider(ctx context.Context) (mcpmgr.ToolCallbackProvider, error) {
	n := s.connects.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.fail.Load() {
		return nil, errConnRefused
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &fakeProvider{server: s.name, gen: n, tools: s.tools, callErr: s.nextErr}
	s.providers = append(s.providers, p)
	return p, nil
}

func (s *fakeSource) latest() *fakeProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.providers) == 0 {
		return nil
	}
	return s.providers[len(s.providers)-1]
}

func (s *fakeSource) setNextErr(err error) {
	s.mu.Lock()
	s.nextErr = err
	s.mu.Unlock()
}

var (
	errSessionGone = errors.New("POST http://upstream/mcp: 404 Not Found: session not found")
	errConnRefused = errors.New("connection refused")
)

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
