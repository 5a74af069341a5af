package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/registry"
)

// fakeClient records how the Runtime drives the client boundary.
type fakeClient struct {
	def registry.ServerDefinition

	mu       sync.Mutex
	starts   int
	inits    int
	closes   int
	calls    []mcp.CallToolRequest
	listReqs []mcp.ListToolsRequest

	initDelay  time.Duration
	initErr    func(attempt int) error
	listTools  func(req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	callResult func(n int) (*mcp.CallToolResult, error)
	closeErr   error
	resources  []mcp.Resource
}

func (f *fakeClient) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeClient) Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	if f.initDelay > 0 {
		time.Sleep(f.initDelay)
	}
	f.mu.Lock()
	f.inits++
	attempt := f.inits
	f.mu.Unlock()
	if f.initErr != nil {
		if err := f.initErr(attempt); err != nil {
			return nil, err
		}
	}
	return &mcp.InitializeResult{ServerInfo: mcp.Implementation{Name: f.def.Name, Version: "1.0.0"}}, nil
}

func (f *fakeClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	f.mu.Lock()
	f.listReqs = append(f.listReqs, req)
	f.mu.Unlock()
	if f.listTools != nil {
		return f.listTools(req)
	}
	return &mcp.ListToolsResult{}, nil
}

func (f *fakeClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	if f.callResult != nil {
		return f.callResult(n)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (f *fakeClient) ListResources(ctx context.Context, req mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	return &mcp.ListResourcesResult{Resources: f.resources}, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

func (f *fakeClient) counts() (starts, inits, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.inits, f.closes
}

// fakeFactory hands out fakeClients, configured per creation by setup.
type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeClient
	setup   func(n int, c *fakeClient)
	err     error
}

func (ff *fakeFactory) new(def registry.ServerDefinition) (Client, error) {
	if ff.err != nil {
		return nil, ff.err
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	c := &fakeClient{def: def}
	ff.created = append(ff.created, c)
	if ff.setup != nil {
		ff.setup(len(ff.created), c)
	}
	return c, nil
}

func (ff *fakeFactory) clients() []*fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return append([]*fakeClient(nil), ff.created...)
}

type fakeAuthorizer struct {
	calls atomic.Int32
	err   error
}

func (a *fakeAuthorizer) Authorize(ctx context.Context, def registry.ServerDefinition, authErr error) error {
	a.calls.Add(1)
	return a.err
}

var errBoom = errors.New("boom")

func newTestRuntime(t interface{ Fatalf(string, ...any) }, ff *fakeFactory, authorizer Authorizer, defs ...registry.ServerDefinition) *Runtime {
	if defs == nil {
		defs = []registry.ServerDefinition{}
	}
	opts := Options{
		Servers:       defs,
		Logger:        logging.Discard(),
		ClientFactory: ff.new,
	}
	if authorizer != nil {
		opts.Authorizer = authorizer
	}
	rt, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return rt
}

func httpServer(name string) registry.ServerDefinition {
	return registry.ServerDefinition{Name: name, Command: registry.HTTPCommand{URL: "https://" + name + ".example.com/mcp"}}
}

func stdioServer(name string) registry.ServerDefinition {
	return registry.ServerDefinition{Name: name, Command: registry.StdioCommand{Command: name}}
}
