package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcporter/internal/registry"
	"github.com/giantswarm/mcporter/internal/runtime"
)

type recordedCall struct {
	server string
	tool   string
	opts   runtime.CallOptions
}

// fakeRuntime serves canned tools and records calls.
type fakeRuntime struct {
	defs      []registry.ServerDefinition
	tools     map[string][]runtime.ToolInfo
	resources map[string][]mcp.Resource
	callErr   error

	mu        sync.Mutex
	calls     []recordedCall
	listCalls int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		defs: []registry.ServerDefinition{
			{Name: "linear", Description: "Issue tracker", Command: registry.HTTPCommand{URL: "https://mcp.linear.app/mcp"}},
			{Name: "fs", Command: registry.StdioCommand{Command: "mcp-fs"}},
		},
		tools: map[string][]runtime.ToolInfo{
			"linear": {
				{
					Name:        "list_issues",
					Description: "List issues\nwith filters",
					InputSchema: []byte(`{"type":"object","properties":{"state":{"type":"string"},"limit":{"type":"integer"}},"required":["state"]}`),
				},
				{Name: "create_issue", Description: "Create an issue"},
			},
			"fs": {{Name: "read_file"}},
		},
		resources: map[string][]mcp.Resource{
			"linear": {{URI: "linear://teams", Name: "teams"}},
		},
	}
}

func (f *fakeRuntime) Definitions() []registry.ServerDefinition { return f.defs }

func (f *fakeRuntime) ListTools(ctx context.Context, name string, opts runtime.ListToolsOptions) ([]runtime.ToolInfo, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	tools, ok := f.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownServer, name)
	}
	return append([]runtime.ToolInfo(nil), tools...), nil
}

func (f *fakeRuntime) CallTool(ctx context.Context, name, tool string, opts runtime.CallOptions) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{server: name, tool: tool, opts: opts})
	f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	return mcp.NewToolResultText(`{"ok":true}`), nil
}

func (f *fakeRuntime) ListResources(ctx context.Context, name string) ([]mcp.Resource, error) {
	if _, ok := f.tools[name]; !ok {
		return nil, errors.New("unknown server")
	}
	return f.resources[name], nil
}

func (f *fakeRuntime) lastCall() recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}
