package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcporter/internal/registry"
)

func TestCallToolReusesConnection(t *testing.T) {
	ff := &fakeFactory{setup: func(_ int, c *fakeClient) {
		c.callResult = func(n int) (*mcp.CallToolResult, error) {
			if n == 1 {
				return &mcp.CallToolResult{StructuredContent: map[string]any{"ok": "first"}}, nil
			}
			return &mcp.CallToolResult{StructuredContent: map[string]any{"ok": "second"}}, nil
		}
	}}
	rt := newTestRuntime(t, ff, nil, httpServer("integration"))
	ctx := context.Background()

	first, err := rt.CallTool(ctx, "integration", "echo", CallOptions{Args: map[string]any{"value": 1}})
	require.NoError(t, err)
	second, err := rt.CallTool(ctx, "integration", "echo", CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"ok": "first"}, first.StructuredContent)
	assert.Equal(t, map[string]any{"ok": "second"}, second.StructuredContent)

	clients := ff.clients()
	require.Len(t, clients, 1, "exactly one transport")
	starts, inits, _ := clients[0].counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, inits)
	require.Len(t, clients[0].calls, 2)
	assert.Equal(t, "echo", clients[0].calls[0].Params.Name)
	assert.Equal(t, map[string]any{"value": 1}, clients[0].calls[0].Params.Arguments)
}

func TestManySequentialCallsOneConnect(t *testing.T) {
	for _, n := range []int{1, 2, 5, 20} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			ff := &fakeFactory{}
			rt := newTestRuntime(t, ff, nil, stdioServer("local"))
			for i := 0; i < n; i++ {
				_, err := rt.CallTool(context.Background(), "local", "tool", CallOptions{})
				require.NoError(t, err)
			}
			require.Len(t, ff.clients(), 1)
			_, inits, _ := ff.clients()[0].counts()
			assert.Equal(t, 1, inits)
		})
	}
}

func TestConcurrentFirstUseSharesConnection(t *testing.T) {
	ff := &fakeFactory{setup: func(_ int, c *fakeClient) {
		c.initDelay = 50 * time.Millisecond
	}}
	rt := newTestRuntime(t, ff, nil, httpServer("shared"))

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rt.ListTools(context.Background(), "shared", ListToolsOptions{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, ff.clients(), 1)
	_, inits, _ := ff.clients()[0].counts()
	assert.Equal(t, 1, inits)
}

func TestCloseClosesEveryClientOnce(t *testing.T) {
	ff := &fakeFactory{setup: func(n int, c *fakeClient) {
		if n == 1 {
			c.closeErr = errors.New("already gone")
		}
	}}
	rt := newTestRuntime(t, ff, nil, httpServer("a"), stdioServer("b"), httpServer("unused"))
	ctx := context.Background()

	_, err := rt.ListTools(ctx, "a", ListToolsOptions{})
	require.NoError(t, err)
	_, err = rt.CallTool(ctx, "b", "x", CallOptions{})
	require.NoError(t, err)

	err = rt.Close()
	require.Error(t, err, "close failures are reported")
	assert.Contains(t, err.Error(), "already gone")

	require.NoError(t, rt.Close(), "second close is a no-op")

	clients := ff.clients()
	require.Len(t, clients, 2)
	for _, c := range clients {
		_, _, closes := c.counts()
		assert.Equal(t, 1, closes)
	}

	_, err = rt.ListTools(ctx, "a", ListToolsOptions{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFailedConnectIsRetried(t *testing.T) {
	ff := &fakeFactory{setup: func(n int, c *fakeClient) {
		if n == 1 {
			c.initErr = func(int) error { return errBoom }
		}
	}}
	rt := newTestRuntime(t, ff, nil, stdioServer("flaky"))
	ctx := context.Background()

	_, err := rt.ListTools(ctx, "flaky", ListToolsOptions{})
	require.ErrorIs(t, err, errBoom)

	_, err = rt.ListTools(ctx, "flaky", ListToolsOptions{})
	require.NoError(t, err)

	clients := ff.clients()
	require.Len(t, clients, 2)
	_, _, closes := clients[0].counts()
	assert.Equal(t, 1, closes, "failed client is closed right away")

	require.NoError(t, rt.Close())
	_, _, closes = clients[0].counts()
	assert.Equal(t, 1, closes, "failed client is not closed twice")
}

func TestUnknownServer(t *testing.T) {
	rt := newTestRuntime(t, &fakeFactory{}, nil)
	_, err := rt.ListTools(context.Background(), "nope", ListToolsOptions{})
	assert.ErrorIs(t, err, registry.ErrUnknownServer)
}

func TestHTTPFallsBackToSSE(t *testing.T) {
	ff := &fakeFactory{setup: func(n int, c *fakeClient) {
		if n == 1 {
			c.initErr = func(int) error { return errors.New("405 method not allowed") }
		}
	}}
	rt := newTestRuntime(t, ff, nil, httpServer("legacy"))

	_, err := rt.ListTools(context.Background(), "legacy", ListToolsOptions{})
	require.NoError(t, err)

	clients := ff.clients()
	require.Len(t, clients, 2)
	assert.Equal(t, registry.KindHTTP, clients[0].def.Command.Kind())
	assert.Equal(t, registry.KindSSE, clients[1].def.Command.Kind())
}

func TestStdioDoesNotFallBack(t *testing.T) {
	ff := &fakeFactory{setup: func(_ int, c *fakeClient) {
		c.initErr = func(int) error { return errBoom }
	}}
	rt := newTestRuntime(t, ff, nil, stdioServer("broken"))
	_, err := rt.ListTools(context.Background(), "broken", ListToolsOptions{})
	require.ErrorIs(t, err, errBoom)
	assert.Len(t, ff.clients(), 1)
}

func TestUnauthorizedHTTPIsPromotedToOAuth(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ff := &fakeFactory{setup: func(n int, c *fakeClient) {
		if n == 1 {
			c.initErr = func(int) error { return errors.New("request failed: 401 Unauthorized") }
		}
	}}
	rt := newTestRuntime(t, ff, nil, httpServer("secure"))

	_, err := rt.ListTools(context.Background(), "secure", ListToolsOptions{AutoAuthorize: true})
	require.NoError(t, err)

	def, err := rt.Definition("secure")
	require.NoError(t, err)
	assert.True(t, def.IsOAuth())
	assert.NotEmpty(t, def.TokenCacheDir)

	clients := ff.clients()
	require.Len(t, clients, 2)
	assert.False(t, clients[0].def.IsOAuth())
	assert.True(t, clients[1].def.IsOAuth())
}

func TestUnauthorizedWithoutAutoAuthorizeIsNotPromoted(t *testing.T) {
	ff := &fakeFactory{setup: func(_ int, c *fakeClient) {
		c.initErr = func(int) error { return errors.New("401") }
	}}
	rt := newTestRuntime(t, ff, nil, httpServer("secure"))

	_, err := rt.ListTools(context.Background(), "secure", ListToolsOptions{})
	require.Error(t, err)

	def, err := rt.Definition("secure")
	require.NoError(t, err)
	assert.False(t, def.IsOAuth())
	assert.Len(t, ff.clients(), 1, "no SSE fallback for authorization failures")
}

func TestOAuthRequiredRunsAuthorizer(t *testing.T) {
	oauthErr := &transport.OAuthAuthorizationRequiredError{}
	ff := &fakeFactory{setup: func(_ int, c *fakeClient) {
		c.initErr = func(attempt int) error {
			if attempt == 1 {
				return oauthErr
			}
			return nil
		}
	}}
	authorizer := &fakeAuthorizer{}
	def := httpServer("oauth").WithOAuth()
	rt := newTestRuntime(t, ff, authorizer, def)

	_, err := rt.ListTools(context.Background(), "oauth", ListToolsOptions{AutoAuthorize: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, authorizer.calls.Load())
	require.Len(t, ff.clients(), 1)
	_, inits, _ := ff.clients()[0].counts()
	assert.Equal(t, 2, inits)
}

func TestOAuthRequiredWithoutAutoAuthorize(t *testing.T) {
	ff := &fakeFactory{setup: func(_ int, c *fakeClient) {
		c.initErr = func(int) error { return &transport.OAuthAuthorizationRequiredError{} }
	}}
	authorizer := &fakeAuthorizer{}
	rt := newTestRuntime(t, ff, authorizer, httpServer("oauth").WithOAuth())

	_, err := rt.ListTools(context.Background(), "oauth", ListToolsOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mcporter auth oauth")
	assert.EqualValues(t, 0, authorizer.calls.Load())
}

func TestListToolsNormalizesAndPaginates(t *testing.T) {
	ff := &fakeFactory{setup: func(_ int, c *fakeClient) {
		c.listTools = func(req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
			if req.Params.Cursor == "" {
				res := &mcp.ListToolsResult{Tools: []mcp.Tool{
					mcp.NewTool("search", mcp.WithDescription("Search issues"), mcp.WithString("query", mcp.Required())),
				}}
				res.NextCursor = "page-2"
				return res, nil
			}
			return &mcp.ListToolsResult{Tools: []mcp.Tool{
				{Name: "raw", RawInputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"integer"}}}`)},
			}}, nil
		}
	}}
	rt := newTestRuntime(t, ff, nil, httpServer("linear"))

	tools, err := rt.ListTools(context.Background(), "linear", ListToolsOptions{})
	require.NoError(t, err)
	require.Len(t, tools, 2)

	assert.Equal(t, "search", tools[0].Name)
	assert.Equal(t, "Search issues", tools[0].Description)
	require.NotNil(t, tools[0].InputSchema)
	assert.Contains(t, string(tools[0].InputSchema), `"query"`)
	assert.Nil(t, tools[0].OutputSchema)

	assert.Equal(t, "raw", tools[1].Name)
	assert.JSONEq(t, `{"type":"object","properties":{"id":{"type":"integer"}}}`, string(tools[1].InputSchema))

	assert.Len(t, ff.clients()[0].listReqs, 2)
}

func TestNormalizeSchema(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: ``, want: ``},
		{in: `null`, want: ``},
		{in: `{}`, want: ``},
		{in: `{"type":""}`, want: ``},
		{in: `{"type":"","properties":{}}`, want: ``},
		{in: `{"type":"object"}`, want: `{"type":"object"}`},
		{in: `{"type":"object","properties":{}}`, want: `{"type":"object","properties":{}}`},
		{in: `{"properties":{"a":{}}}`, want: `{"properties":{"a":{}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, string(normalizeSchema(json.RawMessage(tt.in))))
		})
	}
}

func TestCallToolTimeout(t *testing.T) {
	ff := &fakeFactory{setup: func(_ int, c *fakeClient) {
		c.callResult = func(int) (*mcp.CallToolResult, error) {
			time.Sleep(100 * time.Millisecond)
			return nil, context.DeadlineExceeded
		}
	}}
	rt := newTestRuntime(t, ff, nil, stdioServer("slow"))
	_, err := rt.CallTool(context.Background(), "slow", "wait", CallOptions{Timeout: 10 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestListResources(t *testing.T) {
	ff := &fakeFactory{setup: func(_ int, c *fakeClient) {
		c.resources = []mcp.Resource{{URI: "docs://readme", Name: "readme"}}
	}}
	rt := newTestRuntime(t, ff, nil, stdioServer("docs"))
	resources, err := rt.ListResources(context.Background(), "docs")
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "docs://readme", resources[0].URI)

	info, err := rt.ServerInfo(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", info.Name)
	assert.Len(t, ff.clients(), 1)
}

func TestRegisterDefinitionOverwrite(t *testing.T) {
	rt := newTestRuntime(t, &fakeFactory{}, nil, httpServer("x"))
	err := rt.RegisterDefinition(stdioServer("x"), false)
	assert.ErrorIs(t, err, registry.ErrDuplicateDefinition)
	require.NoError(t, rt.RegisterDefinition(stdioServer("x"), true))

	def, err := rt.Definition("x")
	require.NoError(t, err)
	assert.Equal(t, registry.KindStdio, def.Command.Kind())

	name, ok := rt.ResolveByURL("https://x.example.com/mcp")
	assert.False(t, ok)
	assert.Empty(t, name)
}
