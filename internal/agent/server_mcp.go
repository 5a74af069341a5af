package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/cors"

	"github.com/giantswarm/mcporter/internal/logging"
)

// Server transports accepted by MCPServer.Start.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

const shutdownTimeout = 5 * time.Second

// ServerOptions configures NewMCPServer.
type ServerOptions struct {
	Transport string
	Version   string
	// CORSOrigins lists the origins allowed to reach the HTTP endpoint.
	// Empty means same-origin only.
	CORSOrigins []string
	// CallTimeout bounds each proxied tool call. Zero means no limit.
	CallTimeout time.Duration
}

// MCPServer exposes the configured servers as tools of a single MCP server.
type MCPServer struct {
	rt        Runtime
	logger    *logging.Logger
	mcpServer *server.MCPServer
	opts      ServerOptions
}

// NewMCPServer creates a new MCP server backed by rt.
func NewMCPServer(rt Runtime, opts ServerOptions, logger *logging.Logger) (*MCPServer, error) {
	switch opts.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		return nil, fmt.Errorf("unsupported server transport: %s", opts.Transport)
	}

	mcpServer := server.NewMCPServer(
		"mcporter",
		opts.Version,
		server.WithToolCapabilities(false),
	)

	ms := &MCPServer{
		rt:        rt,
		logger:    logger,
		mcpServer: mcpServer,
		opts:      opts,
	}
	ms.registerTools()
	return ms, nil
}

// Start serves until ctx is done or the transport fails.
func (m *MCPServer) Start(ctx context.Context, listenAddr string) error {
	switch m.opts.Transport {
	case TransportStdio:
		return server.ServeStdio(m.mcpServer)
	case TransportStreamableHTTP:
		return m.serveHTTP(ctx, listenAddr)
	default:
		return fmt.Errorf("unsupported server transport: %s", m.opts.Transport)
	}
}

// Handler returns the CORS-wrapped streamable HTTP handler mounted at /mcp.
func (m *MCPServer) Handler() http.Handler {
	streamable := server.NewStreamableHTTPServer(m.mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamable)

	opts := cors.Options{
		AllowedOrigins: m.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
	}
	if len(opts.AllowedOrigins) == 0 {
		// rs/cors treats an empty list as "*".
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(opts).Handler(mux)
}

func (m *MCPServer) serveHTTP(ctx context.Context, listenAddr string) error {
	srv := &http.Server{Addr: listenAddr, Handler: m.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	m.logger.Info("Serving MCP over streamable HTTP on http://%s/mcp", listenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// registerTools registers all MCP tools
func (m *MCPServer) registerTools() {
	listServersTool := mcp.NewTool("list_servers",
		mcp.WithDescription("List the configured MCP servers"),
	)
	m.mcpServer.AddTool(listServersTool, m.handleListServers)

	listToolsTool := mcp.NewTool("list_tools",
		mcp.WithDescription("List the tools of one configured MCP server"),
		mcp.WithString("server",
			mcp.Required(),
			mcp.Description("Name of the server"),
		),
	)
	m.mcpServer.AddTool(listToolsTool, m.handleListTools)

	listResourcesTool := mcp.NewTool("list_resources",
		mcp.WithDescription("List the resources of one configured MCP server"),
		mcp.WithString("server",
			mcp.Required(),
			mcp.Description("Name of the server"),
		),
	)
	m.mcpServer.AddTool(listResourcesTool, m.handleListResources)

	callToolTool := mcp.NewTool("call_tool",
		mcp.WithDescription("Call a tool on one configured MCP server"),
		mcp.WithString("server",
			mcp.Required(),
			mcp.Description("Name of the server"),
		),
		mcp.WithString("tool",
			mcp.Required(),
			mcp.Description("Name of the tool to call"),
		),
		mcp.WithObject("arguments",
			mcp.Description("Arguments to pass to the tool (as JSON object)"),
		),
	)
	m.mcpServer.AddTool(callToolTool, m.handleCallTool)
}
