package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcporter/internal/agent"
)

type serveOptions struct {
	transport   string
	listenAddr  string
	corsOrigins []string
	timeoutMs   int
}

// newServeCmd creates the serve command
func newServeCmd() *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose every configured server through one MCP server",
		Long: `Run an MCP server whose tools proxy to the configured servers:

  list_servers     the configured servers
  list_tools       the tools of one server
  list_resources   the resources of one server
  call_tool        call a tool on one server

Use --transport stdio to plug mcporter into an MCP client such as an editor
or assistant, or --transport streamable-http to serve http://<listen-addr>/mcp.
Servers that need OAuth must be authorized with 'mcporter auth' first.`,
		Args: cobra.NoArgs,
		RunE: o.run,
	}
	// Add flags
	f := cmd.Flags()
	f.StringVar(&o.transport, "transport", agent.TransportStdio, "Server transport: stdio or streamable-http")
	f.StringVar(&o.listenAddr, "listen-addr", "127.0.0.1:8899", "Listen address for streamable-http (path is fixed to /mcp)")
	f.StringSliceVar(&o.corsOrigins, "cors-origin", nil, "Origin allowed to call the HTTP endpoint (repeatable, * for any)")
	f.IntVar(&o.timeoutMs, "timeout", defaultCallTimeoutMs, "Timeout in milliseconds for each proxied call")
	return cmd
}

func (o *serveOptions) run(cmd *cobra.Command, args []string) error {
	if o.timeoutMs <= 0 {
		return usageErrorf("--timeout must be a positive number of milliseconds")
	}
	ctx := cmd.Context()
	rt, err := session.Runtime(ctx)
	if err != nil {
		return err
	}

	// Create MCP server
	server, err := agent.NewMCPServer(rt, agent.ServerOptions{
		Transport:   o.transport,
		Version:     version,
		CORSOrigins: o.corsOrigins,
		CallTimeout: time.Duration(o.timeoutMs) * time.Millisecond,
	}, session.logger)
	if err != nil {
		return &UsageError{Err: err}
	}

	// Run until the context is cancelled
	session.logger.Info("Starting mcporter MCP server (transport: %s, %d servers)...", o.transport, len(rt.Definitions()))
	if err := server.Start(ctx, o.listenAddr); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
