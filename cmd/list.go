package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/mcporter/internal/auth"
	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/registry"
	"github.com/giantswarm/mcporter/internal/runtime"
)

const (
	defaultListTimeoutMs = 30000
	listConcurrency      = 8
)

type listOptions struct {
	schema    bool
	json      bool
	timeoutMs int
	eph       ephemeralFlags
}

// newListCmd creates the list command
func newListCmd() *cobra.Command {
	o := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list [server|url]",
		Short: "List configured servers, or the tools of one server",
		Long: `Without a server, list every configured server with its status and tool
count. With a server (a configured name or an MCP URL), list its tools.`,
		Args: cobra.MaximumNArgs(1),
		RunE: o.run,
	}
	// Add flags
	f := cmd.Flags()
	f.BoolVar(&o.schema, "schema", false, "Show each tool's input schema")
	f.BoolVar(&o.json, "json", false, "Print JSON instead of text")
	f.IntVar(&o.timeoutMs, "timeout", defaultListTimeoutMs, "Per-server timeout in milliseconds")
	o.eph.register(f)
	return cmd
}

func (o *listOptions) run(cmd *cobra.Command, args []string) error {
	if o.timeoutMs <= 0 {
		return usageErrorf("--timeout must be a positive number of milliseconds")
	}
	ctx := cmd.Context()
	logger := session.logger
	rt, err := session.Runtime(ctx)
	if err != nil {
		return err
	}

	name, err := targetServer(rt, &o.eph, args, logger)
	if err != nil {
		return err
	}
	// No server means an overview of all of them
	if name == "" {
		return o.listAll(ctx, rt, cmd.OutOrStdout())
	}
	return o.listServer(ctx, rt, name, cmd.OutOrStdout())
}

func (o *listOptions) timeout() time.Duration {
	return time.Duration(o.timeoutMs) * time.Millisecond
}

// listServer prints the tools of one server
func (o *listOptions) listServer(ctx context.Context, rt *runtime.Runtime, name string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	tools, err := rt.ListTools(ctx, name, runtime.ListToolsOptions{AutoAuthorize: true})
	if err != nil {
		return fmt.Errorf("failed to list tools of '%s': %w", name, err)
	}

	if o.json {
		if tools == nil {
			tools = []runtime.ToolInfo{}
		}
		return writeJSON(w, struct {
			Server string             `json:"server"`
			Tools  []runtime.ToolInfo `json:"tools"`
		}{name, tools})
	}

	def, _ := rt.Definition(name)
	fmt.Fprintf(w, "%s (%d tools)\n", name, len(tools))
	if def.Description != "" {
		fmt.Fprintf(w, "  %s\n", def.Description)
	}
	for _, tool := range tools {
		fmt.Fprintf(w, "\n  %s\n", tool.Name)
		if tool.Description != "" {
			fmt.Fprintf(w, "    %s\n", firstLine(tool.Description))
		}
		if o.schema && len(tool.InputSchema) > 0 {
			fmt.Fprintln(w, indent(logging.PrettyJSON(tool.InputSchema), "    "))
		}
	}
	return nil
}

type serverStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Status    string `json:"status"`
	ToolCount int    `json:"toolCount"`
	Error     string `json:"error,omitempty"`
}

const (
	statusOK           = "ok"
	statusAuthRequired = "auth required"
	statusError        = "error"
)

// listAll probes every server concurrently. A failing server is reported,
// not returned as an error, and never triggers a browser flow.
func (o *listOptions) listAll(ctx context.Context, rt *runtime.Runtime, w io.Writer) error {
	defs := rt.Definitions()
	statuses := make([]serverStatus, len(defs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, def := range defs {
		g.Go(func() error {
			statuses[i] = o.probe(gctx, rt, def)
			return nil
		})
	}
	// Probes never return an error
	_ = g.Wait()

	if o.json {
		return writeJSON(w, statuses)
	}
	if len(statuses) == 0 {
		cfg := rt.Config()
		fmt.Fprintf(w, "No servers configured (looked in %s).\n", cfg.Path)
		return nil
	}
	for _, s := range statuses {
		switch s.Status {
		case statusOK:
			fmt.Fprintf(w, "%-24s %-6s %d tools\n", s.Name, s.Transport, s.ToolCount)
		case statusAuthRequired:
			fmt.Fprintf(w, "%-24s %-6s auth required, run 'mcporter auth %s'\n", s.Name, s.Transport, s.Name)
		default:
			fmt.Fprintf(w, "%-24s %-6s error: %s\n", s.Name, s.Transport, s.Error)
		}
	}
	return nil
}

// probe lists the tools of def without starting a browser flow
func (o *listOptions) probe(ctx context.Context, rt *runtime.Runtime, def registry.ServerDefinition) serverStatus {
	ctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	s := serverStatus{Name: def.Name, Transport: string(def.Command.Kind())}
	tools, err := rt.ListTools(ctx, def.Name, runtime.ListToolsOptions{})
	switch {
	case err == nil:
		s.Status = statusOK
		s.ToolCount = len(tools)
	case auth.IsAuthorizationError(err):
		s.Status = statusAuthRequired
		s.Error = err.Error()
	default:
		s.Status = statusError
		s.Error = err.Error()
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
