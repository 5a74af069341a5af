package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcporter/internal/callargs"
	"github.com/giantswarm/mcporter/internal/runtime"
)

const (
	envCallTimeout       = "MCPORTER_CALL_TIMEOUT"
	defaultCallTimeoutMs = 60000
)

type callOptions struct {
	argsJSON  string
	output    string
	timeoutMs int
	eph       ephemeralFlags
}

// newCallCmd creates the call command
func newCallCmd() *cobra.Command {
	o := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call <server.tool | server tool | url.tool> [key=value | key:value ...]",
		Short: "Call a tool",
		Long: `Call a tool on a configured server, an MCP URL or an ad-hoc server.

Arguments are key=value or key:value pairs, merged over the JSON object given
with --args. Values are converted to the types the tool's input schema asks
for.

Examples:
  mcporter call linear.list_issues state=open limit=5
  mcporter call linear list_issues --args '{"state": "open"}'
  mcporter call https://mcp.example.com/mcp.search query:weather
  mcporter call --stdio "npx -y @acme/weather-mcp" forecast city=Berlin`,
		Args: cobra.MinimumNArgs(1),
		RunE: o.run,
	}
	// Add flags
	f := cmd.Flags()
	f.StringVar(&o.argsJSON, "args", "", "Tool arguments as a JSON object")
	f.StringVar(&o.output, "output", outputText, "Output format: text, json or raw")
	f.IntVar(&o.timeoutMs, "timeout", 0, "Call timeout in milliseconds (default: "+envCallTimeout+" or 60000)")
	o.eph.register(f)
	return cmd
}

func (o *callOptions) run(cmd *cobra.Command, args []string) error {
	// Validate output format and timeout
	switch o.output {
	case outputText, outputJSON, outputRaw:
	default:
		return usageErrorf("invalid --output %q (expected text, json or raw)", o.output)
	}
	timeout, err := o.timeout()
	if err != nil {
		return err
	}

	// One deadline covers connecting, listing tools and the call itself
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	logger := session.logger
	rt, err := session.Runtime(ctx)
	if err != nil {
		return err
	}

	server, tool, rest, err := o.selector(rt, args)
	if err != nil {
		return err
	}

	// Parse and type the tool arguments
	toolArgs, err := callargs.Parse(rest, o.argsJSON)
	if err != nil {
		return &UsageError{Err: err}
	}
	toolArgs, err = o.coerce(ctx, rt, server, tool, toolArgs)
	if err != nil {
		return timedOut(ctx, server, tool, timeout, err)
	}

	logger.Debug("Calling %s.%s", server, tool)
	res, err := rt.CallTool(ctx, server, tool, runtime.CallOptions{
		Args:          toolArgs,
		AutoAuthorize: true,
		Timeout:       timeout,
	})
	if err != nil {
		return timedOut(ctx, server, tool, timeout, err)
	}

	// Print the result; a tool-level error still exits non-zero
	if err := writeCallResult(cmd.OutOrStdout(), res, o.output); err != nil {
		return err
	}
	if res.IsError {
		return &exitError{code: 1}
	}
	return nil
}

// timedOut names the call in err when the deadline of ctx has passed.
func timedOut(ctx context.Context, server, tool string, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !strings.Contains(err.Error(), "timed out") {
		return fmt.Errorf("call to %s.%s timed out after %s: %w", server, tool, timeout, err)
	}
	return err
}

func (o *callOptions) selector(rt *runtime.Runtime, args []string) (server, tool string, rest []string, err error) {
	logger := session.logger
	if o.eph.requested() {
		server, err = o.eph.apply(rt, logger)
		if err != nil {
			return "", "", nil, err
		}
		return server, strings.TrimSuffix(args[0], "()"), args[1:], nil
	}

	sel, rest, err := callargs.ParseSelector(args)
	if err != nil {
		return "", "", nil, &UsageError{Err: err}
	}
	server = sel.Server
	if sel.URL != "" {
		server, err = resolveServer(rt, sel.URL, logger)
	} else {
		_, err = rt.Definition(server)
	}
	if err != nil {
		return "", "", nil, err
	}
	return server, sel.Tool, rest, nil
}

// coerce types the arguments with the tool's input schema. A tool missing
// from the listing is still called so the server can report it.
func (o *callOptions) coerce(ctx context.Context, rt *runtime.Runtime, server, tool string, args map[string]any) (map[string]any, error) {
	tools, err := rt.ListTools(ctx, server, runtime.ListToolsOptions{AutoAuthorize: true})
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		if t.Name != tool {
			continue
		}
		args, err = callargs.Coerce(args, t.InputSchema)
		if err != nil {
			return nil, &UsageError{Err: err}
		}
		if missing := callargs.MissingRequired(args, t.InputSchema); len(missing) > 0 {
			return nil, usageErrorf("%s.%s requires: %s", server, tool, strings.Join(missing, ", "))
		}
		return args, nil
	}
	session.logger.Warning("Tool '%s' is not listed by '%s', calling it anyway", tool, server)
	return args, nil
}

func (o *callOptions) timeout() (time.Duration, error) {
	ms := o.timeoutMs
	if ms == 0 {
		ms = defaultCallTimeoutMs
		if v := os.Getenv(envCallTimeout); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return 0, usageErrorf("%s must be a positive number of milliseconds, got %q", envCallTimeout, v)
			}
			ms = n
		}
	}
	if ms < 0 {
		return 0, usageErrorf("--timeout must be a positive number of milliseconds")
	}
	return time.Duration(ms) * time.Millisecond, nil
}
