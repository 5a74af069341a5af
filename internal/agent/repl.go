package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/registry"
	"github.com/giantswarm/mcporter/internal/runtime"
)

// errExit is a sentinel error used to signal REPL exit
var errExit = errors.New("exit")

// Runtime is the part of *runtime.Runtime the REPL and the server mode use.
type Runtime interface {
	Definitions() []registry.ServerDefinition
	ListTools(ctx context.Context, name string, opts runtime.ListToolsOptions) ([]runtime.ToolInfo, error)
	CallTool(ctx context.Context, name, tool string, opts runtime.CallOptions) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context, name string) ([]mcp.Resource, error)
}

// REPL is an interactive shell bound to one server at a time.
type REPL struct {
	rt              Runtime
	logger          *logging.Logger
	out             io.Writer
	commandHandlers map[string]commandHandler

	mu     sync.Mutex
	server string
	tools  []runtime.ToolInfo
	loaded bool
}

// NewREPL creates a REPL talking to server through rt.
func NewREPL(rt Runtime, server string, logger *logging.Logger) *REPL {
	r := &REPL{
		rt:     rt,
		logger: logger,
		out:    os.Stdout,
		server: server,
	}
	r.commandHandlers = r.buildCommandHandlers()
	return r
}

// SetOutput redirects command output.
func (r *REPL) SetOutput(w io.Writer) { r.out = w }

// Run starts the REPL
func (r *REPL) Run(ctx context.Context) error {
	// Warm the tool cache so completion works on the first TAB.
	if _, err := r.toolList(ctx); err != nil {
		return err
	}

	config := &readline.Config{
		Prompt:          r.prompt(),
		HistoryFile:     filepath.Join(os.TempDir(), ".mcporter_repl_history"),
		AutoComplete:    r.createCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer func() { _ = rl.Close() }()
	r.out = rl.Stdout()

	r.logger.Info("REPL connected to '%s'. Type 'help' for available commands. Use TAB for completion.", r.currentServer())

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := r.executeCommand(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			r.logger.Error("%v", err)
		}
		rl.SetPrompt(r.prompt())
		fmt.Fprintln(r.out)
	}
}

func (r *REPL) prompt() string {
	return r.currentServer() + "> "
}

func (r *REPL) currentServer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.server
}

// createCompleter completes command names, tool names and server names.
// Tool names are read from the cache at completion time so 'use' and
// 'refresh' are picked up without rebuilding the completer.
func (r *REPL) createCompleter() *readline.PrefixCompleter {
	tools := readline.PcItemDynamic(func(string) []string { return r.cachedToolNames() })
	servers := readline.PcItemDynamic(func(string) []string { return r.serverNames() })

	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("?"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
		readline.PcItem("servers"),
		readline.PcItem("refresh"),
		readline.PcItem("list",
			readline.PcItem("tools"),
			readline.PcItem("resources"),
		),
		readline.PcItem("describe", tools),
		readline.PcItem("call", tools),
		readline.PcItem("use", servers),
		readline.PcItem("verbose",
			readline.PcItem("on"),
			readline.PcItem("off"),
		),
	)
}

// filterInput filters input characters for readline
func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// commandHandler defines a REPL command with its handler and argument requirements
type commandHandler struct {
	minArgs int
	usage   string
	handler func(ctx context.Context, parts []string) error
}

func (r *REPL) buildCommandHandlers() map[string]commandHandler {
	help := commandHandler{minArgs: 1, handler: func(ctx context.Context, parts []string) error {
		return r.showHelp()
	}}
	exit := commandHandler{minArgs: 1, handler: func(ctx context.Context, parts []string) error {
		return errExit
	}}
	return map[string]commandHandler{
		"help": help,
		"?":    help,
		"exit": exit,
		"quit": exit,
		"servers": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.listServers()
		}},
		"use": {
			minArgs: 2,
			usage:   "usage: use <server>",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleUse(parts[1])
			},
		},
		"refresh": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			r.invalidate()
			tools, err := r.toolList(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Loaded %d tools.\n", len(tools))
			return nil
		}},
		"list": {
			minArgs: 2,
			usage:   "usage: list <tools|resources>",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleList(ctx, parts[1])
			},
		},
		"describe": {
			minArgs: 2,
			usage:   "usage: describe <tool>",
			handler: func(ctx context.Context, parts []string) error {
				return r.describeTool(ctx, parts[1])
			},
		},
		"call": {
			minArgs: 2,
			usage:   "usage: call <tool> [{json} | key=value ...]",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleCallTool(ctx, parts[1], parts[2:])
			},
		},
		"verbose": {
			minArgs: 2,
			usage:   "usage: verbose <on|off>",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleVerbose(parts[1])
			},
		},
	}
}

// executeCommand parses and executes a command
func (r *REPL) executeCommand(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	command := strings.ToLower(parts[0])

	handler, exists := r.commandHandlers[command]
	if !exists {
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", command)
	}

	if len(parts) < handler.minArgs {
		return errors.New(handler.usage)
	}

	return handler.handler(ctx, parts)
}

func (r *REPL) showHelp() error {
	lines := []string{
		"Available commands:",
		"  help, ?                      - Show this help message",
		"  servers                      - List configured servers",
		"  use <server>                 - Switch to another server",
		"  list tools                   - List the tools of the current server",
		"  list resources               - List the resources of the current server",
		"  describe <tool>              - Show a tool's description and input schema",
		"  call <tool> {json}           - Call a tool with a JSON object",
		"  call <tool> key=value ...    - Call a tool with key=value arguments",
		"  refresh                      - Reload the tool list",
		"  verbose <on|off>             - Toggle debug logging",
		"  exit, quit                   - Exit the REPL",
		"",
		"Keyboard shortcuts:",
		"  TAB                          - Auto-complete commands and tool names",
		"  Ctrl+R                       - Search command history",
		"  Ctrl+D                       - Exit REPL",
		"",
		"Examples:",
		"  call list_issues state=open limit=5",
		`  call create_issue {"title": "Flaky test", "labels": ["ci"]}`,
	}
	for _, line := range lines {
		fmt.Fprintln(r.out, line)
	}
	return nil
}

func (r *REPL) listServers() error {
	defs := r.rt.Definitions()
	if len(defs) == 0 {
		fmt.Fprintln(r.out, "No servers configured.")
		return nil
	}
	current := r.currentServer()
	fmt.Fprintf(r.out, "Servers (%d):\n", len(defs))
	for _, def := range defs {
		marker := " "
		if def.Name == current {
			marker = "*"
		}
		fmt.Fprintf(r.out, "  %s %-30s %s\n", marker, def.Name, def.Command.Kind())
	}
	return nil
}

func (r *REPL) handleUse(name string) error {
	if !slices.Contains(r.serverNames(), name) {
		return fmt.Errorf("%w: %s", registry.ErrUnknownServer, name)
	}
	r.mu.Lock()
	r.server = name
	r.tools = nil
	r.loaded = false
	r.mu.Unlock()
	fmt.Fprintf(r.out, "Using '%s'.\n", name)
	return nil
}

func (r *REPL) handleVerbose(mode string) error {
	switch strings.ToLower(mode) {
	case "on":
		r.logger.SetVerbose(true)
		fmt.Fprintln(r.out, "Debug logging enabled.")
	case "off":
		r.logger.SetVerbose(false)
		fmt.Fprintln(r.out, "Debug logging disabled.")
	default:
		return fmt.Errorf("invalid mode: %s. Use 'on' or 'off'", mode)
	}
	return nil
}

func (r *REPL) handleList(ctx context.Context, target string) error {
	switch strings.ToLower(target) {
	case "tools", "tool":
		return r.listTools(ctx)
	case "resources", "resource":
		return r.listResources(ctx)
	default:
		return fmt.Errorf("unknown list target: %s. Use 'tools' or 'resources'", target)
	}
}

func (r *REPL) listTools(ctx context.Context) error {
	tools, err := r.toolList(ctx)
	if err != nil {
		return err
	}
	if len(tools) == 0 {
		fmt.Fprintln(r.out, "No tools available.")
		return nil
	}

	fmt.Fprintf(r.out, "Available tools (%d):\n", len(tools))
	for i, tool := range tools {
		fmt.Fprintf(r.out, "  %d. %-30s - %s\n", i+1, tool.Name, firstLine(tool.Description))
	}
	return nil
}

func (r *REPL) listResources(ctx context.Context) error {
	resources, err := r.rt.ListResources(ctx, r.currentServer())
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		fmt.Fprintln(r.out, "No resources available.")
		return nil
	}

	fmt.Fprintf(r.out, "Available resources (%d):\n", len(resources))
	for i, resource := range resources {
		desc := resource.Description
		if desc == "" {
			desc = resource.Name
		}
		fmt.Fprintf(r.out, "  %d. %-40s - %s\n", i+1, resource.URI, desc)
	}
	return nil
}

func (r *REPL) describeTool(ctx context.Context, name string) error {
	tool, err := r.findTool(ctx, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Tool: %s\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(r.out, "Description: %s\n", tool.Description)
	}
	if len(tool.InputSchema) > 0 {
		fmt.Fprintln(r.out, "Input Schema:")
		fmt.Fprintln(r.out, logging.PrettyJSON(tool.InputSchema))
	}
	if len(tool.OutputSchema) > 0 {
		fmt.Fprintln(r.out, "Output Schema:")
		fmt.Fprintln(r.out, logging.PrettyJSON(tool.OutputSchema))
	}
	return nil
}

// toolList returns the cached tools of the current server, loading them on
// first use.
func (r *REPL) toolList(ctx context.Context) ([]runtime.ToolInfo, error) {
	r.mu.Lock()
	if r.loaded {
		tools := r.tools
		r.mu.Unlock()
		return tools, nil
	}
	server := r.server
	r.mu.Unlock()

	tools, err := r.rt.ListTools(ctx, server, runtime.ListToolsOptions{AutoAuthorize: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools of '%s': %w", server, err)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.server == server {
		r.tools = tools
		r.loaded = true
	}
	return tools, nil
}

func (r *REPL) invalidate() {
	r.mu.Lock()
	r.tools = nil
	r.loaded = false
	r.mu.Unlock()
}

func (r *REPL) cachedToolNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.tools))
	for i, tool := range r.tools {
		names[i] = tool.Name
	}
	return names
}

func (r *REPL) serverNames() []string {
	defs := r.rt.Definitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
