package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/giantswarm/mcporter/internal/auth"
	"github.com/giantswarm/mcporter/internal/config"
	"github.com/giantswarm/mcporter/internal/lifecycle"
	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/registry"
	"github.com/giantswarm/mcporter/internal/router"
	"github.com/giantswarm/mcporter/internal/runtime"
)

const (
	envLogLevel  = "MCPORTER_LOG_LEVEL"
	envDebugHang = "MCPORTER_DEBUG_HANG"
)

var (
	version    string
	configPath string
	rootDir    string
	logLevel   string
	noColor    bool
	jsonRPC    bool
)

// session holds the state of the running invocation.
var session *invocation

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcporter",
	Short: "Call MCP servers from the command line",
	Long: `mcporter connects to the MCP servers listed in your config (or given ad hoc
on the command line), lists their tools and calls them.

Servers come from mcporter.json, looked up in this order: --config,
MCPORTER_CONFIG, <root>/config/mcporter.json, ~/.mcporter/mcporter.json.

Shortcuts:
  mcporter linear                 same as: mcporter list linear
  mcporter linear.list_issues     same as: mcporter call linear.list_issues

It can also authorize OAuth servers, open an interactive shell against a
server, expose every configured server through one MCP server and generate
standalone CLIs bound to a single server.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: applyGlobalFlags,
}

// UsageError reports malformed command-line input.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// exitError ends the invocation with code after its message, if any, was
// already shown.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs mcporter and exits the process once cleanup has finished.
func Execute() {
	finish(run(os.Args[1:]), os.Exit)
}

// finish forces the exit unless MCPORTER_NO_FORCE_EXIT is set and the run
// succeeded, in which case main returns on its own.
func finish(code int, exit func(int)) {
	if code != 0 || lifecycle.ForceExitEnabled() {
		exit(code)
	}
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	// Add flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to the config file (default: MCPORTER_CONFIG, then config/mcporter.json, then ~/.mcporter/mcporter.json)")
	pf.StringVar(&rootDir, "root", "", "Project root used for config discovery and as stdio working directory (default: current directory)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (default: "+envLogLevel+" or warn)")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")
	pf.BoolVar(&jsonRPC, "json-rpc", false, "Log full JSON-RPC payloads (with --log-level debug)")

	// Flag parse errors are usage errors
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	// Add subcommands
	rootCmd.AddCommand(
		newListCmd(),
		newCallCmd(),
		newAuthCmd(),
		newGenerateCLICmd(),
		newInspectCLICmd(),
		newEmitTSCmd(),
		newREPLCmd(),
		newServeCmd(),
		newSelfUpdateCmd(),
	)
}

// run executes one invocation and returns its exit code
func run(args []string) int {
	// Create context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(levelFromEnv(), true, false)
	session = newInvocation(logger)
	defer session.close()

	// Rewrite a bare server or selector into list or call
	routed, code, ok := preRoute(args, logger)
	if !ok {
		return code
	}

	rootCmd.SetArgs(routed)
	return exitCode(rootCmd.ExecuteContext(ctx), logger)
}

func exitCode(err error, logger *logging.Logger) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	logger.Error("%v", err)
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		logger.Info("Run 'mcporter --help' for usage.")
	}
	return 1
}

func levelFromEnv() logging.Level {
	if v := os.Getenv(envLogLevel); v != "" {
		if level, err := logging.ParseLevel(v); err == nil {
			return level
		}
	}
	return logging.DefaultLevel
}

// applyGlobalFlags runs before every command.
func applyGlobalFlags(cmd *cobra.Command, args []string) error {
	logger := session.logger
	if logLevel != "" {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return &UsageError{Err: err}
		}
		logger.SetLevel(level)
	} else if v := os.Getenv(envLogLevel); v != "" {
		if _, err := logging.ParseLevel(v); err != nil {
			logger.Warning("Ignoring %s: %v", envLogLevel, err)
		}
	}
	logger.SetColor(!noColor)
	logger.SetJSONRPC(jsonRPC)
	return nil
}

// invocation owns the logger, the child-process scope and the lazily
// created Runtime of one mcporter run.
type invocation struct {
	logger *logging.Logger
	scope  *lifecycle.Scope

	mu sync.Mutex
	rt *runtime.Runtime
}

func newInvocation(logger *logging.Logger) *invocation {
	return &invocation{logger: logger, scope: lifecycle.NewScope(logger)}
}

// Runtime returns the Runtime for the global --config and --root.
func (inv *invocation) Runtime(ctx context.Context) (*runtime.Runtime, error) {
	return inv.runtimeFor(ctx, configPath, rootDir)
}

func (inv *invocation) runtimeFor(ctx context.Context, cfgPath, root string) (*runtime.Runtime, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.rt != nil {
		return inv.rt, nil
	}
	rt, err := runtime.New(ctx, runtime.Options{
		ConfigPath:    cfgPath,
		RootDir:       root,
		Logger:        inv.logger,
		Scope:         inv.scope,
		Authorizer:    auth.NewBrowserAuthorizer(inv.logger),
		ClientName:    "mcporter",
		ClientVersion: version,
	})
	if err != nil {
		return nil, err
	}
	inv.rt = rt
	return rt, nil
}

// close tears down connections, then child processes. It runs on every
// exit path.
func (inv *invocation) close() {
	hang := os.Getenv(envDebugHang) == "1"
	if hang {
		dumpGoroutines(os.Stderr, "before runtime close")
	}

	inv.mu.Lock()
	rt := inv.rt
	inv.mu.Unlock()
	if rt != nil {
		if err := rt.Close(); err != nil {
			inv.logger.Debug("Failed to close connections: %v", err)
		}
	}
	inv.logger.Debug("Releasing %d tracked child process(es)", inv.scope.Len())
	if err := inv.scope.Close(lifecycle.ForceExitEnabled()); err != nil {
		inv.logger.Debug("Failed to terminate child processes: %v", err)
	}

	if hang {
		dumpGoroutines(os.Stderr, "after runtime close")
	}
}

func dumpGoroutines(w io.Writer, label string) {
	fmt.Fprintf(w, "=== goroutines %s ===\n", label)
	_ = pprof.Lookup("goroutine").WriteTo(w, 1)
}

// Global flags that take a value, for scanning argv before cobra does.
var valueGlobals = []string{"--config", "--root", "--log-level"}

// preRoute rewrites a leading token that is not a command into an explicit
// list or call. ok is false when the router aborted; code is then the exit
// code to use.
func preRoute(args []string, logger *logging.Logger) (routed []string, code int, ok bool) {
	i := firstPositional(args)
	if i < 0 || isCommand(args[i]) {
		return args, 0, true
	}

	defs, err := routingDefinitions(args[:i])
	if err != nil {
		logger.Warning("Failed to load config: %v", err)
	}
	d := router.Infer(args[i], args[i+1:], defs, logger)
	if d.Abort {
		return nil, d.ExitCode, false
	}

	routed = append(slices.Clone(args[:i]), d.Command)
	routed = append(routed, d.Args...)
	logger.Debug("Routing '%s' to '%s'", args[i], d.Command)
	return routed, 0, true
}

// firstPositional returns the index of the first argument that is neither a
// global flag nor a global flag's value, or -1.
func firstPositional(args []string) int {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return -1
		case strings.HasPrefix(arg, "-"):
			if slices.Contains(valueGlobals, arg) {
				i++
			}
		default:
			return i
		}
	}
	return -1
}

func isCommand(token string) bool {
	if token == "help" || token == "completion" {
		return true
	}
	for _, c := range rootCmd.Commands() {
		if c.Name() == token || c.HasAlias(token) {
			return true
		}
	}
	return false
}

// routingDefinitions loads the configured servers using whatever global
// flags precede the routed token.
func routingDefinitions(globals []string) ([]registry.ServerDefinition, error) {
	fs := pflag.NewFlagSet("globals", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	cfg := fs.String("config", "", "")
	root := fs.String("root", "", "")
	fs.String("log-level", "", "")
	fs.Bool("no-color", false, "")
	fs.Bool("json-rpc", false, "")
	if err := fs.Parse(globals); err != nil {
		return nil, err
	}

	resolved := config.ResolvePath(*cfg, *root)
	return config.Load(resolved.Path, resolved.Explicit, *root)
}
