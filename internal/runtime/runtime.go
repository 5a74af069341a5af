// Package runtime owns server definitions and the live connections to them.
//
// A Runtime connects lazily: the first operation against a server name
// establishes one connection which every later operation on that name
// reuses. Overlapping first uses share the same in-flight attempt. Close
// tears down every client the Runtime created.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcporter/internal/auth"
	"github.com/giantswarm/mcporter/internal/config"
	"github.com/giantswarm/mcporter/internal/lifecycle"
	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/registry"
	"github.com/giantswarm/mcporter/internal/transport"
)

// ErrClosed is returned by operations on a closed Runtime.
var ErrClosed = errors.New("runtime is closed")

// Client is the MCP client surface the Runtime depends on. *client.Client
// from mcp-go satisfies it.
type Client interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	Close() error
}

// ClientFactory creates an unstarted client for a definition.
type ClientFactory func(def registry.ServerDefinition) (Client, error)

// Authorizer completes an interactive authorization after a client reported
// that the server requires it.
type Authorizer interface {
	Authorize(ctx context.Context, def registry.ServerDefinition, authErr error) error
}

// Options configures New.
type Options struct {
	// ConfigPath is the --config value. Ignored when Servers is set.
	ConfigPath string
	// RootDir is the project root used for config discovery and as the
	// default working directory of stdio servers.
	RootDir string
	// Servers replaces config loading when non-nil.
	Servers []registry.ServerDefinition

	Logger        *logging.Logger
	Scope         *lifecycle.Scope
	ClientFactory ClientFactory
	Authorizer    Authorizer

	// ClientName and ClientVersion are announced in the initialize handshake.
	ClientName    string
	ClientVersion string
}

// Runtime is the connection manager.
type Runtime struct {
	registry   *registry.Registry
	cfg        config.Resolved
	logger     *logging.Logger
	factory    ClientFactory
	authorizer Authorizer
	clientInfo mcp.Implementation

	// isRetryable classifies failures for the authorization coordinator.
	isRetryable func(error) bool

	mu      sync.Mutex
	conns   map[string]*pendingConn
	clients []namedClient
	closed  bool
}

type namedClient struct {
	name   string
	client Client
}

// connection is the live handle for one server name.
type connection struct {
	client      Client
	def         registry.ServerDefinition
	connectedAt time.Time
	serverInfo  mcp.Implementation
}

// pendingConn is a connection attempt that other callers can wait on.
type pendingConn struct {
	done chan struct{}
	conn *connection
	err  error
}

// New builds a Runtime. Definitions come from opts.Servers or, when that is
// nil, from the resolved config file.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var cfg config.Resolved
	defs := opts.Servers
	if defs == nil {
		cfg = config.ResolvePath(opts.ConfigPath, opts.RootDir)
		loaded, err := config.Load(cfg.Path, cfg.Explicit, opts.RootDir)
		if err != nil {
			return nil, err
		}
		logger.Debug("Loaded %d server(s) from %s", len(loaded), cfg.Path)
		defs = loaded
	}

	reg, err := registry.New(defs...)
	if err != nil {
		return nil, err
	}

	factory := opts.ClientFactory
	if factory == nil {
		tf := &transport.Factory{Logger: logger, Scope: opts.Scope}
		factory = func(def registry.ServerDefinition) (Client, error) {
			c, err := tf.NewClient(def)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	name, version := opts.ClientName, opts.ClientVersion
	if name == "" {
		name = "mcporter"
	}
	if version == "" {
		version = "dev"
	}

	return &Runtime{
		registry:    reg,
		cfg:         cfg,
		logger:      logger,
		factory:     factory,
		authorizer:  opts.Authorizer,
		clientInfo:  mcp.Implementation{Name: name, Version: version},
		isRetryable: auth.IsAuthorizationError,
		conns:       make(map[string]*pendingConn),
	}, nil
}

// Config returns the config file this Runtime was loaded from. It is empty
// when definitions were supplied directly.
func (r *Runtime) Config() config.Resolved { return r.cfg }

// Definitions returns every known definition sorted by name.
func (r *Runtime) Definitions() []registry.ServerDefinition {
	return r.registry.Definitions()
}

// Definition resolves one definition by name.
func (r *Runtime) Definition(name string) (registry.ServerDefinition, error) {
	return r.registry.Resolve(name)
}

// ResolveByURL returns the name of the definition whose URL is rawURL.
func (r *Runtime) ResolveByURL(rawURL string) (string, bool) {
	return r.registry.ResolveByURL(rawURL)
}

// RegisterDefinition adds or, with overwrite, replaces a definition. A
// connection already established for the name is kept.
func (r *Runtime) RegisterDefinition(def registry.ServerDefinition, overwrite bool) error {
	return r.registry.Register(def, overwrite)
}

// Close closes every client created by this Runtime exactly once. Failures
// are collected and do not stop the remaining closes.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	clients := r.clients
	r.clients = nil
	r.mu.Unlock()

	var errs []error
	for _, nc := range clients {
		if err := nc.client.Close(); err != nil {
			r.logger.Debug("Failed to close connection to '%s': %v", nc.name, err)
			errs = append(errs, fmt.Errorf("close '%s': %w", nc.name, err))
		}
	}
	return errors.Join(errs...)
}
