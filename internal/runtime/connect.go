package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcporter/internal/auth"
	"github.com/giantswarm/mcporter/internal/registry"
)

// connection returns the live connection for name, establishing it on first
// use. Concurrent first uses wait on the same attempt. A failed attempt is
// forgotten so the next caller starts a fresh one.
func (r *Runtime) connection(ctx context.Context, name string, autoAuthorize bool) (*connection, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if p, ok := r.conns[name]; ok {
		r.mu.Unlock()
		select {
		case <-p.done:
			return p.conn, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingConn{done: make(chan struct{})}
	r.conns[name] = p
	r.mu.Unlock()

	p.conn, p.err = r.connect(ctx, name, autoAuthorize)
	if p.err != nil {
		r.mu.Lock()
		if r.conns[name] == p {
			delete(r.conns, name)
		}
		r.mu.Unlock()
	}
	close(p.done)
	return p.conn, p.err
}

func (r *Runtime) connect(ctx context.Context, name string, autoAuthorize bool) (*connection, error) {
	def, err := r.registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	conn, err := r.dial(ctx, def, autoAuthorize)
	if err == nil {
		return conn, nil
	}

	_, isHTTP := def.Command.(registry.HTTPCommand)
	_, isSSE := def.Command.(registry.SSECommand)
	switch {
	case isHTTP && !r.isRetryable(err) && ctx.Err() == nil:
		r.logger.Info("Streamable HTTP connection to '%s' failed (%v), retrying with SSE", name, err)
		conn, sseErr := r.dial(ctx, def.AsSSE(), autoAuthorize)
		if sseErr == nil {
			return conn, nil
		}
		r.logger.Debug("SSE fallback for '%s' failed: %v", name, sseErr)
		return nil, err

	case (isHTTP || isSSE) && !def.IsOAuth() && autoAuthorize && r.isRetryable(err):
		promoted := def.WithOAuth()
		if regErr := r.registry.Register(promoted, true); regErr != nil {
			return nil, err
		}
		r.logger.Info("Server '%s' rejected the request as unauthorized, switching to OAuth", name)
		return r.dial(ctx, promoted, autoAuthorize)
	}
	return nil, err
}

// dial creates, starts and initializes one client. The client is closed
// again if any step fails.
func (r *Runtime) dial(ctx context.Context, def registry.ServerDefinition, autoAuthorize bool) (*connection, error) {
	c, err := r.factory(def)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*connection, error) {
		closeClient := func() {
			if closeErr := c.Close(); closeErr != nil {
				r.logger.Debug("Failed to close client for '%s': %v", def.Name, closeErr)
			}
		}
		if ctx.Err() != nil {
			// A server stuck in the handshake can block Close; the lifecycle
			// scope reaps its process.
			go closeClient()
		} else {
			closeClient()
		}
		return nil, err
	}

	r.logger.Debug("Connecting to '%s' (%s)", def.Name, def.Command.Kind())

	// The transport may keep a stream open past this call, so Start must not
	// inherit the caller's deadline.
	startCtx := context.WithoutCancel(ctx)
	if err := r.withAuthorization(ctx, def, autoAuthorize, "start", func() error {
		return c.Start(startCtx)
	}); err != nil {
		return fail(err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = r.clientInfo
	req.Params.Capabilities = mcp.ClientCapabilities{}

	var result *mcp.InitializeResult
	r.logger.Request("initialize", req.Params)
	if err := r.withAuthorization(ctx, def, autoAuthorize, "initialize", func() error {
		var err error
		result, err = c.Initialize(ctx, req)
		return err
	}); err != nil {
		return fail(err)
	}
	r.logger.Response("initialize", result)

	conn := &connection{
		client:      c,
		def:         def,
		connectedAt: time.Now(),
	}
	if result != nil {
		conn.serverInfo = result.ServerInfo
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fail(ErrClosed)
	}
	r.clients = append(r.clients, namedClient{name: def.Name, client: c})
	r.mu.Unlock()

	r.logger.Debug("Connected to '%s'", def.Name)
	return conn, nil
}

// withAuthorization runs fn and, when it fails because the server wants
// OAuth authorization, runs the authorizer and retries fn once.
func (r *Runtime) withAuthorization(ctx context.Context, def registry.ServerDefinition, autoAuthorize bool, operation string, fn func() error) error {
	err := fn()
	if err == nil || !auth.IsAuthorizationRequired(err) {
		return err
	}
	if !autoAuthorize || r.authorizer == nil {
		return fmt.Errorf("server '%s' requires authorization, run 'mcporter auth %s': %w", def.Name, def.Name, err)
	}

	r.logger.Info("OAuth authorization required for %s of '%s'", operation, def.Name)
	if authErr := r.authorizer.Authorize(ctx, def, err); authErr != nil {
		return fmt.Errorf("OAuth authorization failed: %w", authErr)
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%s failed after authorization: %w", operation, err)
	}
	return nil
}
