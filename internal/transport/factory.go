// Package transport builds mcp-go clients for server definitions.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"

	"github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcporter/internal/auth"
	"github.com/giantswarm/mcporter/internal/lifecycle"
	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/registry"
)

// Factory creates one mcp-go client per call. Stdio children are tracked in
// Scope so they can be reaped when the invocation ends.
type Factory struct {
	Logger *logging.Logger
	Scope  *lifecycle.Scope
}

// NewClient returns an unstarted client for def. Server notifications are
// traced at debug level.
func (f *Factory) NewClient(def registry.ServerDefinition) (*client.Client, error) {
	var (
		c   *client.Client
		err error
	)
	switch cmd := def.Command.(type) {
	case registry.StdioCommand:
		c, err = f.stdioClient(def.Name, cmd)
	case registry.HTTPCommand:
		c, err = f.streamableClient(def, cmd)
	case registry.SSECommand:
		c, err = f.sseClient(def, cmd)
	default:
		return nil, fmt.Errorf("server '%s' has unsupported command type %T", def.Name, def.Command)
	}
	if err != nil {
		return nil, err
	}
	c.OnNotification(func(n mcp.JSONRPCNotification) {
		f.Logger.Notification(n.Method, n.Params)
	})
	return c, nil
}

func (f *Factory) stdioClient(name string, cmd registry.StdioCommand) (*client.Client, error) {
	f.Logger.Debug("Spawning stdio server '%s': %s %v", name, cmd.Command, cmd.Args)
	stdio := mcptransport.NewStdioWithOptions(
		cmd.Command,
		EnvList(cmd.Env),
		cmd.Args,
		mcptransport.WithCommandFunc(func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
			// Not bound to ctx: the child outlives the call that started it and
			// is stopped through Close or the lifecycle scope.
			c := exec.Command(command, args...)
			c.Env = append(os.Environ(), env...)
			c.Dir = cmd.Cwd
			f.Scope.Track(c)
			return c, nil
		}),
	)
	return client.NewClient(stdio), nil
}

func (f *Factory) streamableClient(def registry.ServerDefinition, cmd registry.HTTPCommand) (*client.Client, error) {
	opts := []mcptransport.StreamableHTTPCOption{}
	if len(cmd.Headers) > 0 {
		opts = append(opts, mcptransport.WithHTTPHeaders(cmd.Headers))
	}
	if def.IsOAuth() {
		oauthCfg, err := f.oauthConfig(def)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mcptransport.WithHTTPOAuth(oauthCfg))
	}
	t, err := mcptransport.NewStreamableHTTP(cmd.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamable HTTP transport for '%s': %w", def.Name, err)
	}
	return client.NewClient(t), nil
}

func (f *Factory) sseClient(def registry.ServerDefinition, cmd registry.SSECommand) (*client.Client, error) {
	opts := []mcptransport.ClientOption{}
	if len(cmd.Headers) > 0 {
		opts = append(opts, mcptransport.WithHeaders(cmd.Headers))
	}
	if def.IsOAuth() {
		oauthCfg, err := f.oauthConfig(def)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mcptransport.WithOAuth(oauthCfg))
	}
	t, err := mcptransport.NewSSE(cmd.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSE transport for '%s': %w", def.Name, err)
	}
	return client.NewClient(t), nil
}

func (f *Factory) oauthConfig(def registry.ServerDefinition) (mcptransport.OAuthConfig, error) {
	cfg, err := auth.ConfigForDefinition(def)
	if err != nil {
		return mcptransport.OAuthConfig{}, fmt.Errorf("invalid OAuth configuration for '%s': %w", def.Name, err)
	}

	out := mcptransport.OAuthConfig{
		ClientID:    cfg.ClientID,
		RedirectURI: cfg.RedirectURL,
		Scopes:      cfg.Scopes,
		TokenStore:  auth.NewFileTokenStore(cfg.TokenCacheDir),
		PKCEEnabled: cfg.UsePKCE,
	}
	if cfg.RegistrationToken != "" {
		f.Logger.Debug("Registration access token configured for '%s'", def.Name)
		out.HTTPClient = &http.Client{
			Transport: auth.NewRegistrationTokenRoundTripper(cfg.RegistrationToken, http.DefaultTransport),
		}
	}
	return out, nil
}

// EnvList renders env as KEY=VALUE pairs in a stable order.
func EnvList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
