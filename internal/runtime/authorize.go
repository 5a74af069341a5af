package runtime

import (
	"context"
	"fmt"
	"os"
)

// AuthorizationError is the terminal failure of Authorize.
type AuthorizationError struct {
	Server string
	Err    error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("Failed to authorize '%s': %v", e.Server, e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// AuthorizeOptions tunes Authorize.
type AuthorizeOptions struct {
	// Reset deletes the cached credentials before the first attempt.
	Reset bool
}

// AuthorizeResult reports a successful authorization.
type AuthorizeResult struct {
	Server    string
	ToolCount int
	Attempts  int
}

// maxAuthorizeAttempts is the optimistic attempt plus one retry.
const maxAuthorizeAttempts = 2

// Authorize makes sure server name is usable, running the browser flow when
// the server asks for it. The first attempt lists tools optimistically. Only
// an authorization-class failure earns the second attempt.
func (r *Runtime) Authorize(ctx context.Context, name string, opts AuthorizeOptions) (AuthorizeResult, error) {
	def, err := r.Definition(name)
	if err != nil {
		return AuthorizeResult{}, err
	}
	if opts.Reset {
		if err := r.ResetCredentials(name); err != nil {
			return AuthorizeResult{}, err
		}
	}

	r.logger.Info("Authorizing '%s'...", def.Name)
	var lastErr error
	for attempt := 1; attempt <= maxAuthorizeAttempts; attempt++ {
		tools, err := r.ListTools(ctx, name, ListToolsOptions{AutoAuthorize: true})
		if err == nil {
			return AuthorizeResult{Server: name, ToolCount: len(tools), Attempts: attempt}, nil
		}
		lastErr = err
		if attempt < maxAuthorizeAttempts && r.isRetryable(err) {
			r.logger.Warning("Authorization for '%s' was rejected (%v), retrying", name, err)
			continue
		}
		break
	}
	return AuthorizeResult{}, &AuthorizationError{Server: name, Err: lastErr}
}

// ResetCredentials removes the token cache directory of server name. A
// definition without one only produces a warning.
func (r *Runtime) ResetCredentials(name string) error {
	def, err := r.Definition(name)
	if err != nil {
		return err
	}
	if def.TokenCacheDir == "" {
		r.logger.Warning("Server '%s' has no token cache directory configured, nothing to reset", name)
		return nil
	}
	if err := os.RemoveAll(def.TokenCacheDir); err != nil {
		return fmt.Errorf("failed to clear cached credentials for '%s': %w", name, err)
	}
	r.logger.Info("Cleared cached credentials for '%s' at %s", name, def.TokenCacheDir)
	return nil
}
