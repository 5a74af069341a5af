package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/mark3labs/mcp-go/client"

	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/registry"
)

// Handler is the part of mcp-go's *transport.OAuthHandler the browser flow
// drives.
type Handler interface {
	GetClientID() string
	RegisterClient(ctx context.Context, clientName string) error
	GetAuthorizationURL(ctx context.Context, state, codeChallenge string) (string, error)
	ProcessAuthorizationResponse(ctx context.Context, code, state, codeVerifier string) error
}

// BrowserAuthorizer completes OAuth authorization by opening the user's
// browser and receiving the redirect on a local callback server.
type BrowserAuthorizer struct {
	Logger  *logging.Logger
	Timeout time.Duration

	// OpenBrowser defaults to the platform opener.
	OpenBrowser func(string) error
}

// NewBrowserAuthorizer creates an authorizer with the timeout taken from the
// environment.
func NewBrowserAuthorizer(logger *logging.Logger) *BrowserAuthorizer {
	return &BrowserAuthorizer{
		Logger:      logger,
		Timeout:     TimeoutFromEnv(),
		OpenBrowser: openBrowser,
	}
}

// Authorize runs the browser flow for def using the OAuth handler carried by
// authErr, which must be an mcp-go authorization-required error.
func (a *BrowserAuthorizer) Authorize(ctx context.Context, def registry.ServerDefinition, authErr error) error {
	handler := client.GetOAuthHandler(authErr)
	if handler == nil {
		return fmt.Errorf("no OAuth handler available for '%s'", def.Name)
	}
	cfg, err := ConfigForDefinition(def)
	if err != nil {
		return fmt.Errorf("invalid OAuth configuration: %w", err)
	}
	return a.Run(ctx, cfg, handler)
}

// Run drives handler through registration (when needed), consent and code
// exchange.
func (a *BrowserAuthorizer) Run(ctx context.Context, cfg OAuthConfig, handler Handler) error {
	logger := a.Logger
	logger.Info("OAuth authorization required")

	if handler.GetClientID() == "" {
		logger.Info("No client ID configured, attempting dynamic client registration...")
		if err := handler.RegisterClient(ctx, cfg.ClientName); err != nil {
			return fmt.Errorf("client registration failed: %w", err)
		}
		clientID := handler.GetClientID()
		logger.Success("Client registered successfully with ID: %s", clientID)
		if cfg.TokenCacheDir != "" && clientID != "" {
			if err := SaveClientID(cfg.TokenCacheDir, clientID); err != nil {
				logger.Warning("Could not persist client ID: %v", err)
			}
		}
	}

	codeVerifier, err := client.GenerateCodeVerifier()
	if err != nil {
		return fmt.Errorf("failed to generate code verifier: %w", err)
	}
	codeChallenge := client.GenerateCodeChallenge(codeVerifier)

	state, err := client.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state: %w", err)
	}

	authURL, err := handler.GetAuthorizationURL(ctx, state, codeChallenge)
	if err != nil {
		return fmt.Errorf("failed to get authorization URL: %w", err)
	}

	parsedURL, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	callbackChan := make(chan map[string]string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath(parsedURL), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		params := make(map[string]string)
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		if params["error"] != "" {
			select {
			case errChan <- fmt.Errorf("authorization error: %s - %s", params["error"], params["error_description"]):
			default:
			}
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}

		select {
		case callbackChan <- params:
		default:
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>Authorization complete</h1><p>You can close this window and return to mcporter.</p></body></html>`))
	})

	listener, err := net.Listen("tcp", parsedURL.Host)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", parsedURL.Host, err)
	}
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errChan <- fmt.Errorf("callback server error: %w", err):
			default:
			}
		}
	}()
	defer server.Shutdown(context.Background())

	logger.Info("Opening browser for authorization...")
	opener := a.OpenBrowser
	if opener == nil {
		opener = openBrowser
	}
	if err := opener(authURL); err != nil {
		logger.Warning("Could not open browser automatically: %v", err)
		logger.Warning("Open this URL to continue: %s", authURL)
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	logger.Info("Waiting for authorization...")
	var params map[string]string
	select {
	case params = <-callbackChan:
	case err := <-errChan:
		return err
	case <-timer.C:
		return fmt.Errorf("authorization timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if params["state"] != state {
		return fmt.Errorf("state mismatch (CSRF protection)")
	}
	code := params["code"]
	if code == "" {
		return fmt.Errorf("no authorization code received")
	}

	logger.Info("Exchanging code for access token...")
	if err := handler.ProcessAuthorizationResponse(ctx, code, state, codeVerifier); err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	logger.Success("Access token obtained successfully")
	return nil
}

func callbackPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// openBrowser opens the specified URL in the default browser
func openBrowser(urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme for browser: %s (only http/https allowed)", parsedURL.Scheme)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", urlStr)
	case "darwin":
		cmd = exec.Command("open", urlStr)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", urlStr)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
