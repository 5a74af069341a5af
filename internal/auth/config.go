// Package auth implements the OAuth browser flow, the per-server token cache
// and classification of authorization failures.
package auth

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/giantswarm/mcporter/internal/registry"
)

const (
	defaultRedirectURL = "http://localhost:8765/callback"
	defaultTimeout     = 5 * time.Minute

	// EnvTimeout overrides how long the browser flow waits for the callback.
	// Accepts a Go duration ("90s") or plain milliseconds.
	EnvTimeout = "MCPORTER_OAUTH_TIMEOUT"
)

// OAuthConfig contains the OAuth 2.1 settings used for one server.
type OAuthConfig struct {
	// ClientID is the OAuth client identifier. Empty means Dynamic Client
	// Registration on first authorization.
	ClientID string

	// ClientName is announced during Dynamic Client Registration.
	ClientName string

	// Scopes are the OAuth scopes to request
	Scopes []string

	// RedirectURL is the callback URL for the local callback server
	RedirectURL string

	// UsePKCE enables Proof Key for Code Exchange
	UsePKCE bool

	// RegistrationToken authenticates Dynamic Client Registration requests
	RegistrationToken string

	// TokenCacheDir holds tokens.json and client.json
	TokenCacheDir string
}

// DefaultOAuthConfig returns a default OAuth configuration
func DefaultOAuthConfig() OAuthConfig {
	return OAuthConfig{
		ClientName:  "mcporter",
		Scopes:      []string{"mcp:tools", "mcp:resources"},
		RedirectURL: defaultRedirectURL,
		UsePKCE:     true,
	}
}

// ConfigForDefinition derives the OAuth settings for def, picking up a
// client id persisted by an earlier registration.
func ConfigForDefinition(def registry.ServerDefinition) (OAuthConfig, error) {
	cfg := DefaultOAuthConfig()
	if def.ClientName != "" {
		cfg.ClientName = def.ClientName
	}
	if def.OAuthRedirectURL != "" {
		cfg.RedirectURL = def.OAuthRedirectURL
	}
	cfg.RegistrationToken = def.RegistrationToken
	cfg.TokenCacheDir = def.TokenCacheDir
	if cfg.TokenCacheDir == "" {
		cfg.TokenCacheDir = registry.DefaultTokenCacheDir(def.Name)
	}
	if id, err := LoadClientID(cfg.TokenCacheDir); err == nil {
		cfg.ClientID = id
	}
	return cfg, cfg.Validate()
}

// Validate checks if the OAuth configuration is valid
func (c *OAuthConfig) Validate() error {
	// RedirectURL is required for the callback server
	if c.RedirectURL == "" {
		return fmt.Errorf("OAuth redirect URL is required")
	}

	// Validate redirect URL and ensure HTTP is only used for localhost
	parsedURL, err := url.Parse(c.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid OAuth redirect URL: %w", err)
	}

	// Only allow HTTP for localhost/loopback addresses
	if parsedURL.Scheme == "http" {
		hostname := parsedURL.Hostname()
		// Hostname() strips brackets from IPv6 addresses, so [::1] becomes ::1
		if hostname != "localhost" && hostname != "127.0.0.1" && hostname != "::1" {
			return fmt.Errorf("HTTP redirect URIs are only allowed for localhost/127.0.0.1/[::1], use HTTPS for other hosts")
		}
	} else if parsedURL.Scheme != "https" {
		return fmt.Errorf("redirect URI scheme must be http (localhost only) or https, got: %s", parsedURL.Scheme)
	}

	if len(c.Scopes) == 0 {
		c.Scopes = []string{"mcp:tools", "mcp:resources"}
	}
	return nil
}

// TimeoutFromEnv returns the browser flow timeout.
func TimeoutFromEnv() time.Duration {
	raw := os.Getenv(EnvTimeout)
	if raw == "" {
		return defaultTimeout
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultTimeout
}
