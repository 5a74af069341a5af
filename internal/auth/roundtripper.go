package auth

import (
	"net/http"
	"strings"
)

// registrationTokenRoundTripper adds a registration access token to Dynamic
// Client Registration requests
type registrationTokenRoundTripper struct {
	transport         http.RoundTripper
	registrationToken string
}

// NewRegistrationTokenRoundTripper injects token into DCR requests: POSTs
// over HTTPS to a registration endpoint. Other requests pass through
// untouched.
func NewRegistrationTokenRoundTripper(token string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &registrationTokenRoundTripper{
		transport:         base,
		registrationToken: token,
	}
}

// RoundTrip implements the http.RoundTripper interface
func (rt *registrationTokenRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.registrationToken == "" || !isRegistrationRequest(req) {
		return rt.transport.RoundTrip(req)
	}

	// Clone the request to avoid modifying the original
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+rt.registrationToken)
	return rt.transport.RoundTrip(cloned)
}

func isRegistrationRequest(req *http.Request) bool {
	if req.Method != http.MethodPost || req.URL == nil || req.URL.Scheme != "https" {
		return false
	}
	p := strings.ToLower(req.URL.Path)
	return strings.Contains(p, "register") || strings.Contains(p, "registration")
}
