package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistrationTokenRoundTripper(t *testing.T) {
	testToken := "test-registration-token-12345"

	var gotAuth string
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tests := []struct {
		name             string
		method           string
		path             string
		token            string
		expectAuthHeader bool
	}{
		{name: "adds token to POST /register", method: http.MethodPost, path: "/oauth/register", token: testToken, expectAuthHeader: true},
		{name: "adds token to POST /registration", method: http.MethodPost, path: "/oauth/registration", token: testToken, expectAuthHeader: true},
		{name: "adds token with mixed case path", method: http.MethodPost, path: "/oauth/Register", token: testToken, expectAuthHeader: true},
		{name: "does not add token to GET /register", method: http.MethodGet, path: "/oauth/register", token: testToken},
		{name: "does not add token to POST /token", method: http.MethodPost, path: "/oauth/token", token: testToken},
		{name: "does not add empty token", method: http.MethodPost, path: "/register"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotAuth = ""
			rt := NewRegistrationTokenRoundTripper(tt.token, server.Client().Transport)
			req, err := http.NewRequest(tt.method, server.URL+tt.path, strings.NewReader("{}"))
			if err != nil {
				t.Fatalf("failed to create request: %v", err)
			}
			resp, err := rt.RoundTrip(req)
			if err != nil {
				t.Fatalf("RoundTrip failed: %v", err)
			}
			resp.Body.Close()

			if tt.expectAuthHeader && gotAuth != "Bearer "+tt.token {
				t.Errorf("expected bearer token, got %q", gotAuth)
			}
			if !tt.expectAuthHeader && gotAuth != "" {
				t.Errorf("expected no Authorization header, got %q", gotAuth)
			}
			if req.Header.Get("Authorization") != "" {
				t.Error("original request must not be modified")
			}
		})
	}
}

func TestRegistrationTokenNotSentOverHTTP(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	rt := NewRegistrationTokenRoundTripper("secret", nil)
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/register", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	resp.Body.Close()
	if gotAuth != "" {
		t.Errorf("token leaked over plain HTTP: %q", gotAuth)
	}
}
