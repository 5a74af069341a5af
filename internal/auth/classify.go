package auth

import (
	"regexp"

	"github.com/mark3labs/mcp-go/client"
)

var authErrorPattern = regexp.MustCompile(`(?i)unauthorized|invalid[_-]?token|\b(401|403)\b`)

// IsAuthorizationError reports whether err means the server wants (new)
// credentials. The structured mcp-go signal is checked first. Message
// matching covers transports and servers that only surface a status text.
func IsAuthorizationError(err error) bool {
	if err == nil {
		return false
	}
	if client.IsOAuthAuthorizationRequiredError(err) {
		return true
	}
	return authErrorPattern.MatchString(err.Error())
}

// IsAuthorizationRequired reports whether err carries an mcp-go OAuth handler
// that can drive the browser flow.
func IsAuthorizationRequired(err error) bool {
	return err != nil && client.IsOAuthAuthorizationRequiredError(err)
}
