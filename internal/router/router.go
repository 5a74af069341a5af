// Package router decides whether a bare invocation means list or call.
package router

import (
	"net/url"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/registry"
)

// Commands the router dispatches to.
const (
	CommandList = "list"
	CommandCall = "call"
	CommandAuth = "auth"
)

// ExitUnknownCommand is the exit code used when a token cannot be routed.
const ExitUnknownCommand = 1

// Decision is the outcome of Infer. When Abort is set the caller must not
// dispatch and should exit with ExitCode once cleanup has run.
type Decision struct {
	Command  string
	Args     []string
	Abort    bool
	ExitCode int
}

var keywords = []string{CommandList, CommandCall, CommandAuth}

// Infer classifies token and the arguments that follow it.
//
// Explicit keywords are taken as is. A server.tool selector, a URL or a
// configured server name followed by more arguments is a call. A configured
// server name on its own lists that server. Anything else aborts, suggesting
// the closest known name when there is one.
func Infer(token string, args []string, defs []registry.ServerDefinition, logger *logging.Logger) Decision {
	for _, kw := range keywords {
		if token == kw {
			return Decision{Command: kw, Args: args}
		}
	}

	forward := append([]string{token}, args...)

	if isURL(token) {
		return Decision{Command: CommandCall, Args: forward}
	}

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if def.Name == token {
			if len(args) == 0 {
				return Decision{Command: CommandList, Args: []string{token}}
			}
			return Decision{Command: CommandCall, Args: forward}
		}
		names = append(names, def.Name)
	}

	if strings.Contains(token, ".") && !strings.HasPrefix(token, ".") {
		return Decision{Command: CommandCall, Args: forward}
	}

	if suggestion, ok := Suggest(token, append(names, keywords...)); ok {
		logger.Error("Unknown command '%s'. Did you mean '%s'?", token, suggestion)
	} else {
		logger.Error("Unknown command '%s'. Run 'mcporter --help' for usage.", token)
	}
	return Decision{Abort: true, ExitCode: ExitUnknownCommand}
}

// Suggest returns the candidate closest to token by edit distance, provided
// it is close enough to be a plausible typo.
func Suggest(token string, candidates []string) (string, bool) {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	best, bestDist := "", -1
	for _, c := range sorted {
		if c == "" {
			continue
		}
		d := levenshtein.ComputeDistance(strings.ToLower(token), strings.ToLower(c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist > maxDistance(token) {
		return "", false
	}
	return best, true
}

func maxDistance(token string) int {
	if n := len(token) / 3; n > 2 {
		return n
	}
	return 2
}

func isURL(token string) bool {
	u, err := url.Parse(token)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
