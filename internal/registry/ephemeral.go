package registry

import (
	"fmt"
	"maps"
	"net/url"
	"strings"

	"github.com/google/shlex"
)

// EphemeralSpec is a one-off server described on the command line rather
// than in a config file.
type EphemeralSpec struct {
	HTTPURL      string
	SSE          bool
	StdioCommand string
	StdioArgs    []string
	Env          map[string]string
	Cwd          string
	Headers      map[string]string
	Name         string
	Description  string
	PersistPath  string
}

// IsZero reports whether no ephemeral server was requested.
func (s EphemeralSpec) IsZero() bool {
	return s.HTTPURL == "" && s.StdioCommand == ""
}

// EphemeralResolution is the outcome of ResolveEphemeralServer.
type EphemeralResolution struct {
	Definition ServerDefinition
	// Name was derived rather than supplied.
	NameInferred bool
	PersistPath  string
}

var streamingAccept = []string{"application/json", "text/event-stream"}

// ResolveEphemeralServer turns spec into a full definition. HTTP servers
// always get an Accept header listing both JSON and event-stream content.
func ResolveEphemeralServer(spec EphemeralSpec) (EphemeralResolution, error) {
	if spec.HTTPURL != "" && spec.StdioCommand != "" {
		return EphemeralResolution{}, fmt.Errorf("an ad-hoc server takes either an HTTP URL or a stdio command, not both")
	}

	res := EphemeralResolution{PersistPath: spec.PersistPath}
	def := ServerDefinition{
		Name:        spec.Name,
		Description: spec.Description,
		Source:      Source{Kind: SourceEphemeral},
	}

	switch {
	case spec.HTTPURL != "":
		u, err := url.Parse(spec.HTTPURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return EphemeralResolution{}, fmt.Errorf("invalid server URL %q", spec.HTTPURL)
		}
		headers := WithStreamingAccept(spec.Headers)
		if spec.SSE {
			def.Command = SSECommand{URL: spec.HTTPURL, Headers: headers}
		} else {
			def.Command = HTTPCommand{URL: spec.HTTPURL, Headers: headers}
		}
		if def.Name == "" {
			def.Name = InferNameFromURL(spec.HTTPURL)
			res.NameInferred = true
		}
	case spec.StdioCommand != "":
		tokens, err := shlex.Split(spec.StdioCommand)
		if err != nil {
			return EphemeralResolution{}, fmt.Errorf("invalid stdio command %q: %w", spec.StdioCommand, err)
		}
		if len(tokens) == 0 {
			return EphemeralResolution{}, fmt.Errorf("empty stdio command")
		}
		tokens = append(tokens, spec.StdioArgs...)
		def.Command = StdioCommand{
			Command: tokens[0],
			Args:    tokens[1:],
			Cwd:     spec.Cwd,
			Env:     maps.Clone(spec.Env),
		}
		if def.Name == "" {
			def.Name = InferNameFromCommand(tokens)
			res.NameInferred = true
		}
	default:
		return EphemeralResolution{}, fmt.Errorf("an ad-hoc server needs --http-url or --stdio")
	}

	if def.Name == "" {
		return EphemeralResolution{}, fmt.Errorf("could not infer a server name, pass --name")
	}
	res.Definition = def
	return res, nil
}

// WithStreamingAccept returns a copy of headers whose Accept value lists
// application/json and text/event-stream, keeping any media types the caller
// already supplied. Header names are matched case-insensitively.
func WithStreamingAccept(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	acceptKey := "accept"
	var existing []string
	for k, v := range headers {
		if strings.EqualFold(k, "accept") {
			acceptKey = k
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					existing = append(existing, part)
				}
			}
			continue
		}
		out[k] = v
	}

	values := existing
	for _, want := range streamingAccept {
		found := false
		for _, have := range existing {
			if strings.EqualFold(mediaType(have), want) {
				found = true
				break
			}
		}
		if !found {
			values = append(values, want)
		}
	}
	out[acceptKey] = strings.Join(values, ", ")
	return out
}

func mediaType(v string) string {
	if i := strings.Index(v, ";"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
