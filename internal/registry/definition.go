// Package registry holds server definitions and resolves them by name or URL.
package registry

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// CommandKind identifies how a server is reached.
type CommandKind string

const (
	KindStdio CommandKind = "stdio"
	KindHTTP  CommandKind = "http"
	KindSSE   CommandKind = "sse"
)

// Command is the transport half of a ServerDefinition. It is one of
// StdioCommand, HTTPCommand or SSECommand.
type Command interface {
	Kind() CommandKind
	clone() Command
}

// StdioCommand spawns the server as a child process speaking over stdin/stdout.
type StdioCommand struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

func (StdioCommand) Kind() CommandKind { return KindStdio }

func (c StdioCommand) clone() Command {
	c.Args = slices.Clone(c.Args)
	c.Env = maps.Clone(c.Env)
	return c
}

// HTTPCommand reaches the server over streamable HTTP.
type HTTPCommand struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (HTTPCommand) Kind() CommandKind { return KindHTTP }

func (c HTTPCommand) clone() Command {
	c.Headers = maps.Clone(c.Headers)
	return c
}

// SSECommand reaches the server over the legacy event-stream transport.
type SSECommand struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (SSECommand) Kind() CommandKind { return KindSSE }

func (c SSECommand) clone() Command {
	c.Headers = maps.Clone(c.Headers)
	return c
}

// CommandURL returns the URL of an HTTP or SSE command.
func CommandURL(c Command) (string, bool) {
	switch c := c.(type) {
	case HTTPCommand:
		return c.URL, true
	case SSECommand:
		return c.URL, true
	}
	return "", false
}

// SourceKind records where a definition came from.
type SourceKind string

const (
	SourceConfig    SourceKind = "local"
	SourceImport    SourceKind = "import"
	SourceEphemeral SourceKind = "ephemeral"
)

// Source is the provenance of a definition.
type Source struct {
	Kind SourceKind `json:"kind"`
	Path string     `json:"path,omitempty"`
}

// AuthOAuth marks a definition that authenticates with the OAuth browser flow.
const AuthOAuth = "oauth"

// ServerDefinition describes one named server. Values are treated as
// immutable: use the With* helpers to derive a modified copy.
type ServerDefinition struct {
	Name              string
	Description       string
	Command           Command
	Auth              string
	TokenCacheDir     string
	ClientName        string
	OAuthRedirectURL  string
	RegistrationToken string
	Source            Source
}

// IsOAuth reports whether the definition uses the OAuth flow.
func (d ServerDefinition) IsOAuth() bool {
	return d.Auth == AuthOAuth
}

// Clone returns a deep copy.
func (d ServerDefinition) Clone() ServerDefinition {
	if d.Command != nil {
		d.Command = d.Command.clone()
	}
	return d
}

// WithOAuth returns a copy switched to OAuth, filling in the default token
// cache directory when none is configured.
func (d ServerDefinition) WithOAuth() ServerDefinition {
	out := d.Clone()
	out.Auth = AuthOAuth
	if out.TokenCacheDir == "" {
		out.TokenCacheDir = DefaultTokenCacheDir(out.Name)
	}
	return out
}

// AsSSE returns a copy of an HTTP definition using the SSE transport.
// Other kinds are returned unchanged.
func (d ServerDefinition) AsSSE() ServerDefinition {
	out := d.Clone()
	if c, ok := out.Command.(HTTPCommand); ok {
		out.Command = SSECommand(c)
	}
	return out
}

// DefaultTokenCacheDir is ~/.mcporter/<name>.
func DefaultTokenCacheDir(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".mcporter", name)
}

type definitionJSON struct {
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Command          json.RawMessage `json:"command"`
	Auth             string          `json:"auth,omitempty"`
	TokenCacheDir    string          `json:"tokenCacheDir,omitempty"`
	ClientName       string          `json:"clientName,omitempty"`
	OAuthRedirectURL string          `json:"oauthRedirectUrl,omitempty"`
	Source           *Source         `json:"source,omitempty"`
}

// MarshalJSON encodes the command as a tagged object, e.g.
// {"kind":"http","url":"..."}. The registration token is never serialized.
func (d ServerDefinition) MarshalJSON() ([]byte, error) {
	cmd, err := MarshalCommand(d.Command)
	if err != nil {
		return nil, err
	}
	out := definitionJSON{
		Name:             d.Name,
		Description:      d.Description,
		Command:          cmd,
		Auth:             d.Auth,
		TokenCacheDir:    d.TokenCacheDir,
		ClientName:       d.ClientName,
		OAuthRedirectURL: d.OAuthRedirectURL,
	}
	if d.Source.Kind != "" {
		src := d.Source
		out.Source = &src
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (d *ServerDefinition) UnmarshalJSON(data []byte) error {
	var in definitionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	cmd, err := UnmarshalCommand(in.Command)
	if err != nil {
		return fmt.Errorf("server %q: %w", in.Name, err)
	}
	*d = ServerDefinition{
		Name:             in.Name,
		Description:      in.Description,
		Command:          cmd,
		Auth:             in.Auth,
		TokenCacheDir:    in.TokenCacheDir,
		ClientName:       in.ClientName,
		OAuthRedirectURL: in.OAuthRedirectURL,
	}
	if in.Source != nil {
		d.Source = *in.Source
	}
	return nil
}

// MarshalCommand encodes a command with its kind tag.
func MarshalCommand(c Command) ([]byte, error) {
	switch c := c.(type) {
	case StdioCommand:
		return json.Marshal(struct {
			Kind CommandKind `json:"kind"`
			StdioCommand
		}{KindStdio, c})
	case HTTPCommand:
		return json.Marshal(struct {
			Kind CommandKind `json:"kind"`
			HTTPCommand
		}{KindHTTP, c})
	case SSECommand:
		return json.Marshal(struct {
			Kind CommandKind `json:"kind"`
			SSECommand
		}{KindSSE, c})
	case nil:
		return nil, fmt.Errorf("definition has no command")
	default:
		return nil, fmt.Errorf("unsupported command type %T", c)
	}
}

// UnmarshalCommand decodes a tagged command object.
func UnmarshalCommand(data []byte) (Command, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("missing command")
	}
	var head struct {
		Kind CommandKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Kind {
	case KindStdio:
		var c StdioCommand
		err := json.Unmarshal(data, &c)
		return c, err
	case KindHTTP:
		var c HTTPCommand
		err := json.Unmarshal(data, &c)
		return c, err
	case KindSSE:
		var c SSECommand
		err := json.Unmarshal(data, &c)
		return c, err
	default:
		return nil, fmt.Errorf("unknown command kind %q", head.Kind)
	}
}
