package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultTimeoutMs bounds the tool introspection during generation.
const DefaultTimeoutMs = 30000

// Runtime names the toolchain used to bundle and compile artifacts.
type Runtime string

const (
	RuntimeGo     Runtime = "go"
	RuntimeTinyGo Runtime = "tinygo"
)

// ParseRuntime validates a --runtime value.
func ParseRuntime(s string) (Runtime, error) {
	switch r := Runtime(strings.ToLower(s)); r {
	case RuntimeGo, RuntimeTinyGo:
		return r, nil
	}
	return "", fmt.Errorf("invalid runtime %q (expected go or tinygo)", s)
}

// DetectRuntime picks the first toolchain found on PATH, preferring go.
func DetectRuntime(lookPath func(string) (string, error)) (Runtime, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, r := range []Runtime{RuntimeGo, RuntimeTinyGo} {
		if _, err := lookPath(string(r)); err == nil {
			return r, nil
		}
	}
	return "", errors.New("no Go toolchain found on PATH (install go or tinygo)")
}

// Flags are the generate-cli options as given on the command line. Pointer
// fields are nil when the flag was not passed.
type Flags struct {
	Server      string
	Name        string
	Command     string
	Description string
	Output      string
	Bundle      *Toggle
	Compile     *Toggle
	Runtime     Runtime
	TimeoutMs   *int
	Minify      *bool
	From        string
	DryRun      bool
}

// Globals are the process-wide flags that also shape generation.
type Globals struct {
	ConfigPath string
	RootDir    string
}

// Request is a fully resolved generation request.
type Request struct {
	ServerRef  string
	ConfigPath string
	RootDir    string
	OutputPath string
	Runtime    Runtime
	Bundle     Toggle
	Compile    Toggle
	TimeoutMs  int
	Minify     bool
}

// Validate rejects flag combinations before anything else happens.
func (f Flags) Validate() error {
	if f.From != "" && (f.Command != "" || f.Description != "" || f.Name != "") {
		return errors.New("--from cannot be combined with --command/--description/--name")
	}
	if f.DryRun && f.From == "" {
		return errors.New("--dry-run requires --from <artifact>")
	}
	if f.TimeoutMs != nil && *f.TimeoutMs <= 0 {
		return fmt.Errorf("--timeout must be a positive number of milliseconds")
	}
	return nil
}

// ResolveRequest builds a request for a fresh generation. The server is
// either --server or an inline definition assembled from --command.
func ResolveRequest(f Flags, g Globals) (Request, error) {
	if err := f.Validate(); err != nil {
		return Request{}, err
	}
	serverRef := f.Server
	if serverRef == "" && f.Command != "" {
		name := f.Name
		if name == "" {
			name = inferName(f.Command)
		}
		if name != "" {
			ref, err := inlineServerRef(name, f.Command, f.Description)
			if err != nil {
				return Request{}, err
			}
			serverRef = ref
		}
	}
	if serverRef == "" {
		return Request{}, errors.New("provide --server with a definition or a command we can infer a name from (use --name to override)")
	}

	req := Request{
		ServerRef:  serverRef,
		ConfigPath: g.ConfigPath,
		RootDir:    g.RootDir,
		OutputPath: f.Output,
		Runtime:    f.Runtime,
		TimeoutMs:  DefaultTimeoutMs,
	}
	if f.Bundle != nil {
		req.Bundle = *f.Bundle
	}
	if f.Compile != nil {
		req.Compile = *f.Compile
	}
	if f.TimeoutMs != nil {
		req.TimeoutMs = *f.TimeoutMs
	}
	if f.Minify != nil {
		req.Minify = *f.Minify
	}
	return req, nil
}

// ResolveFromMetadata rebuilds a request from an artifact's metadata.
// Explicit flags win over recorded values, which win over defaults.
func ResolveFromMetadata(f Flags, g Globals, m Metadata) (Request, error) {
	if err := f.Validate(); err != nil {
		return Request{}, err
	}
	inv := m.Invocation

	serverRef, err := regenerationServerRef(f.Server, m)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		ServerRef:  serverRef,
		ConfigPath: firstNonEmpty(g.ConfigPath, inv.ConfigPath),
		RootDir:    firstNonEmpty(g.RootDir, inv.RootDir),
		OutputPath: firstNonEmpty(f.Output, inv.OutputPath),
		Runtime:    Runtime(firstNonEmpty(string(f.Runtime), string(inv.Runtime))),
		Bundle:     inv.Bundle,
		Compile:    inv.Compile,
		TimeoutMs:  DefaultTimeoutMs,
		Minify:     inv.Minify,
	}
	if inv.TimeoutMs > 0 {
		req.TimeoutMs = inv.TimeoutMs
	}
	if f.Bundle != nil {
		req.Bundle = *f.Bundle
	}
	if f.Compile != nil {
		req.Compile = *f.Compile
	}
	if f.TimeoutMs != nil {
		req.TimeoutMs = *f.TimeoutMs
	}
	if f.Minify != nil {
		req.Minify = *f.Minify
	}
	return req, nil
}

// regenerationServerRef picks --server, then the recorded reference, then
// the recorded server name, then the serialized definition itself.
func regenerationServerRef(explicit string, m Metadata) (string, error) {
	switch {
	case explicit != "":
		return explicit, nil
	case m.Invocation.ServerRef != "":
		return m.Invocation.ServerRef, nil
	case m.Server.Name != "":
		return m.Server.Name, nil
	case m.Server.Definition.Command != nil:
		data, err := json.Marshal(m.Server.Definition)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", errors.New("unable to determine server definition from artifact, pass --server with a target name")
}

// Invocation records the request in artifact metadata form.
func (r Request) Invocation() Invocation {
	return Invocation{
		ServerRef:  r.ServerRef,
		ConfigPath: r.ConfigPath,
		RootDir:    r.RootDir,
		OutputPath: r.OutputPath,
		Runtime:    r.Runtime,
		Bundle:     r.Bundle,
		Compile:    r.Compile,
		TimeoutMs:  r.TimeoutMs,
		Minify:     r.Minify,
	}
}

// Kind is the artifact kind the request produces.
func (r Request) Kind() Kind {
	switch {
	case r.Compile.Enabled():
		return KindBinary
	case r.Bundle.Enabled():
		return KindBundle
	}
	return KindTemplate
}

func inlineServerRef(name, command, description string) (string, error) {
	ref := struct {
		Name        string `json:"name"`
		Command     string `json:"command"`
		Description string `json:"description,omitempty"`
	}{name, command, description}
	data, err := json.Marshal(ref)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
