package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/shlex"

	"github.com/giantswarm/mcporter/internal/registry"
	mcpruntime "github.com/giantswarm/mcporter/internal/runtime"
)

// Introspector is the part of the runtime the generator needs.
// *runtime.Runtime implements it.
type Introspector interface {
	Definition(name string) (registry.ServerDefinition, error)
	ResolveByURL(rawURL string) (string, bool)
	RegisterDefinition(def registry.ServerDefinition, overwrite bool) error
	ListTools(ctx context.Context, name string, opts mcpruntime.ListToolsOptions) ([]mcpruntime.ToolInfo, error)
}

// ResolveServer turns a server reference into a registered definition. A
// reference is a configured name, a URL, an inline JSON definition or a
// stdio command line. Anything not configured is registered ad hoc.
func ResolveServer(in Introspector, ref string) (registry.ServerDefinition, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return registry.ServerDefinition{}, fmt.Errorf("empty server reference")
	}
	def, err := in.Definition(ref)
	if err == nil {
		return def, nil
	}
	notFound := err

	switch {
	case strings.HasPrefix(ref, "{"):
		def, err = parseInlineDefinition(ref)
	case isHTTPURL(ref):
		if name, ok := in.ResolveByURL(ref); ok {
			return in.Definition(name)
		}
		def, err = ephemeralDefinition(registry.EphemeralSpec{HTTPURL: ref})
	case strings.ContainsAny(ref, " /\\"):
		def, err = ephemeralDefinition(registry.EphemeralSpec{StdioCommand: ref})
	default:
		return registry.ServerDefinition{}, notFound
	}
	if err != nil {
		return registry.ServerDefinition{}, err
	}
	if err := in.RegisterDefinition(def, true); err != nil {
		return registry.ServerDefinition{}, err
	}
	return def, nil
}

// parseInlineDefinition accepts either {"name","command","description"}
// with command as a URL or command line, or a fully serialized definition.
func parseInlineDefinition(ref string) (registry.ServerDefinition, error) {
	var head struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Command     json.RawMessage `json:"command"`
	}
	if err := json.Unmarshal([]byte(ref), &head); err != nil {
		return registry.ServerDefinition{}, fmt.Errorf("invalid inline server definition: %w", err)
	}
	if len(head.Command) > 0 && head.Command[0] == '"' {
		var command string
		if err := json.Unmarshal(head.Command, &command); err != nil {
			return registry.ServerDefinition{}, err
		}
		spec := registry.EphemeralSpec{Name: head.Name, Description: head.Description}
		if isHTTPURL(command) {
			spec.HTTPURL = command
		} else {
			spec.StdioCommand = command
		}
		return ephemeralDefinition(spec)
	}

	var def registry.ServerDefinition
	if err := json.Unmarshal([]byte(ref), &def); err != nil {
		return registry.ServerDefinition{}, fmt.Errorf("invalid inline server definition: %w", err)
	}
	if def.Name == "" {
		return registry.ServerDefinition{}, fmt.Errorf("inline server definition has no name")
	}
	return def, nil
}

func ephemeralDefinition(spec registry.EphemeralSpec) (registry.ServerDefinition, error) {
	res, err := registry.ResolveEphemeralServer(spec)
	if err != nil {
		return registry.ServerDefinition{}, err
	}
	return res.Definition, nil
}

// inferName derives a CLI name from a URL or command line.
func inferName(command string) string {
	command = strings.TrimSpace(command)
	if isHTTPURL(command) {
		return registry.InferNameFromURL(command)
	}
	tokens, err := shlex.Split(command)
	if err != nil {
		tokens = strings.Fields(command)
	}
	return registry.InferNameFromCommand(tokens)
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
