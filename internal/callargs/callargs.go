// Package callargs turns command-line call arguments into tool arguments.
package callargs

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Selector names the tool to call. Exactly one of Server and URL is set.
type Selector struct {
	Server string
	URL    string
	Tool   string
}

// ParseSelector reads the selector from the front of tokens and returns the
// remaining tokens. Accepted forms are "server.tool", "server tool" and
// "https://host/path.tool". A trailing "()" on the tool name is ignored.
func ParseSelector(tokens []string) (Selector, []string, error) {
	if len(tokens) == 0 || tokens[0] == "" {
		return Selector{}, nil, fmt.Errorf("missing tool selector, expected server.tool")
	}
	head, rest := tokens[0], tokens[1:]

	if u, err := url.Parse(head); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		slash := strings.LastIndex(head, "/")
		dot := strings.LastIndex(head, ".")
		if slash > len(u.Scheme)+2 && dot > slash {
			return Selector{URL: head[:dot], Tool: trimCall(head[dot+1:])}, rest, nil
		}
		if len(rest) > 0 && !isAssignment(rest[0]) {
			return Selector{URL: head, Tool: trimCall(rest[0])}, rest[1:], nil
		}
		return Selector{}, nil, fmt.Errorf("selector %q does not name a tool, use %s.<tool>", head, head)
	}

	if i := strings.Index(head, "."); i > 0 && i < len(head)-1 {
		return Selector{Server: head[:i], Tool: trimCall(head[i+1:])}, rest, nil
	}
	if len(rest) > 0 && !isAssignment(rest[0]) {
		return Selector{Server: head, Tool: trimCall(rest[0])}, rest[1:], nil
	}
	return Selector{}, nil, fmt.Errorf("selector %q does not name a tool, expected server.tool", head)
}

func trimCall(tool string) string {
	return strings.TrimSuffix(tool, "()")
}

func isAssignment(token string) bool {
	return strings.IndexAny(token, "=:") > 0
}

// Parse merges the JSON object in argsJSON with key=value and key:value
// tokens. Tokens win over keys from argsJSON. Values stay strings until
// Coerce gives them a type.
func Parse(tokens []string, argsJSON string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(argsJSON) != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("--args must be a JSON object: %w", err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}
	for _, token := range tokens {
		i := strings.IndexAny(token, "=:")
		if i <= 0 {
			return nil, fmt.Errorf("argument %q must look like key=value or key:value", token)
		}
		args[token[:i]] = token[i+1:]
	}
	return args, nil
}

// Coerce converts string values to the types the tool's input schema asks
// for. Values without a schema entry and non-string values are left alone.
func Coerce(args map[string]any, rawSchema json.RawMessage) (map[string]any, error) {
	if len(rawSchema) == 0 || len(args) == 0 {
		return args, nil
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}

	out := make(map[string]any, len(args))
	for key, value := range args {
		s, ok := value.(string)
		prop := schema.Properties[key]
		if !ok || prop == nil {
			out[key] = value
			continue
		}
		v, err := coerceString(s, schemaTypes(prop))
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// MissingRequired lists required properties absent from args, sorted.
func MissingRequired(args map[string]any, rawSchema json.RawMessage) []string {
	if len(rawSchema) == 0 {
		return nil
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return nil
	}
	var missing []string
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func schemaTypes(s *jsonschema.Schema) []string {
	if s.Type != "" {
		return []string{s.Type}
	}
	if len(s.Types) > 0 {
		return s.Types
	}
	var types []string
	for _, alt := range append(append([]*jsonschema.Schema{}, s.AnyOf...), s.OneOf...) {
		if alt != nil {
			types = append(types, schemaTypes(alt)...)
		}
	}
	return types
}

// coerceString tries each schema type in turn. A string type, or no type at
// all, keeps the raw value.
func coerceString(s string, types []string) (any, error) {
	if len(types) == 0 {
		return s, nil
	}
	var firstErr error
	for _, t := range types {
		v, err := coerceTo(s, t)
		if err == nil {
			return v, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func coerceTo(s, typ string) (any, error) {
	switch typ {
	case "string":
		return s, nil
	case "integer":
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", s)
		}
		return n, nil
	case "number":
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", s)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", s)
		}
		return b, nil
	case "null":
		if s == "null" || s == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("expected null, got %q", s)
	case "array", "object":
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("expected JSON %s: %v", typ, err)
		}
		_, isArray := v.([]any)
		_, isObject := v.(map[string]any)
		if (typ == "array" && !isArray) || (typ == "object" && !isObject) {
			return nil, fmt.Errorf("expected JSON %s, got %q", typ, s)
		}
		return v, nil
	}
	return s, nil
}
