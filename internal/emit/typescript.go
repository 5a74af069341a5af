// Package emit renders TypeScript declarations for the tools of a server.
package emit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/giantswarm/mcporter/internal/runtime"
)

// Mode selects what TypeScript emits.
type Mode string

const (
	// ModeTypes emits declarations only.
	ModeTypes Mode = "types"
	// ModeClient adds a client that shells out to mcporter call.
	ModeClient Mode = "client"
)

// ParseMode validates a --mode value.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTypes, ModeClient:
		return m, nil
	case "":
		return ModeTypes, nil
	}
	return "", fmt.Errorf("invalid mode %q (expected types or client)", s)
}

// Options configures TypeScript.
type Options struct {
	Server string
	Mode   Mode
	Tools  []runtime.ToolInfo
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// TypeScript returns the declarations for opts.Tools.
func TypeScript(opts Options) (string, error) {
	tools := append([]runtime.ToolInfo(nil), opts.Tools...)
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	iface := pascal(opts.Server) + "Tools"
	var b strings.Builder
	fmt.Fprintf(&b, "// Generated by mcporter emit-ts for server %q. Do not edit.\n\n", opts.Server)

	b.WriteString("export interface CallResult {\n")
	b.WriteString("  content: unknown[];\n")
	b.WriteString("  structuredContent?: unknown;\n")
	b.WriteString("  isError?: boolean;\n")
	b.WriteString("}\n")

	var methods []method
	for _, tool := range tools {
		base := pascal(tool.Name)
		m := method{name: tool.Name, doc: tool.Description, args: "Record<string, never>", result: "CallResult"}

		if tool.InputSchema != nil {
			s, err := parseSchema(tool.InputSchema)
			if err != nil {
				return "", fmt.Errorf("tool %s: input schema: %w", tool.Name, err)
			}
			m.args = base + "Args"
			b.WriteString("\n")
			writeInterface(&b, m.args, s)
		}
		if tool.OutputSchema != nil {
			s, err := parseSchema(tool.OutputSchema)
			if err != nil {
				return "", fmt.Errorf("tool %s: output schema: %w", tool.Name, err)
			}
			output := base + "Output"
			b.WriteString("\n")
			writeInterface(&b, output, s)
			m.result = "CallResult & { structuredContent?: " + output + " }"
		}
		methods = append(methods, m)
	}

	fmt.Fprintf(&b, "\nexport interface %s {\n", iface)
	for _, m := range methods {
		writeDoc(&b, "  ", m.doc)
		fmt.Fprintf(&b, "  %s(args: %s): Promise<%s>;\n", propertyName(m.name), m.args, m.result)
	}
	b.WriteString("}\n")

	if opts.Mode == ModeClient {
		writeClient(&b, opts.Server, iface, methods)
	}
	return b.String(), nil
}

type method struct {
	name, doc, args, result string
}

func writeClient(b *strings.Builder, server, iface string, methods []method) {
	fmt.Fprintf(b, `
import { execFile } from "node:child_process";

function callTool(tool: string, args: unknown): Promise<CallResult> {
  return new Promise((resolve, reject) => {
    execFile(
      "mcporter",
      ["call", %s + "." + tool, "--args", JSON.stringify(args ?? {}), "--output", "json"],
      { maxBuffer: 64 * 1024 * 1024 },
      (err, stdout) => {
        if (err) {
          reject(err);
          return;
        }
        resolve(JSON.parse(stdout) as CallResult);
      },
    );
  });
}

export function create%sClient(): %s {
  return {
`, strconv.Quote(server), pascal(server), iface)
	for _, m := range methods {
		fmt.Fprintf(b, "    %s: (args) => callTool(%s, args),\n", propertyName(m.name), strconv.Quote(m.name))
	}
	b.WriteString("  } as " + iface + ";\n}\n")
}

func parseSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func writeInterface(b *strings.Builder, name string, s *jsonschema.Schema) {
	if len(s.Properties) == 0 {
		fmt.Fprintf(b, "export type %s = %s;\n", name, tsType(s, ""))
		return
	}
	fmt.Fprintf(b, "export interface %s {\n", name)
	writeProperties(b, s, "  ")
	b.WriteString("}\n")
}

func writeProperties(b *strings.Builder, s *jsonschema.Schema, indent string) {
	required := map[string]bool{}
	for _, r := range s.Required {
		required[r] = true
	}
	names := make([]string, 0, len(s.Properties))
	for n := range s.Properties {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		prop := s.Properties[n]
		if prop == nil {
			continue
		}
		writeDoc(b, indent, prop.Description)
		opt := "?"
		if required[n] {
			opt = ""
		}
		fmt.Fprintf(b, "%s%s%s: %s;\n", indent, propertyName(n), opt, tsType(prop, indent))
	}
}

// tsType maps a schema to a TypeScript type expression.
func tsType(s *jsonschema.Schema, indent string) string {
	if s == nil {
		return "unknown"
	}
	if s.Const != nil {
		return literal(*s.Const)
	}
	if len(s.Enum) > 0 {
		parts := make([]string, 0, len(s.Enum))
		for _, v := range s.Enum {
			parts = append(parts, literal(v))
		}
		return strings.Join(parts, " | ")
	}
	if alts := append(append([]*jsonschema.Schema{}, s.AnyOf...), s.OneOf...); len(alts) > 0 {
		parts := make([]string, 0, len(alts))
		for _, alt := range alts {
			parts = append(parts, tsType(alt, indent))
		}
		return union(parts)
	}

	types := s.Types
	if s.Type != "" {
		types = []string{s.Type}
	}
	if len(types) == 0 {
		if len(s.Properties) > 0 {
			types = []string{"object"}
		} else {
			return "unknown"
		}
	}
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, scalarType(s, t, indent))
	}
	return union(parts)
}

func scalarType(s *jsonschema.Schema, t, indent string) string {
	switch t {
	case "string":
		return "string"
	case "integer", "number":
		return "number"
	case "boolean":
		return "boolean"
	case "null":
		return "null"
	case "array":
		item := tsType(s.Items, indent)
		if strings.ContainsAny(item, " |&{") {
			return "Array<" + item + ">"
		}
		return item + "[]"
	case "object":
		if len(s.Properties) == 0 {
			return "Record<string, unknown>"
		}
		var b strings.Builder
		b.WriteString("{\n")
		writeProperties(&b, s, indent+"    ")
		b.WriteString(indent + "  }")
		return b.String()
	}
	return "unknown"
}

func union(parts []string) string {
	seen := map[string]bool{}
	var out []string
	for _, p := range parts {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return strings.Join(out, " | ")
}

func literal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "unknown"
	}
	return string(data)
}

func writeDoc(b *strings.Builder, indent, doc string) {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return
	}
	doc = strings.ReplaceAll(doc, "*/", "*\\/")
	lines := strings.Split(doc, "\n")
	if len(lines) == 1 {
		fmt.Fprintf(b, "%s/** %s */\n", indent, lines[0])
		return
	}
	fmt.Fprintf(b, "%s/**\n", indent)
	for _, l := range lines {
		fmt.Fprintf(b, "%s * %s\n", indent, strings.TrimRight(l, " "))
	}
	fmt.Fprintf(b, "%s */\n", indent)
}

func propertyName(n string) string {
	if identifier.MatchString(n) {
		return n
	}
	return strconv.Quote(n)
}

// pascal turns snake, kebab and dotted names into PascalCase identifiers.
func pascal(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			if upper {
				r -= 'a' - 'A'
			}
			b.WriteRune(r)
			upper = false
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			if b.Len() == 0 && r >= '0' && r <= '9' {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	if b.Len() == 0 {
		return "Server"
	}
	return b.String()
}
