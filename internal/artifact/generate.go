package artifact

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/registry"
	mcpruntime "github.com/giantswarm/mcporter/internal/runtime"
)

// MCPGoVersion is the mcp-go release generated modules depend on.
const MCPGoVersion = "v0.43.2"

const bundleMainFile = "main.go"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"quote": strconv.Quote,
}).ParseFS(templateFS, "templates/*.tmpl"))

// Generator produces standalone CLIs.
type Generator struct {
	Introspector Introspector
	Logger       *logging.Logger
	// Version is recorded as the generator version.
	Version string

	// Hooks for tests. Nil means the real implementation.
	Now          func() time.Time
	LookPath     func(string) (string, error)
	NewToolchain func(Runtime) Toolchain
}

// Result lists what Generate wrote.
type Result struct {
	Definition  registry.ServerDefinition
	OutputPath  string
	BundlePath  string
	CompilePath string
	Metadata    Metadata
}

// Generate resolves the server, captures its tools and writes the template,
// plus a bundle and a binary when requested. A failure after files were
// written leaves them in place.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	def, err := ResolveServer(g.Introspector, req.ServerRef)
	if err != nil {
		return Result{}, err
	}

	if (req.Bundle.Enabled() || req.Compile.Enabled()) && req.Runtime == "" {
		r, err := DetectRuntime(g.LookPath)
		if err != nil {
			return Result{}, err
		}
		req.Runtime = r
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultTimeoutMs * time.Millisecond
	}
	listCtx, cancel := context.WithTimeout(ctx, timeout)
	tools, err := g.Introspector.ListTools(listCtx, def.Name, mcpruntime.ListToolsOptions{AutoAuthorize: true})
	cancel()
	if err != nil {
		return Result{}, fmt.Errorf("failed to list tools of '%s': %w", def.Name, err)
	}
	g.Logger.Debug("Captured %d tool(s) from '%s'", len(tools), def.Name)

	name := registry.Slugify(def.Name)
	if name == "" {
		name = "mcp"
	}

	base := Metadata{
		GeneratedAt: g.now(),
		Generator:   GeneratorInfo{Name: GeneratorName, Version: g.Version},
		Server:      ServerInfo{Name: def.Name, Definition: def},
		Invocation:  req.Invocation(),
	}
	if def.Source.Kind != "" {
		src := def.Source
		base.Server.Source = &src
	}
	render := func(kind Kind, path string) ([]byte, Metadata, error) {
		m := base
		m.Artifact = ArtifactInfo{Path: path, Kind: kind}
		src, err := RenderSource(name, def, tools, m, req.Minify)
		return src, m, err
	}

	res := Result{Definition: def}

	res.OutputPath = firstNonEmpty(req.OutputPath, name+".go")
	src, m, err := render(KindTemplate, res.OutputPath)
	if err != nil {
		return Result{}, err
	}
	if err := writeFile(res.OutputPath, src); err != nil {
		return Result{}, err
	}
	res.Metadata = m

	if req.Bundle.Enabled() {
		res.BundlePath = req.Bundle.PathOr(name + "-cli")
		src, m, err := render(KindBundle, res.BundlePath)
		if err != nil {
			return res, err
		}
		if err := g.writeModule(ctx, req.Runtime, res.BundlePath, name, src); err != nil {
			return res, err
		}
		res.Metadata = m
	}

	if req.Compile.Enabled() {
		out, err := filepath.Abs(req.Compile.PathOr(name))
		if err != nil {
			return res, err
		}
		src, m, err := render(KindBinary, out)
		if err != nil {
			return res, err
		}
		if err := g.compile(ctx, req.Runtime, out, name, src, req.Minify); err != nil {
			return res, err
		}
		res.CompilePath = out
		res.Metadata = m
	}
	return res, nil
}

func (g *Generator) writeModule(ctx context.Context, r Runtime, dir, name string, src []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, bundleMainFile), src); err != nil {
		return err
	}
	var mod bytes.Buffer
	if err := templates.ExecuteTemplate(&mod, "go.mod.tmpl", map[string]string{
		"Name":         name,
		"MCPGoVersion": MCPGoVersion,
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "go.mod"), mod.Bytes()); err != nil {
		return err
	}
	return g.toolchain(r).Tidy(ctx, dir)
}

// compile builds in a scratch module so the binary carries binary metadata
// even when a bundle was written too.
func (g *Generator) compile(ctx context.Context, r Runtime, out, name string, src []byte, minify bool) error {
	dir, err := os.MkdirTemp("", "mcporter-"+name+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	if err := g.writeModule(ctx, r, dir, name, src); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return g.toolchain(r).Build(ctx, dir, out, minify)
}

func (g *Generator) toolchain(r Runtime) Toolchain {
	if g.NewToolchain != nil {
		return g.NewToolchain(r)
	}
	return NewToolchain(r, g.Logger)
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

type templateData struct {
	GeneratorName    string
	GeneratorVersion string
	Name             string
	ServerName       string
	Description      string
	Marker           string
	Definition       string
	Tools            string
	TimeoutMs        int
}

// RenderSource renders the standalone CLI for def. With minify the comments
// are dropped from the output.
func RenderSource(name string, def registry.ServerDefinition, tools []mcpruntime.ToolInfo, m Metadata, minify bool) ([]byte, error) {
	marker, err := m.Marker()
	if err != nil {
		return nil, err
	}
	defJSON, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	if tools == nil {
		tools = []mcpruntime.ToolInfo{}
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return nil, err
	}
	timeoutMs := m.Invocation.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeoutMs
	}

	var buf bytes.Buffer
	err = templates.ExecuteTemplate(&buf, "main.go.tmpl", templateData{
		GeneratorName:    m.Generator.Name,
		GeneratorVersion: firstNonEmpty(m.Generator.Version, "dev"),
		Name:             name,
		ServerName:       def.Name,
		Description:      strings.SplitN(strings.TrimSpace(def.Description), "\n", 2)[0],
		Marker:           marker,
		Definition:       string(defJSON),
		Tools:            string(toolsJSON),
		TimeoutMs:        timeoutMs,
	})
	if err != nil {
		return nil, fmt.Errorf("render CLI source: %w", err)
	}

	if !minify {
		return format.Source(buf.Bytes())
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "main.go", buf.Bytes(), parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("parse generated source: %w", err)
	}
	var out bytes.Buffer
	if err := format.Node(&out, fset, file); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
