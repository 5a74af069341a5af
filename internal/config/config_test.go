package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcporter/internal/registry"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func isolate(t *testing.T) (root, home string) {
	t.Helper()
	root = t.TempDir()
	home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConfigPath, "")
	return root, home
}

func TestResolvePath(t *testing.T) {
	t.Run("explicit argument wins", func(t *testing.T) {
		root, home := isolate(t)
		explicit := filepath.Join(root, "custom.json")
		writeFile(t, explicit, `{"mcpServers":{}}`)
		writeFile(t, filepath.Join(root, "config", "mcporter.json"), `{}`)
		writeFile(t, filepath.Join(home, ".mcporter", "mcporter.json"), `{}`)
		t.Setenv(EnvConfigPath, filepath.Join(root, "env.json"))

		got := ResolvePath(explicit, root)
		assert.Equal(t, Resolved{Path: explicit, Explicit: true}, got)
	})

	t.Run("environment override", func(t *testing.T) {
		root, _ := isolate(t)
		envPath := filepath.Join(root, "env-config.json")
		writeFile(t, envPath, `{"mcpServers":{}}`)
		writeFile(t, filepath.Join(root, "config", "mcporter.json"), `{}`)
		t.Setenv(EnvConfigPath, envPath)

		got := ResolvePath("", root)
		assert.Equal(t, Resolved{Path: envPath, Explicit: true}, got)
	})

	t.Run("project config", func(t *testing.T) {
		root, home := isolate(t)
		project := filepath.Join(root, "config", "mcporter.json")
		writeFile(t, project, `{"mcpServers":{}}`)
		writeFile(t, filepath.Join(home, ".mcporter", "mcporter.json"), `{}`)

		got := ResolvePath("", root)
		assert.Equal(t, Resolved{Path: project}, got)
	})

	t.Run("home config when project is missing", func(t *testing.T) {
		root, home := isolate(t)
		homeConfig := filepath.Join(home, ".mcporter", "mcporter.json")
		writeFile(t, homeConfig, `{"mcpServers":{}}`)

		got := ResolvePath("", root)
		assert.Equal(t, Resolved{Path: homeConfig}, got)
	})

	t.Run("nothing exists", func(t *testing.T) {
		root, _ := isolate(t)
		got := ResolvePath("", root)
		assert.Equal(t, Resolved{Path: filepath.Join(root, "config", "mcporter.json")}, got)
	})
}

func TestLoadMissing(t *testing.T) {
	root, _ := isolate(t)
	missing := filepath.Join(root, "nope.json")

	defs, err := Load(missing, false, root)
	require.NoError(t, err)
	assert.Empty(t, defs)

	_, err = Load(missing, true, root)
	assert.Error(t, err)
}

func TestLoadJSONCTrailingCommas(t *testing.T) {
	root, _ := isolate(t)
	path := filepath.Join(root, "config", "mcporter.jsonc")
	writeFile(t, path, `{
  "mcpServers": {
    "linear": { "url": "https://mcp.linear.app/mcp", },
    "fs": { "command": "mcp-fs", "args": ["--root", "/tmp",], }, // local
  },
}`)

	defs, err := Load(path, true, root)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "fs", defs[0].Name)
	assert.Equal(t, "linear", defs[1].Name)
}

func TestLoadJSONSyntaxError(t *testing.T) {
	root, _ := isolate(t)
	path := filepath.Join(root, "config", "mcporter.json")
	writeFile(t, path, `{"mcpServers": {"linear": }}`)

	_, err := Load(path, true, root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadJSON(t *testing.T) {
	root, home := isolate(t)
	t.Setenv("LINEAR_TOKEN", "tok-123")
	t.Setenv("PORT", "")
	path := filepath.Join(root, "config", "mcporter.jsonc")
	writeFile(t, path, `{
  // remote servers
  "mcpServers": {
    "linear": {
      "baseUrl": "https://mcp.linear.app/mcp",
      "headers": {"Authorization": "Bearer ${LINEAR_TOKEN}"},
      "description": "Linear // issues"
    },
    "legacy": {"url": "https://legacy.example.com/sse", "transport": "sse"},
    /* local */
    "fs": {"command": "npx -y @modelcontextprotocol/server-filesystem /tmp", "cwd": "servers"},
    "listed": {"command": ["node", "server.js"], "args": ["--port", "${PORT:-3000}"], "env": {"HOME_DIR": "$env:HOME"}},
    "vercel": {"url": "https://mcp.vercel.com", "auth": "oauth"}
  }
}`)

	defs, err := Load(path, true, root)
	require.NoError(t, err)
	require.Len(t, defs, 5)

	byName := map[string]registry.ServerDefinition{}
	for _, d := range defs {
		byName[d.Name] = d
		assert.Equal(t, registry.Source{Kind: registry.SourceConfig, Path: path}, d.Source)
	}

	linear := byName["linear"]
	assert.Equal(t, "Linear // issues", linear.Description)
	assert.Equal(t, registry.HTTPCommand{
		URL:     "https://mcp.linear.app/mcp",
		Headers: map[string]string{"Authorization": "Bearer tok-123"},
	}, linear.Command)

	assert.Equal(t, registry.KindSSE, byName["legacy"].Command.Kind())

	fs := byName["fs"].Command.(registry.StdioCommand)
	assert.Equal(t, "npx", fs.Command)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"}, fs.Args)
	assert.Equal(t, filepath.Join(root, "config", "servers"), fs.Cwd)

	listed := byName["listed"].Command.(registry.StdioCommand)
	assert.Equal(t, []string{"server.js", "--port", "3000"}, listed.Args)
	assert.Equal(t, root, listed.Cwd)
	assert.Equal(t, home, listed.Env["HOME_DIR"])

	vercel := byName["vercel"]
	assert.True(t, vercel.IsOAuth())
	assert.Equal(t, filepath.Join(home, ".mcporter", "vercel"), vercel.TokenCacheDir)
}

func TestLoadYAMLAndTOML(t *testing.T) {
	root, _ := isolate(t)

	yamlPath := filepath.Join(root, "servers.yaml")
	writeFile(t, yamlPath, `
mcpServers:
  weather:
    command: [python3, weather.py]
    env:
      UNITS: metric
  docs:
    url: https://docs.example.com/mcp
    bearerTokenEnv: DOCS_TOKEN
`)
	t.Setenv("DOCS_TOKEN", "abc")

	defs, err := Load(yamlPath, true, root)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "docs", defs[0].Name)
	assert.Equal(t, "Bearer abc", defs[0].Command.(registry.HTTPCommand).Headers["Authorization"])
	assert.Equal(t, registry.StdioCommand{
		Command: "python3",
		Args:    []string{"weather.py"},
		Cwd:     root,
		Env:     map[string]string{"UNITS": "metric"},
	}, defs[1].Command)

	tomlPath := filepath.Join(root, "servers.toml")
	writeFile(t, tomlPath, `
[mcpServers.search]
url = "https://search.example.com/mcp"
auth = "oauth"
tokenCacheDir = "~/tokens/search"
`)
	defs, err = Load(tomlPath, true, root)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "tokens", "search"), defs[0].TokenCacheDir)
}

func TestLoadRejectsEntryWithoutTarget(t *testing.T) {
	root, _ := isolate(t)
	path := filepath.Join(root, "bad.json")
	writeFile(t, path, `{"mcpServers":{"broken":{"description":"nothing"}}}`)

	_, err := Load(path, true, root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestPersistServer(t *testing.T) {
	root, _ := isolate(t)
	path := filepath.Join(root, "config", "mcporter.json")
	writeFile(t, path, `{"imports":["cursor"],"mcpServers":{"existing":{"url":"https://e.dev/mcp"}}}`)

	def := registry.ServerDefinition{
		Name:    "my-server",
		Command: registry.StdioCommand{Command: "node", Args: []string{"./bin/my-server.js"}},
	}
	require.NoError(t, PersistServer(path, def))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, []any{"cursor"}, doc["imports"])

	defs, err := Load(path, true, root)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "existing", defs[0].Name)
	assert.Equal(t, "my-server", defs[1].Name)
	assert.Equal(t, registry.StdioCommand{Command: "node", Args: []string{"./bin/my-server.js"}, Cwd: root}, defs[1].Command)
}

func TestPersistServerIntoJSONC(t *testing.T) {
	root, _ := isolate(t)
	path := filepath.Join(root, "config", "mcporter.jsonc")
	writeFile(t, path, `{
  // hand edited
  "mcpServers": { "existing": { "url": "https://e.dev/mcp", }, },
}`)

	def := registry.ServerDefinition{Name: "remote", Command: registry.HTTPCommand{URL: "https://r.dev/mcp"}}
	require.NoError(t, PersistServer(path, def))

	defs, err := Load(path, true, root)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "existing", defs[0].Name)
	assert.Equal(t, "remote", defs[1].Name)
}

func TestPersistServerRejectsNonJSON(t *testing.T) {
	root, _ := isolate(t)
	err := PersistServer(filepath.Join(root, "servers.yaml"), registry.ServerDefinition{Name: "x", Command: registry.HTTPCommand{URL: "https://x.dev"}})
	assert.Error(t, err)
}
