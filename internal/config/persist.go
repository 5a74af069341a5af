package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/giantswarm/mcporter/internal/registry"
)

// EntryFromDefinition converts a definition back to its config file form.
func EntryFromDefinition(def registry.ServerDefinition) Entry {
	e := Entry{
		Description:   def.Description,
		Auth:          def.Auth,
		TokenCacheDir: def.TokenCacheDir,
		ClientName:    def.ClientName,
	}
	e.OAuthRedirectURL = def.OAuthRedirectURL
	switch c := def.Command.(type) {
	case registry.HTTPCommand:
		e.URL = c.URL
		e.Headers = c.Headers
	case registry.SSECommand:
		e.URL = c.URL
		e.Headers = c.Headers
		e.Transport = "sse"
	case registry.StdioCommand:
		e.Command = CommandLine{c.Command}
		e.Args = c.Args
		e.Cwd = c.Cwd
		e.Env = c.Env
	}
	return e
}

// PersistServer writes def into the JSON config at path, creating the file if
// needed and keeping every other key intact. The write is atomic.
func PersistServer(path string, def registry.ServerDefinition) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" && ext != ".jsonc" {
		return fmt.Errorf("can only persist servers to JSON config files, got %s", path)
	}

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(strings.TrimSpace(string(data))) > 0 {
			std, err := hujson.Standardize(data)
			if err != nil {
				return fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			if err := json.Unmarshal(std, &doc); err != nil {
				return fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	servers, _ := doc["mcpServers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}
	servers[def.Name] = EntryFromDefinition(def)
	doc["mcpServers"] = servers

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	out = append(out, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mcporter-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace config %s: %w", path, err)
	}
	return nil
}
