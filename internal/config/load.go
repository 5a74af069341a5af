package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/shlex"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/mcporter/internal/registry"
)

// File is the on-disk shape shared by every supported format.
type File struct {
	MCPServers map[string]Entry `json:"mcpServers"`
}

// Entry is one server in a config file.
type Entry struct {
	Description            string            `json:"description,omitempty"`
	URL                    string            `json:"url,omitempty"`
	BaseURL                string            `json:"baseUrl,omitempty"`
	Type                   string            `json:"type,omitempty"`
	Transport              string            `json:"transport,omitempty"`
	Command                CommandLine       `json:"command,omitempty"`
	Args                   []string          `json:"args,omitempty"`
	Cwd                    string            `json:"cwd,omitempty"`
	Env                    map[string]string `json:"env,omitempty"`
	Headers                map[string]string `json:"headers,omitempty"`
	BearerToken            string            `json:"bearerToken,omitempty"`
	BearerTokenEnv         string            `json:"bearerTokenEnv,omitempty"`
	Auth                   string            `json:"auth,omitempty"`
	TokenCacheDir          string            `json:"tokenCacheDir,omitempty"`
	ClientName             string            `json:"clientName,omitempty"`
	OAuthRedirectURL       string            `json:"oauthRedirectUrl,omitempty"`
	OAuthRegistrationToken string            `json:"oauthRegistrationToken,omitempty"`
}

// CommandLine accepts either "cmd arg1 arg2" or ["cmd", "arg1", "arg2"].
type CommandLine []string

func (c *CommandLine) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*c = nil
			return nil
		}
		*c = CommandLine{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("command must be a string or a list of strings")
	}
	*c = list
	return nil
}

func (c CommandLine) MarshalJSON() ([]byte, error) {
	if len(c) == 1 {
		return json.Marshal(c[0])
	}
	return json.Marshal([]string(c))
}

// Load reads the servers in path. A missing file yields no servers unless
// explicit is set. rootDir is the default working directory for stdio
// servers.
func Load(path string, explicit bool, rootDir string) ([]registry.ServerDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	file, err := Parse(path, data)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(file.MCPServers))
	for name := range file.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]registry.ServerDefinition, 0, len(names))
	for _, name := range names {
		def, err := file.MCPServers[name].Definition(name, path, rootDir)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Parse decodes data according to the extension of path. YAML and TOML
// documents are normalized through JSON so every format shares one decoder.
func Parse(path string, data []byte) (*File, error) {
	var generic any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".toml":
		var doc map[string]any
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
		generic = doc
	default:
		if len(bytes.TrimSpace(data)) == 0 {
			return &File{}, nil
		}
		// JSONC: comments and trailing commas.
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		var file File
		if err := json.Unmarshal(std, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		return &file, nil
	}

	if generic == nil {
		return &File{}, nil
	}
	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config %s: %w", path, err)
	}
	var file File
	if err := json.Unmarshal(normalized, &file); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return &file, nil
}

// Definition converts the entry to a server definition.
func (e Entry) Definition(name, configPath, rootDir string) (registry.ServerDefinition, error) {
	def := registry.ServerDefinition{
		Name:              name,
		Description:       e.Description,
		Auth:              strings.ToLower(e.Auth),
		TokenCacheDir:     expandHome(expandEnv(e.TokenCacheDir)),
		ClientName:        e.ClientName,
		OAuthRedirectURL:  expandEnv(e.OAuthRedirectURL),
		RegistrationToken: expandEnv(e.OAuthRegistrationToken),
		Source:            registry.Source{Kind: registry.SourceConfig, Path: configPath},
	}

	endpoint := e.URL
	if endpoint == "" {
		endpoint = e.BaseURL
	}

	switch {
	case endpoint != "":
		headers := expandMap(e.Headers)
		token := expandEnv(e.BearerToken)
		if token == "" && e.BearerTokenEnv != "" {
			token = os.Getenv(e.BearerTokenEnv)
		}
		if token != "" {
			if headers == nil {
				headers = map[string]string{}
			}
			headers["Authorization"] = "Bearer " + token
		}
		endpoint = expandEnv(endpoint)
		if strings.EqualFold(e.Type, "sse") || strings.EqualFold(e.Transport, "sse") {
			def.Command = registry.SSECommand{URL: endpoint, Headers: headers}
		} else {
			def.Command = registry.HTTPCommand{URL: endpoint, Headers: headers}
		}
	case len(e.Command) > 0:
		tokens := slices.Clone([]string(e.Command))
		if len(tokens) == 1 && len(e.Args) == 0 && strings.ContainsAny(tokens[0], " \t") {
			split, err := shlex.Split(tokens[0])
			if err != nil {
				return def, fmt.Errorf("server %q: invalid command: %w", name, err)
			}
			tokens = split
		}
		tokens = append(tokens, e.Args...)
		for i := range tokens {
			tokens[i] = expandEnv(tokens[i])
		}
		def.Command = registry.StdioCommand{
			Command: tokens[0],
			Args:    tokens[1:],
			Cwd:     resolveCwd(expandHome(expandEnv(e.Cwd)), configPath, rootDir),
			Env:     expandMap(e.Env),
		}
	default:
		return def, fmt.Errorf("server %q needs either a url or a command", name)
	}

	if def.IsOAuth() && def.TokenCacheDir == "" {
		def.TokenCacheDir = registry.DefaultTokenCacheDir(name)
	}
	return def, nil
}

func resolveCwd(cwd, configPath, rootDir string) string {
	if cwd == "" {
		return rootDir
	}
	if filepath.IsAbs(cwd) {
		return cwd
	}
	return filepath.Join(filepath.Dir(configPath), cwd)
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}|\$env:([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnv replaces ${VAR}, ${VAR:-fallback} and $env:VAR placeholders.
func expandEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		if groups[3] != "" {
			return os.Getenv(groups[3])
		}
		if v, ok := os.LookupEnv(groups[1]); ok && v != "" {
			return v
		}
		return groups[2]
	})
}

func expandMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = expandEnv(v)
	}
	return out
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
