// Package config locates and loads mcporter configuration files.
package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath overrides config discovery when --config is not given.
const EnvConfigPath = "MCPORTER_CONFIG"

const configFileName = "mcporter.json"

// Resolved is the config file chosen for this invocation.
type Resolved struct {
	Path string
	// Explicit is true when the path came from --config or MCPORTER_CONFIG.
	// A missing explicit file is an error; a missing implicit one is not.
	Explicit bool
}

// ResolvePath picks the config file using, in order: the explicit argument,
// MCPORTER_CONFIG, <root>/config/mcporter.json(c) and
// ~/.mcporter/mcporter.json(c). The first existing candidate wins. When none
// exists the project path is returned with Explicit unset.
func ResolvePath(explicit, rootDir string) Resolved {
	if explicit != "" {
		return Resolved{Path: explicit, Explicit: true}
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return Resolved{Path: env, Explicit: true}
	}

	if rootDir == "" {
		rootDir, _ = os.Getwd()
	}
	project := filepath.Join(rootDir, "config", configFileName)

	candidates := []string{project, project + "c"}
	if home, err := os.UserHomeDir(); err == nil {
		homeConfig := filepath.Join(home, ".mcporter", configFileName)
		candidates = append(candidates, homeConfig, homeConfig+"c")
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return Resolved{Path: candidate}
		}
	}
	return Resolved{Path: project}
}
