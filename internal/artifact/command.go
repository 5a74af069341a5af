package artifact

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/giantswarm/mcporter/internal/registry"
)

var safeShellToken = regexp.MustCompile(`^[A-Za-z0-9_./@%-]+$`)

// ShellQuote returns value unchanged when it only holds shell-safe
// characters, otherwise single-quoted with embedded quotes escaped.
func ShellQuote(value string) string {
	if safeShellToken.MatchString(value) {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// BuildCommand reconstructs the generate-cli command line that reproduces
// inv. def supplies the server reference when the invocation lacks one.
// Globals fill in config and root only where the invocation has none.
func BuildCommand(inv Invocation, def registry.ServerDefinition, g Globals) string {
	var tokens []string
	add := func(values ...string) {
		for _, v := range values {
			tokens = append(tokens, ShellQuote(v))
		}
	}

	add("mcporter")
	if configPath := firstNonEmpty(inv.ConfigPath, g.ConfigPath); configPath != "" {
		add("--config", configPath)
	}
	if rootDir := firstNonEmpty(inv.RootDir, g.RootDir); rootDir != "" {
		add("--root", rootDir)
	}
	add("generate-cli")

	serverRef := firstNonEmpty(inv.ServerRef, def.Name)
	if serverRef == "" {
		data, err := json.Marshal(def)
		if err == nil {
			serverRef = string(data)
		}
	}
	add("--server", serverRef)

	if inv.OutputPath != "" {
		add("--output", inv.OutputPath)
	}
	tokens = appendToggle(tokens, "--bundle", inv.Bundle)
	tokens = appendToggle(tokens, "--compile", inv.Compile)
	if inv.Runtime != "" {
		add("--runtime", string(inv.Runtime))
	}
	if inv.TimeoutMs > 0 && inv.TimeoutMs != DefaultTimeoutMs {
		add("--timeout", strconv.Itoa(inv.TimeoutMs))
	}
	if inv.Minify {
		add("--minify")
	}
	return strings.Join(tokens, " ")
}

func appendToggle(tokens []string, flag string, t Toggle) []string {
	switch t.Mode {
	case ToggleOn:
		return append(tokens, flag)
	case TogglePath:
		return append(tokens, flag+"="+ShellQuote(t.Path))
	}
	return tokens
}
