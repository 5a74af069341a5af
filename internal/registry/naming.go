package registry

import (
	"net/url"
	"path"
	"strings"
)

var genericHostLabels = map[string]bool{
	"www":       true,
	"api":       true,
	"mcp":       true,
	"service":   true,
	"services":  true,
	"app":       true,
	"localhost": true,
}

var knownTLDs = map[string]bool{
	"com":   true,
	"net":   true,
	"org":   true,
	"io":    true,
	"ai":    true,
	"app":   true,
	"dev":   true,
	"co":    true,
	"cloud": true,
}

var runtimeExecutables = map[string]bool{
	"node":    true,
	"nodejs":  true,
	"bun":     true,
	"bunx":    true,
	"deno":    true,
	"npx":     true,
	"pnpm":    true,
	"pnpx":    true,
	"yarn":    true,
	"python":  true,
	"python3": true,
	"uv":      true,
	"uvx":     true,
	"pipx":    true,
	"go":      true,
	"run":     true,
	"dlx":     true,
	"exec":    true,
}

var scriptExtensions = []string{".js", ".mjs", ".cjs", ".ts", ".mts", ".py", ".sh", ".rb", ".exe"}

// InferNameFromURL derives a server name from an endpoint URL: the last host
// label that is neither generic (api, www, mcp, ...) nor a known TLD, or else
// the first non-empty path segment.
func InferNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	labels := strings.Split(strings.ToLower(u.Hostname()), ".")
	var candidates []string
	for _, label := range labels {
		if label == "" || genericHostLabels[label] || knownTLDs[label] || isNumeric(label) {
			continue
		}
		candidates = append(candidates, label)
	}
	if len(candidates) > 0 {
		return Slugify(candidates[len(candidates)-1])
	}
	for _, segment := range strings.Split(u.Path, "/") {
		if segment != "" {
			return Slugify(segment)
		}
	}
	return ""
}

// InferNameFromCommand derives a server name from a stdio command line,
// skipping runtimes such as node or npx and any flags, then taking the final
// path segment of the first remaining token without version or extension.
func InferNameFromCommand(tokens []string) string {
	for _, token := range tokens {
		if token == "" || strings.HasPrefix(token, "-") {
			continue
		}
		base := path.Base(strings.ReplaceAll(token, "\\", "/"))
		if runtimeExecutables[strings.ToLower(strings.TrimSuffix(base, ".exe"))] {
			continue
		}
		if i := strings.LastIndex(base, "@"); i > 0 {
			base = base[:i]
		}
		base = strings.TrimPrefix(base, "@")
		for _, ext := range scriptExtensions {
			if strings.HasSuffix(strings.ToLower(base), ext) {
				base = base[:len(base)-len(ext)]
				break
			}
		}
		if name := Slugify(base); name != "" {
			return name
		}
	}
	return ""
}

// Slugify lowercases s and collapses runs of characters outside [a-z0-9_]
// into single dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
