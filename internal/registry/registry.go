package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownServer is returned when no definition has the requested name.
	ErrUnknownServer = errors.New("unknown MCP server")

	// ErrDuplicateDefinition is returned by Register when a name is already
	// taken and overwrite was not requested.
	ErrDuplicateDefinition = errors.New("duplicate server definition")
)

// Registry maps server names to definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]ServerDefinition
}

// New builds a registry from defs. Duplicate names are an error.
func New(defs ...ServerDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]ServerDefinition, len(defs))}
	for _, def := range defs {
		if err := r.Register(def, false); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register stores def. An existing entry with the same name is replaced
// wholesale only when overwrite is set.
func (r *Registry) Register(def ServerDefinition, overwrite bool) error {
	if def.Name == "" {
		return fmt.Errorf("server definition requires a name")
	}
	if def.Command == nil {
		return fmt.Errorf("server %q has no command", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists && !overwrite {
		return fmt.Errorf("%w: %s", ErrDuplicateDefinition, def.Name)
	}
	r.defs[def.Name] = def.Clone()
	return nil
}

// Resolve returns the definition registered under name.
func (r *Registry) Resolve(name string) (ServerDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return ServerDefinition{}, fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}
	return def.Clone(), nil
}

// ResolveByURL returns the name of the HTTP or SSE definition whose URL is
// exactly rawURL.
func (r *Registry) ResolveByURL(rawURL string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.sortedNamesLocked() {
		if u, ok := CommandURL(r.defs[name].Command); ok && u == rawURL {
			return name, true
		}
	}
	return "", false
}

// Definitions returns copies of every definition, sorted by name.
func (r *Registry) Definitions() []ServerDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.sortedNamesLocked()
	out := make([]ServerDefinition, 0, len(names))
	for _, name := range names {
		out = append(out, r.defs[name].Clone())
	}
	return out
}

func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
