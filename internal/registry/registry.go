// Package registry provides a named registry of field dictionaries, so a
// decoder can be pointed at an ISO 8583 version by name.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"iso8583_parser/internal/dictionary"
)

// DefaultName is the dictionary used when none is configured.
const DefaultName = "iso87"

// Entry is a registered dictionary with a short description.
type Entry struct {
	Name        string
	Description string
	Dictionary  *dictionary.Static
}

// Registry holds dictionaries keyed by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	aliases map[string]string
}

// New creates a new Registry instance.
func New() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		aliases: make(map[string]string),
	}
}

// Global default registry.
var defaultRegistry = New()

// Default returns the global registry instance.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a dictionary to the default registry.
// Called during init() in each dictionary package.
func Register(e Entry) {
	defaultRegistry.Register(e)
}

// Alias adds an alternative name to the default registry.
func Alias(alias, name string) {
	defaultRegistry.Alias(alias, name)
}

// Register adds a dictionary to the registry, replacing any previous entry
// with the same name.
func (r *Registry) Register(e Entry) {
	if e.Name == "" || e.Dictionary == nil {
		panic("registry: dictionary entry requires a name and a dictionary")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Name] = e
}

// Alias makes alias resolve to the dictionary registered as name.
func (r *Registry) Alias(alias, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = name
}

// Get returns the dictionary registered under name or one of its aliases.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[name]; ok {
		name = target
	}
	e, ok := r.entries[name]
	return e, ok
}

// Names returns all registered dictionary names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered dictionaries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Resolve returns a registered dictionary by name, or loads one from disk
// when ref names an existing file. An empty ref resolves to DefaultName.
func (r *Registry) Resolve(ref string) (*dictionary.Static, error) {
	if ref == "" {
		ref = DefaultName
	}
	if e, ok := r.Get(ref); ok {
		return e.Dictionary, nil
	}
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return dictionary.Load(ref)
	}
	return nil, fmt.Errorf("unknown dictionary %q (registered: %v)", ref, r.Names())
}
