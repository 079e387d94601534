package plugin

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Registry holds plugins in registration order. Build it once at start-up
// and treat it as read-only afterwards.
type Registry struct {
	order  []Plugin
	byLang map[string]Plugin
}

// NewRegistry registers plugins in the given order.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{byLang: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends p. Registering a language twice is an error.
func (r *Registry) Register(p Plugin) error {
	if r.byLang == nil {
		r.byLang = make(map[string]Plugin)
	}
	lang := p.Descriptor().Language
	if lang == "" {
		return fmt.Errorf("plugin has empty language")
	}
	if _, ok := r.byLang[lang]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateLanguage, lang)
	}
	r.byLang[lang] = p
	r.order = append(r.order, p)
	return nil
}

// Get returns the plugin registered for lang.
func (r *Registry) Get(lang string) (Plugin, bool) {
	p, ok := r.byLang[lang]
	return p, ok
}

// Plugins returns the plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	out := make([]Plugin, len(r.order))
	copy(out, r.order)
	return out
}

// Languages returns the registered languages in registration order.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, p.Descriptor().Language)
	}
	return out
}

// Classify returns the language owning path's extension.
//
// Precedence: the longest matching extension wins, so ".d.ts" beats ".ts"
// regardless of registration order. Among equally long matches the plugin
// registered first wins.
func (r *Registry) Classify(path string) (string, bool) {
	name := strings.ToLower(filepath.Base(path))
	best, bestLen := "", 0
	for _, p := range r.order {
		d := p.Descriptor()
		for _, ext := range d.Extensions {
			ext = strings.ToLower(ext)
			// A bare ".py" is a dotfile, not a Python file.
			if len(ext) <= bestLen || len(ext) >= len(name) {
				continue
			}
			if strings.HasSuffix(name, ext) {
				best, bestLen = d.Language, len(ext)
			}
		}
	}
	return best, bestLen > 0
}
