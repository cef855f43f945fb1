package templates

import (
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/payload/internal/errors"
)

// Kind separates the template and partial namespaces.
type Kind string

const (
	KindTemplate Kind = "template"
	KindPartial  Kind = "partial"
)

// Registry maps names to templates and partials.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
	partials  map[string]Template
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]Template),
		partials:  make(map[string]Template),
	}
}

func (r *Registry) table(kind Kind) map[string]Template {
	if kind == KindPartial {
		return r.partials
	}

	return r.templates
}

func (r *Registry) add(kind Kind, name string, t Template, replace bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.NewConfigurationError(errors.ErrCodeInvalidTemplate,
			string(kind)+" name cannot be empty")
	}
	if t == nil {
		return errors.NewConfigurationError(errors.ErrCodeInvalidTemplate,
			string(kind)+" "+name+" is nil").WithContext("name", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.table(kind)
	if _, exists := table[name]; exists && !replace {
		return errors.NewConfigurationError(errors.ErrCodeDuplicateTemplate,
			string(kind)+" "+name+" is already registered").WithContext("name", name)
	}
	table[name] = t

	return nil
}

// AddTemplate registers a template under name.
func (r *Registry) AddTemplate(name string, t Template) error {
	return r.add(KindTemplate, name, t, false)
}

// AddPartial registers a partial under name.
func (r *Registry) AddPartial(name string, t Template) error {
	return r.add(KindPartial, name, t, false)
}

// Replace registers or swaps an entry; used by hot reload.
func (r *Registry) Replace(kind Kind, name string, t Template) error {
	return r.add(kind, name, t, true)
}

// Remove deletes an entry.
func (r *Registry) Remove(kind Kind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.table(kind), name)
}

// Template looks up a template.
func (r *Registry) Template(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[name]
	return t, ok
}

// Partial looks up a partial.
func (r *Registry) Partial(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.partials[name]
	return t, ok
}

// Names returns the sorted names registered under kind.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table := r.table(kind)
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
