// Package templates holds the named templates and partials a page binds to
// with data-template and data-partial. Names are validated when registered so
// that an unknown name is reported when a binding is resolved, not when the
// response arrives.
package templates

import (
	"bytes"
	"context"

	"github.com/a-h/templ"
)

// Template renders markup from template data.
type Template interface {
	Name() string
	Render(ctx context.Context, data map[string]any) (string, error)
}

// RenderFunc is the signature of a plain Go template.
type RenderFunc func(ctx context.Context, data map[string]any) (string, error)

type funcTemplate struct {
	name string
	fn   RenderFunc
}

// Func adapts a Go function to Template.
func Func(name string, fn RenderFunc) Template {
	if fn == nil {
		return nil
	}

	return &funcTemplate{name: name, fn: fn}
}

func (f *funcTemplate) Name() string { return f.name }

func (f *funcTemplate) Render(ctx context.Context, data map[string]any) (string, error) {
	return f.fn(ctx, data)
}

// ComponentFunc builds a templ component from template data.
type ComponentFunc func(data map[string]any) templ.Component

type templTemplate struct {
	name string
	fn   ComponentFunc
}

// Templ adapts a compiled templ component constructor to Template.
func Templ(name string, fn ComponentFunc) Template {
	if fn == nil {
		return nil
	}

	return &templTemplate{name: name, fn: fn}
}

func (t *templTemplate) Name() string { return t.name }

func (t *templTemplate) Render(ctx context.Context, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.fn(data).Render(ctx, &buf); err != nil {
		return "", err
	}

	return buf.String(), nil
}
