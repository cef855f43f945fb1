package templates

import (
	"context"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizerPolicyOnce sync.Once
	sanitizerPolicy     *bluemonday.Policy
)

// policy keeps user-generated-content markup plus the data and aria
// attributes that bound markup depends on.
func policy() *bluemonday.Policy {
	sanitizerPolicyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowDataAttributes()
		p.AllowAttrs(
			"aria-label", "aria-hidden", "aria-busy", "aria-live",
			"aria-expanded", "aria-controls", "aria-describedby", "role",
		).Globally()
		p.AllowAttrs("id", "class").Globally()
		p.AllowElements("form", "button", "select", "option", "textarea", "small")
		p.AllowAttrs("name", "value", "type", "placeholder", "checked",
			"selected", "disabled", "multiple").OnElements("input", "select",
			"option", "textarea", "button")
		p.AllowAttrs("action", "method").OnElements("form")
		p.AllowElements("input")

		sanitizerPolicy = p
	})

	return sanitizerPolicy
}

// Sanitize strips unsafe markup from rendered output.
func Sanitize(markup string) string {
	if markup == "" {
		return ""
	}

	return policy().Sanitize(markup)
}

type sanitized struct {
	Template
}

// Sanitized wraps t so that its output passes through Sanitize.
func Sanitized(t Template) Template {
	if t == nil {
		return nil
	}
	if _, ok := t.(*sanitized); ok {
		return t
	}

	return &sanitized{Template: t}
}

func (s *sanitized) Render(ctx context.Context, data map[string]any) (string, error) {
	out, err := s.Template.Render(ctx, data)
	if err != nil {
		return "", err
	}

	return Sanitize(out), nil
}
