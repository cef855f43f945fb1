package dom

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/payload/internal/binding"
)

// Element wraps an element node of a Document.
type Element struct {
	doc  *Document
	node *html.Node
}

// Node exposes the underlying node. Callers must not mutate it concurrently
// with driver activity.
func (e *Element) Node() *html.Node { return e.node }

// Tag returns the lower-case tag name.
func (e *Element) Tag() string {
	return e.node.Data
}

// Attr returns an attribute value.
func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	return getAttr(e.node, name)
}

// Dataset returns data-* attributes keyed by their camel-cased suffix.
func (e *Element) Dataset() map[string]string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	out := make(map[string]string)
	for _, a := range e.node.Attr {
		if !strings.HasPrefix(a.Key, "data-") || len(a.Key) == len("data-") {
			continue
		}
		out[camelCase(a.Key[len("data-"):])] = a.Val
	}

	return out
}

// Disabled reports a disabled attribute or class.
func (e *Element) Disabled() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	if _, ok := getAttr(e.node, "disabled"); ok {
		return true
	}

	return hasClass(e.node, "disabled")
}

// Find returns matching descendants.
func (e *Element) Find(selector string) []binding.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	return e.doc.wrap(e.doc.matchAll(e.node, selector, true))
}

// SetHidden toggles an inline display:none.
func (e *Element) SetHidden(hidden bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	style, _ := getAttr(e.node, "style")
	var decls []string
	for _, d := range strings.Split(style, ";") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if prop, _, ok := strings.Cut(d, ":"); ok && strings.TrimSpace(strings.ToLower(prop)) == "display" {
			continue
		}
		decls = append(decls, d)
	}
	if hidden {
		decls = append(decls, "display: none")
	}
	if len(decls) == 0 {
		removeAttr(e.node, "style")
		return
	}
	setAttr(e.node, "style", strings.Join(decls, "; "))
}

// FormFields serializes successful controls.
func (e *Element) FormFields() []binding.Field {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	switch e.node.Data {
	case "form":
		var fields []binding.Field
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode {
					continue
				}
				if isControl(c) {
					fields = append(fields, controlFields(c)...)
					continue
				}
				walk(c)
			}
		}
		walk(e.node)
		return fields
	case "input", "select", "textarea":
		return controlFields(e.node)
	default:
		return nil
	}
}

func isControl(n *html.Node) bool {
	switch n.Data {
	case "input", "select", "textarea":
		return true
	}

	return false
}

// controlFields applies the successful-controls rules to one control.
func controlFields(n *html.Node) []binding.Field {
	name, ok := getAttr(n, "name")
	if !ok || name == "" {
		return nil
	}
	if _, disabled := getAttr(n, "disabled"); disabled {
		return nil
	}

	switch n.Data {
	case "input":
		typ, _ := getAttr(n, "type")
		switch strings.ToLower(typ) {
		case "submit", "button", "reset", "image", "file":
			return nil
		case "checkbox", "radio":
			if _, checked := getAttr(n, "checked"); !checked {
				return nil
			}
			v, ok := getAttr(n, "value")
			if !ok {
				v = "on"
			}
			return []binding.Field{{Name: name, Value: v}}
		}
		v, _ := getAttr(n, "value")
		return []binding.Field{{Name: name, Value: v}}
	case "textarea":
		return []binding.Field{{Name: name, Value: textContent(n)}}
	case "select":
		_, multiple := getAttr(n, "multiple")
		var options []*html.Node
		var collect func(*html.Node)
		collect = func(p *html.Node) {
			for c := p.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.Data == "option" {
					options = append(options, c)
				} else if c.Type == html.ElementNode && c.Data == "optgroup" {
					collect(c)
				}
			}
		}
		collect(n)

		var fields []binding.Field
		for _, o := range options {
			if _, sel := getAttr(o, "selected"); sel {
				fields = append(fields, binding.Field{Name: name, Value: optionValue(o)})
				if !multiple {
					break
				}
			}
		}
		if len(fields) == 0 && !multiple && len(options) > 0 {
			fields = append(fields, binding.Field{Name: name, Value: optionValue(options[0])})
		}
		return fields
	}

	return nil
}

func optionValue(o *html.Node) string {
	if v, ok := getAttr(o, "value"); ok {
		return v
	}

	return strings.TrimSpace(textContent(o))
}

func getAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}

	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}

func hasClass(n *html.Node, class string) bool {
	v, ok := getAttr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}

	return false
}

// camelCase converts "cache-response" to "cacheResponse".
func camelCase(s string) string {
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '-' {
			upper = true
			continue
		}
		if upper && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		upper = false
		b.WriteRune(r)
	}

	return b.String()
}
