package dom

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/payload/internal/binding"
)

// Region is a target resolved lazily from a selector; operations apply to
// the first matching element.
type Region struct {
	doc      *Document
	selector string
}

// NewRegion returns a region of d.
func (d *Document) NewRegion(selector string) *Region {
	return &Region{doc: d, selector: selector}
}

// Selector returns the selector the region was built from.
func (r *Region) Selector() string { return r.selector }

func (r *Region) node() *html.Node {
	nodes := r.doc.matchAll(r.doc.root, r.selector, false)
	if len(nodes) == 0 {
		return nil
	}

	return nodes[0]
}

// Exists reports whether the selector matches.
func (r *Region) Exists() bool {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	return r.node() != nil
}

// HTML returns the region's inner markup.
func (r *Region) HTML() string {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	n := r.node()
	if n == nil {
		return ""
	}

	return innerHTML(n)
}

// SetHTML replaces the region's content.
func (r *Region) SetHTML(markup string) error {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	n := r.node()
	if n == nil {
		return nil
	}
	nodes, err := parseFragment(markup, n)
	if err != nil {
		return err
	}
	removeChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}

	return nil
}

// PrependHTML inserts markup before the current content.
func (r *Region) PrependHTML(markup string, attrs ...binding.Attribute) error {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	n := r.node()
	if n == nil {
		return nil
	}
	nodes, err := parseFragment(markup, n)
	if err != nil {
		return err
	}
	first := n.FirstChild
	for _, c := range nodes {
		if c.Type == html.ElementNode {
			for _, a := range attrs {
				setAttr(c, a.Name, a.Value)
			}
		}
		n.InsertBefore(c, first)
	}

	return nil
}

type fragment struct {
	nodes []*html.Node
}

func (f *fragment) HTML() string {
	var buf strings.Builder
	for _, n := range f.nodes {
		_ = html.Render(&buf, n)
	}

	return buf.String()
}

// Detach removes the current content and returns it.
func (r *Region) Detach() binding.Fragment {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	n := r.node()
	if n == nil {
		return &fragment{}
	}

	return &fragment{nodes: removeChildren(n)}
}

// Attach replaces the current content with f. Fragments from another
// implementation are re-parsed from their markup.
func (r *Region) Attach(f binding.Fragment) {
	if f == nil {
		return
	}
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	n := r.node()
	if n == nil {
		return
	}
	var nodes []*html.Node
	if frag, ok := f.(*fragment); ok {
		nodes = frag.nodes
		frag.nodes = nil
	} else {
		parsed, err := parseFragment(f.HTML(), n)
		if err != nil {
			return
		}
		nodes = parsed
	}
	removeChildren(n)
	for _, c := range nodes {
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		n.AppendChild(c)
	}
}

// SetAttr sets an attribute on the region element.
func (r *Region) SetAttr(name, value string) {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	if n := r.node(); n != nil {
		setAttr(n, name, value)
	}
}

// RemoveAttr removes an attribute from the region element.
func (r *Region) RemoveAttr(name string) {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	if n := r.node(); n != nil {
		removeAttr(n, name)
	}
}

// Find returns descendants of the region matching selector.
func (r *Region) Find(selector string) []binding.Element {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	n := r.node()
	if n == nil {
		return nil
	}

	return r.doc.wrap(r.doc.matchAll(n, selector, true))
}
