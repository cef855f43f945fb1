// Package dom implements the binding interfaces over an x/net/html tree.
//
// A Document owns one mutex; every element and region method takes it, so
// concurrent requests may render into the same document safely. Selectors
// are matched with cascadia.
package dom

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/payload/internal/binding"
	"github.com/conneroisu/payload/internal/errors"
)

// Document is a parsed, mutable HTML page.
type Document struct {
	mu   sync.Mutex
	root *html.Node

	selMu     sync.RWMutex
	selectors map[string]cascadia.Selector
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	return &Document{root: root, selectors: make(map[string]cascadia.Selector)}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render writes the current document.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return html.Render(w, d.root)
}

// HTML returns the current document as a string.
func (d *Document) HTML() string {
	var buf bytes.Buffer
	_ = d.Render(&buf)

	return buf.String()
}

// Bind returns the application scope rooted at the first element matching
// selector. A selector that matches nothing is a configuration error.
func (d *Document) Bind(selector string) (*Scope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := d.matchAll(d.root, selector, false)
	if len(nodes) == 0 {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidContext,
			"selector \""+selector+"\" not found").WithContext("selector", selector)
	}

	return &Scope{doc: d, node: nodes[0]}, nil
}

// Select returns every element in the document matching selector.
func (d *Document) Select(selector string) []binding.Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.wrap(d.matchAll(d.root, selector, false))
}

func (d *Document) compile(selector string) (cascadia.Selector, bool) {
	d.selMu.RLock()
	sel, ok := d.selectors[selector]
	d.selMu.RUnlock()
	if ok {
		return sel, sel != nil
	}

	sel, err := cascadia.Compile(selector)
	if err != nil {
		sel = nil
	}
	d.selMu.Lock()
	d.selectors[selector] = sel
	d.selMu.Unlock()

	return sel, sel != nil
}

// matchAll must be called with d.mu held. With descendantsOnly the root
// itself is never returned.
func (d *Document) matchAll(root *html.Node, selector string, descendantsOnly bool) []*html.Node {
	sel, ok := d.compile(selector)
	if !ok || root == nil {
		return nil
	}
	nodes := sel.MatchAll(root)
	if descendantsOnly && len(nodes) > 0 && nodes[0] == root {
		nodes = nodes[1:]
	}

	return nodes
}

func (d *Document) wrap(nodes []*html.Node) []binding.Element {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]binding.Element, len(nodes))
	for i, n := range nodes {
		out[i] = &Element{doc: d, node: n}
	}

	return out
}

// Scope is the bound application context.
type Scope struct {
	doc  *Document
	node *html.Node
}

// Document returns the owning document.
func (s *Scope) Document() *Document { return s.doc }

// Region resolves selector against the whole document.
func (s *Scope) Region(selector string) binding.Region {
	return &Region{doc: s.doc, selector: selector}
}

// Find returns elements inside the scope matching selector.
func (s *Scope) Find(selector string) []binding.Element {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	return s.doc.wrap(s.doc.matchAll(s.node, selector, false))
}

func innerHTML(n *html.Node) string {
	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}

	return buf.String()
}

func textContent(n *html.Node) string {
	var text strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)

	return text.String()
}

func parseFragment(markup string, context *html.Node) ([]*html.Node, error) {
	ctxNode := context
	if ctxNode == nil || ctxNode.Type != html.ElementNode {
		ctxNode = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	}

	return html.ParseFragment(strings.NewReader(markup), ctxNode)
}

func removeChildren(n *html.Node) []*html.Node {
	var children []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		children = append(children, c)
		c = next
	}

	return children
}
