package cache

import (
	"sort"
	"sync"

	"github.com/conneroisu/payload/internal/binding"
)

// ViewKey identifies a template rendered into a region.
type ViewKey struct {
	Selector string
	Template string
}

// ViewEntry holds a detached fragment, or nil while the template is the one
// on screen.
type ViewEntry[T any] struct {
	Fragment binding.Fragment
	OnReplay ReplayFunc[T]
}

// ViewCache stores previously shown fragments per region. For any region at
// most one entry holds a fragment.
type ViewCache[T any] struct {
	mu        sync.Mutex
	entries   map[ViewKey]*ViewEntry[T]
	lastShown map[string]string
}

// NewViewCache creates an empty cache.
func NewViewCache[T any]() *ViewCache[T] {
	return &ViewCache[T]{
		entries:   make(map[ViewKey]*ViewEntry[T]),
		lastShown: make(map[string]string),
	}
}

// LastShown returns the template most recently rendered into selector.
func (c *ViewCache[T]) LastShown(selector string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.lastShown[selector]
	return t, ok
}

// Get returns a copy of the entry for key.
func (c *ViewCache[T]) Get(key ViewKey) (ViewEntry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return ViewEntry[T]{}, false
	}

	return *e, true
}

// Record notes that template now occupies the region without caching it.
func (c *ViewCache[T]) Record(selector, template string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastShown[selector] = template
}

// Stash prepares region for a cached render of template: the content on
// screen is detached into the entry of the template that produced it, and
// an empty entry for template is created.
func (c *ViewCache[T]) Stash(region binding.Region, template string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sel := region.Selector()
	if last, ok := c.lastShown[sel]; ok && last != template {
		if _, cached := c.entries[ViewKey{sel, last}]; cached {
			c.store(sel, last, region.Detach())
		}
	}

	key := ViewKey{sel, template}
	if e, ok := c.entries[key]; ok {
		e.Fragment = nil
	} else {
		c.entries[key] = &ViewEntry[T]{}
	}
	c.lastShown[sel] = template
}

// Restore swaps the stored fragment of template back into region. It
// reports false, leaving the region and the entry untouched, when no
// fragment is stored or the region is not in the document.
func (c *ViewCache[T]) Restore(region binding.Region, template string) (ViewEntry[T], bool) {
	if !region.Exists() {
		return ViewEntry[T]{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sel := region.Selector()
	entry, ok := c.entries[ViewKey{sel, template}]
	if !ok || entry.Fragment == nil {
		return ViewEntry[T]{}, false
	}

	frag := entry.Fragment
	entry.Fragment = nil

	if last, ok := c.lastShown[sel]; ok && last != template {
		if _, cached := c.entries[ViewKey{sel, last}]; cached {
			c.store(sel, last, region.Detach())
		}
	}
	region.Attach(frag)
	c.lastShown[sel] = template

	return *entry, true
}

// store must be called with c.mu held.
func (c *ViewCache[T]) store(sel, template string, frag binding.Fragment) {
	for k, e := range c.entries {
		if k.Selector == sel {
			e.Fragment = nil
		}
	}
	key := ViewKey{sel, template}
	e, ok := c.entries[key]
	if !ok {
		e = &ViewEntry[T]{}
		c.entries[key] = e
	}
	e.Fragment = frag
}

// SetReplay attaches the replay callback of an existing entry.
func (c *ViewCache[T]) SetReplay(key ViewKey, fn ReplayFunc[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.OnReplay = fn

	return true
}

// Delete removes one entry.
func (c *ViewCache[T]) Delete(key ViewKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	if c.lastShown[key.Selector] == key.Template {
		delete(c.lastShown, key.Selector)
	}

	return ok
}

// DeleteSelector removes every entry of a region and its history.
func (c *ViewCache[T]) DeleteSelector(selector string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if k.Selector == selector {
			delete(c.entries, k)
			n++
		}
	}
	delete(c.lastShown, selector)

	return n
}

// Clear removes every entry and the region history.
func (c *ViewCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[ViewKey]*ViewEntry[T])
	c.lastShown = make(map[string]string)
}

// Len returns the number of entries.
func (c *ViewCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Keys returns the entry keys ordered by selector then template.
func (c *ViewCache[T]) Keys() []ViewKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]ViewKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Selector != keys[j].Selector {
			return keys[i].Selector < keys[j].Selector
		}
		return keys[i].Template < keys[j].Template
	})

	return keys
}

// Stored counts the entries of selector holding a fragment.
func (c *ViewCache[T]) Stored(selector string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if k.Selector == selector && e.Fragment != nil {
			n++
		}
	}

	return n
}
