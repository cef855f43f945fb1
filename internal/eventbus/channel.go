// Package eventbus implements the synchronous, namespaced publish/subscribe
// channels a driver uses for lifecycle hooks and application events.
//
// Event names follow the "type.ns1.ns2" form. Publishing "type" reaches every
// subscriber of type; publishing "type.ns" reaches only subscribers whose
// namespaces include ns. Unsubscribing ".ns" removes every subscription
// carrying ns regardless of type.
package eventbus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Handler receives a published payload. name is the name as published.
type Handler[T any] func(ctx context.Context, name string, payload T)

// PanicHandler is told about a recovered subscriber panic.
type PanicHandler func(name string, recovered any)

// Option configures a Channel.
type Option func(*options)

type options struct {
	defaultNamespace string
	onPanic          PanicHandler
}

// WithDefaultNamespace tags subscriptions made without a namespace.
func WithDefaultNamespace(ns string) Option {
	return func(o *options) { o.defaultNamespace = ns }
}

// WithPanicHandler recovers subscriber panics and reports them to fn. Without
// it a panicking subscriber propagates to the publisher.
func WithPanicHandler(fn PanicHandler) Option {
	return func(o *options) { o.onPanic = fn }
}

// SubscriptionID identifies one subscription.
type SubscriptionID uint64

type subscription[T any] struct {
	id         SubscriptionID
	typ        string
	namespaces []string
	fn         Handler[T]
}

// Channel is one independent event channel.
type Channel[T any] struct {
	mu     sync.RWMutex
	subs   []*subscription[T]
	nextID SubscriptionID
	opts   options
}

// New creates a channel.
func New[T any](opts ...Option) *Channel[T] {
	c := &Channel[T]{}
	for _, opt := range opts {
		opt(&c.opts)
	}

	return c
}

// Name is a parsed event name.
type Name struct {
	Type       string
	Namespaces []string
}

// ParseName splits "type.ns1.ns2". Namespaces are sorted and deduplicated.
func ParseName(s string) Name {
	parts := strings.Split(strings.TrimSpace(s), ".")
	n := Name{Type: parts[0]}
	seen := make(map[string]bool, len(parts))
	for _, ns := range parts[1:] {
		if ns == "" || seen[ns] {
			continue
		}
		seen[ns] = true
		n.Namespaces = append(n.Namespaces, ns)
	}
	sort.Strings(n.Namespaces)

	return n
}

func (n Name) hasAll(of []string) bool {
	for _, want := range of {
		found := false
		for _, have := range n.Namespaces {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// Subscribe registers fn for every space-separated event in events. Either
// every name is subscribed or, on error, none is.
func (c *Channel[T]) Subscribe(events string, fn Handler[T]) ([]SubscriptionID, error) {
	if fn == nil {
		return nil, fmt.Errorf("eventbus: nil handler for %q", events)
	}
	names := strings.Fields(events)
	if len(names) == 0 {
		return nil, fmt.Errorf("eventbus: no event name given")
	}

	parsed := make([]Name, 0, len(names))
	for _, raw := range names {
		name := ParseName(raw)
		if name.Type == "" {
			return nil, fmt.Errorf("eventbus: event %q has no type", raw)
		}
		if len(name.Namespaces) == 0 && c.opts.defaultNamespace != "" {
			name.Namespaces = []string{c.opts.defaultNamespace}
		}
		parsed = append(parsed, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]SubscriptionID, 0, len(parsed))
	for _, name := range parsed {
		c.nextID++
		c.subs = append(c.subs, &subscription[T]{
			id:         c.nextID,
			typ:        name.Type,
			namespaces: name.Namespaces,
			fn:         fn,
		})
		ids = append(ids, c.nextID)
	}

	return ids, nil
}

// Unsubscribe removes subscriptions matching every space-separated name and
// returns how many were removed. "type" removes all of type, "type.ns" only
// those in ns, ".ns" every subscription in ns.
func (c *Channel[T]) Unsubscribe(events string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, raw := range strings.Fields(events) {
		name := ParseName(raw)
		kept := c.subs[:0]
		for _, s := range c.subs {
			if matches(s, name) {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		for i := len(kept); i < len(c.subs); i++ {
			c.subs[i] = nil
		}
		c.subs = kept
	}

	return removed
}

// Cancel removes subscriptions by id.
func (c *Channel[T]) Cancel(ids ...SubscriptionID) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[SubscriptionID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := make([]*subscription[T], 0, len(c.subs))
	for _, s := range c.subs {
		if !drop[s.id] {
			kept = append(kept, s)
		}
	}
	c.subs = kept
}

func matches[T any](s *subscription[T], name Name) bool {
	if name.Type != "" && s.typ != name.Type {
		return false
	}
	if name.Type == "" && len(name.Namespaces) == 0 {
		return false
	}

	return Name{Namespaces: s.namespaces}.hasAll(name.Namespaces)
}

// Publish runs every matching subscriber, in subscription order, before
// returning. Subscribers may subscribe or unsubscribe while running; the
// set of receivers is fixed when Publish starts.
func (c *Channel[T]) Publish(ctx context.Context, event string, payload T) int {
	name := ParseName(event)
	if name.Type == "" {
		return 0
	}

	c.mu.RLock()
	targets := make([]*subscription[T], 0, len(c.subs))
	for _, s := range c.subs {
		if matches(s, name) {
			targets = append(targets, s)
		}
	}
	c.mu.RUnlock()

	for _, s := range targets {
		c.invoke(ctx, s, event, payload)
	}

	return len(targets)
}

func (c *Channel[T]) invoke(ctx context.Context, s *subscription[T], event string, payload T) {
	if c.opts.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				c.opts.onPanic(event, r)
			}
		}()
	}
	s.fn(ctx, event, payload)
}

// Count returns the number of subscriptions matching event, or every
// subscription when event is empty.
func (c *Channel[T]) Count(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if strings.TrimSpace(event) == "" {
		return len(c.subs)
	}
	name := ParseName(event)
	n := 0
	for _, s := range c.subs {
		if matches(s, name) {
			n++
		}
	}

	return n
}
