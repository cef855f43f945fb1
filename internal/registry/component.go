// Package registry owns the named components of a driver. Registering a
// component wires its lifecycle handlers onto the internal channel under a
// namespace equal to its name; unregistering removes them in one step.
package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/payload/internal/errors"
	"github.com/conneroisu/payload/internal/eventbus"
	"github.com/conneroisu/payload/internal/lifecycle"
)

// Component is a registered handler set.
type Component struct {
	Name     string
	Handlers *lifecycle.Handlers
	// Kinds lists the lifecycle kinds the component subscribed to.
	Kinds        []lifecycle.Kind
	RegisteredAt time.Time
}

// ComponentEvent represents a change in the component registry
type ComponentEvent struct {
	Type      EventType
	Component *Component
	Timestamp time.Time
}

// EventType represents the type of component event
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeRemoved
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeAdded:
		return "added"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ComponentRegistry manages the components of one driver
type ComponentRegistry struct {
	components map[string]*Component
	channel    *eventbus.Channel[lifecycle.Event]
	mutex      sync.RWMutex
	watchers   []chan ComponentEvent
}

// NewComponentRegistry creates a registry wiring onto channel.
func NewComponentRegistry(channel *eventbus.Channel[lifecycle.Event]) *ComponentRegistry {
	return &ComponentRegistry{
		components: make(map[string]*Component),
		channel:    channel,
	}
}

// Register adds a component and publishes "init.<name>".
func (r *ComponentRegistry) Register(ctx context.Context, name string, handlers *lifecycle.Handlers) (*Component, error) {
	if name == "" || strings.ContainsAny(name, ". \t\n") {
		return nil, errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
			"component name must be non-empty and contain no dots or spaces").WithContext("component", name)
	}
	if handlers == nil {
		return nil, errors.NewMissingHandlersError(name)
	}

	r.mutex.Lock()
	if _, exists := r.components[name]; exists {
		r.mutex.Unlock()
		return nil, errors.NewDuplicateComponentError(name)
	}

	component := &Component{Name: name, Handlers: handlers, RegisteredAt: time.Now()}
	for _, kind := range lifecycle.Kinds() {
		if !handlers.Has(kind) {
			continue
		}
		_, err := r.channel.Subscribe(string(kind)+"."+name, func(ctx context.Context, _ string, ev lifecycle.Event) {
			handlers.Dispatch(ctx, ev)
		})
		if err != nil {
			r.channel.Unsubscribe("." + name)
			r.mutex.Unlock()
			return nil, err
		}
		component.Kinds = append(component.Kinds, kind)
	}
	r.components[name] = component
	r.notify(EventTypeAdded, component)
	r.mutex.Unlock()

	r.channel.Publish(ctx, string(lifecycle.KindInit)+"."+name, lifecycle.InitEvent{Component: name})

	return component, nil
}

// Unregister removes every subscription of the component's namespace and
// the entry itself.
func (r *ComponentRegistry) Unregister(name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	component, exists := r.components[name]
	if !exists {
		return errors.NewUnknownComponentError(name)
	}

	r.channel.Unsubscribe("." + name)
	delete(r.components, name)
	r.notify(EventTypeRemoved, component)

	return nil
}

// notify must be called with r.mutex held.
func (r *ComponentRegistry) notify(typ EventType, component *Component) {
	event := ComponentEvent{
		Type:      typ,
		Component: component,
		Timestamp: time.Now(),
	}

	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

// Get retrieves a component by name
func (r *ComponentRegistry) Get(name string) (*Component, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	component, exists := r.components[name]
	return component, exists
}

// GetAll returns all registered components
func (r *ComponentRegistry) GetAll() map[string]*Component {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make(map[string]*Component, len(r.components))
	for name, component := range r.components {
		result[name] = component
	}
	return result
}

// Watch returns a channel that receives component events
func (r *ComponentRegistry) Watch() <-chan ComponentEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan ComponentEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *ComponentRegistry) UnWatch(ch <-chan ComponentEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered components
func (r *ComponentRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.components)
}
