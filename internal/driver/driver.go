// Package driver binds declarative markup to network requests, renders the
// responses into target regions and memoizes both the responses and the
// rendered views. One Driver serves one mounted document.
package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/payload/internal/appdata"
	"github.com/conneroisu/payload/internal/binding"
	"github.com/conneroisu/payload/internal/cache"
	"github.com/conneroisu/payload/internal/descriptor"
	"github.com/conneroisu/payload/internal/dom"
	"github.com/conneroisu/payload/internal/errors"
	"github.com/conneroisu/payload/internal/eventbus"
	"github.com/conneroisu/payload/internal/lifecycle"
	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/registry"
	"github.com/conneroisu/payload/internal/storage"
	"github.com/conneroisu/payload/internal/templates"
	"github.com/conneroisu/payload/internal/transport"
)

// Cache types accepted by ClearCache.
const (
	CacheAll      = ""
	CacheResponse = "response"
	CacheView     = "view"
)

// Driver is the request/render/cache engine of one document.
type Driver struct {
	opts      Options
	logger    logging.Logger
	resolver  *descriptor.Resolver
	templates *templates.Registry
	transport transport.Transport
	store     *storage.Scoped

	internal   *eventbus.Channel[lifecycle.Event]
	user       *eventbus.Channel[any]
	components *registry.ComponentRegistry

	responses *cache.ResponseCache[*lifecycle.Exchange]
	views     *cache.ViewCache[*lifecycle.Exchange]
	app       *appdata.Data
	flight    singleflight.Group

	mu        sync.RWMutex
	scope     binding.Context
	delivered bool

	selectors selectors
}

type selectors struct {
	prefix   string
	autoLoad string
	loading  string
}

func newSelectors(prefix string) selectors {
	return selectors{
		prefix:   prefix,
		autoLoad: "[" + prefix + `auto-load="true"]`,
		loading:  "[" + prefix + `role="loading"]`,
	}
}

// New creates a driver. Nothing is bound until Deliver.
func New(opts Options) (*Driver, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	logger := opts.Logger
	if logger == nil {
		cfg := logging.DefaultConfig()
		if opts.Debug {
			cfg.Level = logging.LevelDebug
		}
		logger = logging.NewLogger(cfg)
	}
	logger = logger.WithComponent("driver")

	d := &Driver{
		opts:      opts,
		logger:    logger,
		templates: opts.Templates,
		transport: opts.Transport,
		responses: cache.NewResponseCache[*lifecycle.Exchange](),
		views:     cache.NewViewCache[*lifecycle.Exchange](),
		app:       appdata.New(opts.AppData),
	}
	if d.templates == nil {
		d.templates = templates.NewRegistry()
	}
	if d.transport == nil {
		t, err := transport.NewHTTP(transport.Options{})
		if err != nil {
			return nil, err
		}
		d.transport = t
	}
	backend := opts.Store
	if backend == nil {
		backend = storage.NewMemory()
	}
	d.store = storage.Safe(backend, logger)

	onPanic := func(name string, recovered any) {
		d.logger.Error(context.Background(), fmt.Errorf("%v", recovered), "subscriber panicked", "event", name)
	}
	d.internal = eventbus.New[lifecycle.Event](eventbus.WithPanicHandler(onPanic))
	d.user = eventbus.New[any](eventbus.WithDefaultNamespace(UserNamespace), eventbus.WithPanicHandler(onPanic))
	d.components = registry.NewComponentRegistry(d.internal)

	d.resolver = &descriptor.Resolver{
		Namespace:      opts.Namespace,
		Templates:      d.templates,
		DefaultTimeout: opts.Timeout,
		LoadingDefault: opts.LoadingDefault,
		AccessToken:    opts.AccessToken,
	}
	d.selectors = newSelectors(d.resolver.Prefix())

	return d, nil
}

// Deliver binds the driver to scope. The first successful delivery also
// adds the configured subscribers and loads persisted app data; later ones
// only rebind, so a reloaded page keeps the driver's state.
func (d *Driver) Deliver(ctx context.Context, scope binding.Context) error {
	if scope == nil {
		return errors.NewConfigurationError(errors.ErrCodeInvalidContext, "no context to deliver to")
	}

	d.mu.Lock()
	d.scope = scope
	first := !d.delivered
	d.mu.Unlock()

	if !first {
		d.logger.Debug(ctx, "driver rebound", "context", d.opts.Context)
		return nil
	}

	if err := d.AddSubscribers(d.opts.Subscribers); err != nil {
		return err
	}
	if d.opts.PersistAppData && d.app.Load(ctx, d.store, d.opts.AppDataKey) {
		d.logger.Debug(ctx, "app data loaded", "key", d.opts.AppDataKey)
	}

	d.mu.Lock()
	d.delivered = true
	d.mu.Unlock()
	d.logger.Info(ctx, "driver delivered", "context", d.opts.Context)

	return nil
}

// DeliverDocument binds the driver to the element of doc matching the
// Context option.
func (d *Driver) DeliverDocument(ctx context.Context, doc *dom.Document) error {
	scope, err := doc.Bind(d.opts.Context)
	if err != nil {
		return err
	}

	return d.Deliver(ctx, scope)
}

func (d *Driver) bound() (binding.Context, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.scope == nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidContext, "driver has not been delivered")
	}

	return d.scope, nil
}

// Options returns the effective options.
func (d *Driver) Options() Options { return d.opts }

// Prefix returns the data attribute prefix.
func (d *Driver) Prefix() string { return d.selectors.prefix }

// Resolver returns the descriptor resolver the driver uses.
func (d *Driver) Resolver() *descriptor.Resolver { return d.resolver }

// Templates returns the template registry.
func (d *Driver) Templates() *templates.Registry { return d.templates }

// AppData returns the data exposed to templates as "app".
func (d *Driver) AppData() *appdata.Data { return d.app }

// Storage returns the scoped store.
func (d *Driver) Storage() *storage.Scoped { return d.store }

// ResponseCache exposes the response cache.
func (d *Driver) ResponseCache() *cache.ResponseCache[*lifecycle.Exchange] { return d.responses }

// ViewCache exposes the view cache.
func (d *Driver) ViewCache() *cache.ViewCache[*lifecycle.Exchange] { return d.views }

// Publish sends payload to every application subscriber of event.
func (d *Driver) Publish(ctx context.Context, event string, payload any) int {
	n := d.user.Publish(ctx, event, payload)
	d.logger.Debug(ctx, "event published", "event", event, "subscribers", n)

	return n
}

// Subscribe registers fn for each space-separated event. Events without a
// namespace are tagged with UserNamespace.
func (d *Driver) Subscribe(events string, fn eventbus.Handler[any]) ([]eventbus.SubscriptionID, error) {
	return d.user.Subscribe(events, fn)
}

// Unsubscribe removes application subscriptions.
func (d *Driver) Unsubscribe(events string) int {
	return d.user.Unsubscribe(events)
}

// AddSubscribers subscribes every method of every entry to each of its
// events. Entries without events or methods are skipped. On error nothing
// from subs stays subscribed.
func (d *Driver) AddSubscribers(subs []Subscriber) error {
	var added []eventbus.SubscriptionID
	for _, s := range subs {
		if len(s.Events) == 0 || len(s.Methods) == 0 {
			continue
		}
		for _, ev := range s.Events {
			for _, fn := range s.Methods {
				ids, err := d.user.Subscribe(ev, fn)
				if err != nil {
					d.user.Cancel(added...)
					return errors.NewConfigurationError(errors.ErrCodeConfigInvalid, err.Error())
				}
				added = append(added, ids...)
			}
		}
	}

	return nil
}

// RegisterComponent wires handlers under the component's namespace and
// publishes "init.<name>".
func (d *Driver) RegisterComponent(ctx context.Context, name string, handlers *lifecycle.Handlers) (*registry.Component, error) {
	c, err := d.components.Register(ctx, name, handlers)
	if err != nil {
		return nil, err
	}
	d.logger.Debug(ctx, "component registered", "name", name, "kinds", len(c.Kinds))

	return c, nil
}

// UnregisterComponent removes a component and all its subscriptions.
func (d *Driver) UnregisterComponent(name string) error {
	return d.components.Unregister(name)
}

// Components returns the registry of components.
func (d *Driver) Components() *registry.ComponentRegistry { return d.components }

// ClearCache clears the response and view caches (""), the response cache
// or one key of it ("response"), or the view cache or one region of it
// ("view").
func (d *Driver) ClearCache(kind string, key ...string) error {
	switch kind {
	case CacheAll:
		d.responses.Clear()
		d.views.Clear()
	case CacheResponse:
		if len(key) == 0 {
			d.responses.Clear()
			return nil
		}
		for _, k := range key {
			d.responses.Delete(k)
		}
	case CacheView:
		if len(key) == 0 {
			d.views.Clear()
			return nil
		}
		for _, sel := range key {
			d.views.DeleteSelector(sel)
		}
	default:
		return (&errors.PayloadError{
			Type:    errors.ErrorTypeConfiguration,
			Code:    errors.ErrCodeInvalidCacheType,
			Message: fmt.Sprintf("clear cache: incorrect type %q", kind),
		}).WithContext("type", kind)
	}

	return nil
}

// SerializeObject groups the element's form fields by name.
func (d *Driver) SerializeObject(el binding.Element) map[string]any {
	return descriptor.SerializeFields(el.FormFields())
}

// Close persists app data when configured and releases the store.
func (d *Driver) Close(ctx context.Context) error {
	if d.opts.PersistAppData {
		if err := d.app.Save(ctx, d.store, d.opts.AppDataKey); err != nil {
			return err
		}
	}
	d.store.Close()

	return nil
}

func (d *Driver) emit(ctx context.Context, ev lifecycle.Event) {
	d.opts.Callbacks.Dispatch(ctx, ev)
	n := d.internal.Publish(ctx, string(ev.Kind()), ev)
	if d.opts.Debug {
		d.logger.Debug(ctx, "lifecycle event", "kind", ev.Kind(), "subscribers", n)
	}
}

func (d *Driver) publishUserEvents(ctx context.Context, ex *lifecycle.Exchange, namespace string) {
	for _, name := range ex.Descriptor.PublishEvents {
		if namespace != "" {
			name = strings.TrimSuffix(name, ".") + "." + namespace
		}
		d.Publish(ctx, name, ex)
	}
}
