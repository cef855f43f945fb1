package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conneroisu/payload/internal/appdata"
	"github.com/conneroisu/payload/internal/binding"
	"github.com/conneroisu/payload/internal/errors"
	"github.com/conneroisu/payload/internal/eventbus"
	"github.com/conneroisu/payload/internal/lifecycle"
	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/storage"
	"github.com/conneroisu/payload/internal/templates"
	"github.com/conneroisu/payload/internal/transport"
)

// Default option values.
const (
	DefaultContext     = "body"
	DefaultLoadingHTML = "<small>Loading...</small>"
	DefaultLoadingFade = 100 * time.Millisecond
	// UserNamespace tags application subscriptions made without one, so
	// that "event.pre" never reaches them.
	UserNamespace = "default"
)

// Subscriber binds each handler to each event.
type Subscriber struct {
	Events  []string
	Methods []eventbus.Handler[any]
}

// Gate decides whether an interaction proceeds to a request.
type Gate func(ctx context.Context, el binding.Element) bool

// Options configures a Driver. Start from DefaultOptions.
type Options struct {
	// Context is the selector of the bound application scope.
	Context string
	// Namespace is inserted into attribute names: data-<ns>-url.
	Namespace string

	Templates *templates.Registry
	Transport transport.Transport
	Store     storage.Store
	Logger    logging.Logger
	// Debug logs every publish and phase at debug level.
	Debug bool

	// Callbacks run before the matching lifecycle event is published.
	Callbacks lifecycle.Handlers
	// APICallback runs once per bound request after the pre events.
	APICallback func(ctx context.Context, ex *lifecycle.Exchange)
	APIOnClick  Gate
	APIOnSubmit Gate
	Subscribers []Subscriber

	LoadingDefault bool
	LoadingHTML    string
	// LoadingFade is how long the loading indicator takes to disappear
	// before the response renders.
	LoadingFade time.Duration
	// Timeout applies to fetches whose element declares none. Zero is none.
	Timeout time.Duration
	// ResponseParent names the property the payload is unwrapped from.
	ResponseParent string
	AccessToken    string
	// CoalesceRequests shares one network call between concurrent
	// cacheable GETs with the same cache key.
	CoalesceRequests bool
	// Sanitize filters rendered markup through the UGC policy.
	Sanitize bool

	AppData        map[string]any
	AppDataKey     string
	PersistAppData bool
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Context:          DefaultContext,
		LoadingDefault:   true,
		LoadingHTML:      DefaultLoadingHTML,
		LoadingFade:      DefaultLoadingFade,
		CoalesceRequests: true,
		AppDataKey:       appdata.DefaultKey,
	}
}

func (o *Options) validate() error {
	if strings.ContainsAny(strings.TrimSpace(o.Namespace), " \t\n\"]") {
		return errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("data namespace %q is not a valid attribute fragment", o.Namespace))
	}
	if o.Timeout < 0 {
		return errors.NewConfigurationError(errors.ErrCodeConfigInvalid, "timeout must not be negative")
	}
	if o.LoadingFade < 0 {
		return errors.NewConfigurationError(errors.ErrCodeConfigInvalid, "loading fade must not be negative")
	}

	return nil
}

func (o *Options) applyDefaults() {
	if o.Context == "" {
		o.Context = DefaultContext
	}
	if o.LoadingHTML == "" {
		o.LoadingHTML = DefaultLoadingHTML
	}
	if o.AppDataKey == "" {
		o.AppDataKey = appdata.DefaultKey
	}
	if o.APIOnClick == nil {
		o.APIOnClick = allow
	}
	if o.APIOnSubmit == nil {
		o.APIOnSubmit = allow
	}
}

func allow(context.Context, binding.Element) bool { return true }
