// Package lifecycle defines the fixed vocabulary of the internal event
// channel: one tagged event type per request phase, and the typed handler
// set a component or the driver options supply for them.
package lifecycle

import (
	"context"

	"github.com/conneroisu/payload/internal/binding"
	"github.com/conneroisu/payload/internal/descriptor"
	"github.com/conneroisu/payload/internal/errors"
	"github.com/conneroisu/payload/internal/transport"
)

// Kind names a lifecycle event on the internal channel.
type Kind string

const (
	KindInit         Kind = "init"
	KindBeforeRender Kind = "apiBeforeRender"
	KindAfterRender  Kind = "apiAfterRender"
	KindBeforeSend   Kind = "xhrBeforeSend"
	KindDone         Kind = "xhrDone"
	KindFail         Kind = "xhrFail"
	KindAlways       Kind = "xhrAlways"
)

// Kinds lists every lifecycle kind in publication order of a live fetch.
func Kinds() []Kind {
	return []Kind{KindInit, KindBeforeSend, KindBeforeRender, KindAfterRender, KindDone, KindFail, KindAlways}
}

// Event is implemented by every lifecycle event.
type Event interface {
	Kind() Kind
}

// Exchange is the per-invocation state shared by every phase and by the
// application events published for a request.
type Exchange struct {
	// ID is unique per invocation.
	ID         string
	Origin     binding.Element
	Target     binding.Region
	Descriptor *descriptor.Descriptor
	// TemplateData is the data the template renders with: app, view and
	// request, plus the response once one arrives.
	TemplateData map[string]any
	// CacheKey starts as the descriptor's key. Handlers of the "pre"
	// application events may change it before the cache is consulted.
	CacheKey string
	// Response is the decoded response once one is available.
	Response any
	// HTML is the markup of the last render.
	HTML string
}

// InitEvent is published as "init.<component>" when a component registers.
type InitEvent struct {
	Component string
}

// BeforeRenderEvent precedes every template render.
type BeforeRenderEvent struct {
	*Exchange
	Response  any
	FromCache bool
}

// AfterRenderEvent follows the markup swap.
type AfterRenderEvent struct {
	*Exchange
	Response  any
	HTML      string
	FromCache bool
}

// BeforeSendEvent precedes the network call. Handlers may adjust the
// request's headers.
type BeforeSendEvent struct {
	*Exchange
	Request *transport.Request
}

// DoneEvent reports a successful fetch, or its replay from a cache.
type DoneEvent struct {
	*Exchange
	Response any
	Status   int
	Replayed bool
}

// FailEvent reports a failed fetch or a render failure after one.
type FailEvent struct {
	*Exchange
	Status int
	Reason errors.TransportKind
	Err    error
}

// AlwaysEvent closes every live fetch.
type AlwaysEvent struct {
	*Exchange
	Response any
	Status   int
	Err      error
}

func (InitEvent) Kind() Kind         { return KindInit }
func (BeforeRenderEvent) Kind() Kind { return KindBeforeRender }
func (AfterRenderEvent) Kind() Kind  { return KindAfterRender }
func (BeforeSendEvent) Kind() Kind   { return KindBeforeSend }
func (DoneEvent) Kind() Kind         { return KindDone }
func (FailEvent) Kind() Kind         { return KindFail }
func (AlwaysEvent) Kind() Kind       { return KindAlways }

// Handlers is a typed handler set. Nil fields are ignored.
type Handlers struct {
	Init         func(ctx context.Context, ev InitEvent)
	BeforeRender func(ctx context.Context, ev BeforeRenderEvent)
	AfterRender  func(ctx context.Context, ev AfterRenderEvent)
	BeforeSend   func(ctx context.Context, ev BeforeSendEvent)
	Done         func(ctx context.Context, ev DoneEvent)
	Fail         func(ctx context.Context, ev FailEvent)
	Always       func(ctx context.Context, ev AlwaysEvent)
}

// Has reports whether a handler is set for kind.
func (h *Handlers) Has(kind Kind) bool {
	if h == nil {
		return false
	}
	switch kind {
	case KindInit:
		return h.Init != nil
	case KindBeforeRender:
		return h.BeforeRender != nil
	case KindAfterRender:
		return h.AfterRender != nil
	case KindBeforeSend:
		return h.BeforeSend != nil
	case KindDone:
		return h.Done != nil
	case KindFail:
		return h.Fail != nil
	case KindAlways:
		return h.Always != nil
	}

	return false
}

// Dispatch calls the handler matching ev's type.
func (h *Handlers) Dispatch(ctx context.Context, ev Event) {
	if h == nil {
		return
	}
	switch e := ev.(type) {
	case InitEvent:
		if h.Init != nil {
			h.Init(ctx, e)
		}
	case BeforeRenderEvent:
		if h.BeforeRender != nil {
			h.BeforeRender(ctx, e)
		}
	case AfterRenderEvent:
		if h.AfterRender != nil {
			h.AfterRender(ctx, e)
		}
	case BeforeSendEvent:
		if h.BeforeSend != nil {
			h.BeforeSend(ctx, e)
		}
	case DoneEvent:
		if h.Done != nil {
			h.Done(ctx, e)
		}
	case FailEvent:
		if h.Fail != nil {
			h.Fail(ctx, e)
		}
	case AlwaysEvent:
		if h.Always != nil {
			h.Always(ctx, e)
		}
	}
}
