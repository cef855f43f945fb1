package driver

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/payload/internal/binding"
	"github.com/conneroisu/payload/internal/cache"
	"github.com/conneroisu/payload/internal/descriptor"
	"github.com/conneroisu/payload/internal/errors"
	"github.com/conneroisu/payload/internal/lifecycle"
	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/templates"
	"github.com/conneroisu/payload/internal/transport"
)

// Request resolves origin and runs one request/render cycle to completion,
// including the auto-load cascade over the markup it inserts.
//
// Resolution and render errors are returned. Transport failures are not:
// they are reported through the fail and always lifecycle events.
func (d *Driver) Request(ctx context.Context, origin binding.Element, data map[string]any) error {
	scope, err := d.bound()
	if err != nil {
		return err
	}
	desc, err := d.resolver.Resolve(origin, data)
	if err != nil {
		return err
	}
	if !desc.Actionable() {
		d.logger.Debug(ctx, "element is not bound to a request", "tag", origin.Tag())
		return nil
	}

	ex := d.newExchange(scope, origin, desc)
	log := d.logger.With("invocation_id", ex.ID)

	d.publishUserEvents(ctx, ex, "pre")
	if req, ok := ex.TemplateData["request"].(map[string]any); ok {
		req["cacheKey"] = ex.CacheKey
	}
	log = log.With("cache_key", ex.CacheKey)

	if d.restoreView(ctx, ex, log) {
		return nil
	}

	if desc.URL == "" {
		if err := d.render(ctx, ex, nil, false); err != nil {
			return err
		}
		d.apiCallback(ctx, ex)
		d.publishUserEvents(ctx, ex, "")
		return d.cascade(ctx, ex.Target)
	}

	d.apiCallback(ctx, ex)

	if desc.CacheResponse {
		if entry, ok := d.responses.Get(ex.CacheKey); ok && entry.Data != nil && entry.OnReplay != nil {
			log.Debug(ctx, "response cache hit")
			return d.replay(ctx, ex, entry)
		}
	}

	return d.fetch(ctx, ex, log)
}

func (d *Driver) newExchange(scope binding.Context, origin binding.Element, desc *descriptor.Descriptor) *lifecycle.Exchange {
	return &lifecycle.Exchange{
		ID:         uuid.NewString(),
		Origin:     origin,
		Target:     scope.Region(desc.Selector),
		Descriptor: desc,
		CacheKey:   desc.CacheKey,
		TemplateData: map[string]any{
			"app":     d.app.Snapshot(),
			"view":    desc.View,
			"request": desc.RequestEcho(),
		},
	}
}

func (d *Driver) apiCallback(ctx context.Context, ex *lifecycle.Exchange) {
	if d.opts.APICallback != nil {
		d.opts.APICallback(ctx, ex)
	}
}

// restoreView swaps a stored fragment back into the target. The response
// cache takes precedence when both caches are requested.
func (d *Driver) restoreView(ctx context.Context, ex *lifecycle.Exchange, log logging.Logger) bool {
	desc := ex.Descriptor
	name := desc.ViewName()
	if !desc.CacheView || desc.CacheResponse || name == "" || !ex.Target.Exists() {
		return false
	}
	if last, ok := d.views.LastShown(ex.Target.Selector()); ok && last == name {
		return false
	}
	entry, ok := d.views.Restore(ex.Target, name)
	if !ok {
		return false
	}
	log.Debug(ctx, "view cache hit", "template", name)

	d.apiCallback(ctx, ex)
	if entry.OnReplay != nil {
		entry.OnReplay(ctx, ex)
	}
	d.publishUserEvents(ctx, ex, "")

	return true
}

// replay renders a cached response with the fresh request data layered
// over the cached data.
func (d *Driver) replay(ctx context.Context, ex *lifecycle.Exchange, entry cache.ResponseEntry[*lifecycle.Exchange]) error {
	data := make(map[string]any, len(entry.Data)+len(ex.TemplateData))
	for k, v := range entry.Data {
		data[k] = v
	}
	for k, v := range ex.TemplateData {
		data[k] = v
	}
	ex.TemplateData = data
	ex.Response = entry.Response

	if err := d.render(ctx, ex, entry.Response, true); err != nil {
		return err
	}
	entry.OnReplay(ctx, ex)
	d.publishUserEvents(ctx, ex, "")

	return d.cascade(ctx, ex.Target)
}

// render runs before-render, the swap and after-render.
func (d *Driver) render(ctx context.Context, ex *lifecycle.Exchange, response any, fromCache bool) error {
	d.emit(ctx, lifecycle.BeforeRenderEvent{Exchange: ex, Response: response, FromCache: fromCache})

	markup, err := d.markup(ctx, ex, response)
	if err != nil {
		return err
	}
	ex.HTML = markup
	if err := d.swap(ex, markup); err != nil {
		return errors.NewRenderError(ex.Descriptor.ViewName(), err)
	}

	d.emit(ctx, lifecycle.AfterRenderEvent{Exchange: ex, Response: response, HTML: markup, FromCache: fromCache})

	return nil
}

// markup renders the bound template, or passes an html/text response
// through when no template is bound.
func (d *Driver) markup(ctx context.Context, ex *lifecycle.Exchange, response any) (string, error) {
	var out string
	switch {
	case ex.Descriptor.HasTemplate():
		rendered, err := ex.Descriptor.Render(ctx, ex.TemplateData)
		if err != nil {
			return "", err
		}
		out = rendered
	default:
		if s, ok := response.(string); ok {
			out = s
		}
	}
	if d.opts.Sanitize {
		out = templates.Sanitize(out)
	}

	return out, nil
}

func (d *Driver) swap(ex *lifecycle.Exchange, markup string) error {
	target := ex.Target
	if !target.Exists() {
		return nil
	}
	if name := ex.Descriptor.ViewName(); name != "" {
		if ex.Descriptor.CacheView {
			d.views.Stash(target, name)
		} else {
			d.views.Record(target.Selector(), name)
		}
	}

	return target.SetHTML(markup)
}

// fetch performs the live request: pending, then done or failed, then
// always.
func (d *Driver) fetch(ctx context.Context, ex *lifecycle.Exchange, log logging.Logger) error {
	desc := ex.Descriptor
	target := ex.Target
	perf := logging.StartOperation(log, "fetch")

	// The region's current content must be stashed before the loading
	// indicator replaces it.
	if name := desc.ViewName(); desc.CacheView && name != "" && target.Exists() {
		d.views.Stash(target, name)
	}

	target.SetAttr("aria-busy", "true")
	var declared []binding.Element
	if desc.Loading {
		if err := target.SetHTML(""); err == nil {
			_ = target.PrependHTML(d.opts.LoadingHTML, binding.Attribute{Name: d.selectors.prefix + "role", Value: "loading"})
		}
	} else {
		declared = ex.Origin.Find(d.selectors.loading)
		for _, el := range declared {
			el.SetHidden(false)
		}
	}

	req, err := d.buildRequest(ex)
	if err != nil {
		target.RemoveAttr("aria-busy")
		return err
	}
	d.emit(ctx, lifecycle.BeforeSendEvent{Exchange: ex, Request: req})

	resp, err := d.send(ctx, ex, req)
	var full, payload any
	if err == nil {
		full, payload, err = d.decode(resp, desc.ResponseType)
	}

	status := 0
	if resp != nil {
		status = resp.Status
	}

	if err != nil {
		kind := errors.KindError
		if te, ok := errors.AsTransportError(err); ok {
			kind = te.Kind
			if te.Status != 0 {
				status = te.Status
			}
		}
		perf.EndWithError(ctx, err, "status", status, "kind", string(kind))
		d.emit(ctx, lifecycle.FailEvent{Exchange: ex, Status: status, Reason: kind, Err: err})
		d.always(ctx, ex, nil, status, err, declared)
		return nil
	}
	perf.End(ctx, "status", status)

	if err := d.done(ctx, ex, full, payload, status); err != nil {
		d.emit(ctx, lifecycle.FailEvent{Exchange: ex, Status: status, Reason: errors.KindRender, Err: err})
		d.always(ctx, ex, full, status, err, declared)
		return err
	}
	d.always(ctx, ex, full, status, nil, declared)

	return d.cascade(ctx, target)
}

func (d *Driver) buildRequest(ex *lifecycle.Exchange) (*transport.Request, error) {
	desc := ex.Descriptor
	req := &transport.Request{
		URL:          desc.URL,
		Method:       desc.Method,
		DataType:     desc.ResponseType,
		Header:       make(http.Header),
		Timeout:      desc.Timeout,
		CacheRequest: desc.CacheRequest,
	}
	if desc.AuthToken != "" {
		req.Header.Set("Authorization", desc.AuthToken)
	}
	if desc.Method == descriptor.MethodGet {
		req.Query = desc.Query()
		return req, nil
	}

	body, err := json.Marshal(desc.RequestData)
	if err != nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidJSON, "request data cannot be encoded: "+err.Error())
	}
	req.Body = body

	return req, nil
}

// send coalesces concurrent cacheable GETs for the same key when enabled.
// Only the first caller's request, headers included, goes out.
func (d *Driver) send(ctx context.Context, ex *lifecycle.Exchange, req *transport.Request) (*transport.Response, error) {
	desc := ex.Descriptor
	if !d.opts.CoalesceRequests || !desc.CacheResponse || desc.Method != descriptor.MethodGet {
		return d.transport.Send(ctx, req)
	}

	v, err, shared := d.flight.Do(ex.CacheKey, func() (any, error) {
		return d.transport.Send(ctx, req)
	})
	if shared {
		d.logger.Debug(ctx, "request coalesced", "invocation_id", ex.ID, "cache_key", ex.CacheKey)
	}
	resp, _ := v.(*transport.Response)

	return resp, err
}

// decode returns the whole decoded response and the part templates see.
func (d *Driver) decode(resp *transport.Response, dataType string) (any, any, error) {
	full, err := transport.Decode(resp.Body, dataType)
	if err != nil {
		return nil, nil, err
	}
	if d.opts.ResponseParent == "" || (dataType != "" && dataType != transport.DataTypeJSON) {
		return full, full, nil
	}
	payload, err := transport.Decode(transport.Extract(resp.Body, d.opts.ResponseParent), transport.DataTypeJSON)
	if err != nil {
		return nil, nil, err
	}

	return full, payload, nil
}

func (d *Driver) done(ctx context.Context, ex *lifecycle.Exchange, full, payload any, status int) error {
	desc := ex.Descriptor
	data := make(map[string]any, len(ex.TemplateData)+4)
	for k, v := range ex.TemplateData {
		data[k] = v
	}
	ex.TemplateData = transport.TemplateFields(data, payload)
	ex.Response = full
	// Handlers below receive ex; the cache keeps its own copy.
	cached := maps.Clone(ex.TemplateData)

	if ex.Target.Exists() {
		if desc.Loading {
			d.fade(ctx, ex.Target)
		}
		if err := d.render(ctx, ex, full, false); err != nil {
			return err
		}
	}

	onReplay := func(ctx context.Context, inv *lifecycle.Exchange) {
		d.xhrDone(ctx, inv, full, status, true)
	}
	d.xhrDone(ctx, ex, full, status, false)
	d.publishUserEvents(ctx, ex, "")

	switch {
	case desc.CacheResponse:
		d.responses.Set(ex.CacheKey, cache.ResponseEntry[*lifecycle.Exchange]{
			Response: full,
			Data:     cached,
			OnReplay: onReplay,
		})
	case desc.CacheView && desc.ViewName() != "":
		d.views.SetReplay(cache.ViewKey{Selector: ex.Target.Selector(), Template: desc.ViewName()}, onReplay)
	}

	return nil
}

func (d *Driver) xhrDone(ctx context.Context, ex *lifecycle.Exchange, response any, status int, replayed bool) {
	d.emit(ctx, lifecycle.DoneEvent{Exchange: ex, Response: response, Status: status, Replayed: replayed})
}

func (d *Driver) always(ctx context.Context, ex *lifecycle.Exchange, response any, status int, err error, declared []binding.Element) {
	d.emit(ctx, lifecycle.AlwaysEvent{Exchange: ex, Response: response, Status: status, Err: err})
	ex.Target.RemoveAttr("aria-busy")
	for _, el := range declared {
		el.SetHidden(true)
	}
}

// fade waits out the loading indicator's fade and hides it.
func (d *Driver) fade(ctx context.Context, target binding.Region) {
	els := target.Find(d.selectors.loading)
	if len(els) == 0 {
		return
	}
	if d.opts.LoadingFade > 0 {
		timer := time.NewTimer(d.opts.LoadingFade)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
	els[0].SetHidden(true)
}

// cascade triggers the auto-load markers inside target and waits for them.
func (d *Driver) cascade(ctx context.Context, target binding.Region) error {
	if !target.Exists() {
		return nil
	}

	return d.autoLoad(ctx, target.Find(d.selectors.autoLoad))
}

// autoLoad activates els one after another in document order, so handlers
// never run concurrently within a cascade. Every element is activated; the
// first error is returned.
func (d *Driver) autoLoad(ctx context.Context, els []binding.Element) error {
	var first error
	for _, el := range els {
		if err := d.activate(ctx, el); err != nil && first == nil {
			first = err
		}
	}

	return first
}
