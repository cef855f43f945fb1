// Package descriptor turns a triggering element's declarative attributes
// into an immutable request descriptor.
package descriptor

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/payload/internal/errors"
	"github.com/conneroisu/payload/internal/templates"
)

// Supported request methods.
const (
	MethodGet    = "get"
	MethodPost   = "post"
	MethodPut    = "put"
	MethodPatch  = "patch"
	MethodDelete = "delete"
)

// ValidMethod reports whether m is one of the supported methods.
func ValidMethod(m string) bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return true
	}

	return false
}

// Descriptor is the resolved form of one request/render intent.
type Descriptor struct {
	Href          string
	URL           string
	Method        string
	CacheRequest  bool
	CacheResponse bool
	CacheView     bool
	ResponseType  string
	Selector      string
	TemplateName  string
	Template      templates.Template
	PartialName   string
	Partial       templates.Template
	PublishEvents []string
	// RequestData values are string or []string.
	RequestData map[string]any
	Timeout     time.Duration
	AuthToken   string
	Loading     bool
	AutoLoad    bool
	// View is the origin's dataset with values decoded the way jQuery's
	// .data() decodes them.
	View map[string]any
	// CacheKey is the response cache key of the request.
	CacheKey string
}

// HasTemplate reports whether a template or partial is bound.
func (d *Descriptor) HasTemplate() bool {
	return d.Template != nil || d.Partial != nil
}

// ViewName is the name used for view-cache bookkeeping.
func (d *Descriptor) ViewName() string {
	if d.TemplateName != "" {
		return d.TemplateName
	}

	return d.PartialName
}

// Actionable reports whether the descriptor has a URL or a selector with a
// template. Anything else is a malformed binding and is a no-op.
func (d *Descriptor) Actionable() bool {
	return d.URL != "" || (d.Selector != "" && d.HasTemplate())
}

// Render executes the bound template, preferring the template over the
// partial.
func (d *Descriptor) Render(ctx context.Context, data map[string]any) (string, error) {
	t := d.Template
	if t == nil {
		t = d.Partial
	}
	if t == nil {
		return "", nil
	}
	out, err := t.Render(ctx, data)
	if err != nil {
		return "", errors.NewRenderError(d.ViewName(), err)
	}

	return out, nil
}

// Query returns RequestData as url.Values.
func (d *Descriptor) Query() url.Values {
	return Values(d.RequestData)
}

// RequestEcho is exposed to templates as "request": the request data plus
// href, url, method and cacheKey.
func (d *Descriptor) RequestEcho() map[string]any {
	echo := make(map[string]any, len(d.RequestData)+4)
	for k, v := range d.RequestData {
		echo[k] = v
	}
	echo["href"] = d.Href
	echo["url"] = d.URL
	echo["method"] = d.Method
	echo["cacheKey"] = d.CacheKey

	return echo
}

// Values converts normalized request data to url.Values.
func Values(data map[string]any) url.Values {
	vals := make(url.Values, len(data))
	for k, v := range data {
		switch tv := v.(type) {
		case string:
			vals.Set(k, tv)
		case []string:
			vals[k] = append([]string(nil), tv...)
		}
	}

	return vals
}

// KeyData serializes request data for CacheKey. Non-GET requests use the
// JSON body the request carries, with sorted keys. GET requests use a
// sorted query encoding in which list values are marked "k[]=v" and an
// empty list is a bare "k[]", so that a value, a one-element list and an
// absent key never share a key.
func KeyData(method string, data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	if method != MethodGet {
		// Request data holds only strings and string lists.
		body, _ := json.Marshal(data)
		return string(body)
	}

	var b strings.Builder
	for _, k := range SortedKeys(data) {
		name := url.QueryEscape(k)
		switch v := data[k].(type) {
		case string:
			appendPair(&b, name, "=", v)
		case []string:
			if len(v) == 0 {
				appendPair(&b, name, "[]", "")
			}
			for _, e := range v {
				appendPair(&b, name, "[]=", e)
			}
		}
	}

	return b.String()
}

func appendPair(b *strings.Builder, name, sep, value string) {
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(name)
	b.WriteString(sep)
	b.WriteString(url.QueryEscape(value))
}

// CacheKey builds the response cache key for a URL and serialized data. The
// URL is length-prefixed so that no (url, data) pair can collide with a
// different split of the same characters.
func CacheKey(rawURL, serialized string) string {
	return strconv.Itoa(len(rawURL)) + ":" + rawURL + serialized
}
