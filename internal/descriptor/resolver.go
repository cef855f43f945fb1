package descriptor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/conneroisu/payload/internal/binding"
	"github.com/conneroisu/payload/internal/errors"
	"github.com/conneroisu/payload/internal/templates"
)

// Lookup resolves template and partial names.
type Lookup interface {
	Template(name string) (templates.Template, bool)
	Partial(name string) (templates.Template, bool)
}

// Resolver reads descriptors off elements.
type Resolver struct {
	// Namespace is inserted into attribute names: data-<ns>-url.
	Namespace string
	Templates Lookup
	// DefaultTimeout applies when the element has no timeout attribute.
	DefaultTimeout time.Duration
	LoadingDefault bool
	// AccessToken is used when the element has no token attribute.
	AccessToken string
}

// Prefix returns the attribute prefix, "data-" or "data-<ns>-".
func (r *Resolver) Prefix() string {
	return AttrPrefix(r.Namespace)
}

// AttrPrefix returns the attribute prefix for a namespace.
func AttrPrefix(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return "data-"
	}

	return "data-" + ns + "-"
}

func (r *Resolver) attr(el binding.Element, name string) (string, bool) {
	return el.Attr(r.Prefix() + name)
}

// Resolve builds the descriptor for el. data is merged over the element's
// form fields and under its inline form JSON.
func (r *Resolver) Resolve(el binding.Element, data map[string]any) (*Descriptor, error) {
	d := &Descriptor{
		ResponseType: "json",
		Timeout:      r.DefaultTimeout,
		Loading:      r.LoadingDefault,
		AuthToken:    r.AccessToken,
	}

	d.Href, _ = el.Attr("href")
	if v, ok := r.attr(el, "url"); ok && v != "" {
		d.URL = v
	} else if v, ok := el.Attr("action"); ok {
		d.URL = v
	}

	d.Method = MethodGet
	if v, ok := r.attr(el, "method"); ok && v != "" {
		d.Method = strings.ToLower(strings.TrimSpace(v))
	} else if v, ok := el.Attr("method"); ok && v != "" {
		d.Method = strings.ToLower(strings.TrimSpace(v))
	}
	if !ValidMethod(d.Method) {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidMethod,
			fmt.Sprintf("unsupported method %q", d.Method)).WithContext("method", d.Method)
	}

	d.CacheRequest = r.flag(el, "cache-request", false)
	d.CacheResponse = r.flag(el, "cache-response", false)
	d.CacheView = r.flag(el, "cache-view", false)
	d.Loading = r.flag(el, "loading", d.Loading)
	d.AutoLoad = r.flag(el, "auto-load", false)

	if v, ok := r.attr(el, "type"); ok && v != "" {
		d.ResponseType = strings.ToLower(v)
	}
	d.Selector, _ = r.attr(el, "selector")
	if v, ok := r.attr(el, "publish"); ok {
		d.PublishEvents = strings.Fields(v)
	}
	if v, ok := r.attr(el, "token"); ok && v != "" {
		d.AuthToken = v
	}

	if v, ok := r.attr(el, "timeout"); ok && strings.TrimSpace(v) != "" {
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || ms < 0 {
			return nil, errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("timeout %q is not a non-negative integer", v))
		}
		d.Timeout = time.Duration(ms) * time.Millisecond
	}

	if err := r.resolveTemplates(el, d); err != nil {
		return nil, err
	}

	requestData, err := r.mergeData(el, data)
	if err != nil {
		return nil, err
	}
	d.RequestData = requestData
	d.View = DecodeDataset(el.Dataset())
	d.CacheKey = CacheKey(d.URL, KeyData(d.Method, requestData))

	return d, nil
}

func (r *Resolver) resolveTemplates(el binding.Element, d *Descriptor) error {
	if name, ok := r.attr(el, "template"); ok && name != "" {
		d.TemplateName = name
		if r.Templates == nil {
			return unknownTemplate(templates.KindTemplate, name)
		}
		t, found := r.Templates.Template(name)
		if !found {
			return unknownTemplate(templates.KindTemplate, name)
		}
		d.Template = t
	}
	if name, ok := r.attr(el, "partial"); ok && name != "" {
		d.PartialName = name
		if r.Templates == nil {
			return unknownTemplate(templates.KindPartial, name)
		}
		t, found := r.Templates.Partial(name)
		if !found {
			return unknownTemplate(templates.KindPartial, name)
		}
		d.Partial = t
	}

	return nil
}

func unknownTemplate(kind templates.Kind, name string) error {
	return errors.NewConfigurationError(errors.ErrCodeUnknownTemplate,
		fmt.Sprintf("unknown %s %q", kind, name)).WithContext("name", name)
}

// flag parses a boolean attribute. A present attribute is true unless it
// reads "false" or "0".
func (r *Resolver) flag(el binding.Element, name string, def bool) bool {
	v, ok := r.attr(el, name)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0":
		return false
	}

	return true
}

// mergeData applies form fields, then data, then the inline form JSON.
func (r *Resolver) mergeData(el binding.Element, data map[string]any) (map[string]any, error) {
	out := SerializeFields(el.FormFields())
	for k, v := range data {
		out[k] = Normalize(v)
	}

	raw, ok := r.attr(el, "form")
	if !ok || strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if !gjson.Valid(raw) {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidJSON,
			"form attribute is not valid JSON").WithContext("form", raw)
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidJSON,
			"form attribute must be a JSON object").WithContext("form", raw)
	}
	parsed.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = Normalize(value.Value())
		return true
	})

	return out, nil
}

// SerializeFields groups form fields by name; repeated names become
// []string in document order.
func SerializeFields(fields []binding.Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		switch cur := out[f.Name].(type) {
		case nil:
			out[f.Name] = f.Value
		case string:
			out[f.Name] = []string{cur, f.Value}
		case []string:
			out[f.Name] = append(cur, f.Value)
		}
	}

	return out
}

// Normalize converts an arbitrary value to string or []string.
func Normalize(v any) any {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case []string:
		return append([]string(nil), tv...)
	case []any:
		out := make([]string, len(tv))
		for i, e := range tv {
			out[i] = scalarString(e)
		}
		return out
	default:
		return scalarString(tv)
	}
}

func scalarString(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(tv)
	case map[string]any, []any:
		b, err := json.Marshal(tv)
		if err != nil {
			return fmt.Sprint(tv)
		}
		return string(b)
	default:
		return fmt.Sprint(tv)
	}
}

// DecodeDataset converts dataset strings the way jQuery's .data() does:
// "true", "false" and "null" become their values, numbers that round-trip
// become float64 and JSON objects or arrays are parsed.
func DecodeDataset(ds map[string]string) map[string]any {
	out := make(map[string]any, len(ds))
	for k, v := range ds {
		out[k] = decodeDataValue(v)
	}

	return out
}

func decodeDataValue(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && strconv.FormatFloat(f, 'f', -1, 64) == v {
		return f
	}
	if len(v) > 1 && (v[0] == '{' || v[0] == '[') && gjson.Valid(v) {
		return gjson.Parse(v).Value()
	}

	return v
}

// SortedKeys returns the keys of m in order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
