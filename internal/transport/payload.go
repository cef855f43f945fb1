package transport

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/conneroisu/payload/internal/errors"
)

// Extract returns the JSON found at parent, or body itself when parent is
// empty. A missing parent yields "null".
func Extract(body []byte, parent string) []byte {
	if parent == "" {
		return body
	}
	res := gjson.GetBytes(body, parent)
	if !res.Exists() {
		return []byte("null")
	}

	return []byte(res.Raw)
}

// Decode converts a response body according to dataType. JSON bodies decode
// to their generic Go form; html and text bodies are returned as strings.
// An empty JSON body decodes to nil.
func Decode(body []byte, dataType string) (any, error) {
	switch dataType {
	case DataTypeHTML, DataTypeText:
		return string(body), nil
	case "", DataTypeJSON:
	default:
		return nil, errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unsupported response type %q", dataType))
	}

	if len(body) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.NewTransportError(0, errors.KindParserError,
			fmt.Errorf("invalid JSON response"))
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, errors.NewTransportError(0, errors.KindParserError, err)
	}

	return v, nil
}

// TemplateFields merges a decoded response into template data the way the
// response is exposed to templates: arrays under "data", objects merged at
// the top level, other values under "data".
func TemplateFields(dst map[string]any, decoded any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	switch v := decoded.(type) {
	case nil:
	case map[string]any:
		for k, val := range v {
			dst[k] = val
		}
	default:
		dst["data"] = v
	}

	return dst
}
