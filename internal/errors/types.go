// Package errors defines the structured error taxonomy used across payload.
//
// Configuration and component errors are programmer errors and are returned
// synchronously. Transport errors are operational: the driver never returns
// them from Request, it delivers them through the failure lifecycle event.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeComponent     ErrorType = "component"
	ErrorTypeTransport     ErrorType = "transport"
	ErrorTypeRender        ErrorType = "render"
	ErrorTypeStorage       ErrorType = "storage"
)

// Common error codes.
const (
	ErrCodeInvalidContext     = "ERR_INVALID_CONTEXT"
	ErrCodeInvalidJSON        = "ERR_INVALID_JSON"
	ErrCodeInvalidMethod      = "ERR_INVALID_METHOD"
	ErrCodeUnknownTemplate    = "ERR_UNKNOWN_TEMPLATE"
	ErrCodeInvalidTemplate    = "ERR_INVALID_TEMPLATE"
	ErrCodeDuplicateTemplate  = "ERR_DUPLICATE_TEMPLATE"
	ErrCodeInvalidCacheType   = "ERR_INVALID_CACHE_TYPE"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodeDuplicateComponent = "ERR_DUPLICATE_COMPONENT"
	ErrCodeUnknownComponent   = "ERR_UNKNOWN_COMPONENT"
	ErrCodeMissingHandlers    = "ERR_MISSING_HANDLERS"
	ErrCodeTransport          = "ERR_TRANSPORT"
	ErrCodeRenderFailed       = "ERR_RENDER_FAILED"
	ErrCodeStorage            = "ERR_STORAGE"
)

// Sentinels for errors.Is matching. Comparison is on Type and Code only.
var (
	ErrDuplicateComponent = &PayloadError{Type: ErrorTypeComponent, Code: ErrCodeDuplicateComponent}
	ErrUnknownComponent   = &PayloadError{Type: ErrorTypeComponent, Code: ErrCodeUnknownComponent}
	ErrMissingHandlers    = &PayloadError{Type: ErrorTypeComponent, Code: ErrCodeMissingHandlers}
	ErrInvalidCacheType   = &PayloadError{Type: ErrorTypeConfiguration, Code: ErrCodeInvalidCacheType}
)

// PayloadError is a structured error type with context.
type PayloadError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *PayloadError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PayloadError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *PayloadError) Is(target error) bool {
	var t *PayloadError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PayloadError) WithContext(key string, value interface{}) *PayloadError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// TransportKind mirrors the textual status a failed fetch reports.
type TransportKind string

const (
	KindError       TransportKind = "error"
	KindTimeout     TransportKind = "timeout"
	KindParserError TransportKind = "parsererror"
	KindAbort       TransportKind = "abort"
	// KindRender marks a fetch that succeeded but whose template failed.
	KindRender      TransportKind = "render"
)

// TransportError describes a failed live fetch. Status is zero when no
// response was received.
type TransportError struct {
	PayloadError
	Status int
	Kind   TransportKind
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	msg := e.PayloadError.Error()
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d, %s)", msg, e.Status, e.Kind)
	}

	return fmt.Sprintf("%s (%s)", msg, e.Kind)
}

// Error creation functions

// NewConfigurationError creates a configuration error.
func NewConfigurationError(code, message string) *PayloadError {
	return &PayloadError{
		Type:    ErrorTypeConfiguration,
		Code:    code,
		Message: message,
	}
}

// NewDuplicateComponentError reports a registration under a taken name.
func NewDuplicateComponentError(name string) *PayloadError {
	return (&PayloadError{
		Type:    ErrorTypeComponent,
		Code:    ErrCodeDuplicateComponent,
		Message: fmt.Sprintf("component %q is already registered", name),
	}).WithContext("component", name)
}

// NewUnknownComponentError reports an operation on an unregistered name.
func NewUnknownComponentError(name string) *PayloadError {
	return (&PayloadError{
		Type:    ErrorTypeComponent,
		Code:    ErrCodeUnknownComponent,
		Message: fmt.Sprintf("component %q is not registered", name),
	}).WithContext("component", name)
}

// NewMissingHandlersError reports a registration without a handler set.
func NewMissingHandlersError(name string) *PayloadError {
	return (&PayloadError{
		Type:    ErrorTypeComponent,
		Code:    ErrCodeMissingHandlers,
		Message: fmt.Sprintf("component %q has no handlers", name),
	}).WithContext("component", name)
}

// NewTransportError creates a transport error.
func NewTransportError(status int, kind TransportKind, cause error) *TransportError {
	msg := "request failed"
	switch kind {
	case KindTimeout:
		msg = "request timed out"
	case KindParserError:
		msg = "response could not be parsed"
	case KindAbort:
		msg = "request aborted"
	}

	return &TransportError{
		PayloadError: PayloadError{
			Type:    ErrorTypeTransport,
			Code:    ErrCodeTransport,
			Message: msg,
			Cause:   cause,
		},
		Status: status,
		Kind:   kind,
	}
}

// NewRenderError creates a render error for the named template.
func NewRenderError(template string, cause error) *PayloadError {
	return (&PayloadError{
		Type:    ErrorTypeRender,
		Code:    ErrCodeRenderFailed,
		Message: fmt.Sprintf("rendering %q failed", template),
		Cause:   cause,
	}).WithContext("template", template)
}

// NewStorageError creates a storage error.
func NewStorageError(op, key string, cause error) *PayloadError {
	return (&PayloadError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeStorage,
		Message: fmt.Sprintf("storage %s failed", op),
		Cause:   cause,
	}).WithContext("key", key)
}

func hasType(err error, typ ErrorType) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Type == typ
	}
	var pe *PayloadError
	if errors.As(err, &pe) {
		return pe.Type == typ
	}

	return false
}

// IsConfigurationError checks if an error is configuration-related.
func IsConfigurationError(err error) bool {
	return hasType(err, ErrorTypeConfiguration)
}

// IsComponentError checks if an error came from the component registry.
func IsComponentError(err error) bool {
	return hasType(err, ErrorTypeComponent)
}

// IsTransportError checks if an error is a failed fetch.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRenderError checks if an error is a template execution failure.
func IsRenderError(err error) bool {
	return hasType(err, ErrorTypeRender)
}

// AsTransportError extracts the TransportError from err.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}

	return nil, false
}
