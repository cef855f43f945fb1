package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *PayloadError
		want string
	}{
		{
			name: "code and message",
			err:  NewConfigurationError(ErrCodeInvalidJSON, "form attribute is not valid JSON"),
			want: "[ERR_INVALID_JSON] form attribute is not valid JSON",
		},
		{
			name: "with cause",
			err:  NewRenderError("itemList", errors.New("missing variable")),
			want: `[ERR_RENDER_FAILED] rendering "itemList" failed: missing variable`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestSentinels(t *testing.T) {
	dup := NewDuplicateComponentError("nav")
	assert.True(t, errors.Is(dup, ErrDuplicateComponent))
	assert.False(t, errors.Is(dup, ErrUnknownComponent))
	assert.Equal(t, "nav", dup.Context["component"])

	wrapped := fmt.Errorf("register: %w", NewUnknownComponentError("nav"))
	assert.True(t, errors.Is(wrapped, ErrUnknownComponent))
	assert.True(t, IsComponentError(wrapped))
	assert.False(t, IsConfigurationError(wrapped))

	assert.True(t, errors.Is(NewMissingHandlersError("x"), ErrMissingHandlers))
	assert.True(t, errors.Is(
		NewConfigurationError(ErrCodeInvalidCacheType, "bad"), ErrInvalidCacheType))
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransportError(0, KindError, cause)

	assert.True(t, IsTransportError(err))
	assert.False(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "(error)")

	timeout := NewTransportError(0, KindTimeout, nil)
	assert.Contains(t, timeout.Error(), "timed out")

	notFound := NewTransportError(404, KindError, nil)
	assert.Contains(t, notFound.Error(), "status 404")

	te, ok := AsTransportError(fmt.Errorf("wrapped: %w", notFound))
	require.True(t, ok)
	assert.Equal(t, 404, te.Status)
	assert.Equal(t, KindError, te.Kind)
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsRenderError(NewRenderError("t", nil)))
	assert.True(t, IsConfigurationError(NewConfigurationError(ErrCodeInvalidMethod, "m")))
	assert.False(t, IsRenderError(errors.New("plain")))
	assert.False(t, IsTransportError(nil))

	se := NewStorageError("set", "payload.appData", errors.New("disk full"))
	assert.Equal(t, ErrorTypeStorage, se.Type)
	assert.Equal(t, "payload.appData", se.Context["key"])
}
