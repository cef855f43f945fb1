package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"off", LevelOff, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayloadLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("driver").
		With("invocation_id", "abc").
		Warn(context.Background(), errors.New("boom"), "request failed", "status", 503)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "request failed", rec["msg"])
	assert.Equal(t, "driver", rec["component"])
	assert.Equal(t, "abc", rec["invocation_id"])
	assert.Equal(t, "boom", rec["error"])
	assert.EqualValues(t, 503, rec["status"])
}

func TestPayloadLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Format: "text", Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "hidden debug")
	logger.Info(ctx, "hidden info")
	logger.Error(ctx, nil, "visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible error")
}

func TestPayloadLogger_WithDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "text", Output: &buf})

	_ = base.With("cache_key", "k1")
	base.Info(context.Background(), "plain")

	assert.NotContains(t, buf.String(), "cache_key")
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.NotPanics(t, func() {
		l.Info(context.Background(), "x")
		l.With("a", 1).WithComponent("c").Error(context.Background(), errors.New("e"), "y")
	})
	assert.Equal(t, l, OrNop(nil))
}

func TestRedactToken(t *testing.T) {
	assert.Equal(t, "", RedactToken(""))
	assert.Equal(t, "[REDACTED]", RedactToken("abc"))
	assert.True(t, strings.HasPrefix(RedactToken("secret-token"), "secr"))
	assert.NotContains(t, RedactToken("secret-token"), "token")
}

func TestPerfLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "text", Output: &buf})

	op := StartOperation(logger, "render")
	op.End(context.Background(), "template", "itemList")

	out := buf.String()
	assert.Contains(t, out, "operation=render")
	assert.Contains(t, out, "duration_ms=")
	assert.Contains(t, out, "template=itemList")
}
