// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestConfigure_ServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "backdrop-test", Version: "v0.0.1"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("playback")
	l.Info().Str(FieldEvent, "test.event").Msg("hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "backdrop-test", entry[FieldService])
	assert.Equal(t, "v0.0.1", entry[FieldVersion])
	assert.Equal(t, "playback", entry[FieldComponent])
	assert.Equal(t, "test.event", entry[FieldEvent])
}

func TestWithComponentFromContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "info", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	ctx := ContextWithRequestID(context.Background(), "req-42")
	l := WithComponentFromContext(ctx, "api")
	l.Info().Msg("handled")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-42", entry[FieldRequestID])
	assert.Equal(t, "api", entry[FieldComponent])
}

func TestRequestIDFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{name: "nil context", ctx: nil, want: ""},
		{name: "missing id", ctx: context.Background(), want: ""},
		{name: "present", ctx: ContextWithRequestID(context.Background(), "abc"), want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequestIDFromContext(tt.ctx))
		})
	}
}
