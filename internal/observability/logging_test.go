package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceContextHandler(t *testing.T) {
	newLogger := func(buf *bytes.Buffer) *slog.Logger {
		return slog.New(NewTraceContextHandler(slog.NewTextHandler(buf, nil)))
	}

	t.Run("stamps request_id from the context", func(t *testing.T) {
		var buf bytes.Buffer

		ctx := context.WithValue(context.Background(), RequestIDKey, "req-123")
		newLogger(&buf).InfoContext(ctx, "hello")

		assert.Contains(t, buf.String(), "request_id=req-123")
	})

	t.Run("logs cleanly outside a request", func(t *testing.T) {
		var buf bytes.Buffer

		newLogger(&buf).Info("hello")

		out := buf.String()
		assert.Contains(t, out, "hello")
		assert.NotContains(t, out, "request_id")
		assert.NotContains(t, out, "trace_id")
	})
}
