package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tooLargeRecorder struct {
	count int
}

func (r *tooLargeRecorder) RecordRequestBodyTooLarge(context.Context) {
	r.count++
}

func TestMaxBody(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})

	t.Run("passes small bodies through", func(t *testing.T) {
		handler := MaxBody(64, nil)(echo)

		req := httptest.NewRequest(http.MethodPost, "/v1/calls", strings.NewReader("hello"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", rec.Body.String())
	})

	t.Run("replaces the handler response with a 413 when the limit is hit", func(t *testing.T) {
		recorder := &tooLargeRecorder{}
		handler := MaxBody(4, recorder)(echo)

		req := httptest.NewRequest(http.MethodPost, "/v1/calls", strings.NewReader("way past the limit"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.NotContains(t, rec.Body.String(), "way past")
		assert.Equal(t, 1, recorder.count)
	})

	t.Run("zero limit disables the middleware", func(t *testing.T) {
		handler := MaxBody(0, nil)(echo)

		req := httptest.NewRequest(http.MethodPost, "/v1/calls", strings.NewReader(strings.Repeat("x", 1024)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
