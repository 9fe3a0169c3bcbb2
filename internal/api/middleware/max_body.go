package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/callsift/callsift/internal/api/response"
)

// http.MaxBytesReader reports this message when the limit is crossed.
const bodyTooLargeMessage = "http: request body too large"

// RequestBodyTooLargeRecorder records requests rejected for exceeding the body
// limit. Pass nil when metrics are disabled.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MaxBody limits request body size to maxBytes and answers 413 when a handler
// trips the limit mid-read. Responses for body-carrying methods are buffered
// so the 413 can replace whatever the handler already wrote; other methods
// stream straight through. 0 or negative disables the limit.
func MaxBody(maxBytes int64, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := &limitTrackingBody{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes)}
			r.Body = body

			if !expectsBody(r.Method) {
				next.ServeHTTP(w, r)

				return
			}

			buf := response.NewBuffer(w)
			next.ServeHTTP(buf, r)

			if body.limitExceeded {
				if recorder != nil {
					recorder.RecordRequestBodyTooLarge(r.Context())
				}

				response.RespondError(w, http.StatusRequestEntityTooLarge,
					"Request Entity Too Large", "request body exceeds maximum allowed size")

				return
			}

			buf.Flush()
		})
	}
}

// expectsBody is true for methods that typically carry a request body. Only
// those responses are buffered, to avoid the memory and TTFB cost elsewhere.
func expectsBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// limitTrackingBody notes when a read failed because the size limit was hit,
// so the middleware can tell a 413 apart from the handler's own decode error.
type limitTrackingBody struct {
	io.ReadCloser

	limitExceeded bool
}

func (b *limitTrackingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil {
		if strings.Contains(err.Error(), bodyTooLargeMessage) {
			b.limitExceeded = true
		}

		return n, fmt.Errorf("read body: %w", err)
	}

	return n, nil
}
