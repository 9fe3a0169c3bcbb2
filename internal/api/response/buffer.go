package response

import (
	"bytes"
	"fmt"
	"net/http"
)

// Buffer captures a handler's status code and body without writing them to the
// client, so middleware can either Flush the captured response or discard it
// and write a different one to the underlying writer.
type Buffer struct {
	http.ResponseWriter

	status int
	body   bytes.Buffer
}

// NewBuffer wraps w. Nothing reaches w until Flush is called.
func NewBuffer(w http.ResponseWriter) *Buffer {
	return &Buffer{ResponseWriter: w}
}

// WriteHeader captures the status code instead of sending it.
func (b *Buffer) WriteHeader(code int) {
	b.status = code
}

// Write captures the body instead of sending it.
func (b *Buffer) Write(p []byte) (int, error) {
	n, err := b.body.Write(p)
	if err != nil {
		return n, fmt.Errorf("buffer write: %w", err)
	}

	return n, nil
}

// Flush sends the captured status and body to the underlying writer.
func (b *Buffer) Flush() {
	if b.status != 0 {
		b.ResponseWriter.WriteHeader(b.status)
	}

	_, _ = b.body.WriteTo(b.ResponseWriter)
}
