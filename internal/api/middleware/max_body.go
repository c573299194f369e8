package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/boardgamehub/hub/internal/api/response"
)

// RequestBodyTooLargeRecorder records requests rejected for exceeding the body limit.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MaxBody limits request bodies to maxBytes. Handlers see a read error once the limit is hit; whatever they
// answer is discarded and replaced by 413 problem+json. Only POST responses are buffered, so GET routes
// (/health, /metrics) stream. maxBytes <= 0 disables the limit. recorder may be nil.
func MaxBody(maxBytes int64, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)

				return
			}

			body := &limitedBody{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes)}
			r.Body = body

			pending := &pendingResponse{ResponseWriter: w}
			next.ServeHTTP(pending, r)

			if body.exceeded {
				if recorder != nil {
					recorder.RecordRequestBodyTooLarge(r.Context())
				}

				response.RespondError(w, http.StatusRequestEntityTooLarge,
					"Request Entity Too Large", "request body exceeds maximum allowed size")

				return
			}

			pending.commit()
		})
	}
}

// limitedBody notes whether the MaxBytesReader limit was reached.
type limitedBody struct {
	io.ReadCloser

	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded = true
	}

	return n, err //nolint:wrapcheck // io.EOF must reach the decoder unwrapped
}

// pendingResponse holds the status and body until MaxBody knows the request was within the limit.
// Headers go straight to the underlying writer.
type pendingResponse struct {
	http.ResponseWriter

	status int
	body   bytes.Buffer
}

func (p *pendingResponse) WriteHeader(code int) {
	if p.status == 0 {
		p.status = code
	}
}

func (p *pendingResponse) Write(b []byte) (int, error) {
	return p.body.Write(b) //nolint:wrapcheck // bytes.Buffer never fails
}

func (p *pendingResponse) commit() {
	if p.status != 0 {
		p.ResponseWriter.WriteHeader(p.status)
	}

	_, _ = p.body.WriteTo(p.ResponseWriter)
}
