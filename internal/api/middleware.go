package api

import (
	"net/http"

	"github.com/relayq/relayq/internal/errors"
	"github.com/relayq/relayq/internal/logger"
	"github.com/relayq/relayq/internal/model"
)

// recoverer is adapted from gokit's router/middlewares.Recoverer: it
// recovers a panicking handler, logs the stack, and answers 500 rather than
// letting the connection die mid-response.
func recoverer(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if r := recover(); r != nil {
					panicErr := errors.NewPanicError(r)
					log.Error("panic recovered", "detail", errors.FormatPanicForLog(panicErr))
					writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// maxBodySize enforces the configured max_body_size by wrapping the
// request body in http.MaxBytesReader; a body exceeding it fails with
// BadRequest on the subsequent read rather than being silently truncated.
func maxBodySize(limit model.ByteSize) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, int64(limit))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
