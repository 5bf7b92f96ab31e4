// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/courtcast/courtcast/internal/log"
)

// requestLogger emits one structured line per request, carrying the chi
// request ID for correlation.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			rid := middleware.GetReqID(r.Context())
			ctx := log.ContextWithRequestID(r.Context(), rid)
			// Handlers and writeError pull this logger back out with
			// log.FromContext, so error lines carry the request ID.
			reqLogger := log.WithContext(ctx, logger)
			r = r.WithContext(reqLogger.WithContext(ctx))

			next.ServeHTTP(ww, r)

			reqLogger.Info().
				Str("method", r.Method).
				Str(log.FieldPath, r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("http request")
		})
	}
}
