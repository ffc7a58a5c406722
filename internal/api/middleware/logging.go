// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tgsearch/internal/log"
)

// AccessLog logs one line per request. Health and scrape endpoints log at debug.
// The query string is omitted because it carries search keywords.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)

			next.ServeHTTP(sw, r)

			logger := log.WithComponentFromContext(r.Context(), "api")
			level := zerolog.InfoLevel
			switch {
			case sw.status >= http.StatusInternalServerError:
				level = zerolog.ErrorLevel
			case !shouldTrace(r):
				level = zerolog.DebugLevel
			}
			evt := logger.WithLevel(level).
				Str(log.FieldEvent, "http.request").
				Str("method", r.Method).
				Str(log.FieldPath, r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", sw.status).
				Int("bytes", sw.bytesWritten).
				Dur("duration", time.Since(start))
			if traceID, _ := ExtractTraceContext(r); traceID != "" {
				evt = evt.Str("trace_id", traceID)
			}
			evt.Msg("request served")
		})
	}
}
