package logging

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger enriches the request context with a logger carrying Cloud
// Trace metadata and the request ID. It must run after the request ID middleware.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(traceparentHeader)
			project := resolveProjectID()
			reqID := chimiddleware.GetReqID(r.Context())

			correlationID := traceResource(header, project)
			if correlationID == "" {
				correlationID = reqID
			}
			logger := loggerWithTrace(Logger(), header, project, reqID)
			next.ServeHTTP(w, r.WithContext(withRequestLogger(r.Context(), logger, correlationID)))
		})
	}
}

// AccessLogger writes one structured summary per request.
func AccessLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			LoggerFromContext(r.Context()).Info(
				"request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
