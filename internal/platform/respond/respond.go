package respond

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/janisto/waitlist/internal/api"
	applog "github.com/janisto/waitlist/internal/platform/logging"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"

	msgNotFound         = "Not found"
	msgMethodNotAllowed = "Method not allowed"
	msgInternal         = "Internal server error"
)

var installOnce sync.Once

// Install routes every error huma generates itself (unreadable body, body
// too large, unsupported media type) through the waitlist envelope.
func Install() {
	installOnce.Do(func() {
		huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
			return newEnvelopeError(context.Background(), status, msg, errs...)
		}
		huma.NewErrorWithContext = func(hctx huma.Context, status int, msg string, errs ...error) huma.StatusError {
			ctx := context.Background()
			if hctx != nil {
				ctx = hctx.Context()
			}
			return newEnvelopeError(ctx, status, msg, errs...)
		}
	})
}

// EnvelopeError is a huma.StatusError that serializes as a failure envelope.
type EnvelopeError struct {
	OK      bool   `json:"ok"`
	Message string `json:"error"`
	status  int
}

func (e *EnvelopeError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *EnvelopeError) GetStatus() int {
	return e.status
}

// Envelope returns the wire representation of e.
func (e *EnvelopeError) Envelope() api.Envelope {
	return api.Failure(e.Message)
}

// Error builds a failure envelope error with the given status. Causes in errs
// are logged but never exposed to the client.
func Error(ctx context.Context, status int, reason string, errs ...error) *EnvelopeError {
	return newEnvelopeError(ctx, status, reason, errs...)
}

func newEnvelopeError(ctx context.Context, status int, reason string, errs ...error) *EnvelopeError {
	if strings.TrimSpace(reason) == "" {
		reason = http.StatusText(status)
	}
	if reason == "" {
		reason = fmt.Sprintf("HTTP %d", status)
	}
	// huma builds a status 0 error once per operation to derive the schema.
	if status >= http.StatusBadRequest {
		logWithStatus(ctx, status, reason, errors.Join(errs...))
	}
	return &EnvelopeError{OK: false, Message: reason, status: status}
}

// Write renders env with status, as CBOR when the client prefers it and JSON otherwise.
func Write(w http.ResponseWriter, r *http.Request, status int, env api.Envelope) error {
	if acceptsCBOR(r.Header.Get("Accept")) {
		b, err := cbor.Marshal(env)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", contentTypeCBOR)
		w.WriteHeader(status)
		_, err = w.Write(b)
		return err
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(env)
}

// NotFoundHandler renders 404 as a failure envelope.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e := Error(r.Context(), http.StatusNotFound, msgNotFound)
		if err := Write(w, r, e.status, e.Envelope()); err != nil {
			applog.LogError(r.Context(), "failed to render not found", err)
		}
	}
}

// MethodNotAllowedHandler renders 405 as a failure envelope with an Allow header.
func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if allow := allowedMethods(r); len(allow) > 0 {
			w.Header().Set("Allow", strings.Join(allow, ", "))
		}
		e := Error(r.Context(), http.StatusMethodNotAllowed, msgMethodNotAllowed)
		if err := Write(w, r, e.status, e.Envelope()); err != nil {
			applog.LogError(r.Context(), "failed to render method not allowed", err)
		}
	}
}

// Recoverer converts panics into 500 failure envelopes. http.ErrAbortHandler
// is re-panicked so net/http can abort the connection, and nothing is written
// once the handler has already sent headers.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
				e := Error(r.Context(), http.StatusInternalServerError, msgInternal, err)
				if rw.wroteHeader {
					return
				}
				if writeErr := Write(rw, r, e.status, e.Envelope()); writeErr != nil {
					applog.LogError(r.Context(), "failed to render internal error", writeErr)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// acceptsCBOR reports whether CBOR is listed in Accept with a higher quality
// than JSON. Wildcards resolve to JSON.
func acceptsCBOR(accept string) bool {
	if accept == "" {
		return false
	}
	var cborQ, jsonQ float64 = -1, -1
	for part := range strings.SplitSeq(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if v, ok := params["q"]; ok {
			if _, scanErr := fmt.Sscanf(v, "%g", &q); scanErr != nil || q < 0 || q > 1 {
				continue
			}
		}
		switch mediaType {
		case contentTypeCBOR:
			cborQ = max(cborQ, q)
		case contentTypeJSON, "*/*", "application/*":
			jsonQ = max(jsonQ, q)
		}
	}
	return cborQ > 0 && cborQ > jsonQ
}

// allowedMethods inspects chi's routing tree for methods registered on the path.
func allowedMethods(r *http.Request) []string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return nil
	}
	routePath := rctx.RoutePath
	if routePath == "" {
		routePath = r.URL.RawPath
		if routePath == "" {
			routePath = r.URL.Path
		}
		if routePath == "" {
			routePath = "/"
		}
	}
	methods := []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}
	allowed := make([]string, 0, len(methods))
	for _, method := range methods {
		if rctx.Routes.Match(chi.NewRouteContext(), method, routePath) {
			allowed = append(allowed, method)
		}
	}
	return allowed
}

// logWithStatus logs client errors at info and server errors at error level.
func logWithStatus(ctx context.Context, status int, msg string, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	fields := []zap.Field{zap.Int("status", status), zap.String("reason", msg)}
	switch {
	case status >= 500:
		applog.LogError(ctx, "request failed", err, fields...)
	default:
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		applog.LogInfo(ctx, "request rejected", fields...)
	}
}
