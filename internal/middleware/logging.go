package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// accessLog collects attributes that handlers add while serving a request.
type accessLog struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

type accessLogKey struct{}

// AddLogAttrs attaches attributes to the request's access log line, such as
// the subject or a decision outcome. Outside Logger it does nothing.
func AddLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	al, ok := ctx.Value(accessLogKey{}).(*accessLog)
	if !ok {
		return
	}
	al.mu.Lock()
	al.attrs = append(al.attrs, attrs...)
	al.mu.Unlock()
}

// responseWriter records the status and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger writes one access log line per request. Request bodies and
// credentials are never logged; handlers add safe fields with AddLogAttrs.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)
			al := &accessLog{}

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), accessLogKey{}, al)))

			attrs := []slog.Attr{
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", wrapped.status),
				slog.Int("bytes", wrapped.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, slog.String("route", pattern))
				}
			}
			if traceID := GetTraceID(r.Context()); traceID != "" {
				attrs = append(attrs, slog.String("trace_id", traceID))
			}

			al.mu.Lock()
			attrs = append(attrs, al.attrs...)
			al.mu.Unlock()

			logger.LogAttrs(r.Context(), accessLevel(wrapped.status), "http request", attrs...)
		})
	}
}

// accessLevel maps a status to a log level. Quota and rate-limit refusals are
// normal traffic for this API and stay at info.
func accessLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status == http.StatusTooManyRequests:
		return slog.LevelInfo
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
