package obs

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-giftshop/internal/common"
)

// NewLogger configures a zerolog logger. Format "console" (or "text") renders
// human-readable lines; anything else emits JSON.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// LoggerFrom returns the request-scoped logger, falling back to base.
func LoggerFrom(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return base
}

// RequestLogger attaches a request-scoped logger to the context and writes one
// access log line per request. Probe and scrape endpoints log at debug.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware implements chi middleware for structured request logs.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		fields := l.Logger.With().Str("request_id", middleware.GetReqID(ctx))
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = fields.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		reqLogger := fields.Logger()

		rec := newRecorder(w)
		next.ServeHTTP(rec, r.WithContext(reqLogger.WithContext(ctx)))

		route := RoutePattern(r)
		if route == "" {
			route = r.URL.Path
		}
		evt := accessLevel(&reqLogger, r.URL.Path, rec.status).
			Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", rec.bytes)
		if ip := common.ClientIP(r); ip != "" {
			evt = evt.Str("client_ip", ip)
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}

func accessLevel(l *zerolog.Logger, path string, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return l.Error()
	case status >= http.StatusBadRequest:
		return l.Warn()
	case strings.HasPrefix(path, "/health/") || path == "/metrics":
		return l.Debug()
	default:
		return l.Info()
	}
}
