// ABOUTME: Router assembly for the fleetlens API
// ABOUTME: chi router with CORS, correlation IDs, and request logging

package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/fleetlens-io/fleetlens/internal/observability"
)

// RouterConfig holds router-level settings.
type RouterConfig struct {
	Handler *Handler

	// CORSOrigins is the allowed origin list. Empty means any origin.
	CORSOrigins []string

	Logger *slog.Logger
}

// NewRouter assembles the API router with CORS, correlation IDs, and
// request logging on every route.
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{observability.CorrelationIDHeader},
		MaxAge:         300,
	}))
	r.Use(observability.CorrelationMiddleware)
	r.Use(RequestLogger(logger))

	cfg.Handler.RegisterRoutes(r)

	return r
}

// RequestLogger logs completed requests. Health checks are skipped to
// keep probe noise out of the logs.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			if strings.HasSuffix(r.URL.Path, "/health") {
				return
			}

			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("correlation_id", observability.FromContext(r.Context()).String()),
			)
		})
	}
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
