package server

import (
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"goa.design/goa/v3/http/middleware"
	goamiddleware "goa.design/goa/v3/middleware"

	"lmsinquiry/internal/config"
	"lmsinquiry/internal/metrics"
)

// wrap builds the middleware chain:
// Security -> CORS -> RequestID -> Logging -> Prometheus -> Context -> Handler
func (s *Server) wrap(h http.Handler) http.Handler {
	h = middleware.PopulateRequestContext()(h)
	h = metrics.PrometheusMiddleware(h)
	h = s.requestLogging(h)
	h = middleware.RequestID(middleware.UseXRequestIDHeaderOption(true))(h)
	h = newCORS(&s.cfg.CORS, s.cfg.App.Debug).Handler(h)
	return securityHeaders(h, &s.cfg.App)
}

// securityHeaders adds security headers to responses
func securityHeaders(handler http.Handler, app *config.AppConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		// HSTS (only in production with HTTPS)
		if !app.Debug && r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		handler.ServeHTTP(w, r)
	})
}

// newCORS configures CORS from the allowed origins. A wildcard origin
// cannot be combined with credentials.
func newCORS(cfg *config.CORSConfig, debug bool) *cors.Cors {
	wildcard := false
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			wildcard = true
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Type", "Authorization", "X-Request-Id", "Retry-After"},
		MaxAge:           cfg.MaxAge,
		AllowCredentials: !wildcard,
		Debug:            debug,
	})
}

// statusRecorder captures the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLogging logs all incoming requests and their responses
func (s *Server) requestLogging(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip health checks and scrapes to reduce noise
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			handler.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		entry := s.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		})
		if id, ok := r.Context().Value(goamiddleware.RequestIDKey).(string); ok {
			entry = entry.WithField("request_id", id)
			w.Header().Set("X-Request-Id", id)
		}

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		handler.ServeHTTP(wrapped, r)

		entry = entry.WithFields(logrus.Fields{
			"status":   wrapped.statusCode,
			"duration": time.Since(start).String(),
		})
		if wrapped.statusCode >= http.StatusInternalServerError {
			entry.Error("request completed")
		} else {
			entry.Info("request completed")
		}
	})
}
