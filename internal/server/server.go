package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"
	"goa.design/goa/v3/security"

	"lmsinquiry/internal/config"
	"lmsinquiry/internal/domain"
	"lmsinquiry/internal/logging"
	"lmsinquiry/internal/services"
	"lmsinquiry/internal/util"
	apperrors "lmsinquiry/pkg/errors"
	"lmsinquiry/pkg/inquiry"
)

// Server exposes the health, auth and inquiry services over HTTP.
type Server struct {
	cfg       *config.Config
	health    *services.HealthService
	auth      *services.AuthService
	inquiries *services.InquiryService
	mux       goahttp.Muxer
	handler   http.Handler
	log       *logrus.Entry
}

// Security schemes, one per access level.
var (
	authenticatedScheme = security.JWTScheme{Name: "jwt", Scopes: []string{domain.ScopeAdmin, domain.ScopeStaff}}
	staffScheme         = security.JWTScheme{Name: "jwt", Scopes: []string{domain.ScopeAdmin, domain.ScopeStaff}, RequiredScopes: []string{domain.ScopeStaff}}
	adminScheme         = security.JWTScheme{Name: "jwt", Scopes: []string{domain.ScopeAdmin, domain.ScopeStaff}, RequiredScopes: []string{domain.ScopeAdmin}}
)

// New mounts every route and wraps the muxer in the middleware chain.
func New(cfg *config.Config, health *services.HealthService, auth *services.AuthService, inquiries *services.InquiryService) *Server {
	s := &Server{
		cfg:       cfg,
		health:    health,
		auth:      auth,
		inquiries: inquiries,
		mux:       goahttp.NewMuxer(),
		log:       logging.For("http"),
	}
	s.mount()
	s.handler = s.wrap(s.mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) mount() {
	s.mux.Handle("GET", "/health", s.handleHealth)
	s.mux.Handle("POST", inquiry.SubmitPath, s.handleSubmitInquiry)

	s.mux.Handle("GET", "/api/inquiries", s.secured(staffScheme, s.handleListInquiries))
	s.mux.Handle("GET", "/api/inquiries/{id}", s.secured(staffScheme, s.handleGetInquiry))
	s.mux.Handle("PATCH", "/api/inquiries/{id}/status", s.secured(staffScheme, s.handleUpdateInquiryStatus))

	s.mux.Handle("POST", "/api/auth/login", s.handleLogin)
	s.mux.Handle("GET", "/api/auth/me", s.secured(authenticatedScheme, s.handleMe))
	s.mux.Handle("POST", "/api/auth/users", s.secured(adminScheme, s.handleCreateUser))

	s.mux.Handle("GET", "/metrics", promhttp.Handler().ServeHTTP)

	s.log.Info("Mounted HTTP handlers")
}

// secured authorizes the bearer token against scheme before calling next.
func (s *Server) secured(scheme security.JWTScheme, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := requestContext(r)
		token := r.Header.Get("Authorization")
		if token == "" {
			s.encodeError(ctx, w, apperrors.New(apperrors.ErrCodeUnauthorized, "Authorization header required"))
			return
		}
		if strings.Contains(token, " ") {
			parts := strings.Split(token, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				s.encodeError(ctx, w, apperrors.New(apperrors.ErrCodeUnauthorized, "invalid authorization header format"))
				return
			}
			token = parts[1]
		}

		sc := scheme
		ctx, err := s.auth.JWTAuth(ctx, token, &sc)
		if err != nil {
			s.encodeError(r.Context(), w, err)
			return
		}
		next(w, r.WithContext(ctx))
	}
}

func requestContext(r *http.Request) context.Context {
	return context.WithValue(r.Context(), goahttp.AcceptTypeKey, r.Header.Get("Accept"))
}

// encode writes v with the negotiated encoder.
func (s *Server) encode(ctx context.Context, w http.ResponseWriter, status int, v any) {
	enc := goahttp.ResponseEncoder(ctx, w)
	w.WriteHeader(status)
	if err := enc.Encode(v); err != nil {
		s.log.WithError(err).Error("failed to encode response")
	}
}

// encodeError renders err as {code, message}. Server faults carry no
// message so clients fall back to their own wording.
func (s *Server) encodeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := apperrors.ErrCodeInternalError
	var message string

	var serr *goa.ServiceError
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message
	case errors.As(err, &serr):
		code = apperrors.ErrCodeValidation
		message = serr.Message
	}

	status := apperrors.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
		message = ""
	} else {
		s.log.Debugf("request rejected: %v", err)
	}

	var rle *util.RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", retryAfterSeconds(rle))
	}

	body := &inquiry.ErrorResponse{Code: string(code)}
	if message != "" {
		body.Message = &message
	}
	s.encode(ctx, w, status, body)
}
