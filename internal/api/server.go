package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bikeservice/internal/config"
	"bikeservice/internal/domain"

	"github.com/rs/zerolog"
)

// Services are the application services the gateway dispatches to.
type Services struct {
	Bookings domain.BookingService
	Catalog  domain.CatalogService
	Users    domain.UserService
	// Ready reports readiness of the backing stores. nil means always ready.
	Ready func(ctx context.Context) error
}

// HTTPServer exposes the booking API over JSON/HTTP.
type HTTPServer struct {
	cfg      config.APIConfig
	services Services
	limiter  *rateLimiter
	logger   *zerolog.Logger
	handler  http.Handler
	server   *http.Server
}

func NewHTTPServer(cfg config.APIConfig, services Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		services: services,
		limiter:  newRateLimiter(cfg.RateLimit),
		logger:   logger,
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.handler = srv.recoverer(requestIDMiddleware(srv.accessLog(srv.cors(srv.rateLimit(mux)))))
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/verify-email", s.handleVerifyEmail)
	mux.Handle("GET /api/v1/auth/me", s.requireAuth(s.handleMe))
	mux.Handle("POST /api/v1/auth/resend-verification", s.requireAuth(s.handleResendVerification))

	mux.HandleFunc("GET /api/v1/services", s.handleListServices)
	mux.HandleFunc("GET /api/v1/services/{id}", s.handleGetService)
	mux.Handle("POST /api/v1/services", s.requireAuth(s.handleCreateService))
	mux.Handle("PUT /api/v1/services/{id}", s.requireAuth(s.handleUpdateService))
	mux.Handle("DELETE /api/v1/services/{id}", s.requireAuth(s.handleDeactivateService))

	mux.Handle("GET /api/v1/bookings", s.requireAuth(s.handleListBookings))
	mux.Handle("GET /api/v1/bookings/export", s.requireAuth(s.handleExportBookings))
	mux.Handle("GET /api/v1/bookings/{id}", s.requireAuth(s.handleGetBooking))
	mux.Handle("POST /api/v1/bookings", s.requireAuth(s.handleCreateBooking))
	mux.Handle("PUT /api/v1/bookings/{id}/status", s.requireAuth(s.handleUpdateStatus))
	mux.Handle("DELETE /api/v1/bookings/{id}", s.requireAuth(s.handleCancelBooking))
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.services.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.services.Ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
