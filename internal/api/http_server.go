package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bookingdesk/internal/config"
	"bookingdesk/internal/domain"
	"bookingdesk/internal/flow"
	"bookingdesk/internal/metrics"
	"bookingdesk/internal/service"
	"bookingdesk/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	datePattern = `{date:[0-9]{4}-[0-9]{2}-[0-9]{2}}`

	requestIDHeader = "X-Request-ID"
)

// Dependencies are the services the HTTP API serves.
type Dependencies struct {
	Availability domain.AvailabilityService
	Bookings     domain.BookingService
	Catalog      domain.CatalogService
	Flow         *flow.Flow
	SlotTimes    []string
	// Health reports backend problems for /healthz. Optional.
	Health func(ctx context.Context) error
}

// HTTPServer exposes the booking JSON API.
type HTTPServer struct {
	cfg    config.APIConfig
	deps   Dependencies
	auth   *HTTPAuth
	server *http.Server
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Dependencies, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:    cfg,
		deps:   deps,
		auth:   NewHTTPAuth(cfg, logger),
		logger: logger,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.auth.RateLimit)

	// public
	api.HandleFunc("/services", s.handleListServices).Methods(http.MethodGet)
	api.HandleFunc("/availability", s.handleAvailabilityRange).Methods(http.MethodGet)
	api.HandleFunc("/availability/stream", s.handleAvailabilityStream).Methods(http.MethodGet)
	api.HandleFunc("/availability/"+datePattern, s.handleGetDate).Methods(http.MethodGet)
	api.HandleFunc("/availability/"+datePattern+"/slots", s.handleDaySlots).Methods(http.MethodGet)
	api.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	s.formRoutes(api.PathPrefix("/forms").Subrouter())

	// admin
	admin := api.PathPrefix("").Subrouter()
	admin.Use(s.auth.Authenticate)
	admin.HandleFunc("/availability/batch", s.handleBatchAvailability).Methods(http.MethodPost)
	admin.HandleFunc("/availability/"+datePattern, s.handleSetDate).Methods(http.MethodPut)
	admin.HandleFunc("/bookings", s.handleListBookings).Methods(http.MethodGet)
	admin.HandleFunc("/bookings/stream", s.handleBookingsStream).Methods(http.MethodGet)
	admin.HandleFunc("/bookings/export", s.handleExportBookings).Methods(http.MethodGet)
	admin.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods(http.MethodGet)
	admin.HandleFunc("/bookings/{id}/status", s.handleUpdateStatus).Methods(http.MethodPatch)

	return r
}

// Handler returns the routed handler with all middleware.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
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

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		metrics.IncHTTP(endpoint, recorder.status)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// errorStatus maps domain errors to HTTP status codes. Unknown errors are
// reported as 500 without their text.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, flow.ErrInvalidInput),
		errors.Is(err, flow.ErrUnknownService):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, flow.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrSlotTaken),
		errors.Is(err, flow.ErrWrongStep),
		errors.Is(err, flow.ErrSubmitInProgress),
		errors.Is(err, flow.ErrDateUnavailable),
		errors.Is(err, flow.ErrSlotUnavailable):
		return http.StatusConflict, err.Error()
	case errors.Is(err, flow.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, message := errorStatus(err)
	if statusCode == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, statusCode, message)
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
