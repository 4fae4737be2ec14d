package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fisr/internal/interfaces/http/handlers"
)

// Server is the dashboard HTTP server
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *handlers.Handlers
	metrics  *MetricsRegistry
	hub      *LogHub
	config   ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "127.0.0.1", // local-only by default
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// NewServer creates a new HTTP server instance; metrics and hub may be nil
func NewServer(config ServerConfig, h *handlers.Handlers, metrics *MetricsRegistry, hub *LogHub) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		metrics:  metrics,
		hub:      hub,
		config:   config,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.GetAddress(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	// API routes (JSON only)
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(s.corsMiddleware)
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handlers.Health).Methods("GET")
	api.HandleFunc("/portfolio", s.handlers.Portfolio).Methods("GET")
	api.HandleFunc("/trades", s.handlers.Trades).Methods("GET")
	api.HandleFunc("/signals", s.handlers.Signals).Methods("GET")
	api.HandleFunc("/logs", s.handlers.Logs).Methods("GET")
	api.HandleFunc("/config", s.handlers.ListConfig).Methods("GET")
	api.HandleFunc("/config/{key}", s.handlers.GetConfig).Methods("GET")
	api.HandleFunc("/config/{key}", s.handlers.UpdateConfig).Methods("PUT", "OPTIONS")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.MetricsHandler()).Methods("GET")
	}
	if s.hub != nil {
		s.router.Handle("/ws/logs", s.hub).Methods("GET")
	}

	s.router.NotFoundHandler = s.jsonContentTypeMiddleware(http.HandlerFunc(s.handlers.NotFound))
}

// Handler exposes the router, e.g. for httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), handlers.RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs all requests with structured format
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID, _ := r.Context().Value(handlers.RequestIDKey).(string)

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		if s.metrics != nil {
			s.metrics.Requests.WithLabelValues(r.Method, strconv.Itoa(wrapper.statusCode)).Inc()
		}
		log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// timeoutMiddleware enforces request timeouts
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware adds CORS headers for local development
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonContentTypeMiddleware sets JSON content type for API responses
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start listens and serves until Shutdown; a busy port is reported immediately
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.GetAddress())
	if err != nil {
		return fmt.Errorf("port %d is busy or unavailable: %w", s.config.Port, err)
	}
	log.Info().Str("addr", s.GetAddress()).Msg("Starting dashboard server")

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down dashboard server")
	if s.hub != nil {
		s.hub.Close()
	}
	return s.server.Shutdown(ctx)
}

// GetAddress returns the server address
func (s *Server) GetAddress() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// responseWrapper captures HTTP status codes for logging
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade through the wrapper
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}
