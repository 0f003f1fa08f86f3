// Package health provides the serve-mode HTTP server: health checks, metrics and value bet results.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/racing-value/internal/auth"
	"github.com/yourusername/racing-value/internal/clock"
	"github.com/yourusername/racing-value/internal/credentials"
	"github.com/yourusername/racing-value/internal/datasource"
	"github.com/yourusername/racing-value/internal/metrics"
	"github.com/yourusername/racing-value/internal/models"
	"github.com/yourusername/racing-value/internal/service"
)

// Runner executes one value bet run
type Runner interface {
	Run(ctx context.Context, q datasource.RaceQuery) (*service.RunReport, error)
}

// LatestProvider exposes the most recent scheduled report
type LatestProvider interface {
	Latest() (*service.RunReport, error)
}

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp,omitempty"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
}

// ReadyResponse represents the JSON response for readiness check endpoints.
type ReadyResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Checks   map[string]string `json:"checks,omitempty"`
	Duration string            `json:"duration,omitempty"`
}

// ErrorResponse is the JSON body of a failed request
type ErrorResponse struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Code    int                `json:"code"`
	Report  *service.RunReport `json:"report,omitempty"`
}

// Server serves health checks, Prometheus metrics and value bet runs.
type Server struct {
	serviceName    string
	version        string
	commit         string
	port           string
	metricsPath    string
	country        string
	raceType       models.RaceType
	allowedOrigins []string
	server         *http.Server
	logger         *logrus.Logger
	runner         Runner
	latest         LatestProvider
	clock          clock.Clock
	mu             sync.RWMutex
	ready          bool
}

// Config holds the configuration for the server.
type Config struct {
	ServiceName     string
	Version         string
	Commit          string
	Port            string
	MetricsPath     string
	DefaultCountry  string
	DefaultRaceType models.RaceType
	AllowedOrigins  []string
	Logger          *logrus.Logger
	Runner          Runner
	Latest          LatestProvider
	Clock           clock.Clock
}

// NewServer creates a new server.
func NewServer(cfg Config) *Server {
	port := cfg.Port
	if port == "" {
		port = os.Getenv("HEALTH_PORT")
	}
	if port == "" {
		port = "8080"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.DefaultRaceType == "" {
		cfg.DefaultRaceType = models.RaceTypeAll
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Server{
		serviceName:    cfg.ServiceName,
		version:        cfg.Version,
		commit:         cfg.Commit,
		port:           port,
		metricsPath:    cfg.MetricsPath,
		country:        cfg.DefaultCountry,
		raceType:       cfg.DefaultRaceType,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         cfg.Logger,
		runner:         cfg.Runner,
		latest:         cfg.Latest,
		clock:          cfg.Clock,
	}
}

// SetReady marks the server as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// IsReady returns whether the server is ready.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(s.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.allowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/live", s.handleLive)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, s.metricsPath, metrics.Handler())

	r.Route("/value-bets", func(r chi.Router) {
		r.Get("/", s.handleValueBets)
		r.Get("/latest", s.handleLatest)
	})

	return r
}

// Start starts the server in the background.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.WithFields(logrus.Fields{
			"port":    s.port,
			"service": s.serviceName,
		}).Info("HTTP server starting")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
		}
	}()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("HTTP server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"request_id":  middleware.GetReqID(r.Context()),
			"duration_ms": float64(s.clock.Now().Sub(start).Microseconds()) / 1000,
		}).Debug("HTTP request")
	})
}

// handleHealth handles the /health endpoint - basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.serviceName,
		Timestamp: s.clock.Now().UTC().Format(time.RFC3339),
		Version:   s.version,
		Commit:    s.commit,
	})
}

// handleLive handles the /live endpoint - kubernetes liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: s.serviceName,
	})
}

// handleReady reports not ready until SetReady and while the last scheduled run failed authentication.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	start := s.clock.Now()
	checks := make(map[string]string)
	allHealthy := true

	if !s.IsReady() {
		allHealthy = false
		checks["service"] = "not_ready"
	} else {
		checks["service"] = "ok"
	}

	if s.latest != nil {
		switch report, err := s.latest.Latest(); {
		case err != nil && isSessionFailure(err):
			allHealthy = false
			checks["provider_auth"] = fmt.Sprintf("error: %v", err)
		case err != nil:
			checks["last_refresh"] = fmt.Sprintf("error: %v", err)
		case report == nil:
			checks["last_refresh"] = "pending"
		default:
			checks["last_refresh"] = report.GeneratedAt.UTC().Format(time.RFC3339)
		}
	}

	response := ReadyResponse{
		Service:  s.serviceName,
		Checks:   checks,
		Duration: s.clock.Now().Sub(start).String(),
	}

	if allHealthy {
		response.Status = "ok"
		respondJSON(w, http.StatusOK, response)
		return
	}
	response.Status = "not_ready"
	respondJSON(w, http.StatusServiceUnavailable, response)
}

// handleValueBets runs the pipeline for ?date=YYYY-MM-DD&country=CC&type=flat|jumps|all
func (s *Server) handleValueBets(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "value bet runner not configured", nil)
		return
	}

	q, err := s.parseQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	report, err := s.runner.Run(r.Context(), q)
	if err != nil {
		s.logger.WithError(err).Warn("Value bet run failed")
		status := http.StatusBadGateway
		if isSessionFailure(err) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, err.Error(), report)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.latest == nil {
		respondError(w, http.StatusNotFound, "scheduled refresh disabled", nil)
		return
	}

	report, err := s.latest.Latest()
	if report == nil {
		if err != nil {
			respondError(w, http.StatusServiceUnavailable, err.Error(), nil)
			return
		}
		respondError(w, http.StatusNotFound, "no refresh has completed yet", nil)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) parseQuery(r *http.Request) (datasource.RaceQuery, error) {
	params := r.URL.Query()

	now := s.clock.Now().UTC()
	q := datasource.RaceQuery{
		Date:     time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Country:  s.country,
		RaceType: s.raceType,
	}

	if v := params.Get("date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return q, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", v)
		}
		q.Date = d
	}
	if v := params.Get("country"); v != "" {
		if len(v) != 2 {
			return q, fmt.Errorf("invalid country %q, expected a two-letter code", v)
		}
		q.Country = strings.ToUpper(v)
	}
	if v := params.Get("type"); v != "" {
		switch models.RaceType(v) {
		case models.RaceTypeFlat, models.RaceTypeJumps, models.RaceTypeAll:
			q.RaceType = models.RaceType(v)
		default:
			return q, fmt.Errorf("invalid race type %q, expected flat, jumps or all", v)
		}
	}

	return q, nil
}

func isSessionFailure(err error) bool {
	return errors.Is(err, auth.ErrAuthFailure) || errors.Is(err, credentials.ErrCredentialMissing)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, report *service.RunReport) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
		Report:  report,
	})
}
