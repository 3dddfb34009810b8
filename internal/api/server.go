package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/orchestrator"
	"github.com/kirillm/gap-pullback-bot/internal/strategy"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// Controller is the lifecycle surface the HTTP API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() bool
	Pause() bool
	Resume() bool
	EmergencyCloseAll(ctx context.Context) (strategy.RiskReport, error)
	Status(ctx context.Context) (*orchestrator.Status, error)
}

// PositionLister lists open positions.
type PositionLister interface {
	FindOpen(ctx context.Context) ([]domain.Position, error)
}

type Server struct {
	logger    *utils.Logger
	ctrl      Controller
	positions PositionLister
	addr      string
	server    *http.Server
	started   time.Time
}

// Response is the JSON envelope of every endpoint.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// LifecycleResult is returned by the start/stop/pause/resume endpoints.
type LifecycleResult struct {
	Action  string `json:"action"`
	Changed bool   `json:"changed"`
}

func NewServer(logger *utils.Logger, ctrl Controller, positions PositionLister, addr string) *Server {
	return &Server{
		logger:    logger.With("component", "api"),
		ctrl:      ctrl,
		positions: positions,
		addr:      addr,
		started:   time.Now(),
	}
}

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/positions", s.handlePositions)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/bot", func(br chi.Router) {
		br.Post("/start", s.handleStart)
		br.Post("/stop", s.lifecycle("stop", s.ctrl.Stop))
		br.Post("/pause", s.lifecycle("pause", s.ctrl.Pause))
		br.Post("/resume", s.lifecycle("resume", s.ctrl.Resume))
		br.Post("/emergency-close", s.handleEmergencyClose)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctrl.Status(r.Context())
	if err != nil {
		s.sendError(w, "Failed to get status: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.sendSuccess(w, st)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.positions.FindOpen(r.Context())
	if err != nil {
		s.sendError(w, "Failed to load positions: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	s.sendSuccess(w, positions)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.Start(r.Context())
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		s.sendError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrBrokerNotConfigured):
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
	case err != nil:
		s.sendError(w, "Start failed: "+err.Error(), http.StatusInternalServerError)
	default:
		s.logger.Info("Bot started via API")
		s.sendSuccess(w, LifecycleResult{Action: "start", Changed: true})
	}
}

// lifecycle wraps a bool-returning transition. No change is a 409.
func (s *Server) lifecycle(action string, fn func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !fn() {
			s.sendError(w, action+": not applicable in current state", http.StatusConflict)
			return
		}
		s.logger.Info("Bot %s via API", action)
		s.sendSuccess(w, LifecycleResult{Action: action, Changed: true})
	}
}

func (s *Server) handleEmergencyClose(w http.ResponseWriter, r *http.Request) {
	report, err := s.ctrl.EmergencyCloseAll(r.Context())
	if err != nil {
		s.sendError(w, "Emergency close failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Warn("🚨 Emergency close via API: %d closed, %d failed", report.Closed, report.Failed)
	s.sendSuccess(w, map[string]int{
		"checked": report.Checked,
		"closed":  report.Closed,
		"failed":  report.Failed,
	})
}

func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(Response{Success: true, Data: data}); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(Response{Success: false, Error: message}); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}
