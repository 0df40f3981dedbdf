package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"DealScanner/internal/usecase"
)

// Controller is the part of the delivery loop exposed over HTTP.
type Controller interface {
	ForceCycle() usecase.ForceResult
	Status() usecase.Status
	SendStartup(ctx context.Context) error
}

// Server exposes health, status and manual trigger endpoints.
type Server struct {
	controller Controller
	logger     *slog.Logger
}

// New builds the HTTP adapter.
func New(controller Controller, logger *slog.Logger) *Server {
	return &Server{controller: controller, logger: logger}
}

// Routes returns a chi.Router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Post("/cycle", s.forceCycle)
	r.Post("/test", s.testMessage)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	if s.logger != nil {
		s.logger.Info("http api listening", "addr", addr)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) forceCycle(w http.ResponseWriter, _ *http.Request) {
	result := s.controller.ForceCycle()
	code := http.StatusAccepted
	if result == usecase.ForceAlreadyRunning {
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]string{"result": string(result)})
}

func (s *Server) testMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.SendStartup(r.Context()); err != nil {
		if s.logger != nil {
			s.logger.Warn("test message failed", "error", err)
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "sent"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
