// Package gateway exposes the streaming HTTP surface: the chat and SQL SSE
// endpoints plus health and metrics.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/quill/internal/config"
	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/internal/sqlgen"
	"github.com/haasonsaas/quill/pkg/models"
)

// ChatRunner produces the ordered event stream for one chat request.
type ChatRunner interface {
	Run(ctx context.Context, utterance string) <-chan models.Event
}

// SQLGenerator produces one validated SQL candidate for a question.
type SQLGenerator interface {
	Generate(ctx context.Context, question string) (*sqlgen.Result, error)
}

// Server is the HTTP gateway.
type Server struct {
	config     *config.Config
	logger     *observability.Logger
	chat       ChatRunner
	sql        SQLGenerator
	httpServer *http.Server
}

// NewServer wires the gateway around the agent loop and the SQL pipeline.
func NewServer(cfg *config.Config, chat ChatRunner, sql SQLGenerator, logger *observability.Logger) *Server {
	s := &Server{
		config: cfg,
		logger: logger,
		chat:   chat,
		sql:    sql,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/chat/sse", s.handleChatSSE)
	mux.HandleFunc("GET /v1/sql/sse", s.handleSQLSSE)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the listener until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// writeBadRequest rejects a request before any stream bytes are written.
func writeBadRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
