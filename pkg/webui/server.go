// Package webui exposes the appraisal pipeline over HTTP: photo analysis,
// stored-analysis retrieval, negotiation jobs, offers, health, metrics,
// and the in-memory log buffer.
package webui

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"appraisal/pkg/agent"
	"appraisal/pkg/config"
	"appraisal/pkg/logx"
	"appraisal/pkg/persistence"
	"appraisal/pkg/pipeline"
	"appraisal/pkg/shops"
	"appraisal/pkg/voice"
)

// maxUploadBytes bounds the multipart form held in memory per analyze call.
const maxUploadBytes = 32 << 20

// Server is the appraisal HTTP server.
type Server struct {
	settings *config.Settings
	factory  *agent.LLMClientFactory
	ops      *persistence.DatabaseOperations
	finder   shops.Finder
	dialer   voice.Dialer
	logger   *logx.Logger

	uploadDir string

	// run executes the appraisal graph; tests substitute a fake.
	run func(r *http.Request, in pipeline.Input) (pipeline.Record, error)
}

// NewServer wires the server. A nil dialer selects the simulated voice
// dialer for negotiation jobs.
func NewServer(settings *config.Settings, factory *agent.LLMClientFactory, ops *persistence.DatabaseOperations, finder shops.Finder, dialer voice.Dialer) *Server {
	s := &Server{
		settings:  settings,
		factory:   factory,
		ops:       ops,
		finder:    finder,
		dialer:    dialer,
		logger:    logx.NewLogger("webui"),
		uploadDir: "uploads",
	}
	s.run = s.runPipeline
	return s
}

// requireAuth checks the bearer token against the configured service token.
// An empty configured token disables auth entirely (development mode).
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected := s.settings.ServiceToken
		if expected == "" {
			next(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			s.logger.Warn("Failed authentication attempt from %s", r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/analyze", s.requireAuth(s.handleAnalyze))
	mux.HandleFunc("/api/analyses", s.requireAuth(s.handleGetAnalysis))
	mux.HandleFunc("/api/negotiate", s.requireAuth(s.handleNegotiate))
	mux.HandleFunc("/api/offers", s.requireAuth(s.handleOffers))
	mux.HandleFunc("/api/logs", s.requireAuth(s.handleLogs))

	mux.Handle("/uploads/", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(s.uploadDir))))

	// Health and metrics stay unauthenticated for probes and scrapers.
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// handleLogs implements GET /api/logs over the in-memory log buffer.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	domain := query.Get("domain")

	var since time.Time
	if sinceStr := query.Get("since"); sinceStr != "" {
		var err error
		since, err = time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			http.Error(w, "Invalid since parameter (use RFC3339)", http.StatusBadRequest)
			return
		}
	}

	s.writeJSON(w, logx.GetRecentLogEntries(domain, since))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"detail": msg}); err != nil {
		s.logger.Error("Failed to encode error response: %v", err)
	}
}

// StartServer runs the HTTP server on addr until ctx is canceled, then
// shuts down gracefully.
func (s *Server) StartServer(ctx context.Context, addr string) error {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return fmt.Errorf("creating upload directory: %w", err)
	}

	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Appraisal server listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down appraisal server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // Parent context is canceled; shutdown needs a fresh one
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
