package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/RyanBlaney/sonido-markers/analyzer"
	"github.com/RyanBlaney/sonido-markers/config"
	"github.com/RyanBlaney/sonido-markers/logging"
	"github.com/RyanBlaney/sonido-markers/markers"
)

const healthMessage = "Sonido markers API ready"

// Analyzer is the pipeline the HTTP handlers drive
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (*markers.AnalysisResult, error)
}

// Server exposes /health and /analyze
type Server struct {
	analyzer   Analyzer
	config     config.ServerConfig
	params     analyzer.Params
	httpClient *http.Client
	router     *mux.Router
}

// New creates a server. params are the defaults a request may override.
func New(a Analyzer, cfg config.ServerConfig, params analyzer.Params) *Server {
	s := &Server{
		analyzer: a,
		config:   cfg,
		params:   params,
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware, corsMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)

	return router
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled. Requests run
// on their own contexts so in-flight analyses finish during shutdown.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger := logging.WithFields(logging.Fields{
		"component": "http_server",
		"addr":      listener.Addr().String(),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting")
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := logging.ContextWithFields(r.Context(), logging.Fields{"request_id": requestID})
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))

		logging.WithContext(ctx).Debug("Request served", logging.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"elapsed": time.Since(start).Seconds(),
		})
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
