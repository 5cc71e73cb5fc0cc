package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

// Server is the HTTP surface of dotbox: the streamable MCP endpoint plus a
// small operator API.
type Server struct {
	mgr      *sandbox.Manager
	mcp      *mcpserver.StreamableHTTPServer
	gatherer prometheus.Gatherer
	log      zerolog.Logger
	router   chi.Router
	http     *http.Server
}

// New creates a Server. gatherer may be nil to serve the default registry.
func New(mgr *sandbox.Manager, tools *mcpserver.MCPServer, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		mgr:      mgr,
		mcp:      mcpserver.NewStreamableHTTPServer(tools),
		gatherer: gatherer,
		log:      log.With().Str("component", "http").Logger(),
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Handle("/mcp", s.mcp)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sandboxes", s.handleListSandboxes)
		r.Get("/sandboxes/{project}", s.handleGetSandbox)
		r.Delete("/sandboxes/{project}", s.handleStopSandbox)
		r.Get("/sandboxes/{project}/logs", s.handleLogs)

		// WebSocket (plain text frames)
		r.Get("/sandboxes/{project}/logs/ws", s.handleLogsWebSocket)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("dotbox HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and drains open ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.log.Info().Msg("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
