// Package server exposes the rewriter over HTTP: a prompt page, a chunked
// HTML endpoint and a websocket endpoint that stream generated documents.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/SawyerHood/openai-html-stream/internal/completion"
	"github.com/SawyerHood/openai-html-stream/internal/config"
	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
	"github.com/SawyerHood/openai-html-stream/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Generator produces the upstream deltas for a prompt.
type Generator interface {
	Stream(ctx context.Context, req completion.Request) (htmlstream.Source, error)
}

type Server struct {
	config     *config.Config
	generator  Generator
	logger     logging.Logger
	errHandler *errors.ErrorHandler

	serverMutex sync.RWMutex
	httpServer  *http.Server
	listener    net.Listener

	clientsMutex sync.Mutex
	clients      map[*websocket.Conn]struct{}

	shutdownOnce sync.Once
}

func New(cfg *config.Config, generator Generator, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("server")
	return &Server{
		config:     cfg,
		generator:  generator,
		logger:     logger,
		errHandler: errors.NewErrorHandler(logger),
		clients:    make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the routes wrapped in the server middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.handleIndex())
	mux.HandleFunc("GET /generate", s.handleGenerate)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)

	return chain(mux,
		s.recoveryMiddleware,
		securityHeadersMiddleware,
		s.loggingMiddleware,
		requestIDMiddleware,
	)
}

// Start listens on the configured address and serves until the server is
// shut down or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Server.Addr(), err)
	}

	s.serverMutex.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "Graceful shutdown failed")
		}
	})
	defer stop()

	s.logger.Info(ctx, "Server listening", "addr", "http://"+ln.Addr().String())

	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Addr returns the bound address once Start is listening, or "".
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes open websocket streams and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.clientsMutex.Lock()
		for conn := range s.clients {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]struct{})
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

// originPatterns lists the hosts of the configured allowed origins. The
// server's own host is always accepted by the websocket handshake.
func (s *Server) originPatterns() []string {
	patterns := make([]string, 0, len(s.config.Server.AllowedOrigins))
	for _, origin := range s.config.Server.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

func (s *Server) trackClient(conn *websocket.Conn) {
	s.clientsMutex.Lock()
	s.clients[conn] = struct{}{}
	s.clientsMutex.Unlock()
}

func (s *Server) untrackClient(conn *websocket.Conn) {
	s.clientsMutex.Lock()
	delete(s.clients, conn)
	s.clientsMutex.Unlock()
}
