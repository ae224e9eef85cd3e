// Package gateway implements the helper's HTTP surface: routing, request
// validation, error-to-status mapping and generation telemetry headers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-helper/internal/api"
	"github.com/book-expert/tts-helper/internal/config"
	"github.com/book-expert/tts-helper/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// DefaultModelName is reported by /health when Options.ModelName is empty.
	DefaultModelName = "kokoro-82m"

	// DefaultArchiveTimeout bounds a single background archive call.
	DefaultArchiveTimeout = 30 * time.Second

	maxBodyBytes      = 64 << 10
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// Options tunes the gateway. The zero value serves with defaults, no secret
// check and no archiving.
type Options struct {
	ModelName      string
	RequireSecret  bool
	Archiver       core.Archiver
	ArchiveTimeout time.Duration
}

// Server routes HTTP requests to the speech generator. Health and catalog
// requests only read snapshots and never wait on a generation in progress.
type Server struct {
	cfg       *config.Config
	opts      Options
	generator core.SpeechGenerator
	log       *logger.Logger

	started  time.Time
	requests atomic.Int64
	archives sync.WaitGroup

	handler    http.Handler
	httpServer *http.Server
}

// New creates a Server. cfg is shared read-only; generator is usually a
// *worker.Supervisor.
func New(cfg *config.Config, opts Options, generator core.SpeechGenerator, log *logger.Logger) *Server {
	if opts.ModelName == "" {
		opts.ModelName = DefaultModelName
	}

	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = DefaultArchiveTimeout
	}

	server := &Server{
		cfg:       cfg,
		opts:      opts,
		generator: generator,
		log:       log,
		started:   time.Now(),
	}
	server.handler = server.routes()
	server.httpServer = &http.Server{
		Handler:           server.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Use(s.countRequests)
	router.Use(s.logRequests)
	router.Use(cors)

	router.Get(api.PathHealth, s.handleHealth)
	router.Get(api.PathVoices, s.handleVoices)

	if s.opts.RequireSecret {
		router.With(s.checkSecret).Post(api.PathSpeak, s.handleSpeak)
	} else {
		router.Post(api.PathSpeak, s.handleSpeak)
	}

	router.NotFound(s.handleNotFound)
	router.MethodNotAllowed(s.handleNotFound)

	return router
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// RequestsServed returns the number of requests accepted so far.
func (s *Server) RequestsServed() int64 {
	return s.requests.Load()
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	s.log.Info("HTTP gateway listening on http://%s", listener.Addr())

	err := s.httpServer.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

// Shutdown stops accepting connections, lets in-flight requests finish and
// then waits for pending archive uploads, all bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	done := make(chan struct{})

	go func() {
		s.archives.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for archive uploads: %w", ctx.Err())
	}
}
