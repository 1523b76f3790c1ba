package runfiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// ServerConfig configures a runfiles HTTP server.
type ServerConfig struct {
	// Port to listen on. Zero picks an ephemeral port.
	Port Port
	// Index is the page opened in the browser once the server is up. Empty
	// means no browser is launched.
	Index string
	// NoBrowser suppresses the browser even when Index is set.
	NoBrowser bool
	// Runfiles configures request handling.
	Runfiles Config
	// Ready receives the single readiness line. Defaults to os.Stdout.
	Ready io.Writer

	// Allocate and OpenBrowser replace EphemeralPort and the default
	// browser launcher.
	Allocate    func() (Port, error)
	OpenBrowser func(url string)
}

// Server serves a runfiles tree over HTTP on localhost. Every connection is
// handled on its own goroutine by net/http.
type Server struct {
	cfg       ServerConfig
	responder *Responder
	logger    *zap.Logger

	port     Port
	listener net.Listener
	http     *http.Server
	serveErr chan error
}

// NewServer builds the immutable request-handling state. It does not bind.
func NewServer(cfg ServerConfig) (*Server, error) {
	responder, err := NewResponder(cfg.Runfiles)
	if err != nil {
		return nil, err
	}
	if cfg.Ready == nil {
		cfg.Ready = os.Stdout
	}
	if cfg.Allocate == nil {
		cfg.Allocate = EphemeralPort
	}
	s := &Server{
		cfg:       cfg,
		responder: responder,
		logger:    responder.logger,
	}
	if cfg.OpenBrowser == nil {
		s.cfg.OpenBrowser = func(url string) { launchBrowser(s.logger, url) }
	}
	return s, nil
}

// Port returns the bound port. It is zero before Start.
func (s *Server) Port() Port {
	return s.port
}

// URL returns the base URL of the running server.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}

// Start binds the port, begins serving and then writes one line to the
// readiness writer. Processes launched by integration-test-runner rely on
// that line to know the server accepts connections.
func (s *Server) Start() error {
	if s.listener != nil {
		return errors.New("server already started")
	}

	port := s.cfg.Port
	if port == 0 {
		p, err := s.cfg.Allocate()
		if err != nil {
			return err
		}
		port = p
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("localhost", port.String()))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", port, err)
	}
	s.listener = ln
	s.port = port
	s.http = &http.Server{
		Handler:           s.responder,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}
	s.serveErr = make(chan error, 1)
	go func() {
		s.serveErr <- s.http.Serve(ln)
	}()

	if _, err := fmt.Fprintf(s.cfg.Ready, "listening on %d\n", port); err != nil {
		s.http.Close()
		return fmt.Errorf("writing readiness line: %w", err)
	}
	s.logger.Info("serving runfiles",
		zap.String("root", s.responder.Root()),
		zap.Stringer("port", port),
		zap.Bool("live_reload", len(s.responder.snippet) > 0))

	if s.shouldOpenBrowser() {
		go s.cfg.OpenBrowser(fmt.Sprintf("%s/%s", s.URL(), s.cfg.Index))
	}
	return nil
}

// When started with an index page the server normally opens it, but
// --nobrowser overrides that without touching the target's attributes.
func (s *Server) shouldOpenBrowser() bool {
	return s.cfg.Index != "" && !s.cfg.NoBrowser
}

// Run starts the server and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := <-s.serveErr; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down", zap.Stringer("port", s.port))
		return s.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close stops a started server immediately.
func (s *Server) Close() error {
	if s.http == nil {
		return nil
	}
	return s.http.Close()
}
