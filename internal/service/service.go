// Package service wires the dashboard service together: the producer
// socket, the command queue, the render loop, and the frame surfaces
// (PNG files and the live viewer), plus the connection audit.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/livedash/host/internal/auth"
	"github.com/livedash/host/internal/config"
	"github.com/livedash/host/internal/dashboard"
	"github.com/livedash/host/internal/ipc"
	"github.com/livedash/host/internal/queue"
	"github.com/livedash/host/internal/render"
	"github.com/livedash/host/internal/server"
	"github.com/livedash/host/internal/storage"
)

// Service is one running dashboard host.
type Service struct {
	cfg      config.Config
	instance string
	logger   *log.Logger
	started  time.Time

	queue    *queue.Queue
	listener *ipc.Listener
	loop     *Loop
	surfaces render.MultiSurface
	files    *render.FileSurface
	viewer   *server.Server
	audit    *storage.SQLiteStore

	mu      sync.Mutex
	running bool
}

// New builds a service from a configuration with defaults applied. If
// logger is nil, logs are discarded.
func New(cfg config.Config, logger *log.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	debug := cfg.LogLevel == "debug"

	s := &Service{
		cfg:      cfg,
		instance: uuid.NewString(),
		logger:   logger,
	}

	if cfg.QueueCapacity > 0 {
		s.queue = queue.NewBounded(cfg.QueueCapacity, cfg.QueueOverflow)
	} else {
		s.queue = queue.New()
	}

	verifier, err := auth.NewSecretVerifier(auth.VerifierConfig{
		Hash:   cfg.SecretHash,
		Secret: cfg.Secret,
	})
	if err != nil {
		return nil, err
	}
	if cfg.UsesDefaultSecret() {
		logger.Printf("warning: using the default shared secret; set secret_hash in the config file")
	}

	s.audit, err = storage.NewSQLiteStore(cfg.AuditDB)
	if err != nil {
		return nil, err
	}

	if cfg.OutputDir != config.Disabled {
		s.files, err = render.NewFileSurface(cfg.OutputDir)
		if err != nil {
			s.audit.Close()
			return nil, err
		}
		s.surfaces = append(s.surfaces, s.files)
	}
	if cfg.ViewerAddr != config.Disabled {
		s.viewer = server.NewServer(cfg.ViewerAddr, componentLogger(logger, "viewer: "))
		s.viewer.SetStatusFunc(func() any { return s.Status() })
		s.surfaces = append(s.surfaces, s.viewer)
	}

	s.listener = ipc.NewListener(ipc.Config{
		Path:             cfg.SocketPath,
		Sink:             s.queue,
		Auth:             verifier,
		Instance:         s.instance,
		HandshakeTimeout: time.Duration(cfg.HandshakeTimeoutMs) * time.Millisecond,
		Observer:         NewAuditObserver(s.audit, s.instance, cfg.AuditMaxRejections, componentLogger(logger, "storage: ")),
		Logger:           componentLogger(logger, "ipc: "),
		Debug:            debug,
	})

	s.loop = NewLoop(LoopConfig{
		Queue:         s.queue,
		Registry:      dashboard.NewRegistry(),
		Renderer:      render.NewRenderer(cfg.PanelWidth, cfg.PanelHeight),
		Surface:       s.surfaces,
		FrameInterval: time.Duration(cfg.FrameIntervalMs) * time.Millisecond,
		Logger:        componentLogger(logger, "loop: "),
		Debug:         debug,
	})

	return s, nil
}

// Instance returns the id sent to producers in welcome frames.
func (s *Service) Instance() string {
	return s.instance
}

// SocketPath returns the producer socket path.
func (s *Service) SocketPath() string {
	return s.listener.Path()
}

// ViewerAddr returns the viewer's bound address, or "" when disabled.
func (s *Service) ViewerAddr() string {
	if s.viewer == nil {
		return ""
	}
	return s.viewer.Addr()
}

// Start binds the producer socket and the viewer.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("service already started")
	}

	if err := s.listener.Start(); err != nil {
		return err
	}
	if s.viewer != nil {
		if err := <-s.viewer.StartAsync(); err != nil {
			s.listener.Stop()
			return fmt.Errorf("viewer: %w", err)
		}
	}

	s.started = time.Now()
	s.running = true
	s.logger.Printf("instance %s serving %s", s.instance, s.cfg.SocketPath)
	if s.viewer != nil {
		s.logger.Printf("viewer at http://%s/", s.viewer.Addr())
	}
	return nil
}

// Run drives the render loop until ctx is cancelled, then stops the
// producer socket, applies what producers sent before going away, and
// closes every surface and the audit store.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return errors.New("service not started")
	}

	if err := s.loop.Run(ctx); err != nil {
		s.logger.Printf("render loop stopped: %v", err)
	}
	return s.shutdown()
}

func (s *Service) shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	s.logger.Printf("shutting down")
	var errs []error
	if err := s.listener.Stop(); err != nil {
		errs = append(errs, err)
	}
	s.loop.Cycle()
	if err := s.surfaces.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.audit.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// FramePath returns where a client's PNG is written, or "" when PNG
// output is disabled.
func (s *Service) FramePath(clientID uint64) string {
	if s.files == nil {
		return ""
	}
	return s.files.Path(clientID)
}

// componentLogger derives a logger with its own prefix from base.
func componentLogger(base *log.Logger, prefix string) *log.Logger {
	return log.New(base.Writer(), prefix, base.Flags())
}
