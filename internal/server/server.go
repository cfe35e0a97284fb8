package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/hbootdbg/internal/debugger"
	"github.com/muurk/hbootdbg/internal/device"
	"github.com/muurk/hbootdbg/internal/discovery"
	"github.com/muurk/hbootdbg/internal/logging"
	"github.com/muurk/hbootdbg/internal/transport"
)

// Config holds the server configuration
type Config struct {
	Listen     transport.Endpoint // Where the debugger connects
	Link       device.LinkConfig  // Envelope mode and reconnect policy for the agent
	Session    debugger.Config    // First run and poll intervals
	PacketSize int                // Advertised in qSupported (default 1024)
	LogLevel   string

	// Advertise is the mDNS instance name announced while waiting for the
	// debugger. Empty disables announcing; serial listeners never announce.
	Advertise string
	// AdvertiseMeta is added to the announced TXT record.
	AdvertiseMeta discovery.Metadata
}

// AcceptFunc waits for one debugger on an endpoint.
type AcceptFunc func(ctx context.Context, e transport.Endpoint) (transport.Transport, error)

// Server bridges a single debugger session to the device agent
type Server struct {
	config *Config
	dial   transport.Dialer
	accept AcceptFunc
	logger *zap.Logger

	mu     sync.Mutex
	client transport.Transport
	closed bool
}

// New creates a new Server instance. dial opens the transport to the agent.
func New(config *Config, dial transport.Dialer) (*Server, error) {
	// Initialize logging
	if err := logging.Initialize(config.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	if dial == nil {
		return nil, errors.New("no device dialer configured")
	}

	return &Server{
		config: config,
		dial:   dial,
		accept: transport.Accept,
		logger: logging.GetLogger(),
	}, nil
}

// WithAccept replaces the function used to wait for the debugger.
func (s *Server) WithAccept(accept AcceptFunc) *Server {
	s.accept = accept
	return s
}

// Start runs the server and blocks until the session ends or a shutdown
// signal arrives.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := s.Run(ctx)
	if ctx.Err() != nil {
		logging.Info("Shutdown signal received, server stopped")
	}
	logging.Sync()
	return err
}

// Run serves one debugger session. Cancelling ctx closes the client
// transport and the device link; cancellation and deadline expiry are not
// reported as errors.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return s.serve(ctx)
	})

	// Unblock the read loop, which has no deadline of its own.
	g.Go(func() error {
		<-ctx.Done()
		s.closeClient()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *Server) serve(ctx context.Context) error {
	link := device.NewLink(s.dial, s.config.Link, s.logger)
	defer func() {
		if err := link.Close(); err != nil {
			s.logger.Debug("Error closing device link", zap.Error(err))
		}
	}()

	ctrl := debugger.NewController(link, s.config.Session, s.logger)
	if s.config.Session.FirstRun {
		logging.Info("First run: attaching and trapping the target")
		if err := ctrl.Attach(ctx); err != nil {
			return fmt.Errorf("first run attach: %w", err)
		}
	}

	logging.Info("Starting hboot debug bridge",
		zap.String("listen", s.config.Listen.String()),
		zap.Bool("fastboot_mode", s.config.Link.FastbootMode),
		zap.Bool("first_run", s.config.Session.FirstRun),
		zap.String("log_level", s.config.LogLevel),
	)

	withdraw := s.advertise()
	client, err := s.accept(ctx, s.config.Listen)
	withdraw()
	if err != nil {
		return err
	}
	if !s.setClient(client) {
		_ = client.Close()
		return ctx.Err()
	}
	defer s.closeClient()

	session := NewSession(client, ctrl, s.config.PacketSize, s.logger)
	if err := session.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Error("Session ended with error", zap.Error(err))
		return err
	}
	return nil
}

// setClient records the accepted client. It reports false when shutdown
// has already begun.
func (s *Server) setClient(t transport.Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.client = t
	return true
}

func (s *Server) closeClient() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.closed = true
	s.mu.Unlock()

	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		s.logger.Debug("Error closing debugger connection", zap.Error(err))
	}
	logging.LogConnection(s.config.Listen.String(), "connection_closed")
}

// advertise announces the listener over mDNS and returns the function that
// withdraws it. Failures are logged; the debugger can still connect.
func (s *Server) advertise() func() {
	nop := func() {}
	e := s.config.Listen
	if s.config.Advertise == "" || (e.Network != "tcp" && e.Network != "ws") {
		return nop
	}

	_, portStr, err := net.SplitHostPort(e.Address)
	if err != nil {
		s.logger.Warn("Cannot advertise listener", zap.String("listen", e.String()), zap.Error(err))
		return nop
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		s.logger.Warn("Cannot advertise listener without a fixed port", zap.String("listen", e.String()))
		return nop
	}

	meta := discovery.Metadata{
		"proto":   e.Network,
		"channel": "hboot",
	}
	if s.config.Link.FastbootMode {
		meta["channel"] = "fastboot"
	}
	if e.Network == "ws" {
		meta["path"] = e.Path
	}
	for k, v := range s.config.AdvertiseMeta {
		meta[k] = v
	}

	ad, err := discovery.Advertise(s.config.Advertise, port, meta)
	if err != nil {
		s.logger.Warn("mDNS advertisement failed", zap.Error(err))
		return nop
	}
	s.logger.Info("Advertising bridge over mDNS",
		zap.String("instance", s.config.Advertise),
		zap.String("service", discovery.ServiceType),
		zap.Int("port", port),
	)
	return ad.Shutdown
}
