package gpsd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"gpsd-sim/internal/metrics"
)

const DefaultAddr = "localhost:2948"

type Config struct {
	Addr string
	// MaxClients caps concurrent connections; 0 means unbounded.
	MaxClients int
	Session    SessionConfig
}

type listenFunc func(ctx context.Context, network, address string) (net.Listener, error)

func defaultListen(ctx context.Context, network, address string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	return lc.Listen(ctx, network, address)
}

// Server accepts gpsd clients and runs one Session per connection.
type Server struct {
	cfg      Config
	reporter Reporter
	registry *Registry
	log      *slog.Logger
	metrics  metrics.Recorder
	listen   listenFunc

	mu       sync.Mutex
	ln       net.Listener
	sessions map[*Session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

type ServerOption func(*Server)

func WithServerLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

func WithMetrics(rec metrics.Recorder) ServerOption {
	return func(s *Server) { s.metrics = rec }
}

func NewServer(cfg Config, reporter Reporter, registry *Registry, opts ...ServerOption) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	cfg.Session = cfg.Session.withDefaults()
	s := &Server{
		cfg:      cfg,
		reporter: reporter,
		registry: registry,
		log:      slog.Default(),
		metrics:  metrics.NoopRecorder{},
		listen:   defaultListen,
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry(s.log)
	}
	return s
}

func (s *Server) Registry() *Registry { return s.registry }

// Listen binds the configured address.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.ln != nil {
		return nil
	}
	ln, err := s.listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until Shutdown. It returns nil after a shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	s.log.Info("serving", "addr", ln.Addr().String())
	backoff := 5 * time.Millisecond
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept failed", "error", err)
			time.Sleep(backoff)
			if backoff < time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 5 * time.Millisecond
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	if s.cfg.MaxClients > 0 && len(s.sessions) >= s.cfg.MaxClients {
		s.mu.Unlock()
		s.log.Warn("client rejected; too many clients", "peer", conn.RemoteAddr().String(), "max", s.cfg.MaxClients)
		_ = conn.Close()
		return
	}
	sess := NewSession(conn, s.cfg.Session, s.reporter, s.registry, s.log, s.metrics)
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess)
			s.mu.Unlock()
		}()
		sess.OnConnect(conn.RemoteAddr().String())
		sess.Serve()
	}()
}

// Broadcast sends p to every registered client.
func (s *Server) Broadcast(p []byte) int {
	return s.registry.Broadcast(p)
}

// Shutdown stops accepting, closes every session and waits for their
// goroutines until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	// Each Close waits for that session's pending writes, so a client that
	// stopped reading holds it for up to WriteTimeout. Close them together
	// and give up at ctx.
	done := make(chan struct{})
	go func() {
		var closing sync.WaitGroup
		for _, sess := range sessions {
			closing.Add(1)
			go func() {
				defer closing.Done()
				sess.Close(ErrServerClosed)
			}()
		}
		closing.Wait()
		// Replaced sessions are no longer in the registry, so the server's
		// own set is closed first.
		s.registry.Close(ErrServerClosed)
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, sess := range sessions {
			sess.abort()
		}
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}
