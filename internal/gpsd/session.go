package gpsd

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gpsd-sim/internal/gps"
	"gpsd-sim/internal/metrics"
)

// Handler is the per-connection lifecycle. The server calls OnConnect once,
// OnDataReceived for every read and OnDisconnect when the connection ends;
// Send may be called from any goroutine.
type Handler interface {
	OnConnect(peerID string)
	OnDisconnect(reason error)
	// OnDataReceived buffers p and dispatches every request it completes,
	// returning how many were dispatched.
	OnDataReceived(p []byte) int
	Send(p []byte) error
}

// Reporter builds the reports a session answers with.
type Reporter interface {
	Version() gps.VersionReport
	Position() gps.TPVReport
	Devices() gps.DevicesReport
	Watch(enable, json bool) gps.WatchReport
}

type SessionState uint32

const (
	StateNew SessionState = iota
	StateConnected
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type SessionConfig struct {
	// WriteTimeout bounds every write to the client.
	WriteTimeout time.Duration
	// SendQueue is the number of reports buffered per client before new ones
	// are dropped.
	SendQueue int
	// MaxRequestBytes caps a partially received request.
	MaxRequestBytes int
	// Banner sends a VERSION report on connect, as gpsd does.
	Banner bool
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = 64 * 1024
	}
	return c
}

// Session is one client connection.
type Session struct {
	id       string
	cfg      SessionConfig
	conn     net.Conn
	reporter Reporter
	registry *Registry
	metrics  metrics.Recorder
	baseLog  *slog.Logger

	// framer is only touched by the goroutine reading the connection.
	framer *framer

	mu    sync.Mutex
	peer  string
	log   *slog.Logger
	state SessionState

	out        chan []byte
	closing    chan struct{}
	writerDone chan struct{}
	dead       atomic.Bool
}

var _ Handler = (*Session)(nil)

// NewSession wraps conn. A nil conn yields a session without transport whose
// sends are dropped. The writer goroutine starts immediately.
func NewSession(conn net.Conn, cfg SessionConfig, reporter Reporter, registry *Registry, log *slog.Logger, rec metrics.Recorder) *Session {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	id := uuid.NewString()
	s := &Session{
		id:         id,
		cfg:        cfg,
		conn:       conn,
		reporter:   reporter,
		registry:   registry,
		metrics:    rec,
		baseLog:    log,
		log:        log.With("session", id),
		framer:     newFramer(cfg.MaxRequestBytes),
		out:        make(chan []byte, cfg.SendQueue),
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	if conn != nil {
		go s.writeLoop()
	} else {
		close(s.writerDone)
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) OnConnect(peerID string) {
	s.mu.Lock()
	if s.state != StateNew {
		s.mu.Unlock()
		return
	}
	s.peer = peerID
	s.log = s.baseLog.With("session", s.id, "peer", peerID)
	s.state = StateConnected
	log := s.log
	s.mu.Unlock()

	// The banner is queued before registering so no broadcast can overtake it.
	if s.cfg.Banner && s.reporter != nil {
		s.sendReport(s.reporter.Version())
	}
	if s.registry != nil {
		s.registry.Register(peerID, s)
	}
	s.metrics.SessionOpened()
	log.Info("client connected")
}

// OnDisconnect releases the session's own registry entry and marks it
// closed. Calling it again is a no-op.
func (s *Session) OnDisconnect(reason error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasConnected := s.state == StateConnected
	s.state = StateClosed
	peer := s.peer
	log := s.log
	close(s.closing)
	s.mu.Unlock()

	if wasConnected {
		if s.registry != nil {
			s.registry.Release(peer, s)
		}
		s.metrics.SessionClosed()
	}
	if reason == nil || errors.Is(reason, io.EOF) {
		log.Info("client disconnected")
	} else {
		log.Info("client disconnected", "reason", reason)
	}
}

func (s *Session) OnDataReceived(p []byte) int {
	s.log.Debug("received", "bytes", len(p))
	reqs, err := s.framer.Feed(p)
	if err != nil {
		s.metrics.ProtocolError()
		s.log.Warn("request dropped", "error", err)
	}
	for _, raw := range reqs {
		s.dispatch(raw)
	}
	return len(reqs)
}

// Send queues p for the writer. Without an open transport the data is
// dropped and nil returned; a full queue drops p and returns
// ErrSendQueueFull.
func (s *Session) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.state == StateClosed || s.dead.Load() {
		s.log.Warn("send skipped; no transport", "bytes", len(p))
		return nil
	}
	select {
	case s.out <- p:
		return nil
	default:
		s.metrics.SendDropped()
		s.log.Warn("send dropped; queue full", "bytes", len(p))
		return ErrSendQueueFull
	}
}

// Close disconnects the session, waits for queued writes to finish or time
// out, then closes the connection.
func (s *Session) Close(reason error) {
	s.OnDisconnect(reason)
	<-s.writerDone
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// abort drops the connection without waiting for queued writes.
func (s *Session) abort() {
	s.dead.Store(true)
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Serve reads from the connection until it fails or is closed, then closes
// the session.
func (s *Session) Serve() {
	if s.conn == nil {
		return
	}
	buf := make([]byte, 4096)
	var reason error
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.OnDataReceived(buf[:n])
		}
		if err != nil {
			reason = err
			break
		}
	}
	if errors.Is(reason, net.ErrClosed) {
		reason = nil
	}
	s.Close(reason)
}

func (s *Session) dispatch(raw []byte) {
	req, err := ParseRequest(raw)
	if err != nil {
		s.metrics.ProtocolError()
		s.log.Warn("request dropped", "error", err)
		return
	}
	if s.reporter == nil {
		s.log.Warn("request dropped; no reporter", "command", req.Command)
		return
	}

	switch req.Command {
	case CmdVersion:
		s.sendReport(s.reporter.Version())
	case CmdPoll, CmdTPV:
		s.sendReport(s.reporter.Position())
	case CmdDevices:
		s.sendReport(s.reporter.Devices())
	case CmdWatch:
		enable, asJSON, err := req.watch()
		if err != nil {
			s.metrics.ProtocolError()
			s.log.Warn("request dropped", "error", err)
			return
		}
		s.sendReport(s.reporter.Watch(enable, asJSON))
		if enable {
			s.sendReport(s.reporter.Position())
		}
	default:
		s.metrics.ProtocolError()
		s.log.Warn("request dropped", "error", &ProtocolError{Request: string(raw), Reason: "unknown command"})
		return
	}
	s.metrics.Request(req.Command)
	s.log.Debug("request served", "command", req.Command)
}

func (s *Session) sendReport(v any) {
	b, err := EncodeReport(v)
	if err != nil {
		s.log.Error("report encode failed", "error", err)
		return
	}
	_ = s.Send(b)
}

// EncodeReport renders one newline-terminated JSON report.
func EncodeReport(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case p := <-s.out:
			s.write(p)
		case <-s.closing:
			// Flush whatever was queued before the close.
			for {
				select {
				case p := <-s.out:
					s.write(p)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(p []byte) {
	if s.dead.Load() {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	n, err := s.conn.Write(p)
	if n > 0 {
		s.metrics.BytesSent(n)
	}
	if err != nil {
		s.dead.Store(true)
		s.mu.Lock()
		log := s.log
		peer := s.peer
		s.mu.Unlock()
		log.Warn("write failed; closing", "error", &TransportError{Peer: peer, Err: err})
		// Unblocks the reader, which then closes the session.
		_ = s.conn.Close()
	}
}
