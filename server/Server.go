package server

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"dnsfwd/resolver"
	"go.uber.org/zap"
	"go4.org/netipx"
)

const DefaultBufferSize = 4096

// Handler answers one raw query. reply sends bytes back to the querying client.
type Handler interface {
	Handle(ctx context.Context, raw []byte, reply func([]byte) error) (resolver.Outcome, error)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Listen     string
	BufferSize int

	// AllowedClients limits who may query. Empty allows everyone.
	AllowedClients []netip.Prefix
}

type Server struct {
	udpServer  net.PacketConn
	handler    Handler
	logger     *zap.Logger
	bufferSize int
	allowed    *netipx.IPSet
	stats      statsCollector

	wg       sync.WaitGroup
	shutdown context.CancelFunc
	ctx      context.Context

	mu       sync.Mutex
	started  bool
	loopDone chan struct{}
}

func NewServer(cfg ServerConfig, handler Handler, logger *zap.Logger) (*Server, error) {
	var allowed *netipx.IPSet
	if len(cfg.AllowedClients) > 0 {
		var sb netipx.IPSetBuilder
		for _, prefix := range cfg.AllowedClients {
			sb.AddPrefix(prefix)
		}
		var err error
		if allowed, err = sb.IPSet(); err != nil {
			return nil, err
		}
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	udpServer, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		udpServer:  udpServer,
		handler:    handler,
		logger:     logger,
		bufferSize: bufferSize,
		allowed:    allowed,
		ctx:        ctx,
		shutdown:   cancel,
		loopDone:   make(chan struct{}),
	}, nil
}

// LocalAddr returns the address the server is bound to.
func (s *Server) LocalAddr() net.Addr {
	return s.udpServer.LocalAddr()
}

// Stats returns a snapshot of the query counters.
func (s *Server) Stats() Stats {
	return s.stats.snapshot()
}

// Start reads queries until Close is called. Each datagram is handled on its own goroutine.
func (s *Server) Start() {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	defer close(s.loopDone)

	s.logger.Info("Starting DNS server", zap.Stringer("listen", s.udpServer.LocalAddr()))

	buf := make([]byte, s.bufferSize)
	for {
		n, addr, err := s.udpServer.ReadFrom(buf)
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Failed to read UDP packet", zap.Error(err))
			continue
		}

		packet := make([]byte, n)
		copy(packet, buf)

		s.wg.Add(1)
		go s.process(addr, packet)
	}
}

// Close stops reading, waits for pending queries and closes the socket.
// Pending queries are bounded by the upstream timeout.
func (s *Server) Close() error {
	s.shutdown()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if started {
		// Unblock ReadFrom.
		if err := s.udpServer.SetReadDeadline(time.Now()); err != nil {
			s.logger.Warn("Failed to set read deadline", zap.Error(err))
		}
		<-s.loopDone
	}
	s.wg.Wait()

	if err := s.udpServer.Close(); err != nil {
		return err
	}
	s.logger.Info("Server shut down gracefully", zap.Stringer("listen", s.udpServer.LocalAddr()))
	return nil
}

func (s *Server) allows(addr net.Addr) bool {
	if s.allowed == nil {
		return true
	}
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return false
	}
	return s.allowed.Contains(udpAddr.AddrPort().Addr().Unmap())
}

// process handles a single DNS query datagram.
func (s *Server) process(addr net.Addr, buf []byte) {
	defer s.wg.Done()

	if !s.allows(addr) {
		s.stats.refused.Add(1)
		if ce := s.logger.Check(zap.DebugLevel, "Refusing query from disallowed client"); ce != nil {
			ce.Write(zap.Stringer("client", addr))
		}
		return
	}

	// In-flight queries outlive Close and are bounded by the upstream timeout.
	ctx := context.WithoutCancel(s.ctx)
	outcome, err := s.handler.Handle(ctx, buf, func(b []byte) error {
		_, err := s.udpServer.WriteTo(b, addr)
		return err
	})
	s.stats.collect(outcome)

	switch {
	case err == nil:
	case outcome == resolver.OutcomeDropped:
		if ce := s.logger.Check(zap.DebugLevel, "Dropping malformed query"); ce != nil {
			ce.Write(
				zap.Stringer("client", addr),
				zap.Int("length", len(buf)),
				zap.Error(err),
			)
		}
	case outcome == resolver.OutcomeFailed:
		// Already logged by the forwarder.
	default:
		s.logger.Warn("Failed to reply",
			zap.Stringer("client", addr),
			zap.Stringer("outcome", outcome),
			zap.Error(err),
		)
	}
}
