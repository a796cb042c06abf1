package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/skirmish/internal/catalog"
	"github.com/mcoot/skirmish/internal/dependencies/clock"
	"github.com/mcoot/skirmish/internal/metrics"
	"github.com/mcoot/skirmish/internal/protocol"
	"github.com/mcoot/skirmish/internal/securechannel"
	"github.com/mcoot/skirmish/internal/services/auth"
	"github.com/mcoot/skirmish/internal/services/connmgr"
	"github.com/mcoot/skirmish/internal/services/maintenance"
	"github.com/mcoot/skirmish/internal/services/matchmaking"
	"github.com/mcoot/skirmish/internal/services/session"
	"github.com/mcoot/skirmish/internal/services/team"
	"github.com/mcoot/skirmish/internal/storage"
)

// Config holds TCP server settings
type Config struct {
	Addr           string
	FrameVersion   uint16
	OutboundBuffer int
	WriteTimeout   time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":9339",
		FrameVersion:   1,
		OutboundBuffer: 128,
		WriteTimeout:   10 * time.Second,
	}
}

// Deps are the services a connection talks to
type Deps struct {
	Sessions    *session.Registry
	Engine      *matchmaking.Engine
	Teams       *team.Service
	Auth        *auth.Service
	Accounts    storage.AccountStore
	Catalog     catalog.Catalog
	Channels    securechannel.Factory
	Connections *connmgr.Manager
	Maintenance *maintenance.Mode
	Metrics     metrics.Metrics
	Clock       clock.Clock
}

type handlerFunc func(ctx context.Context, c *Connection, msg protocol.Message) error

// Server accepts client connections and runs one read loop per connection
type Server struct {
	cfg      Config
	deps     Deps
	logger   *slog.Logger
	registry protocol.Registry
	handlers map[uint16]handlerFunc

	nextID atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a Server
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	def := DefaultConfig()
	if cfg.FrameVersion == 0 {
		cfg.FrameVersion = def.FrameVersion
	}
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = def.OutboundBuffer
	}
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   logger.With(slog.String("component", "server")),
		registry: protocol.ClientMessages(),
	}
	s.handlers = s.routes()
	return s
}

// Listen binds the TCP socket
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	s.logger.Info("listening", slog.String("addr", l.Addr().String()))
	return nil
}

// Addr is the bound address, nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then closes every live
// connection and waits for their read loops to finish.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("server: Listen not called")
	}

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	var acceptErr error
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = err
			}
			break
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	closed := s.deps.Sessions.StartShutdown()
	closed += s.deps.Connections.CloseAll()
	s.wg.Wait()
	s.logger.Info("server stopped", slog.Int("connections_closed", closed))
	return acceptErr
}

func (s *Server) handleConn(ctx context.Context, netConn net.Conn) {
	c := newConnection(s.nextID.Add(1), netConn, s.deps.Channels.NewChannel(), s.deps.Clock, s.cfg, s.logger)
	s.deps.Connections.Track(c)
	s.deps.Metrics.ConnectionOpened()
	go c.writeLoop()

	reason := s.readLoop(ctx, c)
	s.teardown(c, reason)
}

// readLoop processes frames strictly in arrival order and returns why it stopped
func (s *Server) readLoop(ctx context.Context, c *Connection) string {
	for {
		h, payload, err := c.readFrame()
		if err != nil {
			var perr *ProtocolError
			switch {
			case errors.As(err, &perr):
				c.logger.Warn("closing connection", slog.String("error", err.Error()))
				return "protocol"
			case errors.Is(err, io.EOF) || !c.IsOpen():
				return "closed"
			default:
				c.logger.Debug("read failed", slog.String("error", err.Error()))
				return "closed"
			}
		}

		if err := s.dispatch(ctx, c, h, payload); err != nil {
			var authErr *AuthError
			var perr *ProtocolError
			switch {
			case errors.As(err, &authErr):
				s.rejectLogin(c, authErr)
				c.waitClosed(s.cfg.WriteTimeout)
				return "auth"
			case errors.As(err, &perr):
				c.logger.Warn("closing connection", slog.String("error", err.Error()))
				return "protocol"
			case c.State() != SecureChannelActive:
				c.logger.Warn("handshake failed", slog.String("error", err.Error()))
				return "handshake"
			default:
				c.logger.Debug("request rejected",
					slog.Int("type", int(h.Type)),
					slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *Connection, h protocol.Header, payload []byte) error {
	switch c.State() {
	case AwaitingHello:
		if h.Type != protocol.TypeClientHello {
			return protocolError("hello", fmt.Errorf("%w: got type %d", ErrOutOfOrder, h.Type))
		}
		return s.handleHello(c, payload)
	case AwaitingLogin:
		if h.Type != protocol.TypeLogin {
			return protocolError("login", fmt.Errorf("%w: got type %d", ErrOutOfOrder, h.Type))
		}
		return s.handleLogin(ctx, c, payload)
	case SecureChannelActive:
	default:
		return protocolError("handshake", fmt.Errorf("%w: state %s", ErrOutOfOrder, c.State()))
	}

	if h.Type == protocol.TypeClientHello || h.Type == protocol.TypeLogin {
		return protocolError("dispatch", fmt.Errorf("%w: repeated handshake message %d", ErrOutOfOrder, h.Type))
	}
	plain, err := c.channel.Decrypt(payload)
	if err != nil {
		return protocolError("decrypt", err)
	}
	msg, err := s.registry.Decode(h.Type, plain)
	if errors.Is(err, protocol.ErrUnknownMessage) {
		c.logger.Debug("ignoring unknown message", slog.Int("type", int(h.Type)))
		return nil
	}
	if err != nil {
		return protocolError("decode", err)
	}
	handler, ok := s.handlers[h.Type]
	if !ok {
		return nil
	}
	return handler(ctx, c, msg)
}

// teardown releases everything the connection held
func (s *Server) teardown(c *Connection, reason string) {
	_ = c.Close()
	if id, ok := c.AccountID(); ok {
		if s.deps.Sessions.Owns(id, c) {
			s.deps.Teams.Disconnect(id)
		}
		s.deps.Sessions.Release(id, c)
	}
	s.deps.Engine.Forget(c)
	s.deps.Connections.Untrack(c)
	s.deps.Metrics.ConnectionClosed(reason)
	s.deps.Metrics.SessionsActive(s.deps.Sessions.Count())
	c.logger.Debug("connection closed", slog.String("reason", reason))
}
