package udp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/services/battle"
)

// handleSize is the length of the session handle prefixed to every datagram
const handleSize = 16

var ErrUnknownSession = errors.New("unknown transport session")

// Config holds UDP gateway settings
type Config struct {
	Addr       string
	PublicHost string // advertised to clients; defaults to the bound host
	PublicPort int
}

// Packet is a datagram received for a bound session
type Packet struct {
	Battle  model.BattleID
	Account model.AccountID
	Payload []byte
}

// Sink consumes inbound battle traffic
type Sink func(Packet)

type session struct {
	battle  model.BattleID
	account model.AccountID
	peer    *net.UDPAddr
}

// Gateway hands out transport session handles and routes battle datagrams.
// Each datagram starts with the 16 byte handle from UDPConnectionInfo.
type Gateway struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
	conn     *net.UDPConn
}

// Ensure Gateway implements the battle transport
var _ battle.Transport = (*Gateway)(nil)

// New creates a Gateway; sink may be nil to drop inbound traffic
func New(cfg Config, sink Sink, logger *slog.Logger) *Gateway {
	if sink == nil {
		sink = func(Packet) {}
	}
	return &Gateway{
		cfg:      cfg,
		sink:     sink,
		logger:   logger.With(slog.String("component", "udp-gateway")),
		sessions: make(map[uuid.UUID]*session),
	}
}

func (g *Gateway) Bind(b model.BattleID, account model.AccountID) (battle.TransportSession, error) {
	id := uuid.New()
	g.mu.Lock()
	g.sessions[id] = &session{battle: b, account: account}
	g.mu.Unlock()
	return battle.TransportSession{ID: id.String(), Token: append([]byte(nil), id[:]...)}, nil
}

func (g *Gateway) Release(sessionID string) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return
	}
	g.mu.Lock()
	delete(g.sessions, id)
	g.mu.Unlock()
}

func (g *Gateway) Endpoint() (string, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	host, port := g.cfg.PublicHost, g.cfg.PublicPort
	if g.conn != nil {
		addr := g.conn.LocalAddr().(*net.UDPAddr)
		if host == "" {
			host = addr.IP.String()
		}
		if port == 0 {
			port = addr.Port
		}
	}
	return host, port
}

// Count returns the number of bound sessions
func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Listen binds the UDP socket
func (g *Gateway) Listen() error {
	addr, err := net.ResolveUDPAddr("udp", g.cfg.Addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()
	g.logger.Info("udp gateway listening", slog.String("addr", conn.LocalAddr().String()))
	return nil
}

// Serve reads datagrams until ctx is cancelled
func (g *Gateway) Serve(ctx context.Context) error {
	g.mu.RLock()
	conn := g.conn
	g.mu.RUnlock()
	if conn == nil {
		return errors.New("udp gateway: Listen not called")
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		g.handle(buf[:n], peer)
	}
}

func (g *Gateway) handle(datagram []byte, peer *net.UDPAddr) {
	if len(datagram) < handleSize {
		return
	}
	var id uuid.UUID
	copy(id[:], datagram[:handleSize])

	g.mu.Lock()
	sess, ok := g.sessions[id]
	if ok {
		sess.peer = peer
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	g.sink(Packet{
		Battle:  sess.battle,
		Account: sess.account,
		Payload: append([]byte(nil), datagram[handleSize:]...),
	})
}

// Send writes payload to the last address seen for the session
func (g *Gateway) Send(sessionID string, payload []byte) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return ErrUnknownSession
	}
	g.mu.RLock()
	sess, ok := g.sessions[id]
	conn := g.conn
	var peer *net.UDPAddr
	if ok {
		peer = sess.peer
	}
	g.mu.RUnlock()
	if !ok || peer == nil || conn == nil {
		return ErrUnknownSession
	}
	_, err = conn.WriteToUDP(payload, peer)
	return err
}
