package connmgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/skirmish/internal/dependencies/clock"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/services/session"
)

// DefaultHeartbeatWindow is how long a connection may stay silent before it is reaped
const DefaultHeartbeatWindow = 15 * time.Second

// Tracked is a live client connection as seen by the reconciler
type Tracked interface {
	session.Conn
	// AccountID is the logged in account, false until login succeeds
	AccountID() (model.AccountID, bool)
	// LastSeen is when the connection last received a liveness message
	LastSeen() time.Time
}

// Manager periodically reconciles tracked connections against the session
// registry. It is the only path that detects peers which vanished without
// closing their socket.
type Manager struct {
	sessions *session.Registry
	clock    clock.Clock
	window   time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[uint64]Tracked
}

// NewManager creates a Manager. A non-positive window uses DefaultHeartbeatWindow.
func NewManager(sessions *session.Registry, clk clock.Clock, window time.Duration, logger *slog.Logger) *Manager {
	if window <= 0 {
		window = DefaultHeartbeatWindow
	}
	return &Manager{
		sessions: sessions,
		clock:    clk,
		window:   window,
		logger:   logger.With(slog.String("component", "connmgr")),
		conns:    make(map[uint64]Tracked),
	}
}

// Track starts reconciling conn
func (m *Manager) Track(conn Tracked) {
	m.mu.Lock()
	m.conns[conn.ID()] = conn
	total := len(m.conns)
	m.mu.Unlock()
	m.logger.Debug("connection tracked", slog.Uint64("conn_id", conn.ID()), slog.Int("total", total))
}

// Untrack stops reconciling conn
func (m *Manager) Untrack(conn Tracked) {
	m.mu.Lock()
	delete(m.conns, conn.ID())
	m.mu.Unlock()
}

// Count returns the number of tracked connections
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Reconcile runs one pass. Closed connections are pruned, logged in
// connections without a session are closed, and silent connections have their
// session removed and are closed. Returns the number of connections closed.
func (m *Manager) Reconcile(ctx context.Context) int {
	m.mu.Lock()
	snapshot := make([]Tracked, 0, len(m.conns))
	for _, c := range m.conns {
		snapshot = append(snapshot, c)
	}
	m.mu.Unlock()

	now := m.clock.Now()
	var pruned []uint64
	closed := 0
	for _, c := range snapshot {
		if !c.IsOpen() {
			pruned = append(pruned, c.ID())
			continue
		}

		account, loggedIn := c.AccountID()
		switch {
		case now.Sub(c.LastSeen()) > m.window:
			m.logger.Info("reaping silent connection",
				slog.Uint64("conn_id", c.ID()),
				slog.Duration("silent_for", now.Sub(c.LastSeen())))
			if loggedIn {
				m.sessions.Release(account, c)
			}
			_ = c.Close()
			closed++
		case loggedIn && !m.sessions.Owns(account, c):
			m.logger.Info("closing connection without session",
				slog.Uint64("conn_id", c.ID()),
				slog.Int64("account_id", int64(account)))
			_ = c.Close()
			closed++
		}
	}

	if len(pruned) > 0 {
		m.mu.Lock()
		for _, id := range pruned {
			delete(m.conns, id)
		}
		m.mu.Unlock()
	}
	return closed
}

// CloseAll closes every tracked connection, for shutdown
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	conns := make([]Tracked, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[uint64]Tracked)
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	m.logger.Info("closed all connections", slog.Int("count", len(conns)))
	return len(conns)
}
